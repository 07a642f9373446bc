package domain

import "errors"

// Validation-stage failures: returned before any external side effect, fully
// recoverable, no rollback required.
var (
	ErrMappingNotFound     = errors.New("no active external mapping for market")
	ErrMissingToken        = errors.New("no token recorded for outcome")
	ErrUnresolvedOutcome   = errors.New("outcome not found in market")
	ErrBelowMinimumSize    = errors.New("below venue minimum order size")
	ErrUnprofitable        = errors.New("hedge unprofitable after fees")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExposureExceeded    = errors.New("exposure limit exceeded")
	ErrPriceImpactTooHigh  = errors.New("price impact beyond configured bound")
	ErrMarketNotActive     = errors.New("market not open for trading")
)

// Execution- and settlement-stage failures.
var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity on external book")
	ErrExecutionRejected     = errors.New("order rejected by external venue")
	ErrAlreadyResolved       = errors.New("market already resolved")
)

// Infrastructure sentinels shared across store/cache implementations.
var (
	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
)
