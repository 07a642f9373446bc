// Package polymarket implements the REST and WebSocket clients for the
// external CLOB venue that hedge orders execute against.
package polymarket

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/crypto"
	"github.com/predictfi/venue/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ClobClient is the REST client for the external CLOB API. It reads order
// books and places signed hedge orders.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
	feeRateBps int
}

// NewClobClient creates a CLOB REST client.
//
// baseURL is the API root, e.g. "https://clob.polymarket.com". signer
// produces EIP-712 order signatures; hmac authenticates API requests.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth, feeRateBps int) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:     signer,
		hmacAuth:   hmac,
		feeRateBps: feeRateBps,
	}
}

// OrderBook fetches the live book for tokenID and reduces it to a
// best-bid/best-ask snapshot.
func (c *ClobClient) OrderBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error) {
	path := "/book?token_id=" + url.QueryEscape(tokenID)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: get book for %s: %w", tokenID, err)
	}

	var book BookResponse
	if err := json.Unmarshal(respBody, &book); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}

	return book.ToSnapshot(), nil
}

// PlaceOrder signs and submits a limit order for the given quote and
// returns the venue's order ID. Rejections are normalized onto domain
// sentinels so the caller can distinguish a too-small order from a dead
// book.
func (c *ClobClient) PlaceOrder(ctx context.Context, q domain.Quote) (string, error) {
	payload, err := c.buildPayload(q)
	if err != nil {
		return "", err
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	side := "BUY"
	if q.Side == domain.OrderSideSell {
		side = "SELL"
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenId":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          side,
			"signatureType": payload.SignatureType,
			"signature":     sig,
		},
		"owner":     c.signer.Address().Hex(),
		"orderType": "GTC",
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result PlaceOrderResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("polymarket/clob: %w: %s", normalizeVenueError(result.ErrorMsg), result.ErrorMsg)
	}

	return result.OrderID, nil
}

// OrderStatus fetches the current state of a resting order. The executor
// polls this until the order fills or its fill window lapses.
func (c *ClobClient) OrderStatus(ctx context.Context, orderID string) (domain.ExecutionResult, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), nil)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}

	var status OrderStatusResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("polymarket/clob: decode order status: %w", err)
	}

	feeRate := decimal.New(int64(c.feeRateBps), -4)
	return status.ToExecution(feeRate), nil
}

// buildPayload converts a quote into the EIP-712 order struct. Amounts are
// expressed in the venue's 6-decimal base units: for a buy the maker gives
// collateral and takes shares, for a sell the reverse.
func (c *ClobClient) buildPayload(q domain.Quote) (crypto.OrderPayload, error) {
	salt, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket/clob: generating salt: %w", err)
	}

	shares := baseUnits(q.Shares)
	value := baseUnits(q.Price.Mul(q.Shares))

	makerAmount, takerAmount := value, shares
	side := 0
	if q.Side == domain.OrderSideSell {
		makerAmount, takerAmount = shares, value
		side = 1
	}

	address := c.signer.Address().Hex()
	return crypto.OrderPayload{
		Salt:          salt.String(),
		Maker:         address,
		Signer:        address,
		Taker:         zeroAddress,
		TokenID:       q.TokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    fmt.Sprintf("%d", c.feeRateBps),
		Side:          side,
		SignatureType: 0,
	}, nil
}

// baseUnits renders d in 1e6 fixed-point base units, truncating dust below
// the venue's resolution.
func baseUnits(d decimal.Decimal) string {
	return d.Shift(6).Truncate(0).String()
}

// doRequest builds, authenticates, sends, and reads an HTTP request against
// the CLOB API, returning the raw response body.
func (c *ClobClient) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil && c.signer != nil {
		for k, v := range c.hmacAuth.Headers(c.signer.Address().Hex(), method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
