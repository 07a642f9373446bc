package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/predictfi/venue/internal/domain"
)

// Narrow store views required by the archiver; the Postgres stores satisfy
// them implicitly.

// ActivityArchiveStore reads a market's activity log for export.
type ActivityArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketActivity, error)
}

// OrderArchiveStore reads a market's orders for export.
type OrderArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error)
}

// HedgeArchiveStore reads a market's hedge audit trail for export.
type HedgeArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.HedgePosition, error)
}

// MarketArchiver exports a resolved market's records to object storage as
// newline-delimited JSON. The settlement service calls it after commit;
// the database rows are never deleted here, the archive is a cold copy.
type MarketArchiver struct {
	writer     domain.BlobWriter
	activities ActivityArchiveStore
	orders     OrderArchiveStore
	hedges     HedgeArchiveStore
	logger     *slog.Logger
}

// NewMarketArchiver creates a MarketArchiver.
func NewMarketArchiver(
	writer domain.BlobWriter,
	activities ActivityArchiveStore,
	orders OrderArchiveStore,
	hedges HedgeArchiveStore,
	logger *slog.Logger,
) *MarketArchiver {
	return &MarketArchiver{
		writer:     writer,
		activities: activities,
		orders:     orders,
		hedges:     hedges,
		logger:     logger.With(slog.String("component", "market_archiver")),
	}
}

// ArchiveMarket uploads the market's activities, orders, and hedge
// positions under markets/{marketID}/.
func (a *MarketArchiver) ArchiveMarket(ctx context.Context, marketID string) error {
	activities, err := a.activities.ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: list activities: %w", marketID, err)
	}
	if err := upload(ctx, a.writer, marketID, "activities", activities); err != nil {
		return err
	}

	orders, err := a.orders.ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: list orders: %w", marketID, err)
	}
	if err := upload(ctx, a.writer, marketID, "orders", orders); err != nil {
		return err
	}

	hedges, err := a.hedges.ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: list hedge positions: %w", marketID, err)
	}
	if err := upload(ctx, a.writer, marketID, "hedge_positions", hedges); err != nil {
		return err
	}

	a.logger.Info("market archived",
		slog.String("market_id", marketID),
		slog.Int("activities", len(activities)),
		slog.Int("orders", len(orders)),
		slog.Int("hedge_positions", len(hedges)),
	)
	return nil
}

// upload serialises the records as JSONL and puts them under the market's
// archive prefix. Empty record sets write nothing.
func upload[T any](ctx context.Context, w domain.BlobWriter, marketID, kind string, records []T) error {
	if len(records) == 0 {
		return nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: marshal %s: %w", marketID, kind, err)
	}

	path := fmt.Sprintf("markets/%s/%s.jsonl", marketID, kind)
	if err := w.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive %s: upload %s: %w", marketID, kind, err)
	}
	return nil
}

// marshalJSONL serialises a slice as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
