// Package tracker persists the audit row for each logical email
// delivery. Delivery status is authoritative: a failed tracking write
// is logged and counted but never fails the item it belongs to.
package tracker

import (
	"context"
	"log/slog"

	"mudamail/internal/observability"
	"mudamail/internal/store"
)

type Store interface {
	UpsertTracking(ctx context.Context, in store.TrackingUpsert) error
	GetTracking(ctx context.Context, code string) (store.TrackingRecord, bool, error)
}

type Tracker struct {
	Store Store
}

func (t *Tracker) Track(ctx context.Context, in store.TrackingUpsert) {
	if err := t.Store.UpsertTracking(ctx, in); err != nil {
		observability.TrackingWriteFailures.Inc()
		slog.Error("falha ao gravar tracking",
			"err", err,
			"codigo", in.Code,
			"orcamento_id", in.QuoteID,
			"destinatario", in.Recipient,
		)
	}
}

func (t *Tracker) Get(ctx context.Context, code string) (store.TrackingRecord, bool, error) {
	return t.Store.GetTracking(ctx, code)
}
