package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/yungbote/nftbridge-backend/internal/services/bestorder"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// ErrUnsupportedKind is a configuration error: an event referenced an entity
// kind the engine was not built for. It is never retried.
var ErrUnsupportedKind = errors.New("unsupported entity kind")

// Notifier publishes enriched entities downstream. Publishing must be
// acknowledged before the triggering operation completes (at-least-once).
type Notifier interface {
	PublishItemUpdate(ctx context.Context, event types.ItemUpdateEvent) error
	PublishItemDelete(ctx context.Context, event types.ItemDeleteEvent) error
	PublishOwnershipUpdate(ctx context.Context, event types.OwnershipUpdateEvent) error
	PublishOwnershipDelete(ctx context.Context, event types.OwnershipDeleteEvent) error
	PublishCollectionUpdate(ctx context.Context, event types.CollectionUpdateEvent) error
	PublishCollectionDelete(ctx context.Context, event types.CollectionDeleteEvent) error
	PublishOrderUpdate(ctx context.Context, event types.OrderUpdateEvent) error
}

// ReconciliationQueue receives ids of entities whose derived state failed
// validation and must be repaired out of band.
type ReconciliationQueue interface {
	EnqueueItem(ctx context.Context, id string) error
	EnqueueOwnership(ctx context.Context, id string) error
	EnqueueCollection(ctx context.Context, id string) error
}

// OrderSource fetches the current best candidate from upstream when the core
// cannot derive it from the subset of orders it has seen.
type OrderSource interface {
	GetBestSell(ctx context.Context, itemID string, currency string) (*types.Order, error)
	GetBestBid(ctx context.Context, itemID string, currency string) (*types.Order, error)
}

// ActivityHistory answers "what is the authoritative last sale" for an item,
// needed when a previously observed sale is reverted.
type ActivityHistory interface {
	GetItemLastSale(ctx context.Context, itemID string) (*types.LastSale, error)
}

// RatesProvider exposes the latest currency->USD table (last known good).
type RatesProvider interface {
	Rates() bestorder.Rates
}

// sameState compares two aggregate snapshots by their canonical JSON form.
// Mutation paths return the input untouched for no-op cases, so equality
// here reliably detects "nothing changed" without field-by-field plumbing.
func sameState(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
