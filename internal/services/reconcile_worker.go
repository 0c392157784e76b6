package services

import (
	"context"
	"time"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// ReconciliationSource drains ids previously routed around the publish path.
type ReconciliationSource interface {
	Dequeue(ctx context.Context, kind string) (string, error)
}

// ReconcileWorker repairs entities out of band: it re-runs the normal
// change path, which re-derives, re-validates, and publishes when the state
// has healed. Entities that are still invalid simply land back in the queue.
type ReconcileWorker struct {
	source           ReconciliationSource
	itemEvents       *ItemEventService
	ownershipEvents  *OwnershipEventService
	collectionEvents *CollectionEventService
	interval         time.Duration
	log              *logger.Logger
}

func NewReconcileWorker(
	source ReconciliationSource,
	itemEvents *ItemEventService,
	ownershipEvents *OwnershipEventService,
	collectionEvents *CollectionEventService,
	interval time.Duration,
	baseLog *logger.Logger,
) *ReconcileWorker {
	return &ReconcileWorker{
		source:           source,
		itemEvents:       itemEvents,
		ownershipEvents:  ownershipEvents,
		collectionEvents: collectionEvents,
		interval:         interval,
		log:              baseLog.With("service", "ReconcileWorker"),
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.drain(ctx)
			}
		}
	}()
}

func (w *ReconcileWorker) drain(ctx context.Context) {
	for _, kind := range []string{"item", "ownership", "collection"} {
		for {
			id, err := w.source.Dequeue(ctx, kind)
			if err != nil {
				w.log.Warn("reconcile dequeue failed", "kind", kind, "error", err)
				break
			}
			if id == "" {
				break
			}
			if err := w.repair(ctx, kind, id); err != nil {
				w.log.Warn("reconcile repair failed", "kind", kind, "id", id, "error", err)
			}
		}
	}
}

func (w *ReconcileWorker) repair(ctx context.Context, kind, rawID string) error {
	switch kind {
	case "item":
		id, err := types.ParseItemID(rawID)
		if err != nil {
			return err
		}
		return w.itemEvents.OnItemChanged(ctx, id)
	case "ownership":
		id, err := types.ParseOwnershipID(rawID)
		if err != nil {
			return err
		}
		return w.ownershipEvents.OnOwnershipChanged(ctx, id)
	case "collection":
		id, err := types.ParseCollectionID(rawID)
		if err != nil {
			return err
		}
		return w.collectionEvents.OnCollectionChanged(ctx, id)
	default:
		return ErrUnsupportedKind
	}
}
