package currency

import (
	"context"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/services"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

const recalcPageSize = 500

// RecalcJob re-elects default best orders across all aggregates after the
// rate table moved. This is the only path that changes a default with no
// order event at all.
type RecalcJob struct {
	items            repos.ItemRepo
	ownerships       repos.OwnershipRepo
	collections      repos.CollectionRepo
	itemEvents       *services.ItemEventService
	ownershipEvents  *services.OwnershipEventService
	collectionEvents *services.CollectionEventService
	log              *logger.Logger
}

func NewRecalcJob(
	items repos.ItemRepo,
	ownerships repos.OwnershipRepo,
	collections repos.CollectionRepo,
	itemEvents *services.ItemEventService,
	ownershipEvents *services.OwnershipEventService,
	collectionEvents *services.CollectionEventService,
	baseLog *logger.Logger,
) *RecalcJob {
	return &RecalcJob{
		items:            items,
		ownerships:       ownerships,
		collections:      collections,
		itemEvents:       itemEvents,
		ownershipEvents:  ownershipEvents,
		collectionEvents: collectionEvents,
		log:              baseLog.With("job", "RecalcJob"),
	}
}

// Run walks every aggregate once. Individual failures are logged and skipped
// so one bad row cannot stall the sweep.
func (j *RecalcJob) Run(ctx context.Context) error {
	itemsChanged, err := j.recalcItems(ctx)
	if err != nil {
		return err
	}
	ownershipsChanged, err := j.recalcOwnerships(ctx)
	if err != nil {
		return err
	}
	collectionsChanged, err := j.recalcCollections(ctx)
	if err != nil {
		return err
	}
	j.log.Info("best-order recalculation finished",
		"items_changed", itemsChanged,
		"ownerships_changed", ownershipsChanged,
		"collections_changed", collectionsChanged,
	)
	return nil
}

func (j *RecalcJob) recalcItems(ctx context.Context) (int, error) {
	changed := 0
	afterID := ""
	for {
		page, err := j.items.List(ctx, nil, afterID, recalcPageSize)
		if err != nil {
			return changed, err
		}
		for _, item := range page {
			if len(item.BestSellOrders) == 0 && len(item.BestBidOrders) == 0 {
				continue
			}
			id, err := types.ParseItemID(item.ID)
			if err != nil {
				j.log.Warn("skipping item with malformed id", "item_id", item.ID)
				continue
			}
			moved, err := j.itemEvents.RecalculateBestOrders(ctx, id)
			if err != nil {
				j.log.Warn("item recalculation failed", "item_id", item.ID, "error", err)
				continue
			}
			if moved {
				changed++
			}
		}
		if len(page) < recalcPageSize {
			return changed, nil
		}
		afterID = page[len(page)-1].ID
		if err := ctx.Err(); err != nil {
			return changed, err
		}
	}
}

func (j *RecalcJob) recalcOwnerships(ctx context.Context) (int, error) {
	changed := 0
	afterID := ""
	for {
		page, err := j.ownerships.List(ctx, nil, afterID, recalcPageSize)
		if err != nil {
			return changed, err
		}
		for _, ownership := range page {
			if len(ownership.BestSellOrders) == 0 {
				continue
			}
			id, err := types.ParseOwnershipID(ownership.ID)
			if err != nil {
				j.log.Warn("skipping ownership with malformed id", "ownership_id", ownership.ID)
				continue
			}
			moved, err := j.ownershipEvents.RecalculateBestOrder(ctx, id)
			if err != nil {
				j.log.Warn("ownership recalculation failed", "ownership_id", ownership.ID, "error", err)
				continue
			}
			if moved {
				changed++
			}
		}
		if len(page) < recalcPageSize {
			return changed, nil
		}
		afterID = page[len(page)-1].ID
		if err := ctx.Err(); err != nil {
			return changed, err
		}
	}
}

func (j *RecalcJob) recalcCollections(ctx context.Context) (int, error) {
	changed := 0
	afterID := ""
	for {
		page, err := j.collections.List(ctx, nil, afterID, recalcPageSize)
		if err != nil {
			return changed, err
		}
		for _, collection := range page {
			if len(collection.BestSellOrders) == 0 && len(collection.BestBidOrders) == 0 {
				continue
			}
			id, err := types.ParseCollectionID(collection.ID)
			if err != nil {
				j.log.Warn("skipping collection with malformed id", "collection_id", collection.ID)
				continue
			}
			moved, err := j.collectionEvents.RecalculateBestOrders(ctx, id)
			if err != nil {
				j.log.Warn("collection recalculation failed", "collection_id", collection.ID, "error", err)
				continue
			}
			if moved {
				changed++
			}
		}
		if len(page) < recalcPageSize {
			return changed, nil
		}
		afterID = page[len(page)-1].ID
		if err := ctx.Err(); err != nil {
			return changed, err
		}
	}
}
