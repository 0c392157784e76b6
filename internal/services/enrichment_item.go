package services

import (
	"context"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// EnrichmentItemService owns read/write access to item aggregates and builds
// the denormalized outgoing view.
type EnrichmentItemService struct {
	items       repos.ItemRepo
	collections repos.CollectionRepo
	meta        repos.DownloadEntryRepo
	log         *logger.Logger
}

func NewEnrichmentItemService(
	items repos.ItemRepo,
	collections repos.CollectionRepo,
	meta repos.DownloadEntryRepo,
	baseLog *logger.Logger,
) *EnrichmentItemService {
	return &EnrichmentItemService{
		items:       items,
		collections: collections,
		meta:        meta,
		log:         baseLog.With("service", "EnrichmentItemService"),
	}
}

func (s *EnrichmentItemService) Get(ctx context.Context, id types.ItemID) (*types.ShortItem, error) {
	return s.items.Get(ctx, nil, id.String())
}

// GetOrEmpty returns the stored aggregate or a fresh empty one (Version 0,
// not yet persisted) so every event path can merge into something.
func (s *EnrichmentItemService) GetOrEmpty(ctx context.Context, id types.ItemID) (*types.ShortItem, error) {
	item, err := s.items.Get(ctx, nil, id.String())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return types.EmptyShortItem(id), nil
	}
	return item, nil
}

func (s *EnrichmentItemService) Save(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
	return s.items.Save(ctx, nil, item)
}

// GetItemOrigins resolves the marketplace origin allow-list of the item's
// collection. Missing collection means no restriction.
func (s *EnrichmentItemService) GetItemOrigins(ctx context.Context, id types.ItemID) ([]string, error) {
	collection, err := s.collections.Get(ctx, nil, id.CollectionID().String())
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, nil
	}
	return collection.OrderOrigins, nil
}

// EnrichItem denormalizes the aggregate into the outgoing view, attaching
// downloaded metadata when available (including partial payloads).
func (s *EnrichmentItemService) EnrichItem(ctx context.Context, item *types.ShortItem) (types.EnrichedItem, error) {
	enriched := types.EnrichedItem{
		ID:             item.ID,
		Blockchain:     item.Blockchain,
		BestSellOrder:  item.BestSellOrder,
		BestSellOrders: item.BestSellOrders,
		BestBidOrder:   item.BestBidOrder,
		BestBidOrders:  item.BestBidOrders,
		PoolOrders:     item.PoolOrders,
		AuctionIDs:     item.AuctionIDs,
		LastSale:       item.LastSale,
		Sellers:        item.Sellers,
		TotalStock:     item.TotalStock,
		LastUpdatedAt:  item.LastUpdatedAt,
	}

	entry, err := s.meta.Get(ctx, nil, item.ID)
	if err != nil {
		return enriched, err
	}
	if entry != nil && entry.Data != nil {
		switch entry.Status {
		case types.DownloadStatusSuccess, types.DownloadStatusRetryPartial:
			enriched.Meta = entry.Data
		}
	}
	return enriched, nil
}
