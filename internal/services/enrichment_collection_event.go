package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/optimistic"
	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/services/bestorder"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// CollectionEventService maintains collection aggregates, fed by
// collection-wide (floor) orders. Publication of order-triggered updates is
// gated by a feature flag since some deployments derive floors elsewhere.
type CollectionEventService struct {
	flags       types.Flags
	retrier     *optimistic.Retrier
	collections repos.CollectionRepo
	resolver    *bestorder.Resolver
	rates       RatesProvider
	orders      OrderSource
	notifier    Notifier
	reconcile   ReconciliationQueue
	log         *logger.Logger
}

func NewCollectionEventService(
	flags types.Flags,
	collections repos.CollectionRepo,
	rates RatesProvider,
	orders OrderSource,
	notifier Notifier,
	reconcile ReconciliationQueue,
	baseLog *logger.Logger,
) *CollectionEventService {
	return &CollectionEventService{
		flags: flags,
		retrier: optimistic.NewRetrier(optimistic.Policy{
			Retryable: func(err error) bool { return errors.Is(err, repos.ErrVersionConflict) },
		}),
		collections: collections,
		resolver:    bestorder.NewResolver(flags.PreferredCurrencies),
		rates:       rates,
		orders:      orders,
		notifier:    notifier,
		reconcile:   reconcile,
		log:         baseLog.With("service", "CollectionEventService"),
	}
}

// OnCollectionChanged re-publishes the current enriched view.
func (s *CollectionEventService) OnCollectionChanged(ctx context.Context, id types.CollectionID) error {
	collection, err := s.getOrEmpty(ctx, id)
	if err != nil {
		return err
	}
	return s.notifyUpdate(ctx, collection)
}

// OnCollectionDeleted clears enrichment but keeps the row (the origin
// allow-list survives a chain-side delete) and publishes a delete event.
func (s *CollectionEventService) OnCollectionDeleted(ctx context.Context, id types.CollectionID) error {
	err := s.retrier.Run(ctx, func(ctx context.Context) error {
		collection, err := s.collections.Get(ctx, nil, id.String())
		if err != nil || collection == nil {
			return err
		}
		cleared := collection.WithClearedEnrichment()
		if sameState(collection, cleared) {
			return nil
		}
		_, err = s.collections.Save(ctx, nil, cleared)
		return err
	})
	if err != nil {
		return err
	}
	return s.notifier.PublishCollectionDelete(ctx, types.CollectionDeleteEvent{
		EventID:      uuid.NewString(),
		CollectionID: id.String(),
	})
}

// SetOrderOrigins replaces the marketplace allow-list. Incumbent best orders
// are deliberately kept even when their origin falls off the list; they age
// out on their next order event.
func (s *CollectionEventService) SetOrderOrigins(ctx context.Context, id types.CollectionID, origins []string) error {
	return s.updateCollection(ctx, id, false, func(ctx context.Context, collection *types.ShortCollection) (*types.ShortCollection, error) {
		if sameState(collection.OrderOrigins, origins) {
			return collection, nil
		}
		next := *collection
		next.OrderOrigins = origins
		return &next, nil
	})
}

// OnBestSellOrderUpdated applies one collection-wide sell candidate.
func (s *CollectionEventService) OnBestSellOrderUpdated(ctx context.Context, id types.CollectionID, order *types.Order, notify bool) error {
	return s.onOrderCandidate(ctx, id, order, bestorder.SideSell, notify)
}

// OnBestBidOrderUpdated applies one collection-wide bid candidate.
func (s *CollectionEventService) OnBestBidOrderUpdated(ctx context.Context, id types.CollectionID, order *types.Order, notify bool) error {
	return s.onOrderCandidate(ctx, id, order, bestorder.SideBid, notify)
}

// RecalculateBestOrders re-elects the defaults under the latest rate table.
func (s *CollectionEventService) RecalculateBestOrders(ctx context.Context, id types.CollectionID) (bool, error) {
	changed := false
	err := s.updateCollection(ctx, id, true, func(ctx context.Context, collection *types.ShortCollection) (*types.ShortCollection, error) {
		changed = false
		rates := s.rates.Rates()
		sell := s.resolver.ElectDefault(collection.BestSellOrders, bestorder.SideSell, rates)
		bid := s.resolver.ElectDefault(collection.BestBidOrders, bestorder.SideBid, rates)
		if sameOrder(collection.BestSellOrder, sell) && sameOrder(collection.BestBidOrder, bid) {
			return collection, nil
		}
		next := *collection
		next.BestSellOrder = sell
		next.BestBidOrder = bid
		changed = true
		return &next, nil
	})
	return changed && err == nil, err
}

func (s *CollectionEventService) onOrderCandidate(ctx context.Context, id types.CollectionID, order *types.Order, side bestorder.Side, notify bool) error {
	if notify && !s.flags.EnableNotificationOnCollectionOrders {
		notify = false
	}
	return s.updateCollection(ctx, id, notify, func(ctx context.Context, collection *types.ShortCollection) (*types.ShortCollection, error) {
		rates := s.rates.Rates()
		origins := collection.OrderOrigins
		byCurrency := collection.BestSellOrders
		if side == bestorder.SideBid {
			byCurrency = collection.BestBidOrders
		}
		update := s.resolver.OnCandidate(byCurrency, order, side, origins, rates)

		resolved := update.ByCurrency
		for _, currency := range update.RefetchCurrencies {
			fetched, err := s.fetchBest(ctx, collection.ID, currency, side)
			if err != nil {
				return nil, err
			}
			if !fetched.Alive() || !allowedByOrigins(fetched, origins) {
				fetched = nil
			}
			next := resolved.Clone()
			if next == nil {
				next = types.OrderMap{}
			}
			if fetched == nil {
				delete(next, currency)
			} else {
				next[currency] = fetched
			}
			if len(next) == 0 {
				next = nil
			}
			resolved = next
		}

		if !update.Changed && len(update.RefetchCurrencies) == 0 {
			return collection, nil
		}
		next := *collection
		if side == bestorder.SideSell {
			next.BestSellOrders = resolved
			next.BestSellOrder = s.resolver.ElectDefault(resolved, bestorder.SideSell, rates)
		} else {
			next.BestBidOrders = resolved
			next.BestBidOrder = s.resolver.ElectDefault(resolved, bestorder.SideBid, rates)
		}
		return &next, nil
	})
}

func (s *CollectionEventService) fetchBest(ctx context.Context, id, currency string, side bestorder.Side) (*types.Order, error) {
	if side == bestorder.SideBid {
		return s.orders.GetBestBid(ctx, id, currency)
	}
	return s.orders.GetBestSell(ctx, id, currency)
}

func (s *CollectionEventService) getOrEmpty(ctx context.Context, id types.CollectionID) (*types.ShortCollection, error) {
	collection, err := s.collections.Get(ctx, nil, id.String())
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return types.EmptyShortCollection(id), nil
	}
	return collection, nil
}

func (s *CollectionEventService) updateCollection(
	ctx context.Context,
	id types.CollectionID,
	notify bool,
	mutate func(ctx context.Context, collection *types.ShortCollection) (*types.ShortCollection, error),
) error {
	return s.retrier.Run(ctx, func(ctx context.Context) error {
		collection, err := s.getOrEmpty(ctx, id)
		if err != nil {
			return err
		}
		next, err := mutate(ctx, collection)
		if err != nil {
			return err
		}
		if next == nil || sameState(collection, next) {
			s.log.Debug("collection update is a no-op", "collection_id", id.String())
			return nil
		}
		saved, err := s.collections.Save(ctx, nil, next)
		if err != nil {
			return err
		}
		if !notify {
			return nil
		}
		if err := s.notifyUpdate(ctx, saved); err != nil {
			// The save already landed; a retry would no-op and never publish,
			// so the reconcile worker takes over delivery.
			s.log.Warn("publish failed after save, routing to reconciliation", "collection_id", saved.ID, "error", err)
			return s.reconcile.EnqueueCollection(ctx, saved.ID)
		}
		return nil
	})
}

func (s *CollectionEventService) notifyUpdate(ctx context.Context, collection *types.ShortCollection) error {
	enriched := types.EnrichedCollection{
		ID:             collection.ID,
		Blockchain:     collection.Blockchain,
		BestSellOrder:  collection.BestSellOrder,
		BestSellOrders: collection.BestSellOrders,
		BestBidOrder:   collection.BestBidOrder,
		BestBidOrders:  collection.BestBidOrders,
		LastUpdatedAt:  collection.LastUpdatedAt,
	}
	if err := validateCollection(&enriched); err != nil {
		s.log.Warn("collection failed validation, routing to reconciliation", "collection_id", collection.ID, "error", err)
		return s.reconcile.EnqueueCollection(ctx, collection.ID)
	}
	return s.notifier.PublishCollectionUpdate(ctx, types.CollectionUpdateEvent{
		EventID:      uuid.NewString(),
		CollectionID: collection.ID,
		Collection:   enriched,
	})
}
