package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/optimistic"
	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/services/bestorder"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// OwnershipEventService mirrors the item engine for ownerships, with one
// twist: an ownership without enrichment data is deleted rather than kept,
// and every transition is reported to the item engine so the owning item's
// sell stats stay in step.
type OwnershipEventService struct {
	flags      types.Flags
	retrier    *optimistic.Retrier
	ownerships repos.OwnershipRepo
	itemEvents *ItemEventService
	resolver   *bestorder.Resolver
	rates      RatesProvider
	orders     OrderSource
	notifier   Notifier
	reconcile  ReconciliationQueue
	log        *logger.Logger
}

func NewOwnershipEventService(
	flags types.Flags,
	ownerships repos.OwnershipRepo,
	itemEvents *ItemEventService,
	rates RatesProvider,
	orders OrderSource,
	notifier Notifier,
	reconcile ReconciliationQueue,
	baseLog *logger.Logger,
) *OwnershipEventService {
	return &OwnershipEventService{
		flags: flags,
		retrier: optimistic.NewRetrier(optimistic.Policy{
			Retryable: func(err error) bool { return errors.Is(err, repos.ErrVersionConflict) },
		}),
		ownerships: ownerships,
		itemEvents: itemEvents,
		resolver:   bestorder.NewResolver(flags.PreferredCurrencies),
		rates:      rates,
		orders:     orders,
		notifier:   notifier,
		reconcile:  reconcile,
		log:        baseLog.With("service", "OwnershipEventService"),
	}
}

// OnOwnershipChanged re-publishes the current enriched view.
func (s *OwnershipEventService) OnOwnershipChanged(ctx context.Context, id types.OwnershipID) error {
	ownership, err := s.ownerships.Get(ctx, nil, id.String())
	if err != nil {
		return err
	}
	if ownership == nil {
		return s.publishDelete(ctx, id.String())
	}
	return s.notifyUpdate(ctx, ownership)
}

// OnOwnershipDeleted removes the row, tells the item engine the seller is
// gone, and publishes a delete. Idempotent for unknown ids.
func (s *OwnershipEventService) OnOwnershipDeleted(ctx context.Context, id types.OwnershipID) error {
	ownership, err := s.ownerships.Get(ctx, nil, id.String())
	if err != nil {
		return err
	}
	if ownership != nil {
		if _, err := s.ownerships.Delete(ctx, nil, id.String()); err != nil {
			return err
		}
		if err := s.itemEvents.OnOwnershipSellStatsChanged(ctx, ownership, nil); err != nil {
			return err
		}
	}
	return s.publishDelete(ctx, id.String())
}

// OnBestSellOrderUpdated applies one sell candidate to the ownership. When
// the resulting aggregate holds no enrichment data it is deleted instead of
// saved. The old/new pair is handed to the item engine afterwards.
func (s *OwnershipEventService) OnBestSellOrderUpdated(ctx context.Context, id types.OwnershipID, order *types.Order, notify bool) error {
	origins, err := s.itemEvents.items.GetItemOrigins(ctx, id.ItemID())
	if err != nil {
		return err
	}
	// Only the owner's own sell orders enrich an ownership.
	if order != nil && order.Maker != "" && order.Maker != id.Owner {
		return nil
	}

	var before, after *types.ShortOwnership
	err = s.retrier.Run(ctx, func(ctx context.Context) error {
		before, after = nil, nil
		current, err := s.ownerships.Get(ctx, nil, id.String())
		if err != nil {
			return err
		}
		existing := current
		if current == nil {
			current = types.EmptyShortOwnership(id)
		}
		next, err := s.applySellCandidate(ctx, current, order, origins)
		if err != nil {
			return err
		}
		if sameState(current, next) {
			s.log.Debug("ownership update is a no-op", "ownership_id", id.String())
			return nil
		}
		before = existing
		if next.IsEmpty() {
			if existing == nil {
				before = nil
				return nil
			}
			_, err := s.ownerships.Delete(ctx, nil, id.String())
			return err
		}
		saved, err := s.ownerships.Save(ctx, nil, next)
		if err != nil {
			return err
		}
		after = saved
		return nil
	})
	if err != nil {
		return err
	}
	if before == nil && after == nil {
		return nil
	}
	if err := s.itemEvents.OnOwnershipSellStatsChanged(ctx, before, after); err != nil {
		return err
	}
	if !notify {
		return nil
	}
	if after == nil {
		return s.publishDelete(ctx, id.String())
	}
	if err := s.notifyUpdate(ctx, after); err != nil {
		// The save already landed; a retry would no-op and never publish, so
		// the reconcile worker takes over delivery.
		s.log.Warn("publish failed after save, routing to reconciliation", "ownership_id", after.ID, "error", err)
		return s.reconcile.EnqueueOwnership(ctx, after.ID)
	}
	return nil
}

// RecalculateBestOrder re-elects the default sell order from the stored
// per-currency map under the latest rate table. A flipped default moves
// SellStock with it, so the owning item's stats are refreshed too. Returns
// whether a new version was persisted.
func (s *OwnershipEventService) RecalculateBestOrder(ctx context.Context, id types.OwnershipID) (bool, error) {
	var before, after *types.ShortOwnership
	err := s.retrier.Run(ctx, func(ctx context.Context) error {
		before, after = nil, nil
		current, err := s.ownerships.Get(ctx, nil, id.String())
		if err != nil || current == nil {
			return err
		}
		elected := s.resolver.ElectDefault(current.BestSellOrders, bestorder.SideSell, s.rates.Rates())
		if sameOrder(current.BestSellOrder, elected) {
			return nil
		}
		next := *current
		next.BestSellOrder = elected
		next.SellStock = decimal.Zero
		if elected != nil {
			next.SellStock = elected.MakeStock
		}
		saved, err := s.ownerships.Save(ctx, nil, &next)
		if err != nil {
			return err
		}
		before, after = current, saved
		return nil
	})
	if err != nil || after == nil {
		return false, err
	}
	if err := s.itemEvents.OnOwnershipSellStatsChanged(ctx, before, after); err != nil {
		return true, err
	}
	if err := s.notifyUpdate(ctx, after); err != nil {
		s.log.Warn("publish failed after save, routing to reconciliation", "ownership_id", after.ID, "error", err)
		return true, s.reconcile.EnqueueOwnership(ctx, after.ID)
	}
	return true, nil
}

func (s *OwnershipEventService) applySellCandidate(ctx context.Context, ownership *types.ShortOwnership, order *types.Order, origins []string) (*types.ShortOwnership, error) {
	rates := s.rates.Rates()
	update := s.resolver.OnCandidate(ownership.BestSellOrders, order, bestorder.SideSell, origins, rates)

	byCurrency := update.ByCurrency
	for _, currency := range update.RefetchCurrencies {
		fetched, err := s.orders.GetBestSell(ctx, ownership.ID, currency)
		if err != nil {
			return nil, err
		}
		if !fetched.Alive() || !allowedByOrigins(fetched, origins) {
			fetched = nil
		}
		next := byCurrency.Clone()
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
		byCurrency = next
	}

	if !update.Changed && len(update.RefetchCurrencies) == 0 {
		return ownership, nil
	}
	next := *ownership
	next.BestSellOrders = byCurrency
	next.BestSellOrder = s.resolver.ElectDefault(byCurrency, bestorder.SideSell, rates)
	next.SellStock = decimal.Zero
	if next.BestSellOrder != nil {
		next.SellStock = next.BestSellOrder.MakeStock
	}
	return &next, nil
}

func (s *OwnershipEventService) notifyUpdate(ctx context.Context, ownership *types.ShortOwnership) error {
	enriched := types.EnrichedOwnership{
		ID:             ownership.ID,
		Blockchain:     ownership.Blockchain,
		ItemID:         ownership.ItemID,
		Owner:          ownership.Owner,
		BestSellOrder:  ownership.BestSellOrder,
		BestSellOrders: ownership.BestSellOrders,
		LastUpdatedAt:  ownership.LastUpdatedAt,
	}
	if err := validateOwnership(&enriched); err != nil {
		s.log.Warn("ownership failed validation, routing to reconciliation", "ownership_id", ownership.ID, "error", err)
		return s.reconcile.EnqueueOwnership(ctx, ownership.ID)
	}
	return s.notifier.PublishOwnershipUpdate(ctx, types.OwnershipUpdateEvent{
		EventID:     uuid.NewString(),
		OwnershipID: ownership.ID,
		Ownership:   enriched,
	})
}

func (s *OwnershipEventService) publishDelete(ctx context.Context, id string) error {
	return s.notifier.PublishOwnershipDelete(ctx, types.OwnershipDeleteEvent{
		EventID:     uuid.NewString(),
		OwnershipID: id,
	})
}
