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

// ItemEventService turns upstream events into item aggregate mutations plus
// outgoing notifications. Every mutating operation runs as an optimistic
// read-merge-write cycle; the cycle body has no side effects beyond the
// single save, so losing the version race and re-running is always safe.
type ItemEventService struct {
	flags      types.Flags
	retrier    *optimistic.Retrier
	items      *EnrichmentItemService
	sellStats  *SellStatsService
	resolver   *bestorder.Resolver
	rates      RatesProvider
	orders     OrderSource
	activities ActivityHistory
	notifier   Notifier
	reconcile  ReconciliationQueue
	log        *logger.Logger
}

func NewItemEventService(
	flags types.Flags,
	items *EnrichmentItemService,
	sellStats *SellStatsService,
	rates RatesProvider,
	orders OrderSource,
	activities ActivityHistory,
	notifier Notifier,
	reconcile ReconciliationQueue,
	baseLog *logger.Logger,
) *ItemEventService {
	return &ItemEventService{
		flags: flags,
		retrier: optimistic.NewRetrier(optimistic.Policy{
			Retryable: func(err error) bool { return errors.Is(err, repos.ErrVersionConflict) },
		}),
		items:      items,
		sellStats:  sellStats,
		resolver:   bestorder.NewResolver(flags.PreferredCurrencies),
		rates:      rates,
		orders:     orders,
		activities: activities,
		notifier:   notifier,
		reconcile:  reconcile,
		log:        baseLog.With("service", "ItemEventService"),
	}
}

// OnItemChanged re-derives and publishes the current enriched view of an
// item. Used when something outside the aggregate changed (chain-side item
// data, finished metadata download) and consumers need a fresh snapshot.
func (s *ItemEventService) OnItemChanged(ctx context.Context, id types.ItemID) error {
	item, err := s.items.GetOrEmpty(ctx, id)
	if err != nil {
		return err
	}
	return s.notifyUpdate(ctx, item)
}

// OnItemDeleted clears enrichment state but keeps the row, so a later event
// for the same id merges into a known aggregate. The delete notification goes
// out even when the id was never seen.
func (s *ItemEventService) OnItemDeleted(ctx context.Context, id types.ItemID) error {
	err := s.retrier.Run(ctx, func(ctx context.Context) error {
		item, err := s.items.Get(ctx, id)
		if err != nil || item == nil {
			return err
		}
		cleared := item.WithClearedEnrichment()
		if sameState(item, cleared) {
			return nil
		}
		_, err = s.items.Save(ctx, cleared)
		return err
	})
	if err != nil {
		return err
	}
	return s.notifier.PublishItemDelete(ctx, types.ItemDeleteEvent{
		EventID: uuid.NewString(),
		ItemID:  id.String(),
	})
}

// OnOwnershipSellStatsChanged folds an ownership transition into the owning
// item's seller/stock counters. Most ownership churn does not move the
// counters at all; that case returns before touching the item row.
func (s *ItemEventService) OnOwnershipSellStatsChanged(ctx context.Context, old, new *types.ShortOwnership) error {
	itemID, err := owningItemID(old, new)
	if err != nil {
		return err
	}
	if !s.sellStats.IsChanged(old, new) {
		s.log.Debug("ownership change does not affect sell stats", "item_id", itemID.String())
		return nil
	}
	return s.updateItem(ctx, itemID, true, func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
		var stats types.ItemSellStats
		if s.flags.EnableIncrementalSellStats {
			stats = s.sellStats.Increment(item, old, new)
		} else {
			var err error
			stats, err = s.sellStats.Recount(ctx, item.ID)
			if err != nil {
				return nil, err
			}
		}
		if stats.Equal(types.ItemSellStats{Sellers: item.Sellers, TotalStock: item.TotalStock}) {
			return item, nil
		}
		next := *item
		next.Sellers = stats.Sellers
		next.TotalStock = stats.TotalStock
		return &next, nil
	})
}

// OnBestSellOrderUpdated applies one sell-order candidate to the item. When
// notify is false the aggregate is still persisted but no event goes out
// (bulk re-indexing path).
func (s *ItemEventService) OnBestSellOrderUpdated(ctx context.Context, id types.ItemID, order *types.Order, notify bool) error {
	origins, err := s.items.GetItemOrigins(ctx, id)
	if err != nil {
		return err
	}
	return s.updateItem(ctx, id, notify, func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
		return s.applySellCandidate(ctx, item, order, origins)
	})
}

// OnBestBidOrderUpdated applies one bid-order candidate to the item.
func (s *ItemEventService) OnBestBidOrderUpdated(ctx context.Context, id types.ItemID, order *types.Order, notify bool) error {
	origins, err := s.items.GetItemOrigins(ctx, id)
	if err != nil {
		return err
	}
	return s.updateItem(ctx, id, notify, func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
		rates := s.rates.Rates()
		update := s.resolver.OnCandidate(item.BestBidOrders, order, bestorder.SideBid, origins, rates)
		byCurrency, err := s.refetchBids(ctx, item.ID, update, origins, rates)
		if err != nil {
			return nil, err
		}
		if !update.Changed && len(update.RefetchCurrencies) == 0 {
			return item, nil
		}
		next := *item
		next.BestBidOrders = byCurrency
		next.BestBidOrder = s.resolver.ElectDefault(byCurrency, bestorder.SideBid, rates)
		return &next, nil
	})
}

// OnPoolOrderUpdated maintains the pool-order side set and re-resolves the
// best sell order. Exclusion is modelled as the order dying: the resolver
// drops it from the best map and reports the currency for re-fetch.
func (s *ItemEventService) OnPoolOrderUpdated(ctx context.Context, id types.ItemID, order *types.Order, action types.PoolAction) error {
	if !s.flags.EnablePoolOrders || order == nil {
		return nil
	}
	return s.updateItem(ctx, id, true, func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
		candidate := *order
		candidate.Pool = true

		pool := item.PoolOrders.Clone()
		if pool == nil {
			pool = types.OrderMap{}
		}
		switch action {
		case types.PoolActionIncluded, types.PoolActionUpdated:
			if candidate.Alive() {
				pool[candidate.ID] = &candidate
			} else {
				delete(pool, candidate.ID)
			}
		case types.PoolActionExcluded:
			delete(pool, candidate.ID)
			// Membership ended; the order itself may still be active, so
			// force the resolver to treat it as gone.
			candidate.Status = types.OrderStatusCancelled
		default:
			return nil, ErrUnsupportedKind
		}
		if len(pool) == 0 {
			pool = nil
		}

		next := *item
		next.PoolOrders = pool
		// Pool orders bypass the collection origin allow-list.
		return s.applySellCandidate(ctx, &next, &candidate, nil)
	})
}

// OnActivity keeps the last-sale summary current. Forward sales only move it
// forward in time; reverts re-derive from the authoritative history, because
// a later sale may already have superseded the reverted one.
func (s *ItemEventService) OnActivity(ctx context.Context, activity *types.Activity) error {
	if activity == nil || activity.Type != types.ActivityTypeSale {
		return nil
	}
	id, err := types.ParseItemID(activity.ItemID)
	if err != nil {
		return err
	}
	return s.updateItem(ctx, id, true, func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
		sale := types.LastSaleOf(activity)
		if activity.Reverted {
			if s.flags.CompareRevertedLastSale && !item.LastSale.Equal(sale) {
				// Legacy heuristic: the reverted sale is not the one we hold,
				// so the stored value is assumed unaffected.
				return item, nil
			}
			current, err := s.activities.GetItemLastSale(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			if item.LastSale.Equal(current) {
				return item, nil
			}
			next := *item
			next.LastSale = current
			return &next, nil
		}
		if sale == nil {
			return item, nil
		}
		if item.LastSale != nil && !sale.Date.After(item.LastSale.Date) {
			return item, nil
		}
		next := *item
		next.LastSale = sale
		return &next, nil
	})
}

// OnAuctionUpdated records auction membership for the item.
func (s *ItemEventService) OnAuctionUpdated(ctx context.Context, id types.ItemID, auctionID string) error {
	return s.updateItem(ctx, id, true, func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
		for _, existing := range item.AuctionIDs {
			if existing == auctionID {
				return item, nil
			}
		}
		next := *item
		next.AuctionIDs = append(append([]string(nil), item.AuctionIDs...), auctionID)
		return &next, nil
	})
}

func (s *ItemEventService) OnAuctionDeleted(ctx context.Context, id types.ItemID, auctionID string) error {
	return s.updateItem(ctx, id, true, func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
		kept := make([]string, 0, len(item.AuctionIDs))
		for _, existing := range item.AuctionIDs {
			if existing != auctionID {
				kept = append(kept, existing)
			}
		}
		if len(kept) == len(item.AuctionIDs) {
			return item, nil
		}
		if len(kept) == 0 {
			kept = nil
		}
		next := *item
		next.AuctionIDs = kept
		return &next, nil
	})
}

// RecalculateBestOrders re-elects the default best orders from the stored
// per-currency maps under the latest rate table. This is the only path that
// can change the default with no order having changed. Returns whether a new
// version was persisted.
func (s *ItemEventService) RecalculateBestOrders(ctx context.Context, id types.ItemID) (bool, error) {
	changed := false
	err := s.updateItem(ctx, id, true, func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error) {
		changed = false
		rates := s.rates.Rates()
		sell := s.resolver.ElectDefault(item.BestSellOrders, bestorder.SideSell, rates)
		bid := s.resolver.ElectDefault(item.BestBidOrders, bestorder.SideBid, rates)
		if sameOrder(item.BestSellOrder, sell) && sameOrder(item.BestBidOrder, bid) {
			return item, nil
		}
		next := *item
		next.BestSellOrder = sell
		next.BestBidOrder = bid
		changed = true
		return &next, nil
	})
	return changed && err == nil, err
}

// applySellCandidate folds one sell candidate into the item's per-currency
// best map, re-fetching superseded currencies upstream and weighing remaining
// pool orders against whatever the re-fetch returns.
func (s *ItemEventService) applySellCandidate(ctx context.Context, item *types.ShortItem, order *types.Order, origins []string) (*types.ShortItem, error) {
	rates := s.rates.Rates()
	update := s.resolver.OnCandidate(item.BestSellOrders, order, bestorder.SideSell, origins, rates)

	byCurrency := update.ByCurrency
	for _, currency := range update.RefetchCurrencies {
		fetched, err := s.orders.GetBestSell(ctx, item.ID, currency)
		if err != nil {
			return nil, err
		}
		if !fetched.Alive() || !allowedByOrigins(fetched, origins) {
			fetched = nil
		}
		winner := s.resolver.Best(fetched, bestPoolOrder(item.PoolOrders, currency), bestorder.SideSell, rates)
		next := byCurrency.Clone()
		if next == nil {
			next = types.OrderMap{}
		}
		if winner == nil {
			delete(next, currency)
		} else {
			next[currency] = winner
		}
		if len(next) == 0 {
			next = nil
		}
		byCurrency = next
	}

	if !update.Changed && len(update.RefetchCurrencies) == 0 {
		return item, nil
	}
	next := *item
	next.BestSellOrders = byCurrency
	next.BestSellOrder = s.resolver.ElectDefault(byCurrency, bestorder.SideSell, rates)
	return &next, nil
}

func (s *ItemEventService) refetchBids(ctx context.Context, itemID string, update bestorder.Update, origins []string, rates bestorder.Rates) (types.OrderMap, error) {
	byCurrency := update.ByCurrency
	for _, currency := range update.RefetchCurrencies {
		fetched, err := s.orders.GetBestBid(ctx, itemID, currency)
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
	return byCurrency, nil
}

// updateItem is the shared optimistic cycle: read, mutate, skip if nothing
// changed, save with version check, notify. A version conflict restarts the
// whole cycle from a fresh read.
func (s *ItemEventService) updateItem(
	ctx context.Context,
	id types.ItemID,
	notify bool,
	mutate func(ctx context.Context, item *types.ShortItem) (*types.ShortItem, error),
) error {
	return s.retrier.Run(ctx, func(ctx context.Context) error {
		item, err := s.items.GetOrEmpty(ctx, id)
		if err != nil {
			return err
		}
		next, err := mutate(ctx, item)
		if err != nil {
			return err
		}
		if next == nil || sameState(item, next) {
			s.log.Debug("item update is a no-op", "item_id", id.String())
			return nil
		}
		saved, err := s.items.Save(ctx, next)
		if err != nil {
			return err
		}
		if !notify {
			return nil
		}
		if err := s.notifyUpdate(ctx, saved); err != nil {
			// The save already landed, so a caller retry would see no change
			// and skip the publish. Hand delivery to the reconcile worker,
			// whose repair path publishes unconditionally.
			s.log.Warn("publish failed after save, routing to reconciliation", "item_id", saved.ID, "error", err)
			return s.reconcile.EnqueueItem(ctx, saved.ID)
		}
		return nil
	})
}

// notifyUpdate denormalizes, validates, and publishes. Invalid aggregates are
// never published; they go to the reconciliation queue instead and the
// operation still completes.
func (s *ItemEventService) notifyUpdate(ctx context.Context, item *types.ShortItem) error {
	enriched, err := s.items.EnrichItem(ctx, item)
	if err != nil {
		return err
	}
	if err := validateItem(&enriched); err != nil {
		s.log.Warn("item failed validation, routing to reconciliation", "item_id", item.ID, "error", err)
		return s.reconcile.EnqueueItem(ctx, item.ID)
	}
	return s.notifier.PublishItemUpdate(ctx, types.ItemUpdateEvent{
		EventID: uuid.NewString(),
		ItemID:  item.ID,
		Item:    enriched,
	})
}

func owningItemID(old, new *types.ShortOwnership) (types.ItemID, error) {
	switch {
	case new != nil:
		return types.ParseItemID(new.ItemID)
	case old != nil:
		return types.ParseItemID(old.ItemID)
	default:
		return types.ItemID{}, ErrUnsupportedKind
	}
}

func bestPoolOrder(pool types.OrderMap, currency string) *types.Order {
	var best *types.Order
	for _, o := range pool {
		if o == nil || o.Currency != currency || !o.Alive() {
			continue
		}
		if best == nil || o.Price.LessThan(best.Price) || (o.Price.Equal(best.Price) && o.ID < best.ID) {
			best = o
		}
	}
	return best
}

func allowedByOrigins(o *types.Order, origins []string) bool {
	if o == nil {
		return false
	}
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if o.HasOrigin(origin) {
			return true
		}
	}
	return false
}

func sameOrder(a, b *types.Order) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Price.Equal(b.Price) && a.Currency == b.Currency
}
