package services

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/nftbridge-backend/internal/blockchain"
	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// OrderEventService fans one inbound order change out to every aggregate the
// order touches: the item (sell or bid side), the maker's ownership, and the
// collection for floor orders. Legs run concurrently; a leg hitting a
// missing upstream entity is absorbed, a real failure cancels the siblings.
type OrderEventService struct {
	flags            types.Flags
	itemEvents       *ItemEventService
	ownershipEvents  *OwnershipEventService
	collectionEvents *CollectionEventService
	notifier         Notifier
	log              *logger.Logger
}

func NewOrderEventService(
	flags types.Flags,
	itemEvents *ItemEventService,
	ownershipEvents *OwnershipEventService,
	collectionEvents *CollectionEventService,
	notifier Notifier,
	baseLog *logger.Logger,
) *OrderEventService {
	return &OrderEventService{
		flags:            flags,
		itemEvents:       itemEvents,
		ownershipEvents:  ownershipEvents,
		collectionEvents: collectionEvents,
		notifier:         notifier,
		log:              baseLog.With("service", "OrderEventService"),
	}
}

func (s *OrderEventService) OnOrderUpdated(ctx context.Context, event *types.OrderEvent) error {
	if event == nil {
		return nil
	}
	order := event.Order

	g, ctx := errgroup.WithContext(ctx)

	if event.ItemID != "" {
		itemID, err := types.ParseItemID(event.ItemID)
		if err != nil {
			return err
		}
		switch {
		case event.Side == types.OrderSideSell && event.PoolAction != "":
			g.Go(func() error {
				return s.absorbNotFound(s.itemEvents.OnPoolOrderUpdated(ctx, itemID, &order, event.PoolAction), "item", event.ItemID)
			})
		case event.Side == types.OrderSideSell:
			g.Go(func() error {
				return s.absorbNotFound(s.itemEvents.OnBestSellOrderUpdated(ctx, itemID, &order, true), "item", event.ItemID)
			})
			if order.Maker != "" {
				ownershipID := types.OwnershipID{
					Blockchain: itemID.Blockchain,
					Token:      itemID.Token,
					TokenID:    itemID.TokenID,
					Owner:      order.Maker,
				}
				g.Go(func() error {
					return s.absorbNotFound(s.ownershipEvents.OnBestSellOrderUpdated(ctx, ownershipID, &order, true), "ownership", ownershipID.String())
				})
			}
		case event.Side == types.OrderSideBid:
			g.Go(func() error {
				return s.absorbNotFound(s.itemEvents.OnBestBidOrderUpdated(ctx, itemID, &order, true), "item", event.ItemID)
			})
		default:
			return ErrUnsupportedKind
		}
	}

	if event.CollectionID != "" {
		collectionID, err := types.ParseCollectionID(event.CollectionID)
		if err != nil {
			return err
		}
		if event.Side == types.OrderSideSell {
			g.Go(func() error {
				return s.absorbNotFound(s.collectionEvents.OnBestSellOrderUpdated(ctx, collectionID, &order, true), "collection", event.CollectionID)
			})
		} else {
			g.Go(func() error {
				return s.absorbNotFound(s.collectionEvents.OnBestBidOrderUpdated(ctx, collectionID, &order, true), "collection", event.CollectionID)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return s.notifier.PublishOrderUpdate(ctx, types.OrderUpdateEvent{
		EventID: uuid.NewString(),
		OrderID: order.ID,
		Order:   order,
	})
}

// absorbNotFound treats an upstream "entity does not exist" as a skipped leg
// rather than a failed event: the order can outlive the entity it targets.
func (s *OrderEventService) absorbNotFound(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if blockchain.IsNotFound(err) {
		s.log.Debug("order leg target not found, skipping", "kind", kind, "id", id)
		return nil
	}
	return err
}
