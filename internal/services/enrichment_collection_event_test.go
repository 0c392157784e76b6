package services

import (
	"context"
	"testing"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

func newCollectionEventFixture(flags types.Flags) (*itemEventFixture, *CollectionEventService) {
	base := newItemEventFixture(flags)
	svc := NewCollectionEventService(
		flags, base.coll, base.rates, base.orders,
		base.notifier, base.reconcile, logger.NewNop(),
	)
	return base, svc
}

func testCollectionID() types.CollectionID {
	return types.CollectionID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee"}
}

func TestCollectionBestSell_AppliesAndPublishes(t *testing.T) {
	f, svc := newCollectionEventFixture(types.DefaultFlags())
	id := testCollectionID()

	if err := svc.OnBestSellOrderUpdated(context.Background(), id, activeSell("f1", "ETH", 10), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := f.coll.Get(context.Background(), nil, id.String())
	if stored == nil || stored.BestSellOrder == nil || stored.BestSellOrder.ID != "f1" {
		t.Fatalf("expected persisted floor order, got %+v", stored)
	}
	if len(f.notifier.collectionUpdates) != 1 {
		t.Fatalf("expected one collection publish")
	}
}

func TestCollectionBestSell_NotificationFlagGatesPublish(t *testing.T) {
	flags := types.DefaultFlags()
	flags.EnableNotificationOnCollectionOrders = false
	f, svc := newCollectionEventFixture(flags)
	id := testCollectionID()

	if err := svc.OnBestSellOrderUpdated(context.Background(), id, activeSell("f1", "ETH", 10), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored, _ := f.coll.Get(context.Background(), nil, id.String()); stored == nil {
		t.Fatalf("aggregate must still be persisted with notification off")
	}
	if len(f.notifier.collectionUpdates) != 0 {
		t.Fatalf("publication must be gated by the flag")
	}
}

func TestSetOrderOrigins_KeepsIncumbents(t *testing.T) {
	f, svc := newCollectionEventFixture(types.DefaultFlags())
	id := testCollectionID()
	ctx := context.Background()

	incumbent := activeSell("f1", "ETH", 10)
	if err := svc.OnBestSellOrderUpdated(ctx, id, incumbent, true); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.SetOrderOrigins(ctx, id, []string{"approved-market"}); err != nil {
		t.Fatalf("set origins: %v", err)
	}

	stored, _ := f.coll.Get(ctx, nil, id.String())
	if len(stored.OrderOrigins) != 1 {
		t.Fatalf("origins must be stored, got %v", stored.OrderOrigins)
	}
	if stored.BestSellOrder == nil || stored.BestSellOrder.ID != "f1" {
		t.Fatalf("incumbent must survive an allow-list change, got %+v", stored.BestSellOrder)
	}

	// A fresh outsider is now invisible.
	if err := svc.OnBestSellOrderUpdated(ctx, id, activeSell("f2", "ETH", 5), true); err != nil {
		t.Fatalf("outsider: %v", err)
	}
	stored, _ = f.coll.Get(ctx, nil, id.String())
	if stored.BestSellOrder.ID != "f1" {
		t.Fatalf("outsider must not displace the incumbent, got %s", stored.BestSellOrder.ID)
	}
}

func TestOnCollectionDeleted_ClearsButKeepsOrigins(t *testing.T) {
	f, svc := newCollectionEventFixture(types.DefaultFlags())
	id := testCollectionID()
	ctx := context.Background()

	if err := svc.SetOrderOrigins(ctx, id, []string{"approved-market"}); err != nil {
		t.Fatalf("set origins: %v", err)
	}
	if err := svc.OnBestSellOrderUpdated(ctx, id, func() *types.Order {
		o := activeSell("f1", "ETH", 10)
		o.Origins = []string{"approved-market"}
		return o
	}(), true); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	if err := svc.OnCollectionDeleted(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stored, _ := f.coll.Get(ctx, nil, id.String())
	if stored == nil {
		t.Fatalf("row must survive the delete event")
	}
	if stored.BestSellOrder != nil || len(stored.BestSellOrders) != 0 {
		t.Fatalf("enrichment must be cleared, got %+v", stored)
	}
	if len(stored.OrderOrigins) != 1 {
		t.Fatalf("allow-list must survive the delete, got %v", stored.OrderOrigins)
	}
	if len(f.notifier.collectionDeletes) != 1 {
		t.Fatalf("expected one delete event")
	}
}

func TestCollectionBestBid_RefetchOnCancel(t *testing.T) {
	f, svc := newCollectionEventFixture(types.DefaultFlags())
	id := testCollectionID()
	ctx := context.Background()

	b1 := activeSell("b1", "ETH", 10)
	if err := svc.OnBestBidOrderUpdated(ctx, id, b1, true); err != nil {
		t.Fatalf("seed: %v", err)
	}

	replacement := activeSell("b0", "ETH", 8)
	f.orders.bid[id.String()+"|ETH"] = replacement

	cancelled := activeSell("b1", "ETH", 10)
	cancelled.Status = types.OrderStatusCancelled
	if err := svc.OnBestBidOrderUpdated(ctx, id, cancelled, true); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stored, _ := f.coll.Get(ctx, nil, id.String())
	if stored.BestBidOrder == nil || stored.BestBidOrder.ID != "b0" {
		t.Fatalf("expected refetched bid, got %+v", stored.BestBidOrder)
	}
	if f.orders.bidCalls == 0 {
		t.Fatalf("bid side must have been consulted upstream")
	}
}
