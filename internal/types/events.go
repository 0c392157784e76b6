package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawItem is the upstream representation of an item as returned by a chain
// adapter. The core never persists it.
type RawItem struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection,omitempty"`
	Creators   []string        `json:"creators,omitempty"`
	Supply     decimal.Decimal `json:"supply"`
	Deleted    bool            `json:"deleted,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// EnrichedItem is the fully denormalized outgoing view of an item.
type EnrichedItem struct {
	ID         string     `json:"id"`
	Blockchain Blockchain `json:"blockchain"`

	BestSellOrder  *Order   `json:"best_sell_order,omitempty"`
	BestSellOrders OrderMap `json:"best_sell_orders,omitempty"`
	BestBidOrder   *Order   `json:"best_bid_order,omitempty"`
	BestBidOrders  OrderMap `json:"best_bid_orders,omitempty"`
	PoolOrders     OrderMap `json:"pool_orders,omitempty"`

	AuctionIDs []string  `json:"auction_ids,omitempty"`
	LastSale   *LastSale `json:"last_sale,omitempty"`

	Sellers    int             `json:"sellers"`
	TotalStock decimal.Decimal `json:"total_stock"`

	Meta *Meta `json:"meta,omitempty"`

	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// EnrichedOwnership is the outgoing view of an ownership.
type EnrichedOwnership struct {
	ID            string     `json:"id"`
	Blockchain    Blockchain `json:"blockchain"`
	ItemID        string     `json:"item_id"`
	Owner         string     `json:"owner"`
	BestSellOrder *Order     `json:"best_sell_order,omitempty"`
	BestSellOrders OrderMap  `json:"best_sell_orders,omitempty"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
}

// EnrichedCollection is the outgoing view of a collection.
type EnrichedCollection struct {
	ID             string     `json:"id"`
	Blockchain     Blockchain `json:"blockchain"`
	BestSellOrder  *Order     `json:"best_sell_order,omitempty"`
	BestSellOrders OrderMap   `json:"best_sell_orders,omitempty"`
	BestBidOrder   *Order     `json:"best_bid_order,omitempty"`
	BestBidOrders  OrderMap   `json:"best_bid_orders,omitempty"`
	LastUpdatedAt  time.Time  `json:"last_updated_at"`
}

type ItemUpdateEvent struct {
	EventID string       `json:"event_id"`
	ItemID  string       `json:"item_id"`
	Item    EnrichedItem `json:"item"`
}

type ItemDeleteEvent struct {
	EventID string `json:"event_id"`
	ItemID  string `json:"item_id"`
}

type OwnershipUpdateEvent struct {
	EventID     string            `json:"event_id"`
	OwnershipID string            `json:"ownership_id"`
	Ownership   EnrichedOwnership `json:"ownership"`
}

type OwnershipDeleteEvent struct {
	EventID     string `json:"event_id"`
	OwnershipID string `json:"ownership_id"`
}

type CollectionUpdateEvent struct {
	EventID      string             `json:"event_id"`
	CollectionID string             `json:"collection_id"`
	Collection   EnrichedCollection `json:"collection"`
}

type CollectionDeleteEvent struct {
	EventID      string `json:"event_id"`
	CollectionID string `json:"collection_id"`
}

// OrderSide tells which leg of the order references the NFT asset.
type OrderSide string

const (
	OrderSideSell OrderSide = "SELL"
	OrderSideBid  OrderSide = "BID"
)

// OrderEvent is the inbound order change as decoded from the order topic.
// ItemID is the item the NFT asset references; CollectionID is set for
// collection-wide (floor) orders; PoolAction is set when the change is
// pool-membership driven rather than an order lifecycle change.
type OrderEvent struct {
	EventID      string     `json:"event_id"`
	Side         OrderSide  `json:"side"`
	ItemID       string     `json:"item_id,omitempty"`
	CollectionID string     `json:"collection_id,omitempty"`
	PoolAction   PoolAction `json:"pool_action,omitempty"`
	Order        Order      `json:"order"`
}

type OrderUpdateEvent struct {
	EventID string `json:"event_id"`
	OrderID string `json:"order_id"`
	Order   Order  `json:"order"`
}
