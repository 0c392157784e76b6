package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShortItem is the minimal enriched projection of an item, the unit of the
// optimistic read-merge-write cycle. Version is bumped by the repository on
// every successful save; Version 0 means the aggregate was never persisted.
type ShortItem struct {
	ID         string     `gorm:"column:id;primaryKey;type:text" json:"id"`
	Blockchain Blockchain `gorm:"column:blockchain;not null;index;type:text" json:"blockchain"`

	BestSellOrder  *Order   `gorm:"column:best_sell_order;serializer:json" json:"best_sell_order,omitempty"`
	BestSellOrders OrderMap `gorm:"column:best_sell_orders;serializer:json" json:"best_sell_orders,omitempty"`
	BestBidOrder   *Order   `gorm:"column:best_bid_order;serializer:json" json:"best_bid_order,omitempty"`
	BestBidOrders  OrderMap `gorm:"column:best_bid_orders;serializer:json" json:"best_bid_orders,omitempty"`

	// PoolOrders tracks liquidity-pool contributed sell orders by order id.
	// Their lifecycle is driven by pool membership, not cancellation.
	PoolOrders OrderMap `gorm:"column:pool_orders;serializer:json" json:"pool_orders,omitempty"`

	AuctionIDs []string  `gorm:"column:auction_ids;serializer:json" json:"auction_ids,omitempty"`
	LastSale   *LastSale `gorm:"column:last_sale;serializer:json" json:"last_sale,omitempty"`

	Sellers    int             `gorm:"column:sellers;not null;default:0" json:"sellers"`
	TotalStock decimal.Decimal `gorm:"column:total_stock;type:numeric(78,0);not null;default:0" json:"total_stock"`

	Version       int64     `gorm:"column:version;not null;default:0" json:"version"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at;not null" json:"last_updated_at"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (ShortItem) TableName() string { return "short_item" }

func EmptyShortItem(id ItemID) *ShortItem {
	return &ShortItem{
		ID:         id.String(),
		Blockchain: id.Blockchain,
		TotalStock: decimal.Zero,
	}
}

func (i *ShortItem) Key() string { return i.ID }

func (i *ShortItem) GetVersion() int64 { return i.Version }

// IsEmpty reports whether the aggregate carries no enrichment data and can be
// dropped from the outgoing view.
func (i *ShortItem) IsEmpty() bool {
	return i.BestSellOrder == nil &&
		len(i.BestSellOrders) == 0 &&
		i.BestBidOrder == nil &&
		len(i.BestBidOrders) == 0 &&
		len(i.PoolOrders) == 0 &&
		len(i.AuctionIDs) == 0 &&
		i.LastSale == nil &&
		i.Sellers == 0 &&
		i.TotalStock.IsZero()
}

// WithClearedEnrichment returns a copy stripped of derived state. Used by
// delete events: the row survives for idempotent re-processing.
func (i *ShortItem) WithClearedEnrichment() *ShortItem {
	out := *i
	out.BestSellOrder = nil
	out.BestSellOrders = nil
	out.BestBidOrder = nil
	out.BestBidOrders = nil
	out.PoolOrders = nil
	out.AuctionIDs = nil
	out.LastSale = nil
	out.Sellers = 0
	out.TotalStock = decimal.Zero
	return &out
}

// ItemSellStats is the seller/stock summary derived from ownerships.
type ItemSellStats struct {
	Sellers    int
	TotalStock decimal.Decimal
}

func (s ItemSellStats) Equal(other ItemSellStats) bool {
	return s.Sellers == other.Sellers && s.TotalStock.Equal(other.TotalStock)
}
