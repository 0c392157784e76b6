package types

import (
	"time"
)

// ShortCollection is the enriched projection of a collection. It also carries
// the marketplace origin allow-list consulted by the best-order resolver for
// the collection's items.
type ShortCollection struct {
	ID         string     `gorm:"column:id;primaryKey;type:text" json:"id"`
	Blockchain Blockchain `gorm:"column:blockchain;not null;index;type:text" json:"blockchain"`

	BestSellOrder  *Order   `gorm:"column:best_sell_order;serializer:json" json:"best_sell_order,omitempty"`
	BestSellOrders OrderMap `gorm:"column:best_sell_orders;serializer:json" json:"best_sell_orders,omitempty"`
	BestBidOrder   *Order   `gorm:"column:best_bid_order;serializer:json" json:"best_bid_order,omitempty"`
	BestBidOrders  OrderMap `gorm:"column:best_bid_orders;serializer:json" json:"best_bid_orders,omitempty"`

	// OrderOrigins is the marketplace allow-list; empty means all origins.
	OrderOrigins []string `gorm:"column:order_origins;serializer:json" json:"order_origins,omitempty"`

	Version       int64     `gorm:"column:version;not null;default:0" json:"version"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at;not null" json:"last_updated_at"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (ShortCollection) TableName() string { return "short_collection" }

func EmptyShortCollection(id CollectionID) *ShortCollection {
	return &ShortCollection{
		ID:         id.String(),
		Blockchain: id.Blockchain,
	}
}

func (c *ShortCollection) Key() string { return c.ID }

func (c *ShortCollection) GetVersion() int64 { return c.Version }

func (c *ShortCollection) IsEmpty() bool {
	return c.BestSellOrder == nil &&
		len(c.BestSellOrders) == 0 &&
		c.BestBidOrder == nil &&
		len(c.BestBidOrders) == 0
}

func (c *ShortCollection) WithClearedEnrichment() *ShortCollection {
	out := *c
	out.BestSellOrder = nil
	out.BestSellOrders = nil
	out.BestBidOrder = nil
	out.BestBidOrders = nil
	return &out
}
