package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShortOwnership is the enriched projection of one ownership. Unlike items,
// an ownership row without a best sell order is deleted rather than kept.
type ShortOwnership struct {
	ID         string     `gorm:"column:id;primaryKey;type:text" json:"id"`
	Blockchain Blockchain `gorm:"column:blockchain;not null;index;type:text" json:"blockchain"`
	ItemID     string     `gorm:"column:item_id;not null;index;type:text" json:"item_id"`
	Owner      string     `gorm:"column:owner;not null;type:text" json:"owner"`

	BestSellOrder  *Order   `gorm:"column:best_sell_order;serializer:json" json:"best_sell_order,omitempty"`
	BestSellOrders OrderMap `gorm:"column:best_sell_orders;serializer:json" json:"best_sell_orders,omitempty"`

	// SellStock mirrors BestSellOrder.MakeStock as a plain column so item
	// sell stats can be aggregated with one query.
	SellStock decimal.Decimal `gorm:"column:sell_stock;type:numeric(78,0);not null;default:0" json:"sell_stock"`

	Version       int64     `gorm:"column:version;not null;default:0" json:"version"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at;not null" json:"last_updated_at"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (ShortOwnership) TableName() string { return "short_ownership" }

func EmptyShortOwnership(id OwnershipID) *ShortOwnership {
	return &ShortOwnership{
		ID:         id.String(),
		Blockchain: id.Blockchain,
		ItemID:     id.ItemID().String(),
		Owner:      id.Owner,
		SellStock:  decimal.Zero,
	}
}

func (o *ShortOwnership) Key() string { return o.ID }

func (o *ShortOwnership) GetVersion() int64 { return o.Version }

func (o *ShortOwnership) IsEmpty() bool {
	return o.BestSellOrder == nil && len(o.BestSellOrders) == 0
}

// SellContribution is this ownership's share of the owning item's sell stats.
func (o *ShortOwnership) SellContribution() ItemSellStats {
	if o == nil || o.BestSellOrder == nil {
		return ItemSellStats{TotalStock: decimal.Zero}
	}
	return ItemSellStats{Sellers: 1, TotalStock: o.BestSellOrder.MakeStock}
}
