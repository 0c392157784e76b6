package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusInactive  OrderStatus = "INACTIVE"
)

// PoolAction describes how a liquidity-pool order relates to an item.
type PoolAction string

const (
	PoolActionIncluded PoolAction = "INCLUDED"
	PoolActionExcluded PoolAction = "EXCLUDED"
	PoolActionUpdated  PoolAction = "UPDATED"
)

// Order is a candidate marketplace order as seen by the enrichment core.
// It is never persisted standalone: aggregates embed the best one per currency.
type Order struct {
	ID        string          `json:"id"`
	Platform  string          `json:"platform"`
	Maker     string          `json:"maker"`
	Taker     string          `json:"taker,omitempty"`
	Origins   []string        `json:"origins,omitempty"`
	Currency  string          `json:"currency"`
	Price     decimal.Decimal `json:"price"`
	MakeStock decimal.Decimal `json:"make_stock"`
	Status    OrderStatus     `json:"status"`
	Pool      bool            `json:"pool,omitempty"`
	CreatedAt time.Time       `json:"created_at"`

	// Data carries the platform-specific order payload untouched. The
	// enrichment core never interprets it, only forwards it.
	Data datatypes.JSON `json:"data,omitempty"`
}

// Alive reports whether the order can still be filled.
func (o *Order) Alive() bool {
	return o != nil && o.Status == OrderStatusActive && o.MakeStock.IsPositive()
}

func (o *Order) HasOrigin(origin string) bool {
	if o == nil {
		return false
	}
	for _, v := range o.Origins {
		if v == origin {
			return true
		}
	}
	return false
}

// OrderMap holds the best order per currency id.
type OrderMap map[string]*Order

func (m OrderMap) Clone() OrderMap {
	if m == nil {
		return nil
	}
	out := make(OrderMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
