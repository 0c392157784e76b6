package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type ActivityType string

const (
	ActivityTypeSale     ActivityType = "SALE"
	ActivityTypeTransfer ActivityType = "TRANSFER"
	ActivityTypeMint     ActivityType = "MINT"
	ActivityTypeBurn     ActivityType = "BURN"
)

// Activity is an observed on-chain event referencing an item.
type Activity struct {
	ID       string          `json:"id"`
	Type     ActivityType    `json:"type"`
	ItemID   string          `json:"item_id"`
	Date     time.Time       `json:"date"`
	Seller   string          `json:"seller,omitempty"`
	Buyer    string          `json:"buyer,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Reverted bool            `json:"reverted,omitempty"`
}

// LastSale is the sale summary kept on item aggregates.
type LastSale struct {
	Date     time.Time       `json:"date"`
	Seller   string          `json:"seller"`
	Buyer    string          `json:"buyer"`
	Currency string          `json:"currency"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

func (s *LastSale) Equal(other *LastSale) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Date.Equal(other.Date) &&
		s.Seller == other.Seller &&
		s.Buyer == other.Buyer &&
		s.Currency == other.Currency &&
		s.Price.Equal(other.Price) &&
		s.Quantity.Equal(other.Quantity)
}

// LastSaleOf converts a sale activity to the aggregate summary. Returns nil
// for non-sale activities.
func LastSaleOf(a *Activity) *LastSale {
	if a == nil || a.Type != ActivityTypeSale {
		return nil
	}
	return &LastSale{
		Date:     a.Date,
		Seller:   a.Seller,
		Buyer:    a.Buyer,
		Currency: a.Currency,
		Price:    a.Price,
		Quantity: a.Quantity,
	}
}
