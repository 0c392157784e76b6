package services

import (
	"fmt"

	"github.com/yungbote/nftbridge-backend/internal/types"
)

// Structural invariants checked before anything is published. A violation
// means the derived view is corrupted; the entity goes to reconciliation
// instead of downstream.

func validateOrder(o *types.Order, side bestSide) error {
	if o == nil {
		return nil
	}
	if o.Status != types.OrderStatusActive {
		return fmt.Errorf("best %s order %s has status %s", side, o.ID, o.Status)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("best %s order %s has non-positive price %s", side, o.ID, o.Price)
	}
	if o.Currency == "" {
		return fmt.Errorf("best %s order %s has no currency", side, o.ID)
	}
	if o.Taker != "" && o.Taker == o.Maker {
		return fmt.Errorf("best %s order %s is a private offer to its own maker", side, o.ID)
	}
	return nil
}

type bestSide string

const (
	bestSideSell bestSide = "sell"
	bestSideBid  bestSide = "bid"
)

func validateOrderMap(m types.OrderMap, side bestSide) error {
	for currency, o := range m {
		if o == nil {
			return fmt.Errorf("best %s order map has nil entry for currency %s", side, currency)
		}
		if o.Currency != currency {
			return fmt.Errorf("best %s order %s filed under currency %s but priced in %s", side, o.ID, currency, o.Currency)
		}
		if err := validateOrder(o, side); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(e *types.EnrichedItem) error {
	if err := validateOrder(e.BestSellOrder, bestSideSell); err != nil {
		return err
	}
	if err := validateOrder(e.BestBidOrder, bestSideBid); err != nil {
		return err
	}
	if err := validateOrderMap(e.BestSellOrders, bestSideSell); err != nil {
		return err
	}
	if err := validateOrderMap(e.BestBidOrders, bestSideBid); err != nil {
		return err
	}
	if e.Sellers < 0 {
		return fmt.Errorf("negative seller count %d", e.Sellers)
	}
	if e.TotalStock.IsNegative() {
		return fmt.Errorf("negative total stock %s", e.TotalStock)
	}
	if e.LastSale != nil && e.LastSale.Price.IsNegative() {
		return fmt.Errorf("negative last sale price %s", e.LastSale.Price)
	}
	return nil
}

func validateOwnership(e *types.EnrichedOwnership) error {
	if err := validateOrder(e.BestSellOrder, bestSideSell); err != nil {
		return err
	}
	return validateOrderMap(e.BestSellOrders, bestSideSell)
}

func validateCollection(e *types.EnrichedCollection) error {
	if err := validateOrder(e.BestSellOrder, bestSideSell); err != nil {
		return err
	}
	if err := validateOrder(e.BestBidOrder, bestSideBid); err != nil {
		return err
	}
	if err := validateOrderMap(e.BestSellOrders, bestSideSell); err != nil {
		return err
	}
	return validateOrderMap(e.BestBidOrders, bestSideBid)
}
