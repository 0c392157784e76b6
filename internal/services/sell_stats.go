package services

import (
	"context"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// SellStatsService derives item seller/stock counters from ownerships.
type SellStatsService struct {
	ownerships repos.OwnershipRepo
	log        *logger.Logger
}

func NewSellStatsService(ownerships repos.OwnershipRepo, baseLog *logger.Logger) *SellStatsService {
	return &SellStatsService{
		ownerships: ownerships,
		log:        baseLog.With("service", "SellStatsService"),
	}
}

// IsChanged reports whether an ownership transition affects the owning
// item's sell stats at all. High-frequency ownership churn mostly does not,
// and this short-circuit is what prevents publish storms.
func (s *SellStatsService) IsChanged(old, new *types.ShortOwnership) bool {
	var oldStats, newStats types.ItemSellStats
	if old != nil {
		oldStats = old.SellContribution()
	}
	if new != nil {
		newStats = new.SellContribution()
	}
	return !oldStats.Equal(newStats)
}

// Increment folds the ownership delta into the item's current counters
// without a recount query.
func (s *SellStatsService) Increment(item *types.ShortItem, old, new *types.ShortOwnership) types.ItemSellStats {
	stats := types.ItemSellStats{Sellers: item.Sellers, TotalStock: item.TotalStock}
	if old != nil {
		contribution := old.SellContribution()
		stats.Sellers -= contribution.Sellers
		stats.TotalStock = stats.TotalStock.Sub(contribution.TotalStock)
	}
	if new != nil {
		contribution := new.SellContribution()
		stats.Sellers += contribution.Sellers
		stats.TotalStock = stats.TotalStock.Add(contribution.TotalStock)
	}
	if stats.Sellers < 0 {
		stats.Sellers = 0
	}
	if stats.TotalStock.IsNegative() {
		stats.TotalStock = stats.TotalStock.Sub(stats.TotalStock)
	}
	return stats
}

// Recount queries the authoritative stats from the ownership table.
func (s *SellStatsService) Recount(ctx context.Context, itemID string) (types.ItemSellStats, error) {
	return s.ownerships.GetItemSellStats(ctx, nil, itemID)
}
