package repos

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

type OwnershipRepo interface {
	Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortOwnership, error)
	Save(ctx context.Context, tx *gorm.DB, ownership *types.ShortOwnership) (*types.ShortOwnership, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error)
	// GetItemSellStats recounts sellers and total stock over all ownerships
	// of an item that currently carry a sell order.
	GetItemSellStats(ctx context.Context, tx *gorm.DB, itemID string) (types.ItemSellStats, error)
	List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortOwnership, error)
}

type ownershipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOwnershipRepo(db *gorm.DB, baseLog *logger.Logger) OwnershipRepo {
	return &ownershipRepo{
		db:  db,
		log: baseLog.With("repo", "OwnershipRepo"),
	}
}

func (r *ownershipRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortOwnership, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ownership types.ShortOwnership
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&ownership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ownership, nil
}

func (r *ownershipRepo) Save(ctx context.Context, tx *gorm.DB, ownership *types.ShortOwnership) (*types.ShortOwnership, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	updated := *ownership
	updated.Version = ownership.Version + 1
	updated.LastUpdatedAt = now
	if updated.BestSellOrder != nil {
		updated.SellStock = updated.BestSellOrder.MakeStock
	} else {
		updated.SellStock = decimal.Zero
	}

	if ownership.Version == 0 {
		updated.CreatedAt = now
		res := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&updated)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrVersionConflict
		}
		return &updated, nil
	}

	res := transaction.WithContext(ctx).
		Model(&types.ShortOwnership{}).
		Where("id = ? AND version = ?", ownership.ID, ownership.Version).
		Select("*").
		Omit("id", "created_at").
		Updates(&updated)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}
	return &updated, nil
}

func (r *ownershipRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Where("id = ?", id).Delete(&types.ShortOwnership{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ownershipRepo) GetItemSellStats(ctx context.Context, tx *gorm.DB, itemID string) (types.ItemSellStats, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row struct {
		Sellers    int
		TotalStock decimal.Decimal
	}
	err := transaction.WithContext(ctx).
		Model(&types.ShortOwnership{}).
		Select("COUNT(*) AS sellers, COALESCE(SUM(sell_stock), 0) AS total_stock").
		Where("item_id = ? AND sell_stock > 0", itemID).
		Scan(&row).Error
	if err != nil {
		return types.ItemSellStats{}, err
	}
	return types.ItemSellStats{Sellers: row.Sellers, TotalStock: row.TotalStock}, nil
}

func (r *ownershipRepo) List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortOwnership, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ShortOwnership
	q := transaction.WithContext(ctx).Order("id ASC").Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
