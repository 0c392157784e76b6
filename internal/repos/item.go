package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

type ItemRepo interface {
	// Get returns nil, nil when the aggregate does not exist.
	Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortItem, error)
	// Save persists the aggregate with a compare-and-swap on Version and
	// returns the stored copy with Version incremented. A mismatch yields
	// ErrVersionConflict.
	Save(ctx context.Context, tx *gorm.DB, item *types.ShortItem) (*types.ShortItem, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error)
	// List pages aggregates by id for maintenance jobs.
	List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortItem, error)
}

type itemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	return &itemRepo{
		db:  db,
		log: baseLog.With("repo", "ItemRepo"),
	}
}

func (r *itemRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var item types.ShortItem
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepo) Save(ctx context.Context, tx *gorm.DB, item *types.ShortItem) (*types.ShortItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	updated := *item
	updated.Version = item.Version + 1
	updated.LastUpdatedAt = now

	if item.Version == 0 {
		updated.CreatedAt = now
		res := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&updated)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// Row appeared since our read.
			return nil, ErrVersionConflict
		}
		return &updated, nil
	}

	res := transaction.WithContext(ctx).
		Model(&types.ShortItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
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

func (r *itemRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Where("id = ?", id).Delete(&types.ShortItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *itemRepo) List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ShortItem
	q := transaction.WithContext(ctx).Order("id ASC").Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
