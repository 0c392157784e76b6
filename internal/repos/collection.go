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

type CollectionRepo interface {
	Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortCollection, error)
	Save(ctx context.Context, tx *gorm.DB, collection *types.ShortCollection) (*types.ShortCollection, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error)
	List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortCollection, error)
}

type collectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCollectionRepo(db *gorm.DB, baseLog *logger.Logger) CollectionRepo {
	return &collectionRepo{
		db:  db,
		log: baseLog.With("repo", "CollectionRepo"),
	}
}

func (r *collectionRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortCollection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var collection types.ShortCollection
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&collection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &collection, nil
}

func (r *collectionRepo) Save(ctx context.Context, tx *gorm.DB, collection *types.ShortCollection) (*types.ShortCollection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	updated := *collection
	updated.Version = collection.Version + 1
	updated.LastUpdatedAt = now

	if collection.Version == 0 {
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
		Model(&types.ShortCollection{}).
		Where("id = ? AND version = ?", collection.ID, collection.Version).
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

func (r *collectionRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Where("id = ?", id).Delete(&types.ShortCollection{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *collectionRepo) List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortCollection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ShortCollection
	q := transaction.WithContext(ctx).Order("id ASC").Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
