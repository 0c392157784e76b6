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

type DownloadEntryRepo interface {
	Get(ctx context.Context, tx *gorm.DB, id string) (*types.DownloadEntry, error)
	Save(ctx context.Context, tx *gorm.DB, entry *types.DownloadEntry) (*types.DownloadEntry, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error)
}

type downloadEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDownloadEntryRepo(db *gorm.DB, baseLog *logger.Logger) DownloadEntryRepo {
	return &downloadEntryRepo{
		db:  db,
		log: baseLog.With("repo", "DownloadEntryRepo"),
	}
}

func (r *downloadEntryRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.DownloadEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var entry types.DownloadEntry
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *downloadEntryRepo) Save(ctx context.Context, tx *gorm.DB, entry *types.DownloadEntry) (*types.DownloadEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updated := *entry
	updated.Version = entry.Version + 1
	updated.UpdatedAt = time.Now()

	if entry.Version == 0 {
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
		Model(&types.DownloadEntry{}).
		Where("id = ? AND version = ?", entry.ID, entry.Version).
		Select("*").
		Omit("id").
		Updates(&updated)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}
	return &updated, nil
}

func (r *downloadEntryRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Where("id = ?", id).Delete(&types.DownloadEntry{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
