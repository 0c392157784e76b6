package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/repos"
)

type Repos struct {
	Item          repos.ItemRepo
	Ownership     repos.OwnershipRepo
	Collection    repos.CollectionRepo
	DownloadEntry repos.DownloadEntryRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Item:          repos.NewItemRepo(db, log),
		Ownership:     repos.NewOwnershipRepo(db, log),
		Collection:    repos.NewCollectionRepo(db, log),
		DownloadEntry: repos.NewDownloadEntryRepo(db, log),
	}
}
