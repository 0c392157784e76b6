package app

import (
	"context"

	"github.com/yungbote/nftbridge-backend/internal/blockchain"
	"github.com/yungbote/nftbridge-backend/internal/consumer"
	"github.com/yungbote/nftbridge-backend/internal/currency"
	"github.com/yungbote/nftbridge-backend/internal/downloader"
	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/services"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

type Services struct {
	Router           *blockchain.Router
	Currency         *currency.Service
	Item             *services.EnrichmentItemService
	SellStats        *services.SellStatsService
	ItemEvents       *services.ItemEventService
	OwnershipEvents  *services.OwnershipEventService
	CollectionEvents *services.CollectionEventService
	OrderEvents      *services.OrderEventService
	Downloads        *downloader.Orchestrator
	RecalcJob        *currency.RecalcJob
	ReconcileWorker  *services.ReconcileWorker
	Consumer         *consumer.Runner
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	adapters := make([]blockchain.Adapter, 0, len(cfg.Blockchains))
	for _, chain := range cfg.Blockchains {
		adapter, err := blockchain.NewHTTPAdapter(types.Blockchain(chain), log)
		if err != nil {
			return Services{}, err
		}
		adapters = append(adapters, adapter)
	}
	router := blockchain.NewRouter(adapters...)

	currencySvc, err := currency.NewService(clients.RatesCache, nil, log)
	if err != nil {
		return Services{}, err
	}

	itemService := services.NewEnrichmentItemService(reposet.Item, reposet.Collection, reposet.DownloadEntry, log)
	sellStats := services.NewSellStatsService(reposet.Ownership, log)

	itemEvents := services.NewItemEventService(
		cfg.Flags, itemService, sellStats, currencySvc, router, router,
		clients.Producer, clients.ReconcileQueue, log,
	)
	ownershipEvents := services.NewOwnershipEventService(
		cfg.Flags, reposet.Ownership, itemEvents, currencySvc, router,
		clients.Producer, clients.ReconcileQueue, log,
	)
	collectionEvents := services.NewCollectionEventService(
		cfg.Flags, reposet.Collection, currencySvc, router,
		clients.Producer, clients.ReconcileQueue, log,
	)
	orderEvents := services.NewOrderEventService(
		cfg.Flags, itemEvents, ownershipEvents, collectionEvents, clients.Producer, log,
	)

	downloadCfg := downloader.ConfigFromEnv(log)
	providers := make([]downloader.Provider, 0, len(cfg.MetaProviders))
	for _, name := range cfg.MetaProviders {
		provider, err := downloader.NewHTTPProvider(name, log)
		if err != nil {
			return Services{}, err
		}
		providers = append(providers, provider)
	}
	limiter := downloader.NewRateLimiter(downloadCfg.RateBurst, downloadCfg.RatePerSecond)
	executor := downloader.NewExecutor(downloadCfg, reposet.DownloadEntry, providers, limiter, log)
	downloads := downloader.NewOrchestrator(downloadCfg, reposet.DownloadEntry, executor, itemEvents, log)

	recalcJob := currency.NewRecalcJob(reposet.Item, reposet.Ownership, reposet.Collection, itemEvents, ownershipEvents, collectionEvents, log)
	currencySvc.SetOnUpdate(func() {
		go func() {
			if err := recalcJob.Run(context.Background()); err != nil {
				log.Error("best-order recalculation run failed", "error", err)
			}
		}()
	})

	reconcileWorker := services.NewReconcileWorker(
		clients.ReconcileQueue, itemEvents, ownershipEvents, collectionEvents,
		cfg.ReconcileInterval, log,
	)

	handler := consumer.NewHandler(itemEvents, ownershipEvents, collectionEvents, orderEvents, downloads, log)
	runner, err := consumer.NewRunner(handler, log)
	if err != nil {
		return Services{}, err
	}

	return Services{
		Router:           router,
		Currency:         currencySvc,
		Item:             itemService,
		SellStats:        sellStats,
		ItemEvents:       itemEvents,
		OwnershipEvents:  ownershipEvents,
		CollectionEvents: collectionEvents,
		OrderEvents:      orderEvents,
		Downloads:        downloads,
		RecalcJob:        recalcJob,
		ReconcileWorker:  reconcileWorker,
		Consumer:         runner,
	}, nil
}
