package app

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/nftbridge-backend/internal/clients/kafka"
	"github.com/yungbote/nftbridge-backend/internal/clients/redis"
	"github.com/yungbote/nftbridge-backend/internal/logger"
)

type Clients struct {
	Redis          *goredis.Client
	ReconcileQueue *redis.ReconcileQueue
	RatesCache     *redis.RatesCache
	Producer       *kafka.Producer
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	rdb, err := redis.NewClient(log)
	if err != nil {
		return Clients{}, err
	}
	producer, err := kafka.NewProducer(log)
	if err != nil {
		_ = rdb.Close()
		return Clients{}, err
	}
	return Clients{
		Redis:          rdb,
		ReconcileQueue: redis.NewReconcileQueue(rdb, log),
		RatesCache:     redis.NewRatesCache(rdb, 24*time.Hour, log),
		Producer:       producer,
	}, nil
}

func (c Clients) Close() {
	if c.Producer != nil {
		_ = c.Producer.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
