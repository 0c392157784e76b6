package app

import (
	"strings"
	"time"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
	"github.com/yungbote/nftbridge-backend/internal/utils"
)

type Config struct {
	HTTPAddr          string
	Blockchains       []string
	MetaProviders     []string
	ReconcileInterval time.Duration
	Flags             types.Flags
}

func LoadConfig(log *logger.Logger) Config {
	flags := types.DefaultFlags()
	flags.CompareRevertedLastSale = utils.GetEnvAsBool("FLAG_COMPARE_REVERTED_LAST_SALE", false, log)
	flags.EnablePoolOrders = utils.GetEnvAsBool("FLAG_ENABLE_POOL_ORDERS", true, log)
	flags.EnableIncrementalSellStats = utils.GetEnvAsBool("FLAG_INCREMENTAL_SELL_STATS", true, log)
	flags.EnableNotificationOnCollectionOrders = utils.GetEnvAsBool("FLAG_NOTIFY_COLLECTION_ORDERS", true, log)
	flags.PreferredCurrencies = splitList(utils.GetEnv("PREFERRED_CURRENCIES", "", log))

	return Config{
		HTTPAddr:          utils.GetEnv("HTTP_ADDR", ":8080", log),
		Blockchains:       splitList(utils.GetEnv("BLOCKCHAINS", "ETHEREUM,POLYGON,FLOW", log)),
		MetaProviders:     splitList(utils.GetEnv("META_PROVIDERS", "rarible,opensea", log)),
		ReconcileInterval: utils.GetEnvAsDuration("RECONCILE_INTERVAL", 30*time.Second, log),
		Flags:             flags,
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
