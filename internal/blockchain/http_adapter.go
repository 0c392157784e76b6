package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
	"github.com/yungbote/nftbridge-backend/internal/utils"
)

// httpAdapter talks to one chain indexer over its JSON API. All chains share
// the same API shape; only the base URL differs.
type httpAdapter struct {
	chain      types.Blockchain
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewHTTPAdapter reads INDEXER_<CHAIN>_URL and optional INDEXER_<CHAIN>_API_KEY
// from the environment.
func NewHTTPAdapter(chain types.Blockchain, baseLog *logger.Logger) (Adapter, error) {
	prefix := "INDEXER_" + string(chain)
	baseURL := strings.TrimRight(utils.GetEnv(prefix+"_URL", "", baseLog), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing %s_URL", prefix)
	}
	timeout := utils.GetEnvAsDuration(prefix+"_TIMEOUT", 10*time.Second, baseLog)
	return &httpAdapter{
		chain:      chain,
		baseURL:    baseURL,
		apiKey:     utils.GetEnv(prefix+"_API_KEY", "", baseLog),
		httpClient: &http.Client{Timeout: timeout},
		log:        baseLog.With("adapter", string(chain)),
	}, nil
}

func (a *httpAdapter) Blockchain() types.Blockchain { return a.chain }

func (a *httpAdapter) GetItem(ctx context.Context, id types.ItemID) (*types.RawItem, error) {
	var out types.RawItem
	path := "/v1/items/" + url.PathEscape(id.String())
	if err := a.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *httpAdapter) GetBestSellOrder(ctx context.Context, entityID, currency string) (*types.Order, error) {
	return a.getBestOrder(ctx, entityID, currency, "sell")
}

func (a *httpAdapter) GetBestBidOrder(ctx context.Context, entityID, currency string) (*types.Order, error) {
	return a.getBestOrder(ctx, entityID, currency, "bid")
}

func (a *httpAdapter) getBestOrder(ctx context.Context, entityID, currency, side string) (*types.Order, error) {
	var out types.Order
	path := "/v1/orders/best/" + url.PathEscape(entityID)
	query := url.Values{"side": {side}, "currency": {currency}}
	if err := a.get(ctx, path, query, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}

func (a *httpAdapter) GetItemLastSale(ctx context.Context, itemID string) (*types.LastSale, error) {
	var out struct {
		LastSale *types.LastSale `json:"last_sale"`
	}
	path := "/v1/activities/last-sale/" + url.PathEscape(itemID)
	if err := a.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out.LastSale, nil
}

func (a *httpAdapter) get(ctx context.Context, path string, query url.Values, out any) error {
	target := a.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &ClientError{Blockchain: a.chain, StatusCode: 0, Message: err.Error()}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &ClientError{Blockchain: a.chain, StatusCode: 0, Message: readErr.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ClientError{Blockchain: a.chain, StatusCode: resp.StatusCode, Message: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s adapter decode error: %w", a.chain, err)
	}
	return nil
}
