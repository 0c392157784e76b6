package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/nftbridge-backend/internal/blockchain"
	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
	"github.com/yungbote/nftbridge-backend/internal/utils"
)

// Provider fetches one source's view of an item's metadata. A provider that
// has no data for the item returns a not-found error; transient failures are
// retried by the orchestrator, not here.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, itemID string) (*types.Meta, error)
}

// httpProvider queries a metadata source over JSON.
type httpProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewHTTPProvider reads META_PROVIDER_<NAME>_URL and optional
// META_PROVIDER_<NAME>_API_KEY from the environment.
func NewHTTPProvider(name string, baseLog *logger.Logger) (Provider, error) {
	prefix := "META_PROVIDER_" + strings.ToUpper(name)
	baseURL := strings.TrimRight(utils.GetEnv(prefix+"_URL", "", baseLog), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing %s_URL", prefix)
	}
	return &httpProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     utils.GetEnv(prefix+"_API_KEY", "", baseLog),
		httpClient: &http.Client{Timeout: utils.GetEnvAsDuration(prefix+"_TIMEOUT", 15*time.Second, baseLog)},
		log:        baseLog.With("provider", name),
	}, nil
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) Fetch(ctx context.Context, itemID string) (*types.Meta, error) {
	chain, err := types.BlockchainOf(itemID)
	if err != nil {
		return nil, err
	}
	target := p.baseURL + "/v1/meta/" + url.PathEscape(itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &blockchain.ClientError{Blockchain: chain, StatusCode: 0, Message: err.Error()}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, &blockchain.ClientError{Blockchain: chain, StatusCode: 0, Message: readErr.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &blockchain.ClientError{Blockchain: chain, StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var meta types.Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("provider %s decode error: %w", p.name, err)
	}
	meta.Providers = []string{p.name}
	return &meta, nil
}
