package downloader

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/nftbridge-backend/internal/blockchain"
	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

const testItemID = "ETHEREUM:0xc0ffee:1"

func newExecutor(cfg Config, entries *memEntryRepo, providers ...Provider) *Executor {
	limiter := NewRateLimiter(cfg.RateBurst, cfg.RatePerSecond)
	return NewExecutor(cfg, entries, providers, limiter, logger.NewNop())
}

func transientErr() error {
	return &blockchain.ClientError{Blockchain: types.BlockchainEthereum, StatusCode: 503, Message: "unavailable"}
}

func notFoundErr() error {
	return &blockchain.ClientError{Blockchain: types.BlockchainEthereum, StatusCode: 404, Message: "no meta"}
}

func TestExecute_AllProvidersSucceed(t *testing.T) {
	entries := newMemEntryRepo()
	entries.seed(types.DownloadEntry{ID: testItemID, Status: types.DownloadStatusScheduled})

	a := &scriptedProvider{name: "rarible", meta: &types.Meta{Name: "Punk", Providers: []string{"rarible"}}}
	b := &scriptedProvider{name: "opensea", meta: &types.Meta{Description: "desc", Providers: []string{"opensea"}}}
	e := newExecutor(testConfig(), entries, a, b)

	entry, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != types.DownloadStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", entry.Status)
	}
	if entry.Downloads != 1 || entry.Fails != 0 || entry.Retries != 0 {
		t.Fatalf("unexpected counters: %+v", entry)
	}
	if entry.Data == nil || entry.Data.Name != "Punk" || entry.Data.Description != "desc" {
		t.Fatalf("payloads must be merged, got %+v", entry.Data)
	}
	if len(entry.Data.Providers) != 2 {
		t.Fatalf("provider list must be unioned, got %v", entry.Data.Providers)
	}
	if entry.SucceedAt == nil || entry.ErrorMessage != "" {
		t.Fatalf("success bookkeeping missing: %+v", entry)
	}
}

func TestExecute_PartialFailureKeepsDataAndMemory(t *testing.T) {
	entries := newMemEntryRepo()
	entries.seed(types.DownloadEntry{ID: testItemID, Status: types.DownloadStatusScheduled})

	good := &scriptedProvider{name: "rarible", meta: &types.Meta{Name: "Punk", Providers: []string{"rarible"}}}
	bad := &scriptedProvider{name: "opensea", err: transientErr()}
	e := newExecutor(testConfig(), entries, good, bad)

	entry, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != types.DownloadStatusRetryPartial {
		t.Fatalf("expected RETRY_PARTIAL, got %s", entry.Status)
	}
	if entry.Data == nil || entry.Data.Name != "Punk" {
		t.Fatalf("partial data must survive, got %+v", entry.Data)
	}
	if len(entry.FailedProviders) != 1 || entry.FailedProviders[0] != "opensea" {
		t.Fatalf("failed provider must be remembered, got %v", entry.FailedProviders)
	}
	if entry.Retries != 1 || entry.Fails != 1 {
		t.Fatalf("unexpected counters: %+v", entry)
	}
}

func TestExecute_PartialRetryOnlyQueriesFailedProvider(t *testing.T) {
	entries := newMemEntryRepo()
	entries.seed(types.DownloadEntry{
		ID:              testItemID,
		Status:          types.DownloadStatusRetryPartial,
		Data:            &types.Meta{Name: "Punk", Providers: []string{"rarible"}},
		FailedProviders: []string{"opensea"},
		Retries:         1,
		Fails:           1,
	})

	good := &scriptedProvider{name: "rarible", meta: &types.Meta{Name: "Other"}}
	recovered := &scriptedProvider{name: "opensea", meta: &types.Meta{Description: "desc", Providers: []string{"opensea"}}}
	e := newExecutor(testConfig(), entries, good, recovered)

	entry, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if good.fetchCount() != 0 {
		t.Fatalf("provider that already succeeded must not be re-queried")
	}
	if recovered.fetchCount() != 1 {
		t.Fatalf("failed provider must be re-queried")
	}
	if entry.Status != types.DownloadStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", entry.Status)
	}
	// Surviving data from the earlier attempt is still there, enriched by
	// the recovered provider.
	if entry.Data.Name != "Punk" || entry.Data.Description != "desc" {
		t.Fatalf("merged payload wrong: %+v", entry.Data)
	}
}

func TestExecute_ForceQueriesEveryProvider(t *testing.T) {
	entries := newMemEntryRepo()
	entries.seed(types.DownloadEntry{
		ID:              testItemID,
		Status:          types.DownloadStatusRetryPartial,
		Data:            &types.Meta{Name: "Punk"},
		FailedProviders: []string{"opensea"},
	})

	a := &scriptedProvider{name: "rarible", meta: &types.Meta{Name: "Punk"}}
	b := &scriptedProvider{name: "opensea", meta: &types.Meta{Description: "d"}}
	e := newExecutor(testConfig(), entries, a, b)

	if _, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID, Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.fetchCount() != 1 || b.fetchCount() != 1 {
		t.Fatalf("forced refresh must query everything, got %d/%d", a.fetchCount(), b.fetchCount())
	}
}

func TestExecute_RetryCeilingGoesTerminal(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	entries := newMemEntryRepo()
	entries.seed(types.DownloadEntry{
		ID:      testItemID,
		Status:  types.DownloadStatusRetry,
		Retries: 2, // at the ceiling: this execution is the last
	})

	bad := &scriptedProvider{name: "rarible", err: transientErr()}
	e := newExecutor(cfg, entries, bad)

	entry, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != types.DownloadStatusFailed {
		t.Fatalf("expected terminal FAILED, got %s", entry.Status)
	}
	if entry.FailedAt == nil {
		t.Fatalf("terminal entry must carry FailedAt")
	}
}

func TestExecute_RetryCeilingWithPartialDataSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	entries := newMemEntryRepo()
	entries.seed(types.DownloadEntry{
		ID:      testItemID,
		Status:  types.DownloadStatusRetryPartial,
		Data:    &types.Meta{Name: "Punk"},
		Retries: 2,
	})

	bad := &scriptedProvider{name: "rarible", err: transientErr()}
	e := newExecutor(cfg, entries, bad)

	entry, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != types.DownloadStatusSuccess {
		t.Fatalf("partial data at the ceiling must settle as SUCCESS, got %s", entry.Status)
	}
	if entry.Data == nil || entry.Data.Name != "Punk" {
		t.Fatalf("partial data must survive, got %+v", entry.Data)
	}
	if entry.SucceedAt == nil || entry.FailedAt != nil {
		t.Fatalf("settling as SUCCESS must stamp SucceedAt only, got %+v", entry)
	}
}

func TestExecute_NotFoundIsPermanent(t *testing.T) {
	entries := newMemEntryRepo()
	entries.seed(types.DownloadEntry{ID: testItemID, Status: types.DownloadStatusScheduled})

	missing := &scriptedProvider{name: "rarible", err: notFoundErr()}
	e := newExecutor(testConfig(), entries, missing)

	entry, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != types.DownloadStatusFailed {
		t.Fatalf("not-found with no data must fail terminally, got %s", entry.Status)
	}
	if len(entry.FailedProviders) != 0 {
		t.Fatalf("not-found is not retryable, got %v", entry.FailedProviders)
	}
	if entry.ErrorMessage == "" {
		t.Fatalf("error message must record the not-found")
	}
}

func TestExecute_TrimCapsPayload(t *testing.T) {
	cfg := testConfig()
	cfg.MaxNameLength = 4
	cfg.MaxAttributes = 1
	entries := newMemEntryRepo()
	entries.seed(types.DownloadEntry{ID: testItemID, Status: types.DownloadStatusScheduled})

	big := &scriptedProvider{name: "rarible", meta: &types.Meta{
		Name: strings.Repeat("x", 100),
		Attributes: []types.MetaAttribute{
			{Key: "a"}, {Key: "b"}, {Key: "c"},
		},
	}}
	e := newExecutor(cfg, entries, big)

	entry, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entry.Data.Name) != 4 {
		t.Fatalf("name must be trimmed, got %d chars", len(entry.Data.Name))
	}
	if len(entry.Data.Attributes) != 1 {
		t.Fatalf("attributes must be capped, got %d", len(entry.Data.Attributes))
	}
}

func TestExecute_CreatesEntryWhenMissing(t *testing.T) {
	entries := newMemEntryRepo()
	p := &scriptedProvider{name: "rarible", meta: &types.Meta{Name: "Punk"}}
	e := newExecutor(testConfig(), entries, p)

	entry, err := e.Execute(context.Background(), types.DownloadTask{ID: testItemID, ScheduledAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry == nil || entry.Version != 1 {
		t.Fatalf("missing entry must be created, got %+v", entry)
	}
}
