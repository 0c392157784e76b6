package downloader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/nftbridge-backend/internal/blockchain"
	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/optimistic"
	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/types"
	"github.com/yungbote/nftbridge-backend/internal/utils"
)

// Config tunes the download orchestrator. Values come from the environment
// with defaults safe for development.
type Config struct {
	Workers         int
	MaxRetries      int
	ProviderTimeout time.Duration
	RetryBackoff    time.Duration

	// Admission control.
	DebounceWindow time.Duration
	MaxFails       int
	MaxDownloads   int

	// Payload trim ceilings.
	MaxNameLength        int
	MaxDescriptionLength int
	MaxAttributes        int
	MaxContent           int

	// Outbound rate limit.
	RateBurst     int
	RatePerSecond float64
}

func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		Workers:              utils.GetEnvAsInt("DOWNLOADER_WORKERS", 8, log),
		MaxRetries:           utils.GetEnvAsInt("DOWNLOADER_MAX_RETRIES", 5, log),
		ProviderTimeout:      utils.GetEnvAsDuration("DOWNLOADER_PROVIDER_TIMEOUT", 20*time.Second, log),
		RetryBackoff:         utils.GetEnvAsDuration("DOWNLOADER_RETRY_BACKOFF", 30*time.Second, log),
		DebounceWindow:       utils.GetEnvAsDuration("DOWNLOADER_DEBOUNCE_WINDOW", 10*time.Second, log),
		MaxFails:             utils.GetEnvAsInt("DOWNLOADER_MAX_FAILS", 100, log),
		MaxDownloads:         utils.GetEnvAsInt("DOWNLOADER_MAX_DOWNLOADS", 1000, log),
		MaxNameLength:        utils.GetEnvAsInt("DOWNLOADER_MAX_NAME_LENGTH", 1000, log),
		MaxDescriptionLength: utils.GetEnvAsInt("DOWNLOADER_MAX_DESCRIPTION_LENGTH", 10000, log),
		MaxAttributes:        utils.GetEnvAsInt("DOWNLOADER_MAX_ATTRIBUTES", 200, log),
		MaxContent:           utils.GetEnvAsInt("DOWNLOADER_MAX_CONTENT", 50, log),
		RateBurst:            utils.GetEnvAsInt("DOWNLOADER_RATE_BURST", 10, log),
		RatePerSecond:        utils.GetEnvAsFloat("DOWNLOADER_RATE_PER_SECOND", 20, log),
	}
}

// Executor runs one download: fan out to providers, merge what came back,
// advance the entry's state machine, persist. It never publishes; the
// orchestrator decides that from the returned entry.
type Executor struct {
	cfg       Config
	entries   repos.DownloadEntryRepo
	providers []Provider
	limiter   *RateLimiter
	retrier   *optimistic.Retrier
	log       *logger.Logger
}

func NewExecutor(cfg Config, entries repos.DownloadEntryRepo, providers []Provider, limiter *RateLimiter, baseLog *logger.Logger) *Executor {
	return &Executor{
		cfg:       cfg,
		entries:   entries,
		providers: providers,
		limiter:   limiter,
		retrier: optimistic.NewRetrier(optimistic.Policy{
			Retryable: func(err error) bool { return errors.Is(err, repos.ErrVersionConflict) },
		}),
		log: baseLog.With("service", "DownloadExecutor"),
	}
}

type providerResult struct {
	name string
	meta *types.Meta
	err  error
}

// Execute performs the fetch and returns the persisted entry. The provider
// fan-out runs once, outside the optimistic write loop.
func (e *Executor) Execute(ctx context.Context, task types.DownloadTask) (*types.DownloadEntry, error) {
	entry, err := e.entries.Get(ctx, nil, task.ID)
	if err != nil {
		return nil, err
	}
	targets := e.targetProviders(entry, task)
	if len(targets) == 0 {
		return entry, nil
	}

	results := e.fanOut(ctx, task.ID, targets)
	now := time.Now()

	var saved *types.DownloadEntry
	err = e.retrier.Run(ctx, func(ctx context.Context) error {
		current, err := e.entries.Get(ctx, nil, task.ID)
		if err != nil {
			return err
		}
		if current == nil {
			current = &types.DownloadEntry{ID: task.ID, Status: types.DownloadStatusScheduled}
		}
		next := e.applyResults(current, results, now)
		saved, err = e.entries.Save(ctx, nil, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("download executed",
		"id", task.ID,
		"status", string(saved.Status),
		"providers", len(targets),
		"priority", task.Priority.String(),
	)
	return saved, nil
}

// targetProviders narrows a partial retry to the providers that failed last
// time. Forced refreshes always query everything.
func (e *Executor) targetProviders(entry *types.DownloadEntry, task types.DownloadTask) []Provider {
	if task.Force || entry == nil || entry.Status != types.DownloadStatusRetryPartial || len(entry.FailedProviders) == 0 {
		return e.providers
	}
	failed := make(map[string]struct{}, len(entry.FailedProviders))
	for _, name := range entry.FailedProviders {
		failed[name] = struct{}{}
	}
	var out []Provider
	for _, p := range e.providers {
		if _, ok := failed[p.Name()]; ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return e.providers
	}
	return out
}

// fanOut queries every target concurrently and collects all results before
// anything is decided. One provider's failure never cancels the others.
func (e *Executor) fanOut(ctx context.Context, id string, targets []Provider) []providerResult {
	results := make([]providerResult, len(targets))
	var wg sync.WaitGroup
	for i, p := range targets {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			if err := e.limiter.Wait(ctx); err != nil {
				results[i] = providerResult{name: p.Name(), err: err}
				return
			}
			fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
			defer cancel()
			meta, err := p.Fetch(fetchCtx, id)
			results[i] = providerResult{name: p.Name(), meta: meta, err: err}
		}(i, p)
	}
	wg.Wait()
	return results
}

// applyResults advances the state machine. Downloads counts fully successful
// executions, Fails counts failed ones, Retries counts automatic reschedules
// within the generation; once Retries would exceed the ceiling the entry goes
// terminal, keeping partial data as SUCCESS when any exists.
func (e *Executor) applyResults(entry *types.DownloadEntry, results []providerResult, now time.Time) *types.DownloadEntry {
	next := *entry

	merged := entry.Data
	anySuccess := false
	var retryable []string
	var errMessages []string
	for _, r := range results {
		switch {
		case r.err == nil:
			merged = merged.Merge(r.meta)
			anySuccess = true
		case blockchain.IsNotFound(r.err):
			// Permanent for this generation: do not retry this provider.
			errMessages = append(errMessages, r.name+": "+r.err.Error())
		default:
			retryable = append(retryable, r.name)
			errMessages = append(errMessages, r.name+": "+r.err.Error())
		}
	}
	next.Data = e.trim(merged)
	next.ErrorMessage = strings.Join(errMessages, "; ")

	if len(retryable) == 0 {
		next.FailedProviders = nil
		if anySuccess || next.Data != nil {
			next.Status = types.DownloadStatusSuccess
			next.Downloads = entry.Downloads + 1
			next.SucceedAt = &now
			next.ErrorMessage = ""
		} else {
			next.Status = types.DownloadStatusFailed
			next.Fails = entry.Fails + 1
			next.FailedAt = &now
		}
		return &next
	}

	next.Fails = entry.Fails + 1
	next.FailedProviders = retryable
	if entry.Retries >= e.cfg.MaxRetries {
		// Ceiling hit: no further automatic attempt this generation.
		if next.Data != nil {
			next.Status = types.DownloadStatusSuccess
			next.SucceedAt = &now
		} else {
			next.Status = types.DownloadStatusFailed
			next.FailedAt = &now
		}
		return &next
	}

	next.Retries = entry.Retries + 1
	if next.Data != nil || anySuccess {
		next.Status = types.DownloadStatusRetryPartial
	} else {
		next.Status = types.DownloadStatusRetry
	}
	return &next
}

func (e *Executor) trim(meta *types.Meta) *types.Meta {
	if meta == nil {
		return nil
	}
	out := *meta
	if len(out.Name) > e.cfg.MaxNameLength {
		out.Name = out.Name[:e.cfg.MaxNameLength]
	}
	if len(out.Description) > e.cfg.MaxDescriptionLength {
		out.Description = out.Description[:e.cfg.MaxDescriptionLength]
	}
	if len(out.Attributes) > e.cfg.MaxAttributes {
		out.Attributes = out.Attributes[:e.cfg.MaxAttributes]
	}
	if len(out.Content) > e.cfg.MaxContent {
		out.Content = out.Content[:e.cfg.MaxContent]
	}
	return &out
}
