package downloader

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

func testConfig() Config {
	return Config{
		Workers:              2,
		MaxRetries:           2,
		ProviderTimeout:      time.Second,
		RetryBackoff:         time.Millisecond,
		DebounceWindow:       10 * time.Second,
		MaxFails:             5,
		MaxDownloads:         10,
		MaxNameLength:        1000,
		MaxDescriptionLength: 10000,
		MaxAttributes:        200,
		MaxContent:           50,
		RateBurst:            100,
		RatePerSecond:        10000,
	}
}

type memEntryRepo struct {
	mu   sync.Mutex
	rows map[string]types.DownloadEntry
}

func newMemEntryRepo() *memEntryRepo {
	return &memEntryRepo{rows: map[string]types.DownloadEntry{}}
}

func (r *memEntryRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.DownloadEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (r *memEntryRepo) Save(ctx context.Context, tx *gorm.DB, entry *types.DownloadEntry) (*types.DownloadEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, exists := r.rows[entry.ID]
	if entry.Version == 0 && exists {
		return nil, repos.ErrVersionConflict
	}
	if entry.Version != 0 && (!exists || stored.Version != entry.Version) {
		return nil, repos.ErrVersionConflict
	}
	updated := *entry
	updated.Version = entry.Version + 1
	updated.UpdatedAt = time.Now()
	r.rows[entry.ID] = updated
	cp := updated
	return &cp, nil
}

func (r *memEntryRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *memEntryRepo) seed(entry types.DownloadEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.Version == 0 {
		entry.Version = 1
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	r.rows[entry.ID] = entry
}

// scriptedProvider returns its configured result and counts fetches.
type scriptedProvider struct {
	name string
	meta *types.Meta
	err  error

	mu      sync.Mutex
	fetches int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Fetch(ctx context.Context, itemID string) (*types.Meta, error) {
	p.mu.Lock()
	p.fetches++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	cp := *p.meta
	return &cp, nil
}

func (p *scriptedProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

type countingNotifier struct {
	mu    sync.Mutex
	calls []types.ItemID
}

func (n *countingNotifier) OnItemChanged(ctx context.Context, id types.ItemID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, id)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}
