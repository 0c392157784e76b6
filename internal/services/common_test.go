package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/services/bestorder"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// In-memory repo fakes with the same version CAS semantics as the real ones.

type memItemRepo struct {
	mu    sync.Mutex
	rows  map[string]types.ShortItem
	saves int
	// conflictsLeft injects ErrVersionConflict on the next N saves.
	conflictsLeft int
}

func newMemItemRepo() *memItemRepo {
	return &memItemRepo{rows: map[string]types.ShortItem{}}
}

func (r *memItemRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (r *memItemRepo) Save(ctx context.Context, tx *gorm.DB, item *types.ShortItem) (*types.ShortItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return nil, repos.ErrVersionConflict
	}
	stored, exists := r.rows[item.ID]
	if item.Version == 0 && exists {
		return nil, repos.ErrVersionConflict
	}
	if item.Version != 0 && (!exists || stored.Version != item.Version) {
		return nil, repos.ErrVersionConflict
	}
	updated := *item
	updated.Version = item.Version + 1
	updated.LastUpdatedAt = time.Now()
	r.rows[item.ID] = updated
	cp := updated
	return &cp, nil
}

func (r *memItemRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *memItemRepo) List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortItem, error) {
	return nil, nil
}

// seed stores a row directly, bypassing CAS, for corrupt-state tests.
func (r *memItemRepo) seed(item types.ShortItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.Version == 0 {
		item.Version = 1
	}
	r.rows[item.ID] = item
}

type memOwnershipRepo struct {
	mu   sync.Mutex
	rows map[string]types.ShortOwnership
}

func newMemOwnershipRepo() *memOwnershipRepo {
	return &memOwnershipRepo{rows: map[string]types.ShortOwnership{}}
}

func (r *memOwnershipRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortOwnership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (r *memOwnershipRepo) Save(ctx context.Context, tx *gorm.DB, ownership *types.ShortOwnership) (*types.ShortOwnership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, exists := r.rows[ownership.ID]
	if ownership.Version == 0 && exists {
		return nil, repos.ErrVersionConflict
	}
	if ownership.Version != 0 && (!exists || stored.Version != ownership.Version) {
		return nil, repos.ErrVersionConflict
	}
	updated := *ownership
	updated.Version = ownership.Version + 1
	updated.LastUpdatedAt = time.Now()
	r.rows[ownership.ID] = updated
	cp := updated
	return &cp, nil
}

func (r *memOwnershipRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *memOwnershipRepo) GetItemSellStats(ctx context.Context, tx *gorm.DB, itemID string) (types.ItemSellStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := types.ItemSellStats{TotalStock: decimal.Zero}
	for _, row := range r.rows {
		if row.ItemID != itemID || !row.SellStock.IsPositive() {
			continue
		}
		stats.Sellers++
		stats.TotalStock = stats.TotalStock.Add(row.SellStock)
	}
	return stats, nil
}

func (r *memOwnershipRepo) List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortOwnership, error) {
	return nil, nil
}

type memCollectionRepo struct {
	mu   sync.Mutex
	rows map[string]types.ShortCollection
}

func newMemCollectionRepo() *memCollectionRepo {
	return &memCollectionRepo{rows: map[string]types.ShortCollection{}}
}

func (r *memCollectionRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.ShortCollection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (r *memCollectionRepo) Save(ctx context.Context, tx *gorm.DB, collection *types.ShortCollection) (*types.ShortCollection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, exists := r.rows[collection.ID]
	if collection.Version == 0 && exists {
		return nil, repos.ErrVersionConflict
	}
	if collection.Version != 0 && (!exists || stored.Version != collection.Version) {
		return nil, repos.ErrVersionConflict
	}
	updated := *collection
	updated.Version = collection.Version + 1
	updated.LastUpdatedAt = time.Now()
	r.rows[collection.ID] = updated
	cp := updated
	return &cp, nil
}

func (r *memCollectionRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *memCollectionRepo) List(ctx context.Context, tx *gorm.DB, afterID string, limit int) ([]*types.ShortCollection, error) {
	return nil, nil
}

func (r *memCollectionRepo) seed(collection types.ShortCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if collection.Version == 0 {
		collection.Version = 1
	}
	r.rows[collection.ID] = collection
}

type memDownloadEntryRepo struct {
	mu   sync.Mutex
	rows map[string]types.DownloadEntry
}

func newMemDownloadEntryRepo() *memDownloadEntryRepo {
	return &memDownloadEntryRepo{rows: map[string]types.DownloadEntry{}}
}

func (r *memDownloadEntryRepo) Get(ctx context.Context, tx *gorm.DB, id string) (*types.DownloadEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (r *memDownloadEntryRepo) Save(ctx context.Context, tx *gorm.DB, entry *types.DownloadEntry) (*types.DownloadEntry, error) {
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

func (r *memDownloadEntryRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *memDownloadEntryRepo) seed(entry types.DownloadEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.Version == 0 {
		entry.Version = 1
	}
	r.rows[entry.ID] = entry
}

// Collaborator fakes.

var errBrokerDown = errors.New("broker unavailable")

type recordingNotifier struct {
	mu                sync.Mutex
	itemUpdates       []types.ItemUpdateEvent
	itemDeletes       []types.ItemDeleteEvent
	ownershipUpdates  []types.OwnershipUpdateEvent
	ownershipDeletes  []types.OwnershipDeleteEvent
	collectionUpdates []types.CollectionUpdateEvent
	collectionDeletes []types.CollectionDeleteEvent
	orderUpdates      []types.OrderUpdateEvent
	// failItemUpdates makes the next N item publishes fail, for broker-outage
	// tests.
	failItemUpdates int
}

func (n *recordingNotifier) PublishItemUpdate(ctx context.Context, event types.ItemUpdateEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failItemUpdates > 0 {
		n.failItemUpdates--
		return errBrokerDown
	}
	n.itemUpdates = append(n.itemUpdates, event)
	return nil
}

func (n *recordingNotifier) PublishItemDelete(ctx context.Context, event types.ItemDeleteEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.itemDeletes = append(n.itemDeletes, event)
	return nil
}

func (n *recordingNotifier) PublishOwnershipUpdate(ctx context.Context, event types.OwnershipUpdateEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ownershipUpdates = append(n.ownershipUpdates, event)
	return nil
}

func (n *recordingNotifier) PublishOwnershipDelete(ctx context.Context, event types.OwnershipDeleteEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ownershipDeletes = append(n.ownershipDeletes, event)
	return nil
}

func (n *recordingNotifier) PublishCollectionUpdate(ctx context.Context, event types.CollectionUpdateEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.collectionUpdates = append(n.collectionUpdates, event)
	return nil
}

func (n *recordingNotifier) PublishCollectionDelete(ctx context.Context, event types.CollectionDeleteEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.collectionDeletes = append(n.collectionDeletes, event)
	return nil
}

func (n *recordingNotifier) PublishOrderUpdate(ctx context.Context, event types.OrderUpdateEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orderUpdates = append(n.orderUpdates, event)
	return nil
}

type recordingReconcileQueue struct {
	mu          sync.Mutex
	items       []string
	ownerships  []string
	collections []string
}

func (q *recordingReconcileQueue) EnqueueItem(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, id)
	return nil
}

func (q *recordingReconcileQueue) EnqueueOwnership(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ownerships = append(q.ownerships, id)
	return nil
}

func (q *recordingReconcileQueue) EnqueueCollection(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.collections = append(q.collections, id)
	return nil
}

// fakeOrderSource answers best-order refetches by "entityID|currency" key and
// counts how often each side was consulted.
type fakeOrderSource struct {
	mu        sync.Mutex
	sell      map[string]*types.Order
	bid       map[string]*types.Order
	sellCalls int
	bidCalls  int
}

func newFakeOrderSource() *fakeOrderSource {
	return &fakeOrderSource{sell: map[string]*types.Order{}, bid: map[string]*types.Order{}}
}

func (f *fakeOrderSource) GetBestSell(ctx context.Context, itemID string, currency string) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sellCalls++
	return f.sell[itemID+"|"+currency], nil
}

func (f *fakeOrderSource) GetBestBid(ctx context.Context, itemID string, currency string) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bidCalls++
	return f.bid[itemID+"|"+currency], nil
}

type fakeActivityHistory struct {
	mu       sync.Mutex
	lastSale *types.LastSale
	calls    int
}

func (f *fakeActivityHistory) GetItemLastSale(ctx context.Context, itemID string) (*types.LastSale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.lastSale, nil
}

type fakeRates struct {
	mu    sync.Mutex
	table bestorder.Rates
}

func (f *fakeRates) Rates() bestorder.Rates {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.table
}

func (f *fakeRates) set(table bestorder.Rates) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table = table
}
