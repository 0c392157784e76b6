package repos

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Every sqlite connection gets its own :memory: database; pin the pool to
	// one connection so all goroutines see the same store.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&types.ShortItem{},
		&types.ShortOwnership{},
		&types.ShortCollection{},
		&types.DownloadEntry{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestItemRepo_GetMissingReturnsNil(t *testing.T) {
	repo := NewItemRepo(testDB(t), logger.NewNop())
	item, err := repo.Get(context.Background(), nil, "ETHEREUM:0xc0ffee:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Fatalf("missing row must be nil, nil")
	}
}

func TestItemRepo_SaveCreatesAndBumpsVersion(t *testing.T) {
	repo := NewItemRepo(testDB(t), logger.NewNop())
	ctx := context.Background()

	item := types.EmptyShortItem(types.ItemID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee", TokenID: "1"})
	saved, err := repo.Save(ctx, nil, item)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("expected version 1, got %d", saved.Version)
	}
	if saved.CreatedAt.IsZero() || saved.LastUpdatedAt.IsZero() {
		t.Fatalf("timestamps must be set")
	}

	saved.Sellers = 3
	saved, err = repo.Save(ctx, nil, saved)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2, got %d", saved.Version)
	}

	stored, _ := repo.Get(ctx, nil, item.ID)
	if stored.Sellers != 3 || stored.Version != 2 {
		t.Fatalf("unexpected stored row: %+v", stored)
	}
}

func TestItemRepo_CreateRaceYieldsConflict(t *testing.T) {
	repo := NewItemRepo(testDB(t), logger.NewNop())
	ctx := context.Background()
	id := types.ItemID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee", TokenID: "1"}

	if _, err := repo.Save(ctx, nil, types.EmptyShortItem(id)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// A second writer that read "missing" loses the race.
	_, err := repo.Save(ctx, nil, types.EmptyShortItem(id))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestItemRepo_StaleVersionYieldsConflict(t *testing.T) {
	repo := NewItemRepo(testDB(t), logger.NewNop())
	ctx := context.Background()
	id := types.ItemID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee", TokenID: "1"}

	v1, err := repo.Save(ctx, nil, types.EmptyShortItem(id))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Save(ctx, nil, v1); err != nil {
		t.Fatalf("first update: %v", err)
	}
	// v1 is now stale.
	_, err = repo.Save(ctx, nil, v1)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestItemRepo_ConcurrentWritersLoseNoUpdate(t *testing.T) {
	repo := NewItemRepo(testDB(t), logger.NewNop())
	ctx := context.Background()
	id := types.ItemID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee", TokenID: "1"}

	seed, err := repo.Save(ctx, nil, types.EmptyShortItem(id))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				for {
					current, err := repo.Get(ctx, nil, seed.ID)
					if err != nil {
						t.Errorf("read: %v", err)
						return
					}
					current.Sellers++
					_, err = repo.Save(ctx, nil, current)
					if err == nil {
						break
					}
					if !errors.Is(err, ErrVersionConflict) {
						t.Errorf("save: %v", err)
						return
					}
					// Lost the version race; re-read and try again.
				}
			}
		}()
	}
	wg.Wait()

	final, err := repo.Get(ctx, nil, seed.ID)
	if err != nil {
		t.Fatalf("final read: %v", err)
	}
	if final.Sellers != writers*perWriter {
		t.Fatalf("lost update: expected %d increments, got %d", writers*perWriter, final.Sellers)
	}
	if final.Version != int64(1+writers*perWriter) {
		t.Fatalf("version must count every successful write, got %d", final.Version)
	}
}

func TestItemRepo_SerializedOrdersRoundTrip(t *testing.T) {
	repo := NewItemRepo(testDB(t), logger.NewNop())
	ctx := context.Background()

	item := types.EmptyShortItem(types.ItemID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee", TokenID: "1"})
	order := &types.Order{
		ID:        "o1",
		Maker:     "0xmaker",
		Currency:  "ETH",
		Price:     decimal.RequireFromString("1.5"),
		MakeStock: decimal.NewFromInt(2),
		Status:    types.OrderStatusActive,
	}
	item.BestSellOrder = order
	item.BestSellOrders = types.OrderMap{"ETH": order}

	if _, err := repo.Save(ctx, nil, item); err != nil {
		t.Fatalf("save: %v", err)
	}
	stored, err := repo.Get(ctx, nil, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.BestSellOrder == nil || stored.BestSellOrder.ID != "o1" {
		t.Fatalf("embedded order lost: %+v", stored)
	}
	if !stored.BestSellOrder.Price.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("decimal price mangled: %s", stored.BestSellOrder.Price)
	}
	if stored.BestSellOrders["ETH"] == nil {
		t.Fatalf("order map lost")
	}
}

func TestItemRepo_ListPagesById(t *testing.T) {
	repo := NewItemRepo(testDB(t), logger.NewNop())
	ctx := context.Background()

	for _, token := range []string{"1", "2", "3"} {
		id := types.ItemID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee", TokenID: token}
		if _, err := repo.Save(ctx, nil, types.EmptyShortItem(id)); err != nil {
			t.Fatalf("seed %s: %v", token, err)
		}
	}

	page, err := repo.List(ctx, nil, "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	rest, err := repo.List(ctx, nil, page[len(page)-1].ID, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 remaining row, got %d", len(rest))
	}
	if rest[0].ID <= page[1].ID {
		t.Fatalf("pages must advance by id")
	}
}

func TestOwnershipRepo_SellStockMirrorsBestOrder(t *testing.T) {
	repo := NewOwnershipRepo(testDB(t), logger.NewNop())
	ctx := context.Background()

	id := types.OwnershipID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee", TokenID: "1", Owner: "0xa"}
	ownership := types.EmptyShortOwnership(id)
	ownership.BestSellOrder = &types.Order{
		ID:        "o1",
		Maker:     "0xa",
		Currency:  "ETH",
		Price:     decimal.NewFromInt(1),
		MakeStock: decimal.NewFromInt(5),
		Status:    types.OrderStatusActive,
	}

	saved, err := repo.Save(ctx, nil, ownership)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved.SellStock.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("sell stock must mirror make stock, got %s", saved.SellStock)
	}

	saved.BestSellOrder = nil
	saved, err = repo.Save(ctx, nil, saved)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !saved.SellStock.IsZero() {
		t.Fatalf("sell stock must reset with the order, got %s", saved.SellStock)
	}
}

func TestOwnershipRepo_GetItemSellStats(t *testing.T) {
	repo := NewOwnershipRepo(testDB(t), logger.NewNop())
	ctx := context.Background()
	itemID := "ETHEREUM:0xc0ffee:1"

	seed := func(owner string, stock int64) {
		id := types.OwnershipID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee", TokenID: "1", Owner: owner}
		o := types.EmptyShortOwnership(id)
		if stock > 0 {
			o.BestSellOrder = &types.Order{
				ID: "o-" + owner, Maker: owner, Currency: "ETH",
				Price: decimal.NewFromInt(1), MakeStock: decimal.NewFromInt(stock),
				Status: types.OrderStatusActive,
			}
		}
		if _, err := repo.Save(ctx, nil, o); err != nil {
			t.Fatalf("seed %s: %v", owner, err)
		}
	}
	seed("0xa", 2)
	seed("0xb", 3)
	seed("0xc", 0) // no sell order, must not count

	stats, err := repo.GetItemSellStats(ctx, nil, itemID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Sellers != 2 {
		t.Fatalf("expected 2 sellers, got %d", stats.Sellers)
	}
	if !stats.TotalStock.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected stock 5, got %s", stats.TotalStock)
	}
}

func TestCollectionRepo_RoundTripWithOrigins(t *testing.T) {
	repo := NewCollectionRepo(testDB(t), logger.NewNop())
	ctx := context.Background()

	collection := types.EmptyShortCollection(types.CollectionID{Blockchain: types.BlockchainEthereum, Token: "0xc0ffee"})
	collection.OrderOrigins = []string{"approved-market"}

	if _, err := repo.Save(ctx, nil, collection); err != nil {
		t.Fatalf("save: %v", err)
	}
	stored, err := repo.Get(ctx, nil, collection.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.OrderOrigins) != 1 || stored.OrderOrigins[0] != "approved-market" {
		t.Fatalf("origins lost: %+v", stored.OrderOrigins)
	}
}

func TestDownloadEntryRepo_VersionedLifecycle(t *testing.T) {
	repo := NewDownloadEntryRepo(testDB(t), logger.NewNop())
	ctx := context.Background()

	entry := &types.DownloadEntry{ID: "ETHEREUM:0xc0ffee:1", Status: types.DownloadStatusScheduled}
	saved, err := repo.Save(ctx, nil, entry)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("expected version 1, got %d", saved.Version)
	}

	saved.Status = types.DownloadStatusSuccess
	saved.Data = &types.Meta{Name: "Punk"}
	saved.Downloads = 1
	if _, err := repo.Save(ctx, nil, saved); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored, _ := repo.Get(ctx, nil, entry.ID)
	if stored.Status != types.DownloadStatusSuccess || stored.Data == nil || stored.Data.Name != "Punk" {
		t.Fatalf("unexpected stored entry: %+v", stored)
	}

	ok, err := repo.Delete(ctx, nil, entry.ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if gone, _ := repo.Get(ctx, nil, entry.ID); gone != nil {
		t.Fatalf("row must be gone")
	}
}
