package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/localstore"
	"posbackend/internal/models"
)

func openLocal(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func productSnapshot(local *localstore.Store, ttl time.Duration, clk *clock) *Snapshot[models.Product] {
	s := NewSnapshot(local, localstore.KeyProducts, localstore.KeyProductsTimestamp, ttl,
		func(p models.Product) string { return p.ID.Hex() })
	s.now = clk.Now
	return s
}

func product(name, barcode string, stock int) models.Product {
	return models.Product{ID: primitive.NewObjectID(), Name: name, Barcode: barcode, Stock: stock, Price: 1}
}

func TestSnapshotRoundTripWithinTTL(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	snap := productSnapshot(openLocal(t), time.Hour, clk)

	milk := product("Milk", "100", 4)
	require.NoError(t, snap.Save([]models.Product{milk}))

	clk.Advance(59 * time.Minute)
	items, found, err := snap.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, items, 1)
	assert.Equal(t, milk.ID, items[0].ID)
	assert.Equal(t, 4, items[0].Stock)
}

func TestSnapshotExpiryClearsBothKeys(t *testing.T) {
	local := openLocal(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	snap := productSnapshot(local, time.Hour, clk)

	require.NoError(t, snap.Save([]models.Product{product("Milk", "100", 4)}))
	clk.Advance(time.Hour + time.Millisecond)

	_, found, err := snap.Load()
	require.NoError(t, err)
	assert.False(t, found)

	var raw any
	present, err := local.Get(localstore.KeyProducts, &raw)
	require.NoError(t, err)
	assert.False(t, present)
	present, err = local.Get(localstore.KeyProductsTimestamp, &raw)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestSnapshotPatchIsIdempotentAndKeepsTimestamp(t *testing.T) {
	local := openLocal(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	snap := productSnapshot(local, time.Hour, clk)

	milk := product("Milk", "100", 4)
	require.NoError(t, snap.Save([]models.Product{milk}))

	var before int64
	_, err := local.Get(localstore.KeyProductsTimestamp, &before)
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	milk.Stock = 2
	require.NoError(t, snap.Patch(milk))
	require.NoError(t, snap.Patch(milk))

	bread := product("Bread", "200", 1)
	require.NoError(t, snap.Patch(bread))

	items, found, err := snap.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Stock)
	assert.Equal(t, bread.ID, items[1].ID)

	var after int64
	_, err = local.Get(localstore.KeyProductsTimestamp, &after)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	clk.Advance(31 * time.Minute)
	_, found, err = snap.Load()
	require.NoError(t, err)
	assert.False(t, found, "patching must not extend the snapshot's life")
}

func TestSnapshotPatchWithoutSnapshotIsNoop(t *testing.T) {
	local := openLocal(t)
	snap := productSnapshot(local, time.Hour, &clock{now: time.Now()})

	require.NoError(t, snap.Patch(product("Milk", "100", 4)))

	_, found, err := snap.Load()
	require.NoError(t, err)
	assert.False(t, found)

	var raw any
	present, err := local.Get(localstore.KeyProducts, &raw)
	require.NoError(t, err)
	assert.False(t, present)
}

type fakeSource struct {
	mu          sync.Mutex
	products    []models.Product
	customers   []models.Customer
	productErr  error
	customerErr error
	calls       atomic.Int32
	gate        chan struct{}
}

func (f *fakeSource) ListProducts(ctx context.Context) ([]models.Product, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products, f.productErr
}

func (f *fakeSource) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers, f.customerErr
}

type refreshCounter struct {
	mu      sync.Mutex
	results []string
}

func (r *refreshCounter) ObserveRefresh(result string) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
}

func waitOutcome(t *testing.T, ch <-chan RefreshOutcome) RefreshOutcome {
	t.Helper()
	select {
	case out, ok := <-ch:
		require.True(t, ok)
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("refresh outcome not delivered")
	}
	return RefreshOutcome{}
}

func TestLoadWithCacheServesSnapshotThenRefreshes(t *testing.T) {
	local := openLocal(t)
	stale := product("Milk", "100", 9)
	fresh := stale
	fresh.Stock = 3
	customer := models.Customer{ID: primitive.NewObjectID(), Name: "ada"}

	seed := New(&fakeSource{}, local, time.Hour)
	require.NoError(t, seed.products.Save([]models.Product{stale}))

	source := &fakeSource{products: []models.Product{fresh}, customers: []models.Customer{customer}}
	observer := &refreshCounter{}
	syncer := New(source, local, time.Hour, WithObserver(observer))

	result := syncer.LoadWithCache(context.Background())
	assert.True(t, result.FromCache)
	require.Len(t, result.Products, 1)
	assert.Equal(t, 9, result.Products[0].Stock)

	out := waitOutcome(t, result.Refresh)
	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.Products[0].Stock)

	got, ok := syncer.ProductByBarcode("100")
	require.True(t, ok)
	assert.Equal(t, 3, got.Stock)
	_, ok = syncer.CustomerByID(customer.ID)
	assert.True(t, ok)

	persisted, found, err := syncer.products.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, persisted[0].Stock)

	_, open := <-result.Refresh
	assert.False(t, open)
	assert.Equal(t, []string{"ok"}, observer.results)
}

func TestLoadWithCacheFailedRefreshKeepsCache(t *testing.T) {
	local := openLocal(t)
	cached := product("Milk", "100", 9)

	seed := New(&fakeSource{}, local, time.Hour)
	require.NoError(t, seed.products.Save([]models.Product{cached}))

	down := errors.New("connection refused")
	syncer := New(&fakeSource{productErr: down, customerErr: down}, local, time.Hour)

	result := syncer.LoadWithCache(context.Background())
	require.Len(t, result.Products, 1)

	out := waitOutcome(t, result.Refresh)
	assert.ErrorIs(t, out.Err, down)

	got, ok := syncer.ProductByBarcode("100")
	require.True(t, ok)
	assert.Equal(t, 9, got.Stock)

	persisted, found, err := syncer.products.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 9, persisted[0].Stock)
}

func TestLoadWithCacheEmptyCache(t *testing.T) {
	syncer := New(&fakeSource{products: []models.Product{product("Tea", "300", 2)}}, openLocal(t), time.Hour)

	result := syncer.LoadWithCache(context.Background())
	assert.False(t, result.FromCache)
	assert.Empty(t, result.Products)

	out := waitOutcome(t, result.Refresh)
	require.NoError(t, out.Err)
	assert.Len(t, syncer.Products(), 1)
}

func TestRefreshAppliesEachCollectionOnItsOwnSuccess(t *testing.T) {
	customer := models.Customer{ID: primitive.NewObjectID(), Name: "bob"}
	source := &fakeSource{productErr: errors.New("timeout"), customers: []models.Customer{customer}}
	syncer := New(source, openLocal(t), time.Hour)

	_, customers, err := syncer.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, customers, 1)
	assert.Empty(t, syncer.Products())
}

// slowProducts answers the product list only after the customer list has
// failed, and honours cancellation the way a driver call would.
type slowProducts struct {
	products      []models.Product
	customersDone chan struct{}
}

func (s *slowProducts) ListProducts(ctx context.Context) ([]models.Product, error) {
	<-s.customersDone
	time.Sleep(10 * time.Millisecond)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.products, nil
}

func (s *slowProducts) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	defer close(s.customersDone)
	return nil, errors.New("customers: timeout")
}

func TestRefreshFailedCollectionDoesNotCancelTheOther(t *testing.T) {
	source := &slowProducts{products: []models.Product{product("Tea", "300", 2)}, customersDone: make(chan struct{})}
	syncer := New(source, openLocal(t), time.Hour)

	products, _, err := syncer.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh customers")
	assert.NotContains(t, err.Error(), "refresh products")
	require.Len(t, products, 1)

	got, ok := syncer.ProductByBarcode("300")
	require.True(t, ok)
	assert.Equal(t, 2, got.Stock)
}

func TestLoadWithCacheExpiredSnapshotDropsMemory(t *testing.T) {
	local := openLocal(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	customer := models.Customer{ID: primitive.NewObjectID(), Name: "ada"}

	source := &fakeSource{products: []models.Product{product("Milk", "100", 9)}, customers: []models.Customer{customer}}
	syncer := New(source, local, time.Hour)
	syncer.products.now = clk.Now
	syncer.customers.now = clk.Now

	_, _, err := syncer.Refresh(context.Background())
	require.NoError(t, err)
	_, ok := syncer.ProductByBarcode("100")
	require.True(t, ok)

	down := errors.New("connection refused")
	source.mu.Lock()
	source.productErr, source.customerErr = down, down
	source.mu.Unlock()
	clk.Advance(time.Hour + time.Second)

	result := syncer.LoadWithCache(context.Background())
	assert.False(t, result.FromCache)
	assert.Empty(t, result.Products)
	assert.Empty(t, result.Customers)

	out := waitOutcome(t, result.Refresh)
	assert.ErrorIs(t, out.Err, down)

	_, ok = syncer.ProductByBarcode("100")
	assert.False(t, ok)
	_, ok = syncer.CustomerByID(customer.ID)
	assert.False(t, ok)
}

func TestConcurrentRefreshesShareOneFetch(t *testing.T) {
	source := &fakeSource{products: []models.Product{product("Tea", "300", 2)}, gate: make(chan struct{})}
	syncer := New(source, openLocal(t), time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := syncer.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	assert.LessOrEqual(t, source.calls.Load(), int32(5))
	assert.Len(t, syncer.Products(), 1)
}

func TestPatchAndSearch(t *testing.T) {
	local := openLocal(t)
	milk := product("Whole Milk", "100", 4)
	syncer := New(&fakeSource{products: []models.Product{milk, product("Bread", "200", 1)}}, local, time.Hour)
	_, _, err := syncer.Refresh(context.Background())
	require.NoError(t, err)

	milk.Stock = 1
	milk.Barcode = "101"
	syncer.PatchProduct(milk)

	_, ok := syncer.ProductByBarcode("100")
	assert.False(t, ok)
	got, ok := syncer.ProductByBarcode("101")
	require.True(t, ok)
	assert.Equal(t, 1, got.Stock)

	assert.Len(t, syncer.SearchProducts("MILK", 0), 1)
	assert.Len(t, syncer.SearchProducts("20", 0), 1)
	assert.Len(t, syncer.SearchProducts("", 1), 1)

	persisted, found, err := syncer.products.Load()
	require.NoError(t, err)
	require.True(t, found)
	for _, p := range persisted {
		if p.ID == milk.ID {
			assert.Equal(t, "101", p.Barcode)
		}
	}

	ada := models.Customer{ID: primitive.NewObjectID(), Name: "ada lovelace"}
	syncer.PatchCustomer(ada)
	assert.Len(t, syncer.SearchCustomers("LOVE", 5), 1)
}
