package pos

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/cache"
	"posbackend/internal/localstore"
	"posbackend/internal/models"
	"posbackend/internal/store"
)

const cashierUID = "cashier-1"

type harness struct {
	remote   *store.Memory
	local    *localstore.Store
	cache    *cache.Synchronizer
	service  *Service
	product  models.Product
	customer models.Customer
}

func newHarness(t *testing.T, stock int) *harness {
	return newHarnessWith(t, stock, nil)
}

// newHarnessWith lets a test put a different Store in front of the memory one.
func newHarnessWith(t *testing.T, stock int, wrap func(*store.Memory) store.Store) *harness {
	t.Helper()
	ctx := context.Background()

	local, err := localstore.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	mem := store.NewMemory()
	product, err := mem.CreateProduct(ctx, models.Product{Barcode: "5000", Name: "Coffee", Price: 4, Stock: stock})
	require.NoError(t, err)
	customer, err := mem.CreateCustomer(ctx, "Grace")
	require.NoError(t, err)

	var remote store.Store = mem
	if wrap != nil {
		remote = wrap(mem)
	}

	syncer := cache.New(remote, local, time.Hour)
	_, _, err = syncer.Refresh(ctx)
	require.NoError(t, err)

	service := NewService(remote, syncer, NewOfflineQueue(local), Options{
		TaxRate:         0.05,
		LowStockDefault: 10,
		PingTimeout:     time.Second,
	}, nil)

	return &harness{remote: mem, local: local, cache: syncer, service: service, product: product, customer: customer}
}

func (h *harness) checkout(t *testing.T) (Receipt, error) {
	t.Helper()
	return h.service.Checkout(context.Background(), cashierUID, CheckoutRequest{
		CustomerID:    h.customer.ID,
		PaymentMethod: models.PaymentCash,
		UserID:        cashierUID,
		UserName:      "Casey",
	})
}

func TestOnlineCheckoutUpdatesRemoteAndCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)
	view, err := h.service.SetQuantity(cashierUID, h.product.ID, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 8.0, view.Total)

	receipt, err := h.checkout(t)
	require.NoError(t, err)
	assert.Equal(t, ModeOnline, receipt.Mode)
	assert.False(t, receipt.Queued)
	assert.Equal(t, 8.0, receipt.Purchase.Total)
	assert.Equal(t, "grace", receipt.Purchase.CustomerName)

	remote, err := h.remote.ProductByID(ctx, h.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, remote.Stock)

	cached, ok := h.cache.ProductByID(h.product.ID)
	require.True(t, ok)
	assert.Equal(t, 3, cached.Stock)

	customer, ok := h.cache.CustomerByID(h.customer.ID)
	require.True(t, ok)
	assert.Equal(t, 1, customer.TotalPurchases)
	assert.Equal(t, 8.0, customer.TotalSpent)

	purchases, total, err := h.remote.ListPurchases(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, receipt.Purchase.ID, purchases[0].ID)

	assert.Empty(t, h.service.Bill(cashierUID, false).Items)
}

func TestScanBeyondStockKeepsQuantity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)

	view, err := h.service.Scan(ctx, cashierUID, "5000", false)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 1, view.Items[0].Quantity)
}

func TestCheckoutValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)

	_, err := h.checkout(t)
	assert.ErrorIs(t, err, ErrEmptyBill)

	_, err = h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)

	_, err = h.service.Checkout(ctx, cashierUID, CheckoutRequest{PaymentMethod: models.PaymentCash})
	assert.ErrorIs(t, err, ErrNoCustomer)

	_, err = h.service.Checkout(ctx, cashierUID, CheckoutRequest{CustomerID: h.customer.ID, PaymentMethod: "cheque"})
	assert.ErrorIs(t, err, ErrInvalidPayment)

	assert.Len(t, h.service.Bill(cashierUID, false).Items, 1)
}

func TestOnlineCheckoutRejectedByRemoteKeepsBill(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)
	_, err = h.service.SetQuantity(cashierUID, h.product.ID, 3, false)
	require.NoError(t, err)

	// Someone else sold two units after the cache was filled.
	_, err = h.remote.AdjustStock(ctx, h.product.ID, -2, "other-till")
	require.NoError(t, err)

	_, err = h.checkout(t)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.False(t, errors.Is(err, ErrRemote))
	assert.Len(t, h.service.Bill(cashierUID, false).Items, 1)

	// the refused bill is editable again and goes through once corrected
	_, err = h.service.SetQuantity(cashierUID, h.product.ID, 1, false)
	require.NoError(t, err)
	_, err = h.checkout(t)
	require.NoError(t, err)
	assert.Empty(t, h.service.Bill(cashierUID, false).Items)
}

// stalledCheckout holds every remote checkout until release is closed.
type stalledCheckout struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
}

func (s stalledCheckout) Checkout(ctx context.Context, p models.Purchase) (store.CheckoutResult, error) {
	close(s.entered)
	<-s.release
	return s.Memory.Checkout(ctx, p)
}

func TestStalledCheckoutOnlyFreezesItsOwnBill(t *testing.T) {
	ctx := context.Background()
	stall := stalledCheckout{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarnessWith(t, 5, func(m *store.Memory) store.Store {
		stall.Memory = m
		return stall
	})
	t.Cleanup(func() {
		select {
		case <-stall.release:
		default:
			close(stall.release)
		}
	})

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.checkout(t)
		done <- err
	}()

	select {
	case <-stall.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("checkout never reached the remote store")
	}

	const otherUID = "cashier-2"
	view, err := h.service.Scan(ctx, otherUID, "5000", false)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
	assert.Len(t, h.service.Bill(otherUID, false).Items, 1)

	_, err = h.service.Scan(ctx, cashierUID, "5000", false)
	assert.ErrorIs(t, err, ErrCheckoutBusy)
	_, err = h.service.SetQuantity(cashierUID, h.product.ID, 2, false)
	assert.ErrorIs(t, err, ErrCheckoutBusy)
	assert.ErrorIs(t, h.service.ClearBill(cashierUID), ErrCheckoutBusy)
	_, err = h.checkout(t)
	assert.ErrorIs(t, err, ErrCheckoutBusy)
	assert.Len(t, h.service.Bill(cashierUID, false).Items, 1)

	close(stall.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("checkout did not finish after the store answered")
	}

	assert.Empty(t, h.service.Bill(cashierUID, false).Items)
	remote, err := h.remote.ProductByID(ctx, h.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, remote.Stock)
}

func TestOfflineScanMissUsesCacheOnly(t *testing.T) {
	h := newHarness(t, 5)
	h.remote.SetOffline(true)

	_, err := h.service.Scan(context.Background(), cashierUID, "9999", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "offline cache")
}

func TestOfflineCheckoutQueuesAndPatchesCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	h.remote.SetOffline(true)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)
	_, err = h.service.SetQuantity(cashierUID, h.product.ID, 2, false)
	require.NoError(t, err)

	receipt, err := h.checkout(t)
	require.NoError(t, err)
	assert.True(t, receipt.Queued)
	assert.Equal(t, ModeOffline, receipt.Mode)
	assert.NotEmpty(t, receipt.ReplayKey)

	cached, _ := h.cache.ProductByID(h.product.ID)
	assert.Equal(t, 3, cached.Stock)
	customer, _ := h.cache.CustomerByID(h.customer.ID)
	assert.Equal(t, 1, customer.TotalPurchases)

	pending, err := h.service.Queue().List()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, receipt.ReplayKey, pending[0].ReplayKey)
	assert.Equal(t, receipt.ReplayKey, pending[0].Purchase.ReplayKey)
	assert.Equal(t, models.PendingQueued, pending[0].Status)

	h.remote.SetOffline(false)
	remote, err := h.remote.ProductByID(ctx, h.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, remote.Stock, "offline checkout must not touch the remote store")
}

func TestOfflineCheckoutRejectsBeyondCachedStock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)
	_, err = h.service.SetQuantity(cashierUID, h.product.ID, 2, false)
	require.NoError(t, err)

	stale := h.product
	stale.Stock = 1
	h.cache.PatchProduct(stale)
	h.remote.SetOffline(true)

	_, err = h.checkout(t)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	pending, err := h.service.Queue().List()
	require.NoError(t, err)
	assert.Empty(t, pending)
	cached, _ := h.cache.ProductByID(h.product.ID)
	assert.Equal(t, 1, cached.Stock)
}

func TestReplayPendingAppliesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	h.remote.SetOffline(true)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)
	receipt, err := h.checkout(t)
	require.NoError(t, err)

	_, err = h.service.ReplayPending(ctx)
	assert.ErrorIs(t, err, ErrOffline)

	h.remote.SetOffline(false)
	report, err := h.service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReplayReport{Applied: 1}, report)

	remote, err := h.remote.ProductByID(ctx, h.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, remote.Stock)

	purchases, _, err := h.remote.ListPurchases(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, receipt.ReplayKey, purchases[0].ReplayKey)

	customer, err := h.remote.CustomerByID(ctx, h.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, customer.TotalPurchases)
}

func TestReplayPendingDropsAlreadyAppliedEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	h.remote.SetOffline(true)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)
	_, err = h.checkout(t)
	require.NoError(t, err)

	pending, err := h.service.Queue().List()
	require.NoError(t, err)
	h.remote.SetOffline(false)
	_, err = h.remote.Checkout(ctx, pending[0].Purchase)
	require.NoError(t, err)

	report, err := h.service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReplayReport{Duplicates: 1}, report)

	remote, _ := h.remote.ProductByID(ctx, h.product.ID)
	assert.Equal(t, 4, remote.Stock)
}

func TestReplayPendingParksConflicts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)
	h.remote.SetOffline(true)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)
	_, err = h.service.SetQuantity(cashierUID, h.product.ID, 2, false)
	require.NoError(t, err)
	_, err = h.checkout(t)
	require.NoError(t, err)

	h.remote.SetOffline(false)
	_, err = h.remote.AdjustStock(ctx, h.product.ID, -1, "other-till")
	require.NoError(t, err)

	report, err := h.service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReplayReport{Conflicts: 1, Remaining: 1}, report)

	pending, err := h.service.Queue().List()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.PendingConflict, pending[0].Status)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, "insufficient stock")

	report, err = h.service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReplayReport{Remaining: 1}, report)

	require.NoError(t, h.service.Requeue(pending[0].ReplayKey))
	_, err = h.remote.Restock(ctx, h.product.ID, 5, "manager")
	require.NoError(t, err)
	report, err = h.service.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
}

type flakyCheckout struct {
	*store.Memory
	err error
}

func (f flakyCheckout) Checkout(ctx context.Context, p models.Purchase) (store.CheckoutResult, error) {
	if f.err != nil {
		return store.CheckoutResult{}, f.err
	}
	return f.Memory.Checkout(ctx, p)
}

func TestReplayPendingStopsOnRemoteFailure(t *testing.T) {
	ctx := context.Background()
	var mem *store.Memory
	h := newHarnessWith(t, 5, func(m *store.Memory) store.Store {
		mem = m
		return flakyCheckout{Memory: m, err: errors.New("connection reset")}
	})

	mem.SetOffline(true)
	for i := 0; i < 2; i++ {
		_, err := h.service.Scan(ctx, cashierUID, "5000", false)
		require.NoError(t, err)
		_, err = h.checkout(t)
		require.NoError(t, err)
	}
	mem.SetOffline(false)

	report, err := h.service.ReplayPending(ctx)
	assert.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, ReplayReport{Remaining: 2}, report)

	pending, err := h.service.Queue().List()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, 0, pending[1].Attempts)
	assert.Equal(t, models.PendingQueued, pending[0].Status)
}

func TestDiscardPending(t *testing.T) {
	h := newHarness(t, 5)
	h.remote.SetOffline(true)

	_, err := h.service.Scan(context.Background(), cashierUID, "5000", false)
	require.NoError(t, err)
	receipt, err := h.checkout(t)
	require.NoError(t, err)

	require.NoError(t, h.service.Discard(receipt.ReplayKey))
	assert.ErrorIs(t, h.service.Discard(receipt.ReplayKey), store.ErrNotFound)

	n, err := h.service.Queue().Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInventoryOperationsNeedTheRemoteStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	h.remote.SetOffline(true)

	_, err := h.service.AdjustStock(ctx, h.product.ID, 1, "m")
	assert.ErrorIs(t, err, ErrOffline)
	_, err = h.service.Restock(ctx, h.product.ID, 1, "m")
	assert.ErrorIs(t, err, ErrOffline)
	_, err = h.service.CreateProduct(ctx, models.Product{Name: "Tea", Barcode: "6000"})
	assert.ErrorIs(t, err, ErrOffline)
	_, err = h.service.CancelPurchase(ctx, primitive.NewObjectID(), "m")
	assert.ErrorIs(t, err, ErrOffline)
	_, err = h.service.CreateCustomer(ctx, "Linus")
	assert.ErrorIs(t, err, ErrOffline)
	_, _, err = h.service.Transactions(ctx, models.TransactionFilter{})
	assert.ErrorIs(t, err, ErrOffline)

	low, err := h.service.LowStock(ctx)
	require.NoError(t, err)
	assert.Len(t, low, 1, "offline low-stock falls back to the cache")
}

func TestInventoryOperationsPatchCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)

	p, err := h.service.Restock(ctx, h.product.ID, 10, "m")
	require.NoError(t, err)
	assert.Equal(t, 15, p.Stock)
	cached, _ := h.cache.ProductByID(h.product.ID)
	assert.Equal(t, 15, cached.Stock)

	p, err = h.service.AdjustStock(ctx, h.product.ID, -20, "m")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	_, err = h.service.Restock(ctx, h.product.ID, 0, "m")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	created, err := h.service.CreateProduct(ctx, models.Product{Name: "Tea", Barcode: "6000", Price: 2, Stock: 3})
	require.NoError(t, err)
	got, ok := h.cache.ProductByBarcode("6000")
	require.True(t, ok)
	assert.Equal(t, created.ID, got.ID)

	_, err = h.service.CreateProduct(ctx, models.Product{Name: "Tea 2", Barcode: "6000"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	_, err = h.service.CreateProduct(ctx, models.Product{Barcode: "7000"})
	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestCancelPurchaseReturnsStock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)

	_, err := h.service.Scan(ctx, cashierUID, "5000", false)
	require.NoError(t, err)
	receipt, err := h.checkout(t)
	require.NoError(t, err)

	cancelled, err := h.service.CancelPurchase(ctx, receipt.Purchase.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCancelled, cancelled.Status)

	cached, _ := h.cache.ProductByID(h.product.ID)
	assert.Equal(t, 5, cached.Stock)
	customer, _ := h.cache.CustomerByID(h.customer.ID)
	assert.Equal(t, 0, customer.TotalPurchases)

	_, err = h.service.CancelPurchase(ctx, receipt.Purchase.ID, "manager")
	assert.ErrorIs(t, err, store.ErrAlreadyCancelled)
}

func TestInventoryListing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50)
	_, err := h.service.CreateProduct(ctx, models.Product{Name: "Apples", Barcode: "1", Price: 9, Stock: 2})
	require.NoError(t, err)
	_, err = h.service.CreateProduct(ctx, models.Product{Name: "Bananas", Barcode: "2", Price: 1, Stock: 30})
	require.NoError(t, err)

	names := func(ps []models.Product) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name
		}
		return out
	}

	assert.Equal(t, []string{"Apples", "Bananas", "Coffee"}, names(h.service.Inventory(InventoryQuery{})))
	assert.Equal(t, []string{"Coffee", "Bananas", "Apples"}, names(h.service.Inventory(InventoryQuery{SortBy: "stock", Desc: true})))
	assert.Equal(t, []string{"Bananas", "Coffee", "Apples"}, names(h.service.Inventory(InventoryQuery{SortBy: "price"})))
	assert.Equal(t, []string{"Apples"}, names(h.service.Inventory(InventoryQuery{LowStock: true})))
	assert.Equal(t, []string{"Bananas"}, names(h.service.Inventory(InventoryQuery{Search: "nan"})))
}

func TestSearchCustomersFallsBackToRemote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)

	found, err := h.service.SearchCustomers(ctx, "gra")
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = h.remote.CreateCustomer(ctx, "Gregory")
	require.NoError(t, err)

	found, err = h.service.SearchCustomers(ctx, "greg")
	require.NoError(t, err)
	require.Len(t, found, 1)
	_, ok := h.cache.CustomerByID(found[0].ID)
	assert.True(t, ok)

	created, err := h.service.CreateCustomer(ctx, "Hopper")
	require.NoError(t, err)
	_, ok = h.cache.CustomerByID(created.ID)
	assert.True(t, ok)
}
