// Package pos is the till itself: the in-progress bills, checkout online
// and offline, inventory operations and the offline purchase queue.
package pos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"posbackend/internal/cache"
	"posbackend/internal/models"
	"posbackend/internal/store"
)

const (
	ModeOnline  = "online"
	ModeOffline = "offline"

	customerSearchLimit = 5
)

type Observer interface {
	ObserveCheckout(mode, result string)
	ObserveReplay(outcome string)
	SetQueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveCheckout(string, string) {}
func (nopObserver) ObserveReplay(string)           {}
func (nopObserver) SetQueueDepth(int)              {}

type Options struct {
	TaxRate         float64
	LowStockDefault int
	PingTimeout     time.Duration
}

type Service struct {
	remote   store.Store
	cache    *cache.Synchronizer
	queue    *OfflineQueue
	observer Observer
	opts     Options
	now      func() time.Time

	// mu guards bills only; it is never held across a remote call.
	mu    sync.Mutex
	bills map[string]*Bill

	// offlineMu serializes the check-then-patch of cached stock.
	offlineMu sync.Mutex

	replayMu sync.Mutex
}

func NewService(remote store.Store, synchronizer *cache.Synchronizer, queue *OfflineQueue, opts Options, observer Observer) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	return &Service{
		remote:   remote,
		cache:    synchronizer,
		queue:    queue,
		observer: observer,
		opts:     opts,
		now:      time.Now,
		bills:    make(map[string]*Bill),
	}
}

func (s *Service) Cache() *cache.Synchronizer { return s.cache }

func (s *Service) Queue() *OfflineQueue { return s.queue }

func (s *Service) Options() Options { return s.opts }

// Online pings the remote store within the configured timeout.
func (s *Service) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PingTimeout)
	defer cancel()
	return s.remote.Ping(ctx) == nil
}

func (s *Service) requireOnline(ctx context.Context) error {
	if !s.Online(ctx) {
		return ErrOffline
	}
	return nil
}

/* =======================
   BILL
======================= */

type BillView struct {
	Items []models.BillItem `json:"items"`
	Totals
}

func (s *Service) billLocked(uid string) *Bill {
	b, ok := s.bills[uid]
	if !ok {
		b = NewBill()
		s.bills[uid] = b
	}
	return b
}

func (s *Service) view(b *Bill, taxEnabled bool) BillView {
	items := b.Snapshot()
	return BillView{Items: items, Totals: ComputeTotals(items, taxEnabled, s.opts.TaxRate)}
}

func (s *Service) Bill(uid string, taxEnabled bool) BillView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.billLocked(uid), taxEnabled)
}

// LookupBarcode resolves a barcode from the cache first. On a miss it asks
// the remote store when reachable and caches the answer.
func (s *Service) LookupBarcode(ctx context.Context, barcode string) (models.Product, error) {
	if p, ok := s.cache.ProductByBarcode(barcode); ok {
		return p, nil
	}
	if !s.Online(ctx) {
		return models.Product{}, fmt.Errorf("barcode %s not found in offline cache: %w", barcode, store.ErrNotFound)
	}

	p, err := s.remote.ProductByBarcode(ctx, barcode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Product{}, err
		}
		return models.Product{}, remoteError("lookup barcode", err)
	}
	s.cache.PatchProduct(p)
	return p, nil
}

func (s *Service) lookupID(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	if p, ok := s.cache.ProductByID(id); ok {
		return p, nil
	}
	if !s.Online(ctx) {
		return models.Product{}, fmt.Errorf("product %s not found in offline cache: %w", id.Hex(), store.ErrNotFound)
	}

	p, err := s.remote.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Product{}, err
		}
		return models.Product{}, remoteError("lookup product", err)
	}
	s.cache.PatchProduct(p)
	return p, nil
}

// Scan adds one unit of the product with barcode to uid's bill.
func (s *Service) Scan(ctx context.Context, uid, barcode string, taxEnabled bool) (BillView, error) {
	p, err := s.LookupBarcode(ctx, barcode)
	if err != nil {
		return BillView{}, err
	}
	return s.add(uid, p, taxEnabled)
}

func (s *Service) AddItem(ctx context.Context, uid string, id primitive.ObjectID, taxEnabled bool) (BillView, error) {
	p, err := s.lookupID(ctx, id)
	if err != nil {
		return BillView{}, err
	}
	return s.add(uid, p, taxEnabled)
}

func (s *Service) add(uid string, p models.Product, taxEnabled bool) (BillView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.billLocked(uid)
	if err := b.Add(p); err != nil {
		return s.view(b, taxEnabled), err
	}
	return s.view(b, taxEnabled), nil
}

func (s *Service) SetQuantity(uid string, id primitive.ObjectID, quantity int, taxEnabled bool) (BillView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.billLocked(uid)
	if p, ok := s.cache.ProductByID(id); ok {
		b.Refresh(p)
	}
	if err := b.SetQuantity(id, quantity); err != nil {
		return s.view(b, taxEnabled), err
	}
	return s.view(b, taxEnabled), nil
}

func (s *Service) RemoveItem(uid string, id primitive.ObjectID, taxEnabled bool) (BillView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.billLocked(uid)
	if err := b.Remove(id); err != nil {
		return s.view(b, taxEnabled), err
	}
	return s.view(b, taxEnabled), nil
}

func (s *Service) ClearBill(uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.billLocked(uid)
	if b.checkingOut {
		return ErrCheckoutBusy
	}
	b.Clear()
	return nil
}

/* =======================
   CHECKOUT
======================= */

type CheckoutRequest struct {
	CustomerID    primitive.ObjectID
	PaymentMethod string
	TaxEnabled    bool
	UserID        string
	UserName      string
}

type Receipt struct {
	Purchase  models.Purchase `json:"purchase"`
	Mode      string          `json:"mode"`
	Queued    bool            `json:"queued"`
	ReplayKey string          `json:"replayKey,omitempty"`
}

// Checkout turns uid's bill into a purchase. Online it is one remote
// transaction; offline it is checked against cached stock and queued for
// replay. The bill is frozen while the purchase is in flight and cleared only
// on success; a refused checkout leaves the lines for the cashier to fix.
func (s *Service) Checkout(ctx context.Context, uid string, req CheckoutRequest) (Receipt, error) {
	items, err := s.beginCheckout(uid, req)
	if err != nil {
		return Receipt{}, err
	}

	committed := false
	defer func() { s.finishCheckout(uid, committed) }()

	receipt, err := s.submit(ctx, items, req)
	if err != nil {
		return Receipt{}, err
	}
	committed = true
	return receipt, nil
}

// beginCheckout validates uid's bill and freezes it, returning its lines.
func (s *Service) beginCheckout(uid string, req CheckoutRequest) ([]models.BillItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.billLocked(uid)
	if b.checkingOut {
		return nil, ErrCheckoutBusy
	}
	if b.Empty() {
		return nil, ErrEmptyBill
	}
	if req.CustomerID.IsZero() {
		return nil, ErrNoCustomer
	}
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayment, req.PaymentMethod)
	}

	b.checkingOut = true
	return b.Snapshot(), nil
}

func (s *Service) finishCheckout(uid string, committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.billLocked(uid)
	b.checkingOut = false
	if committed {
		b.Clear()
	}
}

func (s *Service) submit(ctx context.Context, items []models.BillItem, req CheckoutRequest) (Receipt, error) {
	online := s.Online(ctx)
	mode := ModeOffline
	if online {
		mode = ModeOnline
	}

	customer, err := s.customer(ctx, req.CustomerID, online)
	if err != nil {
		s.observer.ObserveCheckout(mode, "rejected")
		return Receipt{}, err
	}

	totals := ComputeTotals(items, req.TaxEnabled, s.opts.TaxRate)
	purchase := models.Purchase{
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		Items:         items,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Total:         totals.Total,
		PaymentMethod: req.PaymentMethod,
		Date:          s.now(),
		UserID:        req.UserID,
		UserName:      req.UserName,
	}

	var receipt Receipt
	if online {
		receipt, err = s.checkoutOnline(ctx, purchase)
	} else {
		receipt, err = s.checkoutOffline(purchase, customer)
	}
	if err != nil {
		s.observer.ObserveCheckout(mode, checkoutResult(err))
		return Receipt{}, err
	}

	s.observer.ObserveCheckout(mode, "ok")
	return receipt, nil
}

func checkoutResult(err error) string {
	if errors.Is(err, ErrRemote) {
		return "error"
	}
	return "rejected"
}

func (s *Service) customer(ctx context.Context, id primitive.ObjectID, online bool) (models.Customer, error) {
	if c, ok := s.cache.CustomerByID(id); ok {
		return c, nil
	}
	if !online {
		return models.Customer{}, fmt.Errorf("customer %s not found in offline cache: %w", id.Hex(), store.ErrNotFound)
	}

	c, err := s.remote.CustomerByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Customer{}, err
		}
		return models.Customer{}, remoteError("lookup customer", err)
	}
	s.cache.PatchCustomer(c)
	return c, nil
}

func (s *Service) checkoutOnline(ctx context.Context, purchase models.Purchase) (Receipt, error) {
	result, err := s.remote.Checkout(ctx, purchase)
	if err != nil {
		if isRejection(err) {
			return Receipt{}, err
		}
		return Receipt{}, remoteError("checkout", err)
	}

	for _, p := range result.Products {
		s.cache.PatchProduct(p)
	}
	s.cache.PatchCustomer(result.Customer)

	zap.L().Info("checkout committed",
		zap.String("purchase", result.Purchase.ID.Hex()),
		zap.Float64("total", result.Purchase.Total),
		zap.Int("items", len(result.Purchase.Items)),
	)
	return Receipt{Purchase: result.Purchase, Mode: ModeOnline}, nil
}

func (s *Service) checkoutOffline(purchase models.Purchase, customer models.Customer) (Receipt, error) {
	s.offlineMu.Lock()
	defer s.offlineMu.Unlock()

	if cached, ok := s.cache.CustomerByID(customer.ID); ok {
		customer = cached
	}
	products := make([]models.Product, 0, len(purchase.Items))
	for _, item := range purchase.Items {
		p, ok := s.cache.ProductByID(item.ProductID)
		if !ok {
			return Receipt{}, fmt.Errorf("product %s not found in offline cache: %w", item.Name, store.ErrNotFound)
		}
		if p.Stock < item.Quantity {
			return Receipt{}, store.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: item.Quantity,
			}
		}
		products = append(products, p)
	}

	entry, err := s.queue.Append(purchase)
	if err != nil {
		return Receipt{}, fmt.Errorf("queue offline purchase: %w", err)
	}

	for i, item := range purchase.Items {
		p := products[i]
		p.Stock = max(p.Stock-item.Quantity, 0)
		s.cache.PatchProduct(p)
	}
	customer.RecordPurchase(purchase.Total, purchase.Date)
	s.cache.PatchCustomer(customer)

	s.updateQueueDepth()
	zap.L().Info("checkout queued offline",
		zap.String("replayKey", entry.ReplayKey),
		zap.Float64("total", purchase.Total),
	)
	return Receipt{Purchase: entry.Purchase, Mode: ModeOffline, Queued: true, ReplayKey: entry.ReplayKey}, nil
}

// isRejection reports whether err is the remote store refusing the request,
// as opposed to failing to answer it.
func isRejection(err error) bool {
	return errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrInvalidPurchase) ||
		errors.Is(err, store.ErrDuplicate) ||
		errors.Is(err, store.ErrAlreadyCancelled)
}

func (s *Service) updateQueueDepth() {
	n, err := s.queue.Len()
	if err != nil {
		zap.L().Warn("read offline queue", zap.Error(err))
		return
	}
	s.observer.SetQueueDepth(n)
}
