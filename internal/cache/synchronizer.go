package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"posbackend/internal/localstore"
	"posbackend/internal/models"
)

// Source is the remote side of a full refresh.
type Source interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
}

type RefreshObserver interface {
	ObserveRefresh(result string)
}

// RefreshOutcome is delivered once the background fetch started by
// LoadWithCache settles. Err is a warning: the cached view stays usable.
type RefreshOutcome struct {
	Products  []models.Product
	Customers []models.Customer
	Err       error
}

// Result is the first phase of LoadWithCache: whatever the cache holds right
// now, plus a channel for the second phase.
type Result struct {
	Products  []models.Product
	Customers []models.Customer
	FromCache bool
	Refresh   <-chan RefreshOutcome
}

type Synchronizer struct {
	source    Source
	products  *Snapshot[models.Product]
	customers *Snapshot[models.Customer]
	observer  RefreshObserver
	timeout   time.Duration
	group     singleflight.Group

	mu            sync.RWMutex
	productsByID  map[primitive.ObjectID]models.Product
	barcodeIndex  map[string]primitive.ObjectID
	customersByID map[primitive.ObjectID]models.Customer
}

type Option func(*Synchronizer)

func WithObserver(o RefreshObserver) Option {
	return func(s *Synchronizer) { s.observer = o }
}

// WithRefreshTimeout bounds the background fetch started by LoadWithCache.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.timeout = d }
}

func New(source Source, local *localstore.Store, ttl time.Duration, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		source: source,
		products: NewSnapshot(local, localstore.KeyProducts, localstore.KeyProductsTimestamp, ttl,
			func(p models.Product) string { return p.ID.Hex() }),
		customers: NewSnapshot(local, localstore.KeyCustomers, localstore.KeyCustomersTimestamp, ttl,
			func(c models.Customer) string { return c.ID.Hex() }),
		timeout:       30 * time.Second,
		productsByID:  make(map[primitive.ObjectID]models.Product),
		barcodeIndex:  make(map[string]primitive.ObjectID),
		customersByID: make(map[primitive.ObjectID]models.Customer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadWithCache serves the persisted snapshots immediately and starts a full
// refresh in the background. The returned channel receives exactly one
// outcome and is then closed.
func (s *Synchronizer) LoadWithCache(ctx context.Context) Result {
	products, pFound, err := s.products.Load()
	if err != nil {
		zap.L().Warn("product snapshot unreadable", zap.Error(err))
	}
	customers, cFound, err := s.customers.Load()
	if err != nil {
		zap.L().Warn("customer snapshot unreadable", zap.Error(err))
	}

	// A missing or expired snapshot also drops what memory still holds, so
	// nothing older than the TTL is served while the refresh runs.
	s.mu.Lock()
	s.setProductsLocked(products)
	s.setCustomersLocked(customers)
	s.mu.Unlock()

	refresh := make(chan RefreshOutcome, 1)
	go func() {
		defer close(refresh)

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		p, c, err := s.Refresh(bg)
		if err != nil {
			zap.L().Warn("background refresh failed, serving cached data", zap.Error(err))
		}
		refresh <- RefreshOutcome{Products: p, Customers: c, Err: err}
	}()

	return Result{
		Products:  s.Products(),
		Customers: s.Customers(),
		FromCache: pFound || cFound,
		Refresh:   refresh,
	}
}

type refreshed struct {
	products  []models.Product
	customers []models.Customer
}

// Refresh fetches both lists in parallel and replaces each one that arrived.
// Concurrent callers share a single fetch.
func (s *Synchronizer) Refresh(ctx context.Context) ([]models.Product, []models.Customer, error) {
	v, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		var out refreshed
		var productsErr, customersErr error

		// No shared cancel: each list is applied on its own success.
		var g errgroup.Group
		g.Go(func() error {
			out.products, productsErr = s.source.ListProducts(ctx)
			return productsErr
		})
		g.Go(func() error {
			out.customers, customersErr = s.source.ListCustomers(ctx)
			return customersErr
		})
		waitErr := g.Wait()

		if productsErr == nil {
			s.replaceProducts(out.products)
		}
		if customersErr == nil {
			s.replaceCustomers(out.customers)
		}
		if waitErr == nil {
			return out, nil
		}

		switch {
		case productsErr != nil && customersErr != nil:
			return out, fmt.Errorf("refresh products: %w; customers: %v", productsErr, customersErr)
		case productsErr != nil:
			return out, fmt.Errorf("refresh products: %w", productsErr)
		case customersErr != nil:
			return out, fmt.Errorf("refresh customers: %w", customersErr)
		}
		return out, nil
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	if s.observer != nil {
		s.observer.ObserveRefresh(result)
	}

	out, _ := v.(refreshed)
	if err != nil {
		return s.Products(), s.Customers(), err
	}
	return out.products, out.customers, nil
}

func (s *Synchronizer) replaceProducts(products []models.Product) {
	if err := s.products.Save(products); err != nil {
		zap.L().Warn("persist product snapshot", zap.Error(err))
	}
	s.mu.Lock()
	s.setProductsLocked(products)
	s.mu.Unlock()
}

func (s *Synchronizer) replaceCustomers(customers []models.Customer) {
	if err := s.customers.Save(customers); err != nil {
		zap.L().Warn("persist customer snapshot", zap.Error(err))
	}
	s.mu.Lock()
	s.setCustomersLocked(customers)
	s.mu.Unlock()
}

func (s *Synchronizer) setProductsLocked(products []models.Product) {
	s.productsByID = make(map[primitive.ObjectID]models.Product, len(products))
	s.barcodeIndex = make(map[string]primitive.ObjectID, len(products))
	for _, p := range products {
		s.putProductLocked(p)
	}
}

func (s *Synchronizer) setCustomersLocked(customers []models.Customer) {
	s.customersByID = make(map[primitive.ObjectID]models.Customer, len(customers))
	for _, c := range customers {
		s.customersByID[c.ID] = c
	}
}

func (s *Synchronizer) putProductLocked(p models.Product) {
	if old, ok := s.productsByID[p.ID]; ok && old.Barcode != p.Barcode {
		delete(s.barcodeIndex, old.Barcode)
	}
	s.productsByID[p.ID] = p
	if p.Barcode != "" {
		s.barcodeIndex[p.Barcode] = p.ID
	}
}

// PatchProduct applies one changed product to memory and to the snapshot.
func (s *Synchronizer) PatchProduct(p models.Product) {
	s.mu.Lock()
	s.putProductLocked(p)
	s.mu.Unlock()

	if err := s.products.Patch(p); err != nil {
		zap.L().Warn("patch product snapshot", zap.String("barcode", p.Barcode), zap.Error(err))
	}
}

func (s *Synchronizer) PatchCustomer(c models.Customer) {
	s.mu.Lock()
	s.customersByID[c.ID] = c
	s.mu.Unlock()

	if err := s.customers.Patch(c); err != nil {
		zap.L().Warn("patch customer snapshot", zap.String("customer", c.ID.Hex()), zap.Error(err))
	}
}

func (s *Synchronizer) ProductByBarcode(barcode string) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.barcodeIndex[barcode]
	if !ok {
		return models.Product{}, false
	}
	p, ok := s.productsByID[id]
	return p, ok
}

func (s *Synchronizer) ProductByID(id primitive.ObjectID) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.productsByID[id]
	return p, ok
}

func (s *Synchronizer) CustomerByID(id primitive.ObjectID) (models.Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customersByID[id]
	return c, ok
}

// Products returns the cached products ordered by name.
func (s *Synchronizer) Products() []models.Product {
	s.mu.RLock()
	products := make([]models.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		products = append(products, p)
	}
	s.mu.RUnlock()

	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products
}

func (s *Synchronizer) Customers() []models.Customer {
	s.mu.RLock()
	customers := make([]models.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	s.mu.RUnlock()

	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	return customers
}

// SearchProducts matches name or barcode substrings, case-insensitively.
// A limit of zero or less returns every match.
func (s *Synchronizer) SearchProducts(term string, limit int) []models.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	matches := make([]models.Product, 0)
	for _, p := range s.Products() {
		if term == "" || strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(p.Barcode, term) {
			matches = append(matches, p)
			if limit > 0 && len(matches) == limit {
				break
			}
		}
	}
	return matches
}

func (s *Synchronizer) SearchCustomers(term string, limit int) []models.Customer {
	term = strings.ToLower(strings.TrimSpace(term))
	matches := make([]models.Customer, 0)
	for _, c := range s.Customers() {
		if term == "" || strings.Contains(strings.ToLower(c.Name), term) {
			matches = append(matches, c)
			if limit > 0 && len(matches) == limit {
				break
			}
		}
	}
	return matches
}
