// Package memory provides an in-memory Store for tests and demos.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/storefront"
	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/credit"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/store"
	"github.com/xraph/storefront/subscription"
	"github.com/xraph/storefront/task"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*memTx)(nil)
)

type Store struct {
	mu sync.RWMutex

	// Catalog storage
	products map[string]*catalog.Product
	variants map[string]*catalog.Variant
	terms    map[string]*catalog.Term
	prices   []*catalog.Price

	// Subscription storage
	subscriptions map[string]*subscription.Subscription

	// Order storage
	orders map[string]*order.Order

	// Credit ledger (append-only)
	entries []*credit.Entry

	// Admin task storage
	tasks map[string]*task.Task

	// Per-user ledger locks, keyed user|currency
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	closed bool
}

func New() *Store {
	return &Store{
		products:      make(map[string]*catalog.Product),
		variants:      make(map[string]*catalog.Variant),
		terms:         make(map[string]*catalog.Term),
		prices:        make([]*catalog.Price, 0),
		subscriptions: make(map[string]*subscription.Subscription),
		orders:        make(map[string]*order.Order),
		entries:       make([]*credit.Entry, 0),
		tasks:         make(map[string]*task.Task),
		locks:         make(map[string]*sync.Mutex),
	}
}

// Catalog Store implementation

func (s *Store) CreateProduct(_ context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID.String()]; exists {
		return storefront.ErrAlreadyExists
	}
	for _, existing := range s.products {
		if existing.Slug == p.Slug {
			return storefront.ErrAlreadyExists
		}
	}
	s.products[p.ID.String()] = p
	return nil
}

func (s *Store) GetProduct(_ context.Context, productID id.ProductID) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.products[productID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, storefront.ErrProductNotFound
}

func (s *Store) GetProductBySlug(_ context.Context, slug string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, storefront.ErrProductNotFound
}

func (s *Store) ListProducts(_ context.Context, opts catalog.ListOpts) ([]*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Product, 0)
	for _, p := range s.products {
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		if opts.Category != "" && p.Category != opts.Category {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateProduct(_ context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID.String()]; !exists {
		return storefront.ErrProductNotFound
	}
	cp := *p
	s.products[p.ID.String()] = &cp
	return nil
}

func (s *Store) CreateVariant(_ context.Context, v *catalog.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.variants[v.ID.String()]; exists {
		return storefront.ErrAlreadyExists
	}
	s.variants[v.ID.String()] = v
	return nil
}

func (s *Store) GetVariant(_ context.Context, variantID id.VariantID) (*catalog.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getVariantLocked(variantID)
}

func (s *Store) getVariantLocked(variantID id.VariantID) (*catalog.Variant, error) {
	if v, ok := s.variants[variantID.String()]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, storefront.ErrVariantNotFound
}

func (s *Store) ListVariants(_ context.Context, productID id.ProductID) ([]*catalog.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Variant, 0)
	for _, v := range s.variants {
		if v.ProductID == productID {
			cp := *v
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *Store) UpdateVariant(_ context.Context, v *catalog.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.variants[v.ID.String()]; !exists {
		return storefront.ErrVariantNotFound
	}
	cp := *v
	s.variants[v.ID.String()] = &cp
	return nil
}

func (s *Store) CreateTerm(_ context.Context, t *catalog.Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.terms[t.ID.String()]; exists {
		return storefront.ErrAlreadyExists
	}
	s.terms[t.ID.String()] = t
	return nil
}

func (s *Store) GetTermByMonths(_ context.Context, variantID id.VariantID, months int) (*catalog.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTermByMonthsLocked(variantID, months)
}

func (s *Store) getTermByMonthsLocked(variantID id.VariantID, months int) (*catalog.Term, error) {
	for _, t := range s.terms {
		if t.VariantID == variantID && t.Months == months {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storefront.ErrNotFound
}

func (s *Store) ListTerms(_ context.Context, variantID id.VariantID) ([]*catalog.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Term, 0)
	for _, t := range s.terms {
		if t.VariantID == variantID {
			cp := *t
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Price history

func (s *Store) PricesAt(_ context.Context, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pricesAtLocked(variantID, currency, at), nil
}

func (s *Store) pricesAtLocked(variantID id.VariantID, currency string, at time.Time) []*catalog.Price {
	result := make([]*catalog.Price, 0)
	for _, p := range s.prices {
		if p.VariantID == variantID && p.Currency == currency && p.Contains(at) {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result
}

func (s *Store) SetPrice(_ context.Context, p *catalog.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Close every still-open row for the pair at the new row's start.
	for _, existing := range s.prices {
		if existing.VariantID != p.VariantID || existing.Currency != p.Currency {
			continue
		}
		if existing.EndsAt == nil || existing.EndsAt.After(p.StartsAt) {
			if existing.StartsAt.Before(p.StartsAt) {
				end := p.StartsAt
				existing.EndsAt = &end
			}
		}
	}
	s.prices = append(s.prices, p)
	return nil
}

// Subscription Store implementation

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSubscriptionLocked(subID)
}

func (s *Store) getSubscriptionLocked(subID id.SubscriptionID) (*subscription.Subscription, error) {
	if sub, ok := s.subscriptions[subID.String()]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, storefront.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, userID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.UserID != userID {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return storefront.ErrSubscriptionNotFound
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) CountActiveSubscriptions(_ context.Context, userID string, productID id.ProductID, category string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countActiveLocked(userID, productID, category), nil
}

func (s *Store) countActiveLocked(userID string, productID id.ProductID, category string) int {
	count := 0
	for _, sub := range s.subscriptions {
		if subscriptionCounts(sub, userID, productID, category) {
			count++
		}
	}
	return count
}

// subscriptionCounts matches a subscription against the per-product
// limit: by product link, or by category for legacy rows without one.
func subscriptionCounts(sub *subscription.Subscription, userID string, productID id.ProductID, category string) bool {
	if sub.UserID != userID || sub.Status.Terminal() {
		return false
	}
	if !sub.ProductID.IsNil() {
		return sub.ProductID == productID
	}
	return category != "" && sub.Category == category
}

// Order Store implementation

func (s *Store) GetOrder(_ context.Context, orderID id.OrderID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getOrderLocked(orderID)
}

func (s *Store) getOrderLocked(orderID id.OrderID) (*order.Order, error) {
	if o, ok := s.orders[orderID.String()]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, storefront.ErrOrderNotFound
}

func (s *Store) GetOrderByIdempotencyKey(_ context.Context, userID, key string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getOrderByKeyLocked(userID, key)
}

func (s *Store) getOrderByKeyLocked(userID, key string) (*order.Order, error) {
	for _, o := range s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, storefront.ErrOrderNotFound
}

func (s *Store) ListOrders(_ context.Context, userID string, opts order.ListOpts) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*order.Order, 0)
	for _, o := range s.orders {
		if o.UserID != userID {
			continue
		}
		if opts.Kind != "" && o.Kind != opts.Kind {
			continue
		}
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		cp := *o
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID id.OrderID, status order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID.String()]
	if !ok {
		return storefront.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

// Credit Store implementation

func (s *Store) AppendCreditEntry(_ context.Context, e *credit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	return nil
}

func (s *Store) CreditBalance(_ context.Context, userID, currency string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceLocked(userID, currency), nil
}

func (s *Store) balanceLocked(userID, currency string) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.UserID == userID && e.Currency == currency {
			sum += e.Amount
		}
	}
	return sum
}

func (s *Store) ListCreditEntries(_ context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Entry, 0)
	// Newest first
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.UserID != userID {
			continue
		}
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Task Store implementation

func (s *Store) CreateTaskIfAbsent(_ context.Context, t *task.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tasks {
		if existing.Status == task.StatusOpen && existing.DedupeKey == t.DedupeKey {
			return false, nil
		}
	}
	s.tasks[t.ID.String()] = t
	return true, nil
}

func (s *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tasks[taskID.String()]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, storefront.ErrTaskNotFound
}

func (s *Store) ListOpenTasks(_ context.Context, opts task.ListOpts) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*task.Task, 0)
	for _, t := range s.tasks {
		if t.Status != task.StatusOpen {
			continue
		}
		if opts.Category != "" && t.Category != opts.Category {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CompleteTask(_ context.Context, taskID id.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID.String()]
	if !ok {
		return storefront.ErrTaskNotFound
	}
	t.Status = task.StatusCompleted
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// Transactional purchase path

// PurchaseTx serializes on a per-(user, currency) mutex and stages all
// writes in the Tx, applying them atomically on commit. A non-nil error
// from fn discards the staged writes.
func (s *Store) PurchaseTx(ctx context.Context, userID, currency string, fn func(tx store.Tx) error) error {
	lock := s.userLock(userID, currency)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s, userID: userID, currency: currency}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx.applyLocked()
	return nil
}

func (s *Store) userLock(userID, currency string) *sync.Mutex {
	key := userID + "|" + currency
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

// memTx stages writes until commit. Reads merge staged state over the
// store so the transaction observes its own writes.
type memTx struct {
	s        *Store
	userID   string
	currency string

	entries     []*credit.Entry
	orders      []*order.Order
	newSubs     []*subscription.Subscription
	updatedSubs []*subscription.Subscription
	orderStatus map[string]order.Status
}

func (t *memTx) GetProduct(ctx context.Context, productID id.ProductID) (*catalog.Product, error) {
	return t.s.GetProduct(ctx, productID)
}

func (t *memTx) GetVariant(ctx context.Context, variantID id.VariantID) (*catalog.Variant, error) {
	return t.s.GetVariant(ctx, variantID)
}

func (t *memTx) GetTermByMonths(ctx context.Context, variantID id.VariantID, months int) (*catalog.Term, error) {
	return t.s.GetTermByMonths(ctx, variantID, months)
}

func (t *memTx) PricesAt(ctx context.Context, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error) {
	return t.s.PricesAt(ctx, variantID, currency, at)
}

func (t *memTx) CountActiveSubscriptions(ctx context.Context, userID string, productID id.ProductID, category string) (int, error) {
	count, err := t.s.CountActiveSubscriptions(ctx, userID, productID, category)
	if err != nil {
		return 0, err
	}
	for _, sub := range t.newSubs {
		if subscriptionCounts(sub, userID, productID, category) {
			count++
		}
	}
	return count, nil
}

func (t *memTx) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	for _, o := range t.orders {
		if o.ID == orderID {
			cp := *o
			return &cp, nil
		}
	}
	o, err := t.s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if status, ok := t.orderStatus[orderID.String()]; ok {
		o.Status = status
	}
	return o, nil
}

func (t *memTx) GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	if key != "" {
		for _, o := range t.orders {
			if o.UserID == userID && o.IdempotencyKey == key {
				cp := *o
				return &cp, nil
			}
		}
	}
	return t.s.GetOrderByIdempotencyKey(ctx, userID, key)
}

func (t *memTx) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	for _, sub := range t.updatedSubs {
		if sub.ID == subID {
			cp := *sub
			return &cp, nil
		}
	}
	for _, sub := range t.newSubs {
		if sub.ID == subID {
			cp := *sub
			return &cp, nil
		}
	}
	return t.s.GetSubscription(ctx, subID)
}

func (t *memTx) Balance(_ context.Context) (int64, error) {
	t.s.mu.RLock()
	sum := t.s.balanceLocked(t.userID, t.currency)
	t.s.mu.RUnlock()

	for _, e := range t.entries {
		sum += e.Amount
	}
	return sum, nil
}

func (t *memTx) AppendEntry(_ context.Context, e *credit.Entry) error {
	t.entries = append(t.entries, e)
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *order.Order) error {
	t.orders = append(t.orders, o)
	return nil
}

func (t *memTx) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	t.newSubs = append(t.newSubs, sub)
	return nil
}

func (t *memTx) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	cp := *sub
	t.updatedSubs = append(t.updatedSubs, &cp)
	return nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, orderID id.OrderID, status order.Status) error {
	if t.orderStatus == nil {
		t.orderStatus = make(map[string]order.Status)
	}
	t.orderStatus[orderID.String()] = status
	return nil
}

func (t *memTx) applyLocked() {
	t.s.entries = append(t.s.entries, t.entries...)
	for _, o := range t.orders {
		t.s.orders[o.ID.String()] = o
	}
	for _, sub := range t.newSubs {
		t.s.subscriptions[sub.ID.String()] = sub
	}
	for _, sub := range t.updatedSubs {
		t.s.subscriptions[sub.ID.String()] = sub
	}
	for idStr, status := range t.orderStatus {
		if o, ok := t.s.orders[idStr]; ok {
			o.Status = status
		}
	}
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storefront.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// paginate applies offset/limit the way every List method does.
func paginate[T any](result []T, offset, limit int) []T {
	start := offset
	if start > len(result) {
		start = len(result)
	}
	end := start + limit
	if limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end]
}
