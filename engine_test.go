package storefront_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	storefront "github.com/xraph/storefront"
	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/store/memory"
	"github.com/xraph/storefront/subscription"
	"github.com/xraph/storefront/task"
)

// testClock is a settable clock for deterministic time-dependent tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestEngine(t *testing.T, opts ...storefront.Option) (*storefront.Engine, *testClock) {
	t.Helper()
	clock := newTestClock()
	opts = append([]storefront.Option{storefront.WithClock(clock.Now)}, opts...)
	e := storefront.New(memory.New(), opts...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })
	return e, clock
}

// seedCatalog creates an activated product with one variant, a 12-month
// 10% term, and a usd price of 1999 minor units (total 1799 per term).
func seedCatalog(t *testing.T, e *storefront.Engine) (*catalog.Product, *catalog.Variant) {
	t.Helper()
	ctx := context.Background()

	p := &catalog.Product{
		Name:            "Streaming Plus",
		Slug:            "streaming-plus",
		Category:        "streaming",
		DefaultCurrency: "usd",
	}
	if err := e.CreateProduct(ctx, p); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	v := &catalog.Variant{
		ProductID: p.ID,
		Name:      "Premium",
		Code:      "stream-premium",
		Active:    true,
	}
	if err := e.CreateVariant(ctx, v); err != nil {
		t.Fatalf("CreateVariant failed: %v", err)
	}

	term := &catalog.Term{
		VariantID:       v.ID,
		Months:          12,
		DiscountPercent: 10,
		Active:          true,
		Recommended:     true,
	}
	if err := e.CreateTerm(ctx, term); err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}

	if _, err := e.SetPrice(ctx, v.ID, "usd", 1999, time.Time{}); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	if err := e.ActivateProduct(ctx, p.ID); err != nil {
		t.Fatalf("ActivateProduct failed: %v", err)
	}

	got, err := e.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	return got, v
}

func deposit(t *testing.T, e *storefront.Engine, userID string, amount int64) {
	t.Helper()
	if _, err := e.Deposit(context.Background(), userID, "usd", amount, "test deposit"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
}

func TestResolvePricing(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()

	res, err := e.ResolvePricing(ctx, v.ID, 12, "usd", time.Time{})
	if err != nil {
		t.Fatalf("ResolvePricing failed: %v", err)
	}
	if res.BasePrice.Amount != 1999 {
		t.Errorf("BasePrice: got %d, want 1999", res.BasePrice.Amount)
	}
	if res.DiscountPercent != 10 {
		t.Errorf("DiscountPercent: got %d, want 10", res.DiscountPercent)
	}

	snap, err := res.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Total.Amount != 1799 {
		t.Errorf("Total: got %d, want 1799", snap.Total.Amount)
	}
}

func TestResolvePricingDenials(t *testing.T) {
	e, _ := newTestEngine(t)
	p, v := seedCatalog(t, e)
	ctx := context.Background()

	t.Run("unknown term", func(t *testing.T) {
		_, err := e.ResolvePricing(ctx, v.ID, 7, "usd", time.Time{})
		if !errors.Is(err, storefront.ErrNoTermAvailable) {
			t.Errorf("expected ErrNoTermAvailable, got %v", err)
		}
	})

	t.Run("unpriced currency", func(t *testing.T) {
		_, err := e.ResolvePricing(ctx, v.ID, 12, "eur", time.Time{})
		if !errors.Is(err, storefront.ErrNoCurrentPrice) {
			t.Errorf("expected ErrNoCurrentPrice, got %v", err)
		}
	})

	t.Run("inactive product", func(t *testing.T) {
		if err := e.DeactivateProduct(ctx, p.ID); err != nil {
			t.Fatalf("DeactivateProduct failed: %v", err)
		}
		_, err := e.ResolvePricing(ctx, v.ID, 12, "usd", time.Time{})
		if !errors.Is(err, storefront.ErrProductInactive) {
			t.Errorf("expected ErrProductInactive, got %v", err)
		}
	})
}

func TestResolvePricingOverlapTieBreak(t *testing.T) {
	e, clock := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()

	// Two rows sharing a start instant stay open side by side, the shape
	// legacy imports produce. The most recently created row must win
	// deterministically.
	startsAt := clock.Now().Add(time.Hour)
	if _, err := e.SetPrice(ctx, v.ID, "usd", 2499, startsAt); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	if _, err := e.SetPrice(ctx, v.ID, "usd", 2999, startsAt); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}

	res, err := e.ResolvePricing(ctx, v.ID, 12, "usd", startsAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("ResolvePricing failed: %v", err)
	}
	if res.BasePrice.Amount != 2999 {
		t.Errorf("expected newest overlapping row to win, got %d", res.BasePrice.Amount)
	}
}

func TestSetPriceClosesPriorWindow(t *testing.T) {
	e, clock := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()

	cutover := clock.Now().Add(time.Hour)
	if _, err := e.SetPrice(ctx, v.ID, "usd", 2499, cutover); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}

	before, err := e.ResolvePricing(ctx, v.ID, 12, "usd", clock.Now())
	if err != nil {
		t.Fatalf("ResolvePricing before cutover failed: %v", err)
	}
	if before.BasePrice.Amount != 1999 {
		t.Errorf("before cutover: got %d, want 1999", before.BasePrice.Amount)
	}

	after, err := e.ResolvePricing(ctx, v.ID, 12, "usd", cutover.Add(time.Minute))
	if err != nil {
		t.Fatalf("ResolvePricing after cutover failed: %v", err)
	}
	if after.BasePrice.Amount != 2499 {
		t.Errorf("after cutover: got %d, want 2499", after.BasePrice.Amount)
	}
}

func TestActivateProductGate(t *testing.T) {
	e, _ := newTestEngine(t, storefront.WithRequiredCurrencies("usd", "eur"))
	ctx := context.Background()

	p := &catalog.Product{
		Name:            "VPN Pro",
		Slug:            "vpn-pro",
		Category:        "vpn",
		DefaultCurrency: "usd",
	}
	if err := e.CreateProduct(ctx, p); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	v := &catalog.Variant{ProductID: p.ID, Name: "Standard", Code: "vpn-std", Active: true}
	if err := e.CreateVariant(ctx, v); err != nil {
		t.Fatalf("CreateVariant failed: %v", err)
	}

	// Only usd priced: activation must refuse with the complete gap list.
	if _, err := e.SetPrice(ctx, v.ID, "usd", 999, time.Time{}); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	err := e.ActivateProduct(ctx, p.ID)

	var actErr *storefront.ActivationError
	if !errors.As(err, &actErr) {
		t.Fatalf("expected ActivationError, got %v", err)
	}
	if len(actErr.Missing) != 1 {
		t.Fatalf("Missing: got %d pairs, want 1: %+v", len(actErr.Missing), actErr.Missing)
	}
	if actErr.Missing[0].VariantID != v.ID || actErr.Missing[0].Currency != "eur" {
		t.Errorf("unexpected missing pair: %+v", actErr.Missing[0])
	}

	// The failed activation must not have flipped the status.
	got, err := e.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if got.Status != catalog.StatusInactive {
		t.Errorf("failed activation changed status to %s", got.Status)
	}

	// Filling the gap unblocks activation.
	if _, err := e.SetPrice(ctx, v.ID, "eur", 899, time.Time{}); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	if err := e.ActivateProduct(ctx, p.ID); err != nil {
		t.Fatalf("ActivateProduct failed after pricing all currencies: %v", err)
	}
}

func TestListActiveListings(t *testing.T) {
	e, _ := newTestEngine(t)
	p, v := seedCatalog(t, e)
	ctx := context.Background()

	listings, err := e.ListActiveListings(ctx, storefront.ListFilter{})
	if err != nil {
		t.Fatalf("ListActiveListings failed: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("got %d listings, want 1", len(listings))
	}
	l := listings[0]
	if l.Product.ID != p.ID || l.Variant.ID != v.ID {
		t.Error("listing references wrong product or variant")
	}
	if l.Total.Amount != 1799 {
		t.Errorf("Total: got %d, want 1799", l.Total.Amount)
	}

	// Category filter.
	none, err := e.ListActiveListings(ctx, storefront.ListFilter{Category: "vpn"})
	if err != nil {
		t.Fatalf("ListActiveListings failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("category filter leaked %d listings", len(none))
	}
}

func TestHygieneTaskDedupe(t *testing.T) {
	e, _ := newTestEngine(t)
	p, _ := seedCatalog(t, e)
	ctx := context.Background()

	// An active variant without any plan code is unlistable and must
	// open exactly one hygiene task no matter how often it is seen.
	broken := &catalog.Variant{ProductID: p.ID, Name: "Broken", Active: true}
	if err := e.CreateVariant(ctx, broken); err != nil {
		t.Fatalf("CreateVariant failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := e.ListActiveListings(ctx, storefront.ListFilter{}); err != nil {
			t.Fatalf("ListActiveListings failed: %v", err)
		}
	}

	open, err := e.ListOpenTasks(ctx, task.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpenTasks failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("got %d open tasks, want 1", len(open))
	}
	if open[0].Category != task.CategoryMissingPlanCode {
		t.Errorf("Category: got %s, want %s", open[0].Category, task.CategoryMissingPlanCode)
	}

	// Completing the task allows the next sighting to reopen it.
	if err := e.CompleteTask(ctx, open[0].ID); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if _, err := e.ListActiveListings(ctx, storefront.ListFilter{}); err != nil {
		t.Fatalf("ListActiveListings failed: %v", err)
	}
	reopened, err := e.ListOpenTasks(ctx, task.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpenTasks failed: %v", err)
	}
	if len(reopened) != 1 {
		t.Errorf("got %d open tasks after completion, want 1 reopened", len(reopened))
	}
}

func TestHygieneTaskMissingPrice(t *testing.T) {
	e, _ := newTestEngine(t)
	p, priced := seedCatalog(t, e)
	ctx := context.Background()

	// An active variant with a plan code but no current price cannot be
	// quoted. It is left out of listings and reported once.
	unpriced := &catalog.Variant{ProductID: p.ID, Name: "Unpriced", Code: "stream-unpriced", Active: true}
	if err := e.CreateVariant(ctx, unpriced); err != nil {
		t.Fatalf("CreateVariant failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		listings, err := e.ListActiveListings(ctx, storefront.ListFilter{})
		if err != nil {
			t.Fatalf("ListActiveListings failed: %v", err)
		}
		for _, l := range listings {
			if l.Variant.ID == unpriced.ID {
				t.Fatalf("unpriced variant %s appeared in listings", unpriced.ID)
			}
		}
		if len(listings) != 1 || listings[0].Variant.ID != priced.ID {
			t.Fatalf("got %d listings, want only the priced variant", len(listings))
		}
	}

	open, err := e.ListOpenTasks(ctx, task.ListOpts{Category: task.CategoryMissingPrice})
	if err != nil {
		t.Fatalf("ListOpenTasks failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("got %d open missing-price tasks, want 1", len(open))
	}
	if open[0].Category != task.CategoryMissingPrice {
		t.Errorf("Category: got %s, want %s", open[0].Category, task.CategoryMissingPrice)
	}
}

func TestCanPurchase(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()

	req := storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	}

	t.Run("insufficient credits", func(t *testing.T) {
		d, err := e.CanPurchase(ctx, req)
		if err != nil {
			t.Fatalf("CanPurchase failed: %v", err)
		}
		if d.Allowed {
			t.Error("expected denial with empty balance")
		}
		if d.Snapshot.Total.Amount != 1799 {
			t.Errorf("denial should still carry the quote, got %d", d.Snapshot.Total.Amount)
		}
	})

	t.Run("allowed with funds", func(t *testing.T) {
		deposit(t, e, "user_1", 5000)
		d, err := e.CanPurchase(ctx, req)
		if err != nil {
			t.Fatalf("CanPurchase failed: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected allowance, got reason %q", d.Reason)
		}
		if d.Snapshot.Total.Amount != 1799 {
			t.Errorf("Total: got %d, want 1799", d.Snapshot.Total.Amount)
		}
	})

	t.Run("unknown term is a denial decision", func(t *testing.T) {
		bad := req
		bad.TermMonths = 7
		d, err := e.CanPurchase(ctx, bad)
		if err != nil {
			t.Fatalf("CanPurchase failed: %v", err)
		}
		if d.Allowed {
			t.Error("expected denial for unknown term")
		}
		if d.Reason == "" {
			t.Error("denial must carry a reason")
		}
	})
}

func TestPurchase(t *testing.T) {
	e, clock := newTestEngine(t)
	p, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 5000)

	req := storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	}
	result, err := e.Purchase(ctx, req)
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	if result.Order.Total.Amount != 1799 {
		t.Errorf("order total: got %d, want 1799", result.Order.Total.Amount)
	}
	if result.Order.Kind != order.KindPurchase {
		t.Errorf("order kind: got %s", result.Order.Kind)
	}
	if result.Order.Status != order.StatusPaid {
		t.Errorf("order status: got %s", result.Order.Status)
	}
	if len(result.Order.Items) != 1 {
		t.Fatalf("got %d order items, want 1", len(result.Order.Items))
	}
	if result.Order.Payment == nil || result.Order.Payment.Status != order.PaymentCaptured {
		t.Error("expected captured payment record")
	}

	sub := result.Subscription
	if sub.Status != subscription.StatusActive {
		t.Errorf("subscription status: got %s", sub.Status)
	}
	if sub.ProductID != p.ID || sub.VariantID != v.ID {
		t.Error("subscription references wrong catalog rows")
	}
	wantEnd := clock.Now().AddDate(0, 12, 0)
	if !sub.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate: got %v, want %v", sub.EndDate, wantEnd)
	}

	balance, err := e.Balance(ctx, "user_1", "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance.Amount != 5000-1799 {
		t.Errorf("balance after purchase: got %d, want %d", balance.Amount, 5000-1799)
	}
}

func TestPurchaseInsufficientCredits(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 1000)

	_, err := e.Purchase(ctx, storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	})
	if !errors.Is(err, storefront.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	// Nothing committed.
	balance, err := e.Balance(ctx, "user_1", "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance.Amount != 1000 {
		t.Errorf("failed purchase touched the balance: %d", balance.Amount)
	}
	subs, err := e.ListSubscriptions(ctx, "user_1", subscription.ListOpts{})
	if err != nil {
		t.Fatalf("ListSubscriptions failed: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("failed purchase created %d subscriptions", len(subs))
	}
}

func TestPurchaseSubscriptionLimit(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 10000)

	req := storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	}
	if _, err := e.Purchase(ctx, req); err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}

	// MaxPerCustomer is unset on the product, which means one.
	_, err := e.Purchase(ctx, req)
	if !errors.Is(err, storefront.ErrSubscriptionLimitExceeded) {
		t.Fatalf("expected ErrSubscriptionLimitExceeded, got %v", err)
	}

	// The advisory denial still quotes the resolved price.
	d, err := e.CanPurchase(ctx, req)
	if err != nil {
		t.Fatalf("CanPurchase failed: %v", err)
	}
	if d.Allowed {
		t.Error("expected denial at the subscription limit")
	}
	if d.Resolution == nil {
		t.Fatal("limit denial must carry the resolution")
	}
	if d.Snapshot.Total.Amount != 1799 {
		t.Errorf("denial quote: got %d, want 1799", d.Snapshot.Total.Amount)
	}

	// Cancelling frees the slot.
	subs, err := e.ListSubscriptions(ctx, "user_1", subscription.ListOpts{})
	if err != nil {
		t.Fatalf("ListSubscriptions failed: %v", err)
	}
	if err := e.CancelSubscription(ctx, subs[0].ID); err != nil {
		t.Fatalf("CancelSubscription failed: %v", err)
	}
	if _, err := e.Purchase(ctx, req); err != nil {
		t.Errorf("purchase after cancellation failed: %v", err)
	}
}

func TestPurchaseMetadataSchema(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	p := &catalog.Product{
		Name:            "Hosting",
		Slug:            "hosting",
		Category:        "hosting",
		DefaultCurrency: "usd",
		Metadata: map[string]any{
			"metadata_schema": `{
				"type": "object",
				"required": ["region"],
				"properties": {"region": {"type": "string", "enum": ["us", "eu"]}}
			}`,
		},
	}
	if err := e.CreateProduct(ctx, p); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	v := &catalog.Variant{ProductID: p.ID, Name: "Basic", Code: "host-basic", Active: true}
	if err := e.CreateVariant(ctx, v); err != nil {
		t.Fatalf("CreateVariant failed: %v", err)
	}
	if err := e.CreateTerm(ctx, &catalog.Term{VariantID: v.ID, Months: 1, Active: true}); err != nil {
		t.Fatalf("CreateTerm failed: %v", err)
	}
	if _, err := e.SetPrice(ctx, v.ID, "usd", 500, time.Time{}); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	if err := e.ActivateProduct(ctx, p.ID); err != nil {
		t.Fatalf("ActivateProduct failed: %v", err)
	}
	deposit(t, e, "user_1", 5000)

	req := storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 1,
		Currency:   "usd",
		Metadata:   map[string]any{"region": "mars"},
	}

	d, err := e.CanPurchase(ctx, req)
	if err != nil {
		t.Fatalf("CanPurchase failed: %v", err)
	}
	if d.Allowed {
		t.Error("expected denial for out-of-enum region")
	}
	if len(d.Violations) == 0 {
		t.Error("denial must carry the violation list")
	}
	if d.Resolution == nil || d.Snapshot.Total.Amount != 500 {
		t.Error("schema denial must carry the resolved quote")
	}

	var sve *storefront.SchemaViolationError
	_, err = e.Purchase(ctx, req)
	if !errors.As(err, &sve) {
		t.Fatalf("expected SchemaViolationError, got %v", err)
	}

	req.Metadata = map[string]any{"region": "eu"}
	if _, err := e.Purchase(ctx, req); err != nil {
		t.Errorf("conforming metadata rejected: %v", err)
	}
}

func TestPurchaseIdempotentReplay(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 5000)

	req := storefront.PurchaseRequest{
		UserID:         "user_1",
		VariantID:      v.ID,
		TermMonths:     12,
		Currency:       "usd",
		IdempotencyKey: "retry-abc",
	}
	first, err := e.Purchase(ctx, req)
	if err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}
	second, err := e.Purchase(ctx, req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if !second.Replayed {
		t.Error("expected second attempt to be a replay")
	}
	if second.Order.ID != first.Order.ID {
		t.Error("replay returned a different order")
	}

	// Exactly one charge.
	balance, err := e.Balance(ctx, "user_1", "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance.Amount != 5000-1799 {
		t.Errorf("balance: got %d, want %d", balance.Amount, 5000-1799)
	}
}

func TestPurchaseConcurrentDoubleSpend(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// Two products so the per-product limit never interferes; only the
	// shared balance decides. Funds cover exactly one purchase.
	var variants []*catalog.Variant
	for _, slug := range []string{"plan-a", "plan-b"} {
		p := &catalog.Product{Name: slug, Slug: slug, Category: "streaming", DefaultCurrency: "usd"}
		if err := e.CreateProduct(ctx, p); err != nil {
			t.Fatalf("CreateProduct failed: %v", err)
		}
		v := &catalog.Variant{ProductID: p.ID, Name: "Std", Code: slug + "-std", Active: true}
		if err := e.CreateVariant(ctx, v); err != nil {
			t.Fatalf("CreateVariant failed: %v", err)
		}
		if err := e.CreateTerm(ctx, &catalog.Term{VariantID: v.ID, Months: 1, Active: true}); err != nil {
			t.Fatalf("CreateTerm failed: %v", err)
		}
		if _, err := e.SetPrice(ctx, v.ID, "usd", 1799, time.Time{}); err != nil {
			t.Fatalf("SetPrice failed: %v", err)
		}
		if err := e.ActivateProduct(ctx, p.ID); err != nil {
			t.Fatalf("ActivateProduct failed: %v", err)
		}
		variants = append(variants, v)
	}
	deposit(t, e, "user_1", 2000)

	var wg sync.WaitGroup
	outcomes := make([]error, len(variants))
	for i, v := range variants {
		wg.Add(1)
		go func(i int, vid id.VariantID) {
			defer wg.Done()
			_, outcomes[i] = e.Purchase(ctx, storefront.PurchaseRequest{
				UserID:     "user_1",
				VariantID:  vid,
				TermMonths: 1,
				Currency:   "usd",
			})
		}(i, v.ID)
	}
	wg.Wait()

	var committed, insufficient int
	for _, err := range outcomes {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, storefront.ErrInsufficientCredits):
			insufficient++
		default:
			t.Errorf("unexpected outcome: %v", err)
		}
	}
	if committed != 1 || insufficient != 1 {
		t.Errorf("got %d commits and %d denials, want exactly 1 and 1", committed, insufficient)
	}

	balance, err := e.Balance(ctx, "user_1", "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance.Amount != 2000-1799 {
		t.Errorf("balance: got %d, want %d", balance.Amount, 2000-1799)
	}
}

func TestRenewPriceLock(t *testing.T) {
	e, clock := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 1799+1799)

	result, err := e.Purchase(ctx, storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	})
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}
	firstEnd := result.Subscription.EndDate

	// The catalog price doubles; the renewal must still charge the
	// snapshot price agreed at purchase time.
	if _, err := e.SetPrice(ctx, v.ID, "usd", 3999, time.Time{}); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	clock.Advance(24 * time.Hour)

	renewed, err := e.Renew(ctx, result.Subscription.ID)
	if err != nil {
		t.Fatalf("Renew failed: %v", err)
	}
	if renewed.Order.Total.Amount != 1799 {
		t.Errorf("renewal total: got %d, want locked 1799", renewed.Order.Total.Amount)
	}
	if renewed.Order.Kind != order.KindRenewal {
		t.Errorf("order kind: got %s", renewed.Order.Kind)
	}

	// A live subscription extends from its end date, not from now.
	wantEnd := firstEnd.AddDate(0, 12, 0)
	if !renewed.Subscription.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate: got %v, want %v", renewed.Subscription.EndDate, wantEnd)
	}

	balance, err := e.Balance(ctx, "user_1", "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance.Amount != 0 {
		t.Errorf("balance: got %d, want 0", balance.Amount)
	}
}

func TestRenewInsufficientCreditsGrace(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 1799)

	result, err := e.Purchase(ctx, storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	})
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}
	subID := result.Subscription.ID

	// Empty balance: the attempt fails but the grace transition commits.
	_, err = e.Renew(ctx, subID)
	if !errors.Is(err, storefront.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	sub, err := e.GetSubscription(ctx, subID)
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if sub.Status != subscription.StatusPastDue {
		t.Errorf("status after failed renewal: got %s, want past_due", sub.Status)
	}

	// A second failed attempt stays past_due; no double transition.
	_, err = e.Renew(ctx, subID)
	if !errors.Is(err, storefront.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits again, got %v", err)
	}

	// Topping up lets the renewal succeed and restore active.
	deposit(t, e, "user_1", 1799)
	renewed, err := e.Renew(ctx, subID)
	if err != nil {
		t.Fatalf("Renew after top-up failed: %v", err)
	}
	if renewed.Subscription.Status != subscription.StatusActive {
		t.Errorf("status after recovery: got %s, want active", renewed.Subscription.Status)
	}
}

func TestRenewLapsedRestartsFromNow(t *testing.T) {
	e, clock := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 1799*2)

	result, err := e.Purchase(ctx, storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	})
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	// Renew well past the end date: the new period starts from now, not
	// from the lapsed end date.
	clock.Set(result.Subscription.EndDate.AddDate(0, 3, 0))
	renewed, err := e.Renew(ctx, result.Subscription.ID)
	if err != nil {
		t.Fatalf("Renew failed: %v", err)
	}
	wantEnd := clock.Now().AddDate(0, 12, 0)
	if !renewed.Subscription.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate: got %v, want %v", renewed.Subscription.EndDate, wantEnd)
	}
}

func TestRenewRejectsTerminalStates(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 5000)

	result, err := e.Purchase(ctx, storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	})
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}
	if err := e.CancelSubscription(ctx, result.Subscription.ID); err != nil {
		t.Fatalf("CancelSubscription failed: %v", err)
	}

	_, err = e.Renew(ctx, result.Subscription.ID)
	if !errors.Is(err, storefront.ErrSubscriptionState) {
		t.Errorf("expected ErrSubscriptionState, got %v", err)
	}
}

func TestRefundOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 1799)

	result, err := e.Purchase(ctx, storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	})
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	entry, err := e.RefundOrder(ctx, result.Order.ID, "customer request")
	if err != nil {
		t.Fatalf("RefundOrder failed: %v", err)
	}
	if entry.Amount != 1799 {
		t.Errorf("refund amount: got %d, want 1799", entry.Amount)
	}

	balance, err := e.Balance(ctx, "user_1", "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance.Amount != 1799 {
		t.Errorf("balance after refund: got %d, want 1799", balance.Amount)
	}

	ord, err := e.GetOrder(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if ord.Status != order.StatusRefunded {
		t.Errorf("order status: got %s, want refunded", ord.Status)
	}

	// A second refund of the same order must refuse.
	_, err = e.RefundOrder(ctx, result.Order.ID, "again")
	if !errors.Is(err, storefront.ErrOrderRefunded) {
		t.Errorf("expected ErrOrderRefunded, got %v", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	e, _ := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 1799)

	result, err := e.Purchase(ctx, storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	})
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	if err := e.CancelSubscription(ctx, result.Subscription.ID); err != nil {
		t.Fatalf("CancelSubscription failed: %v", err)
	}
	sub, err := e.GetSubscription(ctx, result.Subscription.ID)
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if sub.Status != subscription.StatusCancelled {
		t.Errorf("status: got %s, want cancelled", sub.Status)
	}

	err = e.CancelSubscription(ctx, result.Subscription.ID)
	if !errors.Is(err, storefront.ErrSubscriptionState) {
		t.Errorf("expected ErrSubscriptionState on double cancel, got %v", err)
	}
}

func TestExpireLapsed(t *testing.T) {
	e, clock := newTestEngine(t)
	_, v := seedCatalog(t, e)
	ctx := context.Background()
	deposit(t, e, "user_1", 1799)

	result, err := e.Purchase(ctx, storefront.PurchaseRequest{
		UserID:     "user_1",
		VariantID:  v.ID,
		TermMonths: 12,
		Currency:   "usd",
	})
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	// Still inside the term: nothing expires.
	n, err := e.ExpireLapsed(ctx, "user_1")
	if err != nil {
		t.Fatalf("ExpireLapsed failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expired %d subscriptions inside the term", n)
	}

	clock.Set(result.Subscription.EndDate.Add(time.Hour))
	n, err = e.ExpireLapsed(ctx, "user_1")
	if err != nil {
		t.Fatalf("ExpireLapsed failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d subscriptions, want 1", n)
	}

	sub, err := e.GetSubscription(ctx, result.Subscription.ID)
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if sub.Status != subscription.StatusExpired {
		t.Errorf("status: got %s, want expired", sub.Status)
	}
}

func TestDepositValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -100} {
		if _, err := e.Deposit(ctx, "user_1", "usd", amount, ""); !errors.Is(err, storefront.ErrInvalidInput) {
			t.Errorf("Deposit(%d): expected ErrInvalidInput, got %v", amount, err)
		}
	}
}
