package sql

import (
	"encoding/json"
	"time"

	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/credit"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/pricing"
	"github.com/xraph/storefront/subscription"
	"github.com/xraph/storefront/task"
	"github.com/xraph/storefront/types"
)

// ==================== Catalog models ====================

type productModel struct {
	ID              string          `gorm:"primaryKey;column:id"`
	Name            string          `gorm:"column:name"`
	Slug            string          `gorm:"column:slug;uniqueIndex"`
	Status          string          `gorm:"column:status;index"`
	Category        string          `gorm:"column:category;index"`
	DefaultCurrency string          `gorm:"column:default_currency"`
	MaxPerCustomer  int             `gorm:"column:max_per_customer"`
	Metadata        json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

func (productModel) TableName() string { return "storefront_products" }

func toProductModel(p *catalog.Product) *productModel {
	metadata, _ := json.Marshal(p.Metadata) //nolint:errcheck // best-effort

	return &productModel{
		ID:              p.ID.String(),
		Name:            p.Name,
		Slug:            p.Slug,
		Status:          string(p.Status),
		Category:        p.Category,
		DefaultCurrency: p.DefaultCurrency,
		MaxPerCustomer:  p.MaxPerCustomer,
		Metadata:        metadata,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func fromProductModel(m *productModel) (*catalog.Product, error) {
	productID, err := id.ParseProductID(m.ID)
	if err != nil {
		return nil, err
	}

	var metadata map[string]any
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata) //nolint:errcheck // best-effort
	}

	return &catalog.Product{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              productID,
		Name:            m.Name,
		Slug:            m.Slug,
		Status:          catalog.Status(m.Status),
		Category:        m.Category,
		DefaultCurrency: m.DefaultCurrency,
		MaxPerCustomer:  m.MaxPerCustomer,
		Metadata:        metadata,
	}, nil
}

type variantModel struct {
	ID             string          `gorm:"primaryKey;column:id"`
	ProductID      string          `gorm:"column:product_id;index"`
	Name           string          `gorm:"column:name"`
	Code           string          `gorm:"column:code"`
	LegacyPlanCode string          `gorm:"column:legacy_plan_code"`
	Active         bool            `gorm:"column:active"`
	Features       json.RawMessage `gorm:"column:features;type:jsonb"`
	Badge          string          `gorm:"column:badge"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (variantModel) TableName() string { return "storefront_variants" }

func toVariantModel(v *catalog.Variant) *variantModel {
	features, _ := json.Marshal(v.Features) //nolint:errcheck // best-effort

	return &variantModel{
		ID:             v.ID.String(),
		ProductID:      v.ProductID.String(),
		Name:           v.Name,
		Code:           v.Code,
		LegacyPlanCode: v.LegacyPlanCode,
		Active:         v.Active,
		Features:       features,
		Badge:          v.Badge,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

func fromVariantModel(m *variantModel) (*catalog.Variant, error) {
	variantID, err := id.ParseVariantID(m.ID)
	if err != nil {
		return nil, err
	}
	productID, err := id.ParseProductID(m.ProductID)
	if err != nil {
		return nil, err
	}

	var features []string
	if len(m.Features) > 0 {
		_ = json.Unmarshal(m.Features, &features) //nolint:errcheck // best-effort
	}

	return &catalog.Variant{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             variantID,
		ProductID:      productID,
		Name:           m.Name,
		Code:           m.Code,
		LegacyPlanCode: m.LegacyPlanCode,
		Active:         m.Active,
		Features:       features,
		Badge:          m.Badge,
	}, nil
}

type termModel struct {
	ID              string    `gorm:"primaryKey;column:id"`
	VariantID       string    `gorm:"column:variant_id;index"`
	Months          int       `gorm:"column:months"`
	DiscountPercent int       `gorm:"column:discount_percent"`
	Active          bool      `gorm:"column:active"`
	Recommended     bool      `gorm:"column:recommended"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (termModel) TableName() string { return "storefront_terms" }

func toTermModel(t *catalog.Term) *termModel {
	return &termModel{
		ID:              t.ID.String(),
		VariantID:       t.VariantID.String(),
		Months:          t.Months,
		DiscountPercent: t.DiscountPercent,
		Active:          t.Active,
		Recommended:     t.Recommended,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func fromTermModel(m *termModel) (*catalog.Term, error) {
	termID, err := id.ParseTermID(m.ID)
	if err != nil {
		return nil, err
	}
	variantID, err := id.ParseVariantID(m.VariantID)
	if err != nil {
		return nil, err
	}

	return &catalog.Term{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              termID,
		VariantID:       variantID,
		Months:          m.Months,
		DiscountPercent: m.DiscountPercent,
		Active:          m.Active,
		Recommended:     m.Recommended,
	}, nil
}

type priceModel struct {
	ID        string     `gorm:"primaryKey;column:id"`
	VariantID string     `gorm:"column:variant_id;index:idx_price_lookup"`
	Currency  string     `gorm:"column:currency;index:idx_price_lookup"`
	Amount    int64      `gorm:"column:amount"`
	StartsAt  time.Time  `gorm:"column:starts_at"`
	EndsAt    *time.Time `gorm:"column:ends_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (priceModel) TableName() string { return "storefront_prices" }

func toPriceModel(p *catalog.Price) *priceModel {
	return &priceModel{
		ID:        p.ID.String(),
		VariantID: p.VariantID.String(),
		Currency:  p.Currency,
		Amount:    p.Amount,
		StartsAt:  p.StartsAt,
		EndsAt:    p.EndsAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPriceModel(m *priceModel) (*catalog.Price, error) {
	priceID, err := id.ParsePriceID(m.ID)
	if err != nil {
		return nil, err
	}
	variantID, err := id.ParseVariantID(m.VariantID)
	if err != nil {
		return nil, err
	}

	return &catalog.Price{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        priceID,
		VariantID: variantID,
		Currency:  m.Currency,
		Amount:    m.Amount,
		StartsAt:  m.StartsAt,
		EndsAt:    m.EndsAt,
	}, nil
}

// ==================== Subscription model ====================

type subscriptionModel struct {
	ID        string          `gorm:"primaryKey;column:id"`
	UserID    string          `gorm:"column:user_id;index"`
	ProductID string          `gorm:"column:product_id;index"`
	VariantID string          `gorm:"column:variant_id"`
	Category  string          `gorm:"column:category"`
	Snapshot  json.RawMessage `gorm:"column:snapshot;type:jsonb"`
	Status    string          `gorm:"column:status;index"`
	StartDate time.Time       `gorm:"column:start_date"`
	EndDate   time.Time       `gorm:"column:end_date"`
	Metadata  json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (subscriptionModel) TableName() string { return "storefront_subscriptions" }

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	snapshot, _ := json.Marshal(s.Snapshot) //nolint:errcheck // best-effort
	metadata, _ := json.Marshal(s.Metadata) //nolint:errcheck // best-effort

	return &subscriptionModel{
		ID:        s.ID.String(),
		UserID:    s.UserID,
		ProductID: s.ProductID.String(),
		VariantID: s.VariantID.String(),
		Category:  s.Category,
		Snapshot:  snapshot,
		Status:    string(s.Status),
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		Metadata:  metadata,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	// Legacy rows may predate product links; an unparseable product id
	// leaves the zero value and limit matching falls back to category.
	productID, _ := id.ParseProductID(m.ProductID) //nolint:errcheck
	variantID, _ := id.ParseVariantID(m.VariantID) //nolint:errcheck

	var snapshot pricing.Snapshot
	if len(m.Snapshot) > 0 {
		_ = json.Unmarshal(m.Snapshot, &snapshot) //nolint:errcheck // best-effort
	}
	var metadata map[string]any
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata) //nolint:errcheck // best-effort
	}

	return &subscription.Subscription{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        subID,
		UserID:    m.UserID,
		ProductID: productID,
		VariantID: variantID,
		Category:  m.Category,
		Snapshot:  snapshot,
		Status:    subscription.Status(m.Status),
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
		Metadata:  metadata,
	}, nil
}

// ==================== Order models ====================

type orderModel struct {
	ID             string          `gorm:"primaryKey;column:id"`
	UserID         string          `gorm:"column:user_id;index:idx_order_user"`
	Kind           string          `gorm:"column:kind"`
	Status         string          `gorm:"column:status"`
	Currency       string          `gorm:"column:currency"`
	TotalAmount    int64           `gorm:"column:total_amount"`
	IdempotencyKey string          `gorm:"column:idempotency_key;index:idx_order_user"`
	SubscriptionID string          `gorm:"column:subscription_id"`
	Items          json.RawMessage `gorm:"column:items;type:jsonb"`
	Payment        json.RawMessage `gorm:"column:payment;type:jsonb"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (orderModel) TableName() string { return "storefront_orders" }

func toOrderModel(o *order.Order) *orderModel {
	items, _ := json.Marshal(o.Items)     //nolint:errcheck // best-effort
	payment, _ := json.Marshal(o.Payment) //nolint:errcheck // best-effort

	return &orderModel{
		ID:             o.ID.String(),
		UserID:         o.UserID,
		Kind:           string(o.Kind),
		Status:         string(o.Status),
		Currency:       o.Currency,
		TotalAmount:    o.Total.Amount,
		IdempotencyKey: o.IdempotencyKey,
		SubscriptionID: o.SubscriptionID.String(),
		Items:          items,
		Payment:        payment,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func fromOrderModel(m *orderModel) (*order.Order, error) {
	orderID, err := id.ParseOrderID(m.ID)
	if err != nil {
		return nil, err
	}
	subID, _ := id.ParseSubscriptionID(m.SubscriptionID) //nolint:errcheck

	var items []order.OrderItem
	if len(m.Items) > 0 {
		_ = json.Unmarshal(m.Items, &items) //nolint:errcheck // best-effort
	}
	var payment *order.Payment
	if len(m.Payment) > 0 && string(m.Payment) != "null" {
		payment = new(order.Payment)
		_ = json.Unmarshal(m.Payment, payment) //nolint:errcheck // best-effort
	}

	return &order.Order{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             orderID,
		UserID:         m.UserID,
		Kind:           order.Kind(m.Kind),
		Status:         order.Status(m.Status),
		Currency:       m.Currency,
		Total:          types.Minor(m.Currency, m.TotalAmount),
		IdempotencyKey: m.IdempotencyKey,
		SubscriptionID: subID,
		Items:          items,
		Payment:        payment,
	}, nil
}

// ==================== Credit models ====================

type creditEntryModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	UserID    string    `gorm:"column:user_id;index:idx_entry_account"`
	Kind      string    `gorm:"column:kind"`
	Amount    int64     `gorm:"column:amount"`
	Currency  string    `gorm:"column:currency;index:idx_entry_account"`
	Reference string    `gorm:"column:reference"`
	Note      string    `gorm:"column:note"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (creditEntryModel) TableName() string { return "storefront_credit_entries" }

func toCreditEntryModel(e *credit.Entry) *creditEntryModel {
	return &creditEntryModel{
		ID:        e.ID.String(),
		UserID:    e.UserID,
		Kind:      string(e.Kind),
		Amount:    e.Amount,
		Currency:  e.Currency,
		Reference: e.Reference.String(),
		Note:      e.Note,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromCreditEntryModel(m *creditEntryModel) (*credit.Entry, error) {
	entryID, err := id.ParseCreditEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	reference, _ := id.ParseOrderID(m.Reference) //nolint:errcheck

	return &credit.Entry{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        entryID,
		UserID:    m.UserID,
		Kind:      credit.Kind(m.Kind),
		Amount:    m.Amount,
		Currency:  m.Currency,
		Reference: reference,
		Note:      m.Note,
	}, nil
}

// creditAccountModel is the lock anchor for PurchaseTx. One row per
// (user, currency); the row itself stores no balance, it exists only to
// be SELECT ... FOR UPDATE'd.
type creditAccountModel struct {
	UserID   string `gorm:"primaryKey;column:user_id"`
	Currency string `gorm:"primaryKey;column:currency"`
}

func (creditAccountModel) TableName() string { return "storefront_credit_accounts" }

// ==================== Task model ====================

type taskModel struct {
	ID          string     `gorm:"primaryKey;column:id"`
	Category    string     `gorm:"column:category"`
	DedupeKey   string     `gorm:"column:dedupe_key;index"`
	Notes       string     `gorm:"column:notes"`
	Status      string     `gorm:"column:status;index"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (taskModel) TableName() string { return "storefront_tasks" }

func toTaskModel(t *task.Task) *taskModel {
	return &taskModel{
		ID:          t.ID.String(),
		Category:    string(t.Category),
		DedupeKey:   t.DedupeKey,
		Notes:       t.Notes,
		Status:      string(t.Status),
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func fromTaskModel(m *taskModel) (*task.Task, error) {
	taskID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, err
	}

	return &task.Task{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          taskID,
		Category:    task.Category(m.Category),
		DedupeKey:   m.DedupeKey,
		Notes:       m.Notes,
		Status:      task.Status(m.Status),
		CompletedAt: m.CompletedAt,
	}, nil
}
