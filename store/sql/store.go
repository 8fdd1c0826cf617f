// Package sql implements store.Store on a relational database through
// GORM. The postgres and sqlite packages provide the dialect openers.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xraph/storefront"
	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/credit"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/order"
	storefrontstore "github.com/xraph/storefront/store"
	"github.com/xraph/storefront/subscription"
	"github.com/xraph/storefront/task"
)

// compile-time interface check
var (
	_ storefrontstore.Store = (*Store)(nil)
	_ storefrontstore.Tx    = (*sqlTx)(nil)
)

// Store implements store.Store on a GORM database handle.
type Store struct {
	db *gorm.DB
}

// New wraps an open GORM handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying GORM handle for direct access.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&productModel{},
		&variantModel{},
		&termModel{},
		&priceModel{},
		&subscriptionModel{},
		&orderModel{},
		&creditEntryModel{},
		&creditAccountModel{},
		&taskModel{},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", storefront.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.db.WithContext(ctx).DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// ==================== Catalog Store ====================

func (s *Store) CreateProduct(ctx context.Context, p *catalog.Product) error {
	err := s.db.WithContext(ctx).Create(toProductModel(p)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storefront.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetProduct(ctx context.Context, productID id.ProductID) (*catalog.Product, error) {
	return getProduct(s.db.WithContext(ctx), productID)
}

func getProduct(db *gorm.DB, productID id.ProductID) (*catalog.Product, error) {
	m := new(productModel)
	if err := db.First(m, "id = ?", productID.String()).Error; err != nil {
		return nil, notFound(err, storefront.ErrProductNotFound)
	}
	return fromProductModel(m)
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	m := new(productModel)
	if err := s.db.WithContext(ctx).First(m, "slug = ?", slug).Error; err != nil {
		return nil, notFound(err, storefront.ErrProductNotFound)
	}
	return fromProductModel(m)
}

func (s *Store) ListProducts(ctx context.Context, opts catalog.ListOpts) ([]*catalog.Product, error) {
	q := s.db.WithContext(ctx).Model(&productModel{})
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Category != "" {
		q = q.Where("category = ?", opts.Category)
	}
	q = applyPage(q, opts.Offset, opts.Limit).Order("created_at")

	var models []*productModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*catalog.Product, 0, len(models))
	for _, m := range models {
		p, err := fromProductModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	res := s.db.WithContext(ctx).
		Model(&productModel{}).
		Where("id = ?", p.ID.String()).
		Updates(toProductModel(p))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storefront.ErrProductNotFound
	}
	return nil
}

func (s *Store) CreateVariant(ctx context.Context, v *catalog.Variant) error {
	err := s.db.WithContext(ctx).Create(toVariantModel(v)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storefront.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetVariant(ctx context.Context, variantID id.VariantID) (*catalog.Variant, error) {
	return getVariant(s.db.WithContext(ctx), variantID)
}

func getVariant(db *gorm.DB, variantID id.VariantID) (*catalog.Variant, error) {
	m := new(variantModel)
	if err := db.First(m, "id = ?", variantID.String()).Error; err != nil {
		return nil, notFound(err, storefront.ErrVariantNotFound)
	}
	return fromVariantModel(m)
}

func (s *Store) ListVariants(ctx context.Context, productID id.ProductID) ([]*catalog.Variant, error) {
	var models []*variantModel
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID.String()).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]*catalog.Variant, 0, len(models))
	for _, m := range models {
		v, err := fromVariantModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func (s *Store) UpdateVariant(ctx context.Context, v *catalog.Variant) error {
	res := s.db.WithContext(ctx).
		Model(&variantModel{}).
		Where("id = ?", v.ID.String()).
		Select("*").Omit("id", "created_at").
		Updates(toVariantModel(v))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storefront.ErrVariantNotFound
	}
	return nil
}

func (s *Store) CreateTerm(ctx context.Context, t *catalog.Term) error {
	return s.db.WithContext(ctx).Create(toTermModel(t)).Error
}

func (s *Store) GetTermByMonths(ctx context.Context, variantID id.VariantID, months int) (*catalog.Term, error) {
	return getTermByMonths(s.db.WithContext(ctx), variantID, months)
}

func getTermByMonths(db *gorm.DB, variantID id.VariantID, months int) (*catalog.Term, error) {
	m := new(termModel)
	err := db.First(m, "variant_id = ? AND months = ?", variantID.String(), months).Error
	if err != nil {
		return nil, notFound(err, storefront.ErrNotFound)
	}
	return fromTermModel(m)
}

func (s *Store) ListTerms(ctx context.Context, variantID id.VariantID) ([]*catalog.Term, error) {
	var models []*termModel
	err := s.db.WithContext(ctx).
		Where("variant_id = ?", variantID.String()).
		Order("months").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]*catalog.Term, 0, len(models))
	for _, m := range models {
		t, err := fromTermModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// ==================== Price history ====================

func (s *Store) PricesAt(ctx context.Context, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error) {
	return pricesAt(s.db.WithContext(ctx), variantID, currency, at)
}

func pricesAt(db *gorm.DB, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error) {
	var models []*priceModel
	err := db.
		Where("variant_id = ? AND currency = ?", variantID.String(), currency).
		Where("starts_at <= ?", at).
		Where("ends_at IS NULL OR ends_at > ?", at).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]*catalog.Price, 0, len(models))
	for _, m := range models {
		p, err := fromPriceModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// SetPrice closes open rows and inserts the new one in a single
// transaction, keeping the no-overlap invariant for readers.
func (s *Store) SetPrice(ctx context.Context, p *catalog.Price) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&priceModel{}).
			Where("variant_id = ? AND currency = ?", p.VariantID.String(), p.Currency).
			Where("starts_at < ?", p.StartsAt).
			Where("ends_at IS NULL OR ends_at > ?", p.StartsAt).
			Update("ends_at", p.StartsAt).Error
		if err != nil {
			return err
		}
		return tx.Create(toPriceModel(p)).Error
	})
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return getSubscription(s.db.WithContext(ctx), subID)
}

func getSubscription(db *gorm.DB, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	if err := db.First(m, "id = ?", subID.String()).Error; err != nil {
		return nil, notFound(err, storefront.ErrSubscriptionNotFound)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, userID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	q := s.db.WithContext(ctx).Model(&subscriptionModel{}).Where("user_id = ?", userID)
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	q = applyPage(q, opts.Offset, opts.Limit).Order("created_at DESC")

	var models []*subscriptionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, 0, len(models))
	for _, m := range models {
		sub, err := fromSubscriptionModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return updateSubscription(s.db.WithContext(ctx), sub)
}

func updateSubscription(db *gorm.DB, sub *subscription.Subscription) error {
	res := db.Model(&subscriptionModel{}).
		Where("id = ?", sub.ID.String()).
		Select("*").Omit("id", "created_at").
		Updates(toSubscriptionModel(sub))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storefront.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) CountActiveSubscriptions(ctx context.Context, userID string, productID id.ProductID, category string) (int, error) {
	return countActiveSubscriptions(s.db.WithContext(ctx), userID, productID, category)
}

// countActiveSubscriptions applies the limit-matching predicate: product
// link when present, category fallback for legacy rows without one.
func countActiveSubscriptions(db *gorm.DB, userID string, productID id.ProductID, category string) (int, error) {
	var count int64
	err := db.Model(&subscriptionModel{}).
		Where("user_id = ?", userID).
		Where("status NOT IN ?", []string{
			string(subscription.StatusCancelled),
			string(subscription.StatusExpired),
		}).
		Where("product_id = ? OR (product_id = '' AND category = ? AND ? <> '')",
			productID.String(), category, category).
		Count(&count).Error
	return int(count), err
}

// ==================== Order Store ====================

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	return getOrder(s.db.WithContext(ctx), orderID)
}

func getOrder(db *gorm.DB, orderID id.OrderID) (*order.Order, error) {
	m := new(orderModel)
	if err := db.First(m, "id = ?", orderID.String()).Error; err != nil {
		return nil, notFound(err, storefront.ErrOrderNotFound)
	}
	return fromOrderModel(m)
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return getOrderByKey(s.db.WithContext(ctx), userID, key)
}

func getOrderByKey(db *gorm.DB, userID, key string) (*order.Order, error) {
	m := new(orderModel)
	err := db.First(m, "user_id = ? AND idempotency_key = ?", userID, key).Error
	if err != nil {
		return nil, notFound(err, storefront.ErrOrderNotFound)
	}
	return fromOrderModel(m)
}

func (s *Store) ListOrders(ctx context.Context, userID string, opts order.ListOpts) ([]*order.Order, error) {
	q := s.db.WithContext(ctx).Model(&orderModel{}).Where("user_id = ?", userID)
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	q = applyPage(q, opts.Offset, opts.Limit).Order("created_at DESC")

	var models []*orderModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*order.Order, 0, len(models))
	for _, m := range models {
		o, err := fromOrderModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID id.OrderID, status order.Status) error {
	return updateOrderStatus(s.db.WithContext(ctx), orderID, status)
}

func updateOrderStatus(db *gorm.DB, orderID id.OrderID, status order.Status) error {
	res := db.Model(&orderModel{}).
		Where("id = ?", orderID.String()).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storefront.ErrOrderNotFound
	}
	return nil
}

// ==================== Credit Store ====================

func (s *Store) AppendCreditEntry(ctx context.Context, e *credit.Entry) error {
	return s.db.WithContext(ctx).Create(toCreditEntryModel(e)).Error
}

func (s *Store) CreditBalance(ctx context.Context, userID, currency string) (int64, error) {
	return creditBalance(s.db.WithContext(ctx), userID, currency)
}

func creditBalance(db *gorm.DB, userID, currency string) (int64, error) {
	var sum *int64
	err := db.Model(&creditEntryModel{}).
		Where("user_id = ? AND currency = ?", userID, currency).
		Select("SUM(amount)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

func (s *Store) ListCreditEntries(ctx context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error) {
	q := s.db.WithContext(ctx).Model(&creditEntryModel{}).Where("user_id = ?", userID)
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	q = applyPage(q, opts.Offset, opts.Limit).Order("created_at DESC")

	var models []*creditEntryModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*credit.Entry, 0, len(models))
	for _, m := range models {
		e, err := fromCreditEntryModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// ==================== Task Store ====================

// CreateTaskIfAbsent inserts the task unless an open one already carries
// the same dedupe key. The check and insert run in one transaction.
func (s *Store) CreateTaskIfAbsent(ctx context.Context, t *task.Task) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&taskModel{}).
			Where("dedupe_key = ? AND status = ?", t.DedupeKey, string(task.StatusOpen)).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(toTaskModel(t)).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	m := new(taskModel)
	if err := s.db.WithContext(ctx).First(m, "id = ?", taskID.String()).Error; err != nil {
		return nil, notFound(err, storefront.ErrTaskNotFound)
	}
	return fromTaskModel(m)
}

func (s *Store) ListOpenTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	q := s.db.WithContext(ctx).Model(&taskModel{}).Where("status = ?", string(task.StatusOpen))
	if opts.Category != "" {
		q = q.Where("category = ?", string(opts.Category))
	}
	q = applyPage(q, opts.Offset, opts.Limit).Order("created_at")

	var models []*taskModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*task.Task, 0, len(models))
	for _, m := range models {
		t, err := fromTaskModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func (s *Store) CompleteTask(ctx context.Context, taskID id.TaskID) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&taskModel{}).
		Where("id = ?", taskID.String()).
		Updates(map[string]any{
			"status":       string(task.StatusCompleted),
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storefront.ErrTaskNotFound
	}
	return nil
}

// ==================== Transactional purchase path ====================

// PurchaseTx runs fn in one database transaction holding an exclusive
// row lock on the (user, currency) credit account. The account row is
// created on first use; SQLite skips the explicit lock since its write
// transactions are already serialized.
func (s *Store) PurchaseTx(ctx context.Context, userID, currency string, fn func(tx storefrontstore.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account := &creditAccountModel{UserID: userID, Currency: currency}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(account).Error; err != nil {
			return err
		}

		if s.db.Dialector.Name() != "sqlite" {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&creditAccountModel{}, "user_id = ? AND currency = ?", userID, currency).Error
			if err != nil {
				return err
			}
		}

		return fn(&sqlTx{db: tx, userID: userID, currency: currency})
	})
}

// sqlTx adapts the transaction handle to store.Tx.
type sqlTx struct {
	db       *gorm.DB
	userID   string
	currency string
}

func (t *sqlTx) GetProduct(_ context.Context, productID id.ProductID) (*catalog.Product, error) {
	return getProduct(t.db, productID)
}

func (t *sqlTx) GetVariant(_ context.Context, variantID id.VariantID) (*catalog.Variant, error) {
	return getVariant(t.db, variantID)
}

func (t *sqlTx) GetTermByMonths(_ context.Context, variantID id.VariantID, months int) (*catalog.Term, error) {
	return getTermByMonths(t.db, variantID, months)
}

func (t *sqlTx) PricesAt(_ context.Context, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error) {
	return pricesAt(t.db, variantID, currency, at)
}

func (t *sqlTx) CountActiveSubscriptions(_ context.Context, userID string, productID id.ProductID, category string) (int, error) {
	return countActiveSubscriptions(t.db, userID, productID, category)
}

func (t *sqlTx) GetOrder(_ context.Context, orderID id.OrderID) (*order.Order, error) {
	return getOrder(t.db, orderID)
}

func (t *sqlTx) GetOrderByIdempotencyKey(_ context.Context, userID, key string) (*order.Order, error) {
	return getOrderByKey(t.db, userID, key)
}

func (t *sqlTx) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return getSubscription(t.db, subID)
}

func (t *sqlTx) Balance(_ context.Context) (int64, error) {
	return creditBalance(t.db, t.userID, t.currency)
}

func (t *sqlTx) AppendEntry(_ context.Context, e *credit.Entry) error {
	return t.db.Create(toCreditEntryModel(e)).Error
}

func (t *sqlTx) CreateOrder(_ context.Context, o *order.Order) error {
	return t.db.Create(toOrderModel(o)).Error
}

func (t *sqlTx) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	return t.db.Create(toSubscriptionModel(sub)).Error
}

func (t *sqlTx) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	return updateSubscription(t.db, sub)
}

func (t *sqlTx) UpdateOrderStatus(_ context.Context, orderID id.OrderID, status order.Status) error {
	return updateOrderStatus(t.db, orderID, status)
}

func applyPage(q *gorm.DB, offset, limit int) *gorm.DB {
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}
