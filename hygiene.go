package storefront

import (
	"context"
	"fmt"

	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/task"
	"github.com/xraph/storefront/types"
)

const (
	hygieneMissingPrice    = task.CategoryMissingPrice
	hygieneMissingPlanCode = task.CategoryMissingPlanCode
)

// hygieneDedupeKey identifies one defect instance. Reusing the same key
// while an earlier task for the defect is still open suppresses the
// duplicate.
func hygieneDedupeKey(category task.Category, productID id.ProductID, variantID id.VariantID) string {
	return fmt.Sprintf("%s:%s:%s", category, productID, variantID)
}

// reportHygiene opens an admin task for a catalog defect found during
// listing. Hygiene reporting is best effort: a storage failure here is
// logged and never propagates into the customer-facing call.
func (e *Engine) reportHygiene(ctx context.Context, product *catalog.Product, variant *catalog.Variant, category task.Category) {
	t := &task.Task{
		Entity:    types.NewEntity(),
		ID:        id.NewTaskID(),
		Category:  category,
		DedupeKey: hygieneDedupeKey(category, product.ID, variant.ID),
		Status:    task.StatusOpen,
		Notes: fmt.Sprintf("product %q (%s) variant %q (%s): %s",
			product.Name, product.ID, variant.Name, variant.ID, category),
	}

	created, err := e.store.CreateTaskIfAbsent(ctx, t)
	if err != nil {
		e.logger.Error("hygiene task creation failed",
			"category", string(category),
			"dedupe_key", t.DedupeKey,
			"error", err,
		)
		return
	}
	if !created {
		return
	}

	e.logger.Warn("catalog hygiene defect",
		"category", string(category),
		"product_id", product.ID.String(),
		"variant_id", variant.ID.String(),
	)
	e.plugins.EmitHygieneTaskOpened(ctx, t)
}

// ListOpenTasks returns the outstanding admin tasks.
func (e *Engine) ListOpenTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	return e.store.ListOpenTasks(ctx, opts)
}

// GetTask fetches a single admin task.
func (e *Engine) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return e.store.GetTask(ctx, taskID)
}

// CompleteTask marks a task done. Once completed it no longer suppresses
// new tasks for the same defect, so a recurring defect reopens.
func (e *Engine) CompleteTask(ctx context.Context, taskID id.TaskID) error {
	if err := e.store.CompleteTask(ctx, taskID); err != nil {
		return err
	}
	e.logger.Info("admin task completed", "task_id", taskID.String())
	return nil
}
