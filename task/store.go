package task

import (
	"context"

	"github.com/xraph/storefront/id"
)

// Store is the admin task persistence contract.
type Store interface {
	// CreateIfAbsent creates the task unless another task with the same
	// dedupe key is currently open. It reports whether a task was
	// created.
	CreateIfAbsent(ctx context.Context, t *Task) (bool, error)
	Get(ctx context.Context, taskID id.TaskID) (*Task, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]*Task, error)
	Complete(ctx context.Context, taskID id.TaskID) error
}

// ListOpts filters task listing.
type ListOpts struct {
	Category Category
	Limit    int
	Offset   int
}
