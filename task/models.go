// Package task defines administrative follow-up tasks raised by the
// catalog hygiene monitor when data is incomplete.
package task

import (
	"time"

	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/types"
)

// Category classifies a hygiene finding.
type Category string

const (
	CategoryMissingPrice    Category = "catalog_missing_price"
	CategoryMissingPlanCode Category = "catalog_missing_plan_code"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// Task is one administrative follow-up. The DedupeKey is unique among
// currently-open tasks: repeated sightings of the same gap never create
// a second task while the first remains open.
type Task struct {
	types.Entity
	ID          id.TaskID  `json:"id"`
	Category    Category   `json:"category"`
	DedupeKey   string     `json:"dedupe_key"`
	Notes       string     `json:"notes"`
	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
