// Package sqlite opens a SQLite-backed Store, useful for single-node
// deployments and integration tests against real SQL.
package sqlite

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	sqlstore "github.com/xraph/storefront/store/sql"
)

// Open opens or creates the SQLite database at path. Use ":memory:" for
// an ephemeral database.
func Open(path string) (*sqlstore.Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("storefront/sqlite: open: %w", err)
	}
	return sqlstore.New(db), nil
}

// New wraps an already-open GORM handle.
func New(db *gorm.DB) *sqlstore.Store {
	return sqlstore.New(db)
}
