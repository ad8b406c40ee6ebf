package concurrency

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/apperror"
	"gorm.io/gorm"
)

// Versioned is implemented by rows guarded with an optimistic version column.
type Versioned interface {
	TableName() string
	EntityName() string
}

// CompareAndSwap applies updates to the row with the given id only when its
// version still equals expected, and bumps the version by exactly one. A write
// matching no row is reported as a ConcurrencyConflict.
func CompareAndSwap(ctx context.Context, tx *gorm.DB, row Versioned, id snowflake.ID, expected int64, updates map[string]any) error {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := tx.WithContext(ctx).
		Table(row.TableName()).
		Where("id = ? AND version = ?", id, expected).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("cas update %s: %w", row.EntityName(), res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.ConcurrencyConflict(row.EntityName(), id.String())
	}
	return nil
}
