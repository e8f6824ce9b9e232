package db

import (
	"context"
	"fmt"

	"ms-promotion/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema creates the promotion tables from the bun models. Production databases are
// migrated with the SQL files under migrations/; this is used for SQLite and local runs.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.PromotionOrder)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.PromotionOrder)(nil)).
		Index("idx_promotion_orders_session").
		Column("gateway_session_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}
