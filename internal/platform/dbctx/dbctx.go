package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos and aggregates fall back to their base connection when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
