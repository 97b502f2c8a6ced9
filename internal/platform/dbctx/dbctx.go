// Package dbctx bundles a request context with an optional GORM
// transaction, grounded on the teacher's pkg/dbctx.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction. A nil
// Tx means the repo should fall back to its own *gorm.DB handle.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Background builds a Context with no transaction, for call sites outside a
// request scope (e.g. the persist adapter's restore path).
func Background() Context {
	return Context{Ctx: context.Background()}
}
