package transaction

import (
	"context"

	"github.com/conduit-lang/revstore/internal/orm/conn"
)

type contextKey string

const contextKeyTransaction contextKey = "revstore:transaction"

// FromContext retrieves the transaction carried by ctx
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(contextKeyTransaction).(*Transaction)
	return tx, ok
}

// WithContext returns a context carrying tx
func WithContext(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, contextKeyTransaction, tx)
}

// ExecutorFrom returns the transaction carried by ctx, or fallback
func ExecutorFrom(ctx context.Context, fallback conn.Executor) conn.Executor {
	if tx, ok := FromContext(ctx); ok {
		return tx
	}
	return fallback
}
