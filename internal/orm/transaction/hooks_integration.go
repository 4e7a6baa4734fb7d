package transaction

import (
	"context"

	"github.com/conduit-lang/revstore/internal/orm/conn"
	"github.com/conduit-lang/revstore/internal/orm/hooks"
)

// Transactional wraps a hook so that its own statements commit or roll back
// as a unit. When the write that fired the hook already runs in a
// transaction the hook gets a savepoint of it; otherwise m opens a new one.
func Transactional(m *Manager, fn hooks.HookFunc) hooks.HookFunc {
	return func(ctx *hooks.Context, payload *hooks.Payload) error {
		base := ctx.Context
		if tx, ok := ctx.Exec().(*Transaction); ok {
			base = WithContext(base, tx)
		}
		return m.WithTransaction(base, func(txCtx context.Context, exec conn.Executor) error {
			return fn(hooks.NewContext(txCtx, exec, ctx.Model()), payload)
		})
	}
}
