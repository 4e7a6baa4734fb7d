package hooks

import (
	"context"

	"github.com/conduit-lang/revstore/internal/orm/conn"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// Context carries the model and the executor of the write that fired the hook
type Context struct {
	context.Context
	exec  conn.Executor
	model *schema.Model
}

// NewContext creates a hook context
func NewContext(ctx context.Context, exec conn.Executor, model *schema.Model) *Context {
	return &Context{
		Context: ctx,
		exec:    exec,
		model:   model,
	}
}

// Exec returns the executor the write ran on. Hooks issuing their own
// statements through it join the caller's transaction, if any.
func (c *Context) Exec() conn.Executor {
	return c.exec
}

// Model returns the written model
func (c *Context) Model() *schema.Model {
	return c.model
}
