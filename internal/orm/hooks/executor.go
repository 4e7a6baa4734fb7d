package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/revstore/internal/orm/conn"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// Executor runs the hooks of a registry
type Executor struct {
	registry   *Registry
	asyncQueue *AsyncQueue
	logger     *zap.Logger
}

// NewExecutor creates an executor with an empty registry. asyncQueue may be
// nil when no async hook is registered.
func NewExecutor(asyncQueue *AsyncQueue) *Executor {
	return NewExecutorWithRegistry(NewRegistry(), asyncQueue)
}

// NewExecutorWithRegistry creates an executor over an existing registry
func NewExecutorWithRegistry(registry *Registry, asyncQueue *AsyncQueue) *Executor {
	return &Executor{
		registry:   registry,
		asyncQueue: asyncQueue,
		logger:     zap.NewNop(),
	}
}

// WithLogger sets the logger used for async hook failures
func (e *Executor) WithLogger(logger *zap.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Register registers a hook
func (e *Executor) Register(hookType Type, hook *Hook) {
	e.registry.Register(hookType, hook)
}

// On registers a synchronous hook function
func (e *Executor) On(hookType Type, fn HookFunc) {
	e.Register(hookType, &Hook{Fn: fn})
}

// Registry returns the underlying registry
func (e *Executor) Registry() *Registry {
	return e.registry
}

// ExecuteHooks runs the hooks registered for payload.Type in order.
// Synchronous hooks stop at the first error; async hooks are queued with a
// private copy of the payload and never fail the operation.
func (e *Executor) ExecuteHooks(ctx context.Context, exec conn.Executor, model *schema.Model, payload *Payload) error {
	hooks := e.registry.GetHooks(payload.Type)
	if len(hooks) == 0 {
		return nil
	}

	hookCtx := NewContext(ctx, exec, model)
	for _, hook := range hooks {
		if hook.Async {
			if err := e.enqueueAsyncHook(hookCtx, hook, payload); err != nil {
				e.logger.Warn("failed to enqueue async hook",
					zap.String("hook", payload.Type.String()),
					zap.String("model", model.Name),
					zap.Error(err),
				)
			}
			continue
		}
		if err := hook.Fn(hookCtx, payload); err != nil {
			return fmt.Errorf("hook %s failed: %w", payload.Type, err)
		}
	}
	return nil
}

func (e *Executor) enqueueAsyncHook(hookCtx *Context, hook *Hook, payload *Payload) error {
	if e.asyncQueue == nil {
		return fmt.Errorf("async queue not configured")
	}

	copied := *payload
	copied.Records = make([]map[string]any, len(payload.Records))
	for i, r := range payload.Records {
		copied.Records[i] = deepCopyRecord(r)
	}

	return e.asyncQueue.Enqueue(AsyncTask{
		Name: fmt.Sprintf("%s_%s_hook", hookCtx.model.Name, hook.Type),
		Fn: func(ctx context.Context) error {
			return hook.Fn(NewContext(ctx, hookCtx.exec, hookCtx.model), &copied)
		},
	})
}

func deepCopyRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []int64:
		out := make([]int64, len(val))
		copy(out, val)
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
