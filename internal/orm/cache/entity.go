package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/revstore/internal/orm/hooks"
	"github.com/conduit-lang/revstore/internal/orm/query"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// EntityCache caches the field values of entities. Jointure is never cached.
type EntityCache struct {
	store  *Store
	ttl    time.Duration
	logger *zap.Logger
}

// EntityOption configures an EntityCache
type EntityOption func(*EntityCache)

// WithTTL overrides the store default TTL for entities
func WithTTL(ttl time.Duration) EntityOption {
	return func(c *EntityCache) { c.ttl = ttl }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) EntityOption {
	return func(c *EntityCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewEntityCache creates an entity cache on store
func NewEntityCache(store *Store, opts ...EntityOption) *EntityCache {
	c := &EntityCache{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cachedEntity struct {
	Model  string         `msgpack:"model"`
	Values map[string]any `msgpack:"values"`
}

// Key returns the cache key of an entity
func Key(m *schema.Model, id int64) string {
	return "entity:" + m.Name + ":" + strconv.FormatInt(id, 10)
}

// Get returns the cached entity of m with id, or ErrCacheMiss
func (c *EntityCache) Get(ctx context.Context, m *schema.Model, id int64) (*schema.Entity, error) {
	raw, err := c.store.Get(ctx, Key(m, id))
	if err != nil {
		return nil, err
	}

	var cached cachedEntity
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&cached); err != nil {
		return nil, fmt.Errorf("decode %s: %w", Key(m, id), err)
	}
	if cached.Model != m.Name {
		return nil, fmt.Errorf("decode %s: cached model is %s", Key(m, id), cached.Model)
	}

	e := schema.NewEntity(m)
	for _, f := range m.Fields {
		v, err := restore(f, cached.Values[f.Name])
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", Key(m, id), err)
		}
		e.Values[f.Name] = v
	}
	return e, nil
}

// Put caches the field values of e
func (c *EntityCache) Put(ctx context.Context, e *schema.Entity) error {
	raw, err := msgpack.Marshal(&cachedEntity{Model: e.Model.Name, Values: e.Map()})
	if err != nil {
		return fmt.Errorf("encode %s: %w", Key(e.Model, e.ID()), err)
	}
	return c.store.Set(ctx, Key(e.Model, e.ID()), raw, c.ttl)
}

// Invalidate drops the cached entities of m with the given ids
func (c *EntityCache) Invalidate(ctx context.Context, m *schema.Model, ids ...int64) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = Key(m, id)
	}
	return c.store.Delete(ctx, keys...)
}

// Find reads the entity with id through the cache. On a miss it runs Find
// on a relation built by newRel and caches the result. A nil entity is not
// cached. Relation.Find narrows its receiver, so every call gets a fresh one.
func (c *EntityCache) Find(ctx context.Context, newRel func() *query.Relation, id int64) (*schema.Entity, error) {
	rel := newRel()
	m := rel.Model()

	e, err := c.Get(ctx, m, id)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("entity cache read failed",
			zap.String("model", m.Name),
			zap.Int64("id", id),
			zap.Error(err),
		)
	}

	e, err = rel.Find(ctx, id)
	if err != nil || e == nil {
		return e, err
	}
	if err := c.Put(ctx, e); err != nil {
		c.logger.Warn("entity cache write failed",
			zap.String("model", m.Name),
			zap.Int64("id", id),
			zap.Error(err),
		)
	}
	return e, nil
}

// Invalidator returns the hook dropping the written ids of the hook's model
func (c *EntityCache) Invalidator() hooks.HookFunc {
	return func(ctx *hooks.Context, payload *hooks.Payload) error {
		ids := payload.IDs()
		if len(ids) == 0 {
			return nil
		}
		if err := c.Invalidate(ctx, ctx.Model(), ids...); err != nil {
			return fmt.Errorf("invalidate %s: %w", ctx.Model().Name, err)
		}
		return nil
	}
}

// Register installs the invalidator for updates and deletes on h
func (c *EntityCache) Register(h *hooks.Executor) {
	h.On(hooks.OnUpdate, c.Invalidator())
	h.On(hooks.OnDelete, c.Invalidator())
}

// restore brings a loosely decoded value back to the type rows deserialize to
func restore(f *schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case schema.KindInteger, schema.KindForeignKey, schema.KindDatetime:
		n, ok := schema.AsInt64(v)
		if !ok {
			return nil, fmt.Errorf("%s: expected integer, got %T", f.Name, v)
		}
		return n, nil
	case schema.KindDecimal:
		n, ok := schema.AsFloat64(v)
		if !ok {
			return nil, fmt.Errorf("%s: expected number, got %T", f.Name, v)
		}
		return n, nil
	case schema.KindForeignKeyArray:
		return schema.AsInt64Slice(v)
	}
	return v, nil
}
