package cache

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/revstore/internal/orm/conn"
	"github.com/conduit-lang/revstore/internal/orm/crud"
	"github.com/conduit-lang/revstore/internal/orm/hooks"
	"github.com/conduit-lang/revstore/internal/orm/query"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

var bookColumns = []string{"book.id", "book.editCommitId", "book.editDate", "book.title", "book.price", "book.published", "book.tagIds"}

func newBook(t *testing.T) *schema.Model {
	t.Helper()

	registry := schema.NewRegistry()
	tag := registry.MustDefine("Tag")
	book := registry.MustDefine("Book")
	book.String("title", 200, false)
	book.Decimal("price", 10, 2, true)
	book.Boolean("published", false)
	book.ForeignKeyArray("tagIds", tag)
	return book
}

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, DefaultConfig())
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func newEntity(m *schema.Model) *schema.Entity {
	e := schema.NewEntity(m)
	e.Values = map[string]any{
		"id":           int64(7),
		"editCommitId": int64(3),
		"editDate":     int64(1700000000000),
		"title":        "Dune",
		"price":        12.5,
		"published":    true,
		"tagIds":       []int64{4, 9},
	}
	return e
}

func TestConnect(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	store, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, store.Close())

	cfg.Addr = "localhost:99999"
	_, err = Connect(context.Background(), cfg)
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Second))
	assert.True(t, mr.Exists("revstore:a"))
	assert.Equal(t, 5*time.Minute, mr.TTL("revstore:a"))

	v, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	mr.FastForward(2 * time.Second)
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Delete(ctx, "a"))
	assert.False(t, mr.Exists("revstore:a"))

	require.NoError(t, mr.Set("revstore:x", "1"))
	require.NoError(t, mr.Set("other:y", "1"))
	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("revstore:x"))
	assert.True(t, mr.Exists("other:y"))
}

func TestEntityCache_RoundTrip(t *testing.T) {
	store, mr := setupStore(t)
	c := NewEntityCache(store, WithTTL(time.Hour))
	book := newBook(t)
	ctx := context.Background()

	_, err := c.Get(ctx, book, 7)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Put(ctx, newEntity(book)))
	assert.True(t, mr.Exists("revstore:entity:Book:7"))
	assert.Equal(t, time.Hour, mr.TTL("revstore:entity:Book:7"))

	got, err := c.Get(ctx, book, 7)
	require.NoError(t, err)
	assert.Equal(t, newEntity(book).Values, got.Values)
	assert.Equal(t, int64(7), got.ID())
}

func TestEntityCache_NullsSurvive(t *testing.T) {
	store, _ := setupStore(t)
	c := NewEntityCache(store)
	book := newBook(t)
	ctx := context.Background()

	e := newEntity(book)
	e.Values["price"] = nil
	e.Values["tagIds"] = []int64{}
	require.NoError(t, c.Put(ctx, e))

	got, err := c.Get(ctx, book, 7)
	require.NoError(t, err)
	assert.Nil(t, got.Values["price"])
	assert.Equal(t, []int64{}, got.Values["tagIds"])
}

func TestEntityCache_Find(t *testing.T) {
	store, _ := setupStore(t)
	c := NewEntityCache(store)
	book := newBook(t)
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("WHERE \\(`Book`.`id` = \\?\\)").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(bookColumns).
			AddRow(int64(7), int64(3), int64(1700000000000), "Dune", "12.50", int64(1), "[4,9]"))

	books := func() *query.Relation { return query.New(book, conn.New(db)) }
	e, err := c.Find(ctx, books, 7)
	require.NoError(t, err)
	assert.Equal(t, "Dune", e.Get("title"))

	again, err := c.Find(ctx, books, 7)
	require.NoError(t, err)
	assert.Equal(t, e.Values, again.Values)

	assert.NoError(t, mock.ExpectationsWereMet(), "the second read must be served from the cache")
}

func TestEntityCache_FindMissing(t *testing.T) {
	store, mr := setupStore(t)
	c := NewEntityCache(store)
	book := newBook(t)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WithArgs(int64(8)).WillReturnRows(sqlmock.NewRows(bookColumns))

	e, err := c.Find(context.Background(), func() *query.Relation { return query.New(book, conn.New(db)) }, 8)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.False(t, mr.Exists("revstore:entity:Book:8"))
}

func TestEntityCache_FindSharedRelation(t *testing.T) {
	store, _ := setupStore(t)
	c := NewEntityCache(store)
	book := newBook(t)
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	published := func() *query.Relation {
		return query.New(book, conn.New(db)).Where("`Book`.`published` = ?", true)
	}
	for _, id := range []int64{7, 8} {
		mock.ExpectQuery("WHERE \\(`Book`.`published` = \\?\\) AND \\(`Book`.`id` = \\?\\) LIMIT 1$").
			WithArgs(true, id).
			WillReturnRows(sqlmock.NewRows(bookColumns).
				AddRow(id, int64(3), int64(1700000000000), "Dune", "12.50", int64(1), "[]"))
	}

	first, err := c.Find(ctx, published, 7)
	require.NoError(t, err)
	second, err := c.Find(ctx, published, 8)
	require.NoError(t, err)

	assert.Equal(t, int64(7), first.ID())
	assert.Equal(t, int64(8), second.ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityCache_InvalidatedByWrites(t *testing.T) {
	store, mr := setupStore(t)
	c := NewEntityCache(store)
	book := newBook(t)
	ctx := context.Background()

	executor := hooks.NewExecutor(nil)
	c.Register(executor)

	require.NoError(t, c.Put(ctx, newEntity(book)))
	require.True(t, mr.Exists("revstore:entity:Book:7"))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(bookColumns).
			AddRow(int64(7), int64(3), int64(1700000000000), "Dune", "12.50", int64(1), "[4,9]"))
	mock.ExpectExec("INSERT INTO `BookRevision`").WillReturnResult(sqlmock.NewResult(40, 1))

	ops := crud.NewOperations(book, conn.New(db), crud.WithHooks(executor))
	_, err = ops.Delete(ctx, []int64{7}, 5)
	require.NoError(t, err)

	assert.False(t, mr.Exists("revstore:entity:Book:7"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityCache_InvalidatorIgnoresCreates(t *testing.T) {
	store, _ := setupStore(t)
	c := NewEntityCache(store)
	book := newBook(t)

	hookCtx := hooks.NewContext(context.Background(), nil, book)
	err := c.Invalidator()(hookCtx, &hooks.Payload{Type: hooks.OnCreate, Records: []map[string]any{{"title": "Dune"}}})
	assert.NoError(t, err)
}
