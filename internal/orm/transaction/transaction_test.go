package transaction

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/conduit-lang/revstore/internal/orm/conn"
	"github.com/conduit-lang/revstore/internal/orm/hooks"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// setupTestDB creates an in-memory database with a single connection, so
// every statement sees the same schema
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE BookRevision (
			revisionId INTEGER PRIMARY KEY AUTOINCREMENT,
			id INTEGER,
			title TEXT NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("failed to create test table: %v", err)
	}

	return db
}

func countRevisions(t *testing.T, exec conn.Executor) int64 {
	t.Helper()
	rows, err := exec.Query(context.Background(), "SELECT COUNT(*) AS count FROM BookRevision", nil)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	v, _ := rows.Scalar()
	n, _ := schema.AsInt64(v)
	return n
}

func insert(ctx context.Context, exec conn.Executor, title string) error {
	_, err := exec.Exec(ctx, "INSERT INTO BookRevision (id, title) VALUES (NULL, ?)", []any{title})
	return err
}

func TestManager_WithTransaction_Commit(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	err := mgr.WithTransaction(context.Background(), func(ctx context.Context, exec conn.Executor) error {
		if _, ok := FromContext(ctx); !ok {
			t.Error("expected the transaction in the callback context")
		}
		return insert(ctx, exec, "Dune")
	})
	if err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}

	if n := countRevisions(t, mgr.Executor()); n != 1 {
		t.Errorf("expected 1 committed row, got %d", n)
	}
}

func TestManager_WithTransaction_Rollback(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	boom := errors.New("boom")
	err := mgr.WithTransaction(context.Background(), func(ctx context.Context, exec conn.Executor) error {
		if err := insert(ctx, exec, "Dune"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	if n := countRevisions(t, mgr.Executor()); n != 0 {
		t.Errorf("expected rollback, got %d rows", n)
	}
}

func TestManager_WithTransaction_Panic(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		_ = mgr.WithTransaction(context.Background(), func(ctx context.Context, exec conn.Executor) error {
			_ = insert(ctx, exec, "Dune")
			panic("boom")
		})
	}()

	if n := countRevisions(t, mgr.Executor()); n != 0 {
		t.Errorf("expected rollback after panic, got %d rows", n)
	}
}

func TestManager_NestedSavepoint(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	err := mgr.WithTransaction(context.Background(), func(ctx context.Context, exec conn.Executor) error {
		if err := insert(ctx, exec, "kept"); err != nil {
			return err
		}

		inner := mgr.WithTransaction(ctx, func(ctx context.Context, exec conn.Executor) error {
			tx, _ := FromContext(ctx)
			if tx.Level() != 1 {
				t.Errorf("expected a savepoint, got level %d", tx.Level())
			}
			if err := insert(ctx, exec, "discarded"); err != nil {
				return err
			}
			return errors.New("undo")
		})
		if inner == nil {
			t.Error("expected the inner error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer transaction failed: %v", err)
	}

	if n := countRevisions(t, mgr.Executor()); n != 1 {
		t.Errorf("expected only the outer row, got %d", n)
	}
}

func TestTransaction_CommitTwice(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	tx, err := mgr.BeginWithTimeout(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Level() != 0 || tx.IsolationLevel() != RepeatableRead {
		t.Errorf("unexpected level %d / isolation %s", tx.Level(), tx.IsolationLevel())
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if !tx.IsCommitted() {
		t.Error("expected committed")
	}
	if err := tx.Commit(); err == nil {
		t.Error("second commit should fail")
	}
	if err := tx.Rollback(); err == nil {
		t.Error("rollback after commit should fail")
	}
}

func TestTransaction_RollbackIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	tx, err := mgr.BeginWithDeadline(context.Background(), time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("second rollback should be a no-op, got %v", err)
	}
	if !tx.IsRolledBack() {
		t.Error("expected rolled back")
	}
}

func TestIsolationLevel(t *testing.T) {
	tests := []struct {
		level IsolationLevel
		name  string
		sql   sql.IsolationLevel
	}{
		{RepeatableRead, "REPEATABLE READ", sql.LevelRepeatableRead},
		{ReadUncommitted, "READ UNCOMMITTED", sql.LevelReadUncommitted},
		{ReadCommitted, "READ COMMITTED", sql.LevelReadCommitted},
		{Serializable, "SERIALIZABLE", sql.LevelSerializable},
		{IsolationLevel(99), "REPEATABLE READ", sql.LevelRepeatableRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.level.ToSQLOptions().Isolation; got != tt.sql {
				t.Errorf("ToSQLOptions() = %v, want %v", got, tt.sql)
			}
		})
	}
}

func TestExecutorFrom(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	if got := ExecutorFrom(context.Background(), mgr.Executor()); got != mgr.Executor() {
		t.Error("expected the fallback executor")
	}

	tx, err := mgr.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()

	if got := ExecutorFrom(tx.Context(), mgr.Executor()); got != tx {
		t.Error("expected the transaction carried by the context")
	}
}

func TestTransactional(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)
	book := schema.NewModel("Book")

	failing := Transactional(mgr, func(ctx *hooks.Context, payload *hooks.Payload) error {
		if _, ok := ctx.Exec().(*Transaction); !ok {
			t.Error("hook should run on a transaction")
		}
		if err := insert(ctx, ctx.Exec(), "from hook"); err != nil {
			return err
		}
		return errors.New("hook failed")
	})

	executor := hooks.NewExecutor(nil)
	executor.On(hooks.OnCreate, failing)

	err := executor.ExecuteHooks(context.Background(), mgr.Executor(), book, &hooks.Payload{Type: hooks.OnCreate})
	if err == nil {
		t.Fatal("expected the hook error")
	}
	if n := countRevisions(t, mgr.Executor()); n != 0 {
		t.Errorf("hook statements should be rolled back, got %d rows", n)
	}
}
