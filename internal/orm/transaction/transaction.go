// Package transaction scopes revision writes and queries inside database
// transactions. A Transaction is itself a conn.Executor, so it can be handed
// to query.Relation.WithConnection or crud.Operations.WithConnection.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/conduit-lang/revstore/internal/orm/conn"
)

var (
	// ErrTransactionTimeout is returned when a transaction times out
	ErrTransactionTimeout = errors.New("transaction timeout")
	// ErrNestedTransactionNotSupported is returned when nesting without an open transaction
	ErrNestedTransactionNotSupported = errors.New("nested transactions require an existing transaction")
)

// savepointCounter provides unique savepoint names across all transactions
var savepointCounter atomic.Uint64

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// RepeatableRead is the InnoDB default
	RepeatableRead IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// Serializable provides full isolation
	Serializable
)

// String returns the SQL name of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "REPEATABLE READ"
	}
}

// ToSQLOptions converts the level to sql.TxOptions
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	var level sql.IsolationLevel
	switch l {
	case ReadUncommitted:
		level = sql.LevelReadUncommitted
	case ReadCommitted:
		level = sql.LevelReadCommitted
	case Serializable:
		level = sql.LevelSerializable
	default:
		level = sql.LevelRepeatableRead
	}
	return &sql.TxOptions{Isolation: level}
}

// Transaction is an open database transaction, possibly a savepoint nested
// in another one
type Transaction struct {
	tx             *sql.Tx
	exec           *conn.Conn
	ctx            context.Context
	level          int
	savepointName  string
	committed      atomic.Bool
	rolledBack     atomic.Bool
	isolationLevel IsolationLevel
	cancelFunc     context.CancelFunc
}

// Manager opens transactions on a database
type Manager struct {
	db   *sql.DB
	base *conn.Conn
}

// NewManager creates a manager. Statements run inside its transactions are
// logged with logger, which may be nil.
func NewManager(db *sql.DB, logger *zap.Logger) *Manager {
	return &Manager{db: db, base: conn.New(db, conn.WithLogger(logger))}
}

// Executor returns the non-transactional executor of the manager
func (m *Manager) Executor() conn.Executor {
	return m.base
}

// Begin starts a transaction with the default isolation level
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	return m.BeginWithIsolation(ctx, RepeatableRead)
}

// BeginWithIsolation starts a transaction with the given isolation level
func (m *Manager) BeginWithIsolation(ctx context.Context, level IsolationLevel) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, level.ToSQLOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &Transaction{
		tx:             tx,
		exec:           m.base.Bind(tx),
		ctx:            ctx,
		isolationLevel: level,
	}, nil
}

// WithTransaction runs fn inside a transaction, committing when fn returns
// nil and rolling back otherwise. When ctx already carries a transaction, fn
// runs inside a savepoint of it instead.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context, exec conn.Executor) error) error {
	return m.WithTransactionIsolation(ctx, RepeatableRead, fn)
}

// WithTransactionIsolation is WithTransaction with an explicit isolation level
func (m *Manager) WithTransactionIsolation(ctx context.Context, level IsolationLevel, fn func(ctx context.Context, exec conn.Executor) error) error {
	var (
		tx  *Transaction
		err error
	)
	if parent, ok := FromContext(ctx); ok {
		tx, err = parent.BeginNested(ctx)
	} else {
		tx, err = m.BeginWithIsolation(ctx, level)
	}
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Context returns a context carrying the transaction
func (t *Transaction) Context() context.Context {
	return WithContext(t.ctx, t)
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// Level returns the nesting level, 0 for a top-level transaction
func (t *Transaction) Level() int {
	return t.level
}

// IsolationLevel returns the isolation level of the transaction
func (t *Transaction) IsolationLevel() IsolationLevel {
	return t.isolationLevel
}

// Query implements conn.Executor
func (t *Transaction) Query(ctx context.Context, query string, args []any) (*conn.Rows, error) {
	return t.exec.Query(ctx, query, args)
}

// Exec implements conn.Executor
func (t *Transaction) Exec(ctx context.Context, query string, args []any) (conn.Result, error) {
	return t.exec.Exec(ctx, query, args)
}

// Commit commits the transaction, or releases the savepoint of a nested one
func (t *Transaction) Commit() error {
	if t.cancelFunc != nil {
		defer t.cancelFunc()
	}

	if t.committed.Load() {
		return errors.New("transaction already committed")
	}
	if t.rolledBack.Load() {
		return errors.New("transaction already rolled back")
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(t.ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", t.savepointName)); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		t.committed.Store(true)
		return nil
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.committed.Store(true)
	return nil
}

// Rollback rolls back the transaction, or to the savepoint of a nested one.
// Rolling back twice is a no-op.
func (t *Transaction) Rollback() error {
	if t.cancelFunc != nil {
		defer t.cancelFunc()
	}

	if t.committed.Load() {
		return errors.New("transaction already committed")
	}
	if t.rolledBack.Load() {
		return nil
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(t.ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", t.savepointName)); err != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w", err)
		}
		t.rolledBack.Store(true)
		return nil
	}

	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	t.rolledBack.Store(true)
	return nil
}

// BeginNested opens a savepoint inside t
func (t *Transaction) BeginNested(ctx context.Context) (*Transaction, error) {
	if t.tx == nil {
		return nil, ErrNestedTransactionNotSupported
	}

	name := fmt.Sprintf("sp_%d_%d", savepointCounter.Add(1), t.level+1)
	if _, err := t.tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", name)); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	return &Transaction{
		tx:             t.tx,
		exec:           t.exec,
		ctx:            ctx,
		level:          t.level + 1,
		savepointName:  name,
		isolationLevel: t.isolationLevel,
	}, nil
}

// IsCommitted reports whether Commit succeeded
func (t *Transaction) IsCommitted() bool {
	return t.committed.Load()
}

// IsRolledBack reports whether Rollback succeeded
func (t *Transaction) IsRolledBack() bool {
	return t.rolledBack.Load()
}
