// Package conn adapts database/sql handles to the execution capability used
// by the query builder and the revision writer: run a statement with ordered
// bindings and get back named rows or an insert result.
package conn

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Executor runs parameterized statements
type Executor interface {
	Query(ctx context.Context, query string, args []any) (*Rows, error)
	Exec(ctx context.Context, query string, args []any) (Result, error)
}

// ExecQuerier is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Result describes the effect of an INSERT/UPDATE/DELETE
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Conn is the Executor backed by a database/sql handle
type Conn struct {
	db     ExecQuerier
	logger *zap.Logger
}

// Option configures a Conn
type Option func(*Conn)

// WithLogger sets the statement logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New wraps db
func New(db ExecQuerier, opts ...Option) *Conn {
	c := &Conn{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind returns a Conn sharing the logger but executing on db, typically a *sql.Tx
func (c *Conn) Bind(db ExecQuerier) *Conn {
	return &Conn{db: db, logger: c.logger}
}

// Query runs a SELECT and buffers every row
func (c *Conn) Query(ctx context.Context, query string, args []any) (*Rows, error) {
	start := time.Now()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.fail(query, args, err)
	}
	defer rows.Close()

	result, err := collect(rows)
	if err != nil {
		return nil, c.fail(query, args, err)
	}

	c.logger.Debug("query",
		zap.String("sql", query),
		zap.Any("bindings", args),
		zap.Int("rows", len(result.Values)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// Exec runs a statement that returns no rows
func (c *Conn) Exec(ctx context.Context, query string, args []any) (Result, error) {
	start := time.Now()

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, c.fail(query, args, err)
	}

	var out Result
	if out.LastInsertID, err = res.LastInsertId(); err != nil {
		return Result{}, c.fail(query, args, err)
	}
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return Result{}, c.fail(query, args, err)
	}

	c.logger.Debug("exec",
		zap.String("sql", query),
		zap.Any("bindings", args),
		zap.Int64("last_insert_id", out.LastInsertID),
		zap.Int64("rows_affected", out.RowsAffected),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (c *Conn) fail(query string, args []any, err error) error {
	c.logger.Error("statement failed",
		zap.String("sql", query),
		zap.Any("bindings", args),
		zap.Error(err),
	)
	return &ExecutionError{SQL: query, Bindings: args, Err: err}
}

func collect(rows *sql.Rows) (*Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	kinds := columnKinds(rows, len(columns))

	result := &Rows{Columns: columns, Values: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v, kinds[i])
		}
		result.Values = append(result.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// columnKinds returns the upper-cased database type of each column. Drivers
// that do not expose column metadata (or panic on it) yield empty kinds.
func columnKinds(rows *sql.Rows, n int) (kinds []string) {
	kinds = make([]string, n)
	defer func() {
		if recover() != nil {
			kinds = make([]string, n)
		}
	}()

	types, err := rows.ColumnTypes()
	if err != nil {
		return kinds
	}
	for i, ct := range types {
		if i < n {
			kinds[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}
	return kinds
}

// normalize turns driver byte slices into Go scalars. Integer and float
// columns become int64/float64; DECIMAL and text stay strings.
func normalize(v any, kind string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)

	switch kind {
	case "INT", "INTEGER", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT", "YEAR",
		"UNSIGNED INT", "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED BIGINT":
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case "FLOAT", "DOUBLE", "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
