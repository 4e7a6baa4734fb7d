// Package crud writes entities as rows of their model's revision table. The
// database trigger derived from the same model keeps the fast table in sync,
// so every write here is a single INSERT.
package crud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/revstore/internal/orm/conn"
	"github.com/conduit-lang/revstore/internal/orm/hooks"
	"github.com/conduit-lang/revstore/internal/orm/query"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// Operation represents a revision write type
type Operation int

const (
	// OperationCreate inserts first revisions
	OperationCreate Operation = iota
	// OperationUpdate inserts revisions merged over the current rows
	OperationUpdate
	// OperationDelete inserts revisions carrying delete markers
	OperationDelete
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

func (o Operation) hookType() hooks.Type {
	switch o {
	case OperationUpdate:
		return hooks.OnUpdate
	case OperationDelete:
		return hooks.OnDelete
	default:
		return hooks.OnCreate
	}
}

// HookExecutor runs the extension points fired after a revision write
type HookExecutor interface {
	ExecuteHooks(ctx context.Context, exec conn.Executor, model *schema.Model, payload *hooks.Payload) error
}

// Operations provides the revision writes of one model
type Operations struct {
	model  *schema.Model
	exec   conn.Executor
	hooks  HookExecutor
	logger *zap.Logger
	now    func() time.Time
}

// Option configures Operations
type Option func(*Operations)

// WithHooks sets the hook executor
func WithHooks(h HookExecutor) Option {
	return func(o *Operations) { o.hooks = h }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Operations) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock used to stamp editDate and deleteDate
func WithClock(now func() time.Time) Option {
	return func(o *Operations) { o.now = now }
}

// NewOperations creates the revision writer of model
func NewOperations(model *schema.Model, exec conn.Executor, opts ...Option) *Operations {
	o := &Operations{
		model:  model,
		exec:   exec,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Model returns the written model
func (o *Operations) Model() *schema.Model {
	return o.model
}

// Executor returns the executor writes run on
func (o *Operations) Executor() conn.Executor {
	return o.exec
}

// WithConnection returns a copy of o writing through exec
func (o *Operations) WithConnection(exec conn.Executor) *Operations {
	c := *o
	c.exec = exec
	return &c
}

// Query starts a relation over the model's fast table on the same executor
func (o *Operations) Query() *query.Relation {
	return query.New(o.model, o.exec)
}

func (o *Operations) nowMillis() int64 {
	return o.now().UnixMilli()
}

// insert writes one revision row per record. With nullID the id column is
// bound to NULL so the trigger allocates a fresh id.
func (o *Operations) insert(ctx context.Context, fields []*schema.Field, records []map[string]any, nullID bool) (schema.RevisionMetadata, error) {
	columns := make([]string, 0, len(fields)+1)
	setters := make([]string, 0, len(fields)+1)
	if nullID {
		columns = append(columns, "`"+schema.FieldID+"`")
		setters = append(setters, "NULL")
	}
	for _, f := range fields {
		columns = append(columns, "`"+f.Name+"`")
		setters = append(setters, f.SQLSetter)
	}
	tuple := "(" + strings.Join(setters, ", ") + ")"

	tuples := make([]string, 0, len(records))
	bindings := make([]any, 0, len(records)*len(fields))
	for _, record := range records {
		for _, f := range fields {
			v, err := f.Serialize(record[f.Name])
			if err != nil {
				return schema.RevisionMetadata{}, fmt.Errorf("%s.%s: %w", o.model.Name, f.Name, err)
			}
			bindings = append(bindings, v)
		}
		tuples = append(tuples, tuple)
	}

	sql := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES %s",
		o.model.RevisionTable(), strings.Join(columns, ", "), strings.Join(tuples, ", "))

	res, err := o.exec.Exec(ctx, sql, bindings)
	if err != nil {
		return schema.RevisionMetadata{}, ConvertDBError(err)
	}
	return schema.RevisionMetadata{InsertRevisionID: res.LastInsertID, AffectedRows: res.RowsAffected}, nil
}

// finish logs the write and fires the hooks of op
func (o *Operations) finish(ctx context.Context, op Operation, commitID int64, meta schema.RevisionMetadata, records []map[string]any) error {
	o.logger.Info("revision write",
		zap.String("model", o.model.Name),
		zap.String("operation", op.String()),
		zap.Int64("insert_revision_id", meta.InsertRevisionID),
		zap.Int64("affected_rows", meta.AffectedRows),
		zap.Int64("commit_id", commitID),
	)

	if o.hooks == nil {
		return nil
	}
	payload := &hooks.Payload{
		Type:     op.hookType(),
		CommitID: commitID,
		Meta:     meta,
		Records:  records,
	}
	if err := o.hooks.ExecuteHooks(ctx, o.exec, o.model, payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func copyRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record)+2)
	for k, v := range record {
		out[k] = v
	}
	return out
}
