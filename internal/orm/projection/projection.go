// Package projection rebuilds fast tables from their revision log and checks
// that the two agree.
package projection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/revstore/internal/orm/codegen"
	"github.com/conduit-lang/revstore/internal/orm/conn"
	"github.com/conduit-lang/revstore/internal/orm/query"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// TxRunner runs fn inside one transaction, bound to exec
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, exec conn.Executor) error) error
	Executor() conn.Executor
}

// ModelReport describes the rebuild of one model
type ModelReport struct {
	Model      string
	Statements int
	Rows       int64
	Duration   time.Duration
}

// Report describes one rebuild run
type Report struct {
	RunID  uuid.UUID
	Models []ModelReport
}

// ModelCount compares the fast table of a model with its revision log
type ModelCount struct {
	Model string
	Fast  int64
	Live  int64
}

// Drifted reports whether the fast table disagrees with the log
func (c ModelCount) Drifted() bool {
	return c.Fast != c.Live
}

// Rebuilder regenerates projections of the models of a registry
type Rebuilder struct {
	registry    *schema.Registry
	runner      TxRunner
	gen         *codegen.DDLGenerator
	logger      *zap.Logger
	concurrency int
	newRunID    func() uuid.UUID
}

// Option configures a Rebuilder
type Option func(*Rebuilder)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Rebuilder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConcurrency bounds the number of models Verify checks at once
func WithConcurrency(n int) Option {
	return func(r *Rebuilder) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRunID overrides the run id generator
func WithRunID(fn func() uuid.UUID) Option {
	return func(r *Rebuilder) { r.newRunID = fn }
}

// NewRebuilder creates a rebuilder over registry
func NewRebuilder(registry *schema.Registry, runner TxRunner, opts ...Option) *Rebuilder {
	r := &Rebuilder{
		registry:    registry,
		runner:      runner,
		gen:         codegen.NewDDLGenerator(),
		logger:      zap.NewNop(),
		concurrency: 4,
		newRunID:    uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rebuild regenerates the fast table and join tables of the named models, or
// of every registered model when names is empty. All models are rebuilt in a
// single transaction with foreign key checks disabled; checks are enabled
// again before the transaction ends, whatever the outcome.
func (r *Rebuilder) Rebuild(ctx context.Context, names ...string) (*Report, error) {
	models, err := r.models(names)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: r.newRunID()}
	log := r.logger.With(zap.String("run_id", report.RunID.String()))
	log.Info("projection rebuild started", zap.Int("models", len(models)))

	err = r.runner.WithTransaction(ctx, func(ctx context.Context, exec conn.Executor) (err error) {
		if _, err := exec.Exec(ctx, codegen.DisableForeignKeyChecks, nil); err != nil {
			return fmt.Errorf("disable foreign key checks: %w", err)
		}
		defer func() {
			if _, enableErr := exec.Exec(ctx, codegen.EnableForeignKeyChecks, nil); enableErr != nil && err == nil {
				err = fmt.Errorf("enable foreign key checks: %w", enableErr)
			}
		}()

		for _, m := range models {
			mr, err := r.rebuildModel(ctx, exec, m)
			if err != nil {
				return err
			}
			log.Info("projection rebuilt",
				zap.String("model", mr.Model),
				zap.Int64("rows", mr.Rows),
				zap.Duration("duration", mr.Duration),
			)
			report.Models = append(report.Models, mr)
		}
		return nil
	})
	if err != nil {
		log.Error("projection rebuild failed", zap.Error(err))
		return nil, err
	}

	log.Info("projection rebuild finished")
	return report, nil
}

func (r *Rebuilder) rebuildModel(ctx context.Context, exec conn.Executor, m *schema.Model) (ModelReport, error) {
	start := time.Now()
	stmts := r.gen.RebuildStatements(m)
	fastInsert := "INSERT INTO " + codegen.QuoteIdentifier(m.Table()) + " ("

	mr := ModelReport{Model: m.Name, Statements: len(stmts)}
	for _, stmt := range stmts {
		res, err := exec.Exec(ctx, stmt, nil)
		if err != nil {
			return ModelReport{}, fmt.Errorf("rebuild %s: %w", m.Name, err)
		}
		if strings.HasPrefix(stmt, fastInsert) {
			mr.Rows = res.RowsAffected
		}
	}
	mr.Duration = time.Since(start)
	return mr, nil
}

// Verify compares, for the named models or every registered model, the fast
// table row count with the number of live ids in the revision log. Models
// are checked concurrently; results follow registry order.
func (r *Rebuilder) Verify(ctx context.Context, names ...string) ([]ModelCount, error) {
	models, err := r.models(names)
	if err != nil {
		return nil, err
	}

	exec := r.runner.Executor()
	counts := make([]ModelCount, len(models))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, m := range models {
		g.Go(func() error {
			fast, err := query.New(m, exec).Count(ctx)
			if err != nil {
				return fmt.Errorf("count %s: %w", m.Table(), err)
			}

			rows, err := exec.Query(ctx, codegen.LiveCountStatement(m), nil)
			if err != nil {
				return fmt.Errorf("count %s: %w", m.RevisionTable(), err)
			}
			v, _ := rows.Scalar()
			live, ok := schema.AsInt64(v)
			if !ok {
				return fmt.Errorf("count %s: unexpected value %v", m.RevisionTable(), v)
			}

			counts[i] = ModelCount{Model: m.Name, Fast: fast, Live: live}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range counts {
		if c.Drifted() {
			r.logger.Warn("projection drift",
				zap.String("model", c.Model),
				zap.Int64("fast", c.Fast),
				zap.Int64("live", c.Live),
			)
		}
	}
	return counts, nil
}

func (r *Rebuilder) models(names []string) ([]*schema.Model, error) {
	if len(names) == 0 {
		return r.registry.All(), nil
	}
	models := make([]*schema.Model, 0, len(names))
	for _, name := range names {
		m, ok := r.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown model %q", name)
		}
		models = append(models, m)
	}
	return models, nil
}
