package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/revstore/internal/cli/config"
	"github.com/conduit-lang/revstore/internal/cli/ui"
	"github.com/conduit-lang/revstore/internal/logging"
	"github.com/conduit-lang/revstore/internal/orm/cache"
	"github.com/conduit-lang/revstore/internal/orm/projection"
	"github.com/conduit-lang/revstore/internal/orm/schema"
	"github.com/conduit-lang/revstore/internal/orm/transaction"
)

// openDB opens the configured database; tests replace it
var openDB = func(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	return db, nil
}

// connectCache opens the entity cache store; tests replace it
var connectCache = func(ctx context.Context, cfg config.RedisConfig) (*cache.Store, error) {
	return cache.Connect(ctx, cfg.CacheConfig())
}

var dbStrictFlag bool

// NewDBCommand creates the db command
func NewDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Fast table maintenance",
		Long: `Maintain fast tables against the revision log.

Fast tables are a projection of the revision log. When a trigger was missing
or rows were edited by hand, rebuild regenerates them from the latest
revision of every id; verify reports models whose row counts disagree.`,
		Example: `  # Rebuild every model
  revstore db rebuild

  # Rebuild selected models
  revstore db rebuild Book Author

  # Fail when any model drifted
  revstore db verify --strict`,
	}

	cmd.AddCommand(newDBRebuildCommand())
	cmd.AddCommand(newDBVerifyCommand())

	return cmd
}

// session is the state shared by the db subcommands
type session struct {
	cfg      *config.Config
	registry *schema.Registry
	logger   *zap.Logger
	db       *sql.DB
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	db, err := openDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &session{cfg: cfg, registry: registry, logger: logger, db: db}, nil
}

func (s *session) Close() {
	_ = s.logger.Sync()
	s.db.Close()
}

// rebuilder wires a projection rebuilder to the session database
func (s *session) rebuilder() *projection.Rebuilder {
	manager := transaction.NewManager(s.db, s.logger)
	return projection.NewRebuilder(s.registry, manager, projection.WithLogger(s.logger))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newDBRebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [models...]",
		Short: "Regenerate fast tables from the revision log",
		Long: `Regenerate the fast table and join tables of the selected models, or of
every model, in one transaction with foreign key checks disabled. When the
entity cache is enabled it is cleared afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.rebuilder().Rebuild(ctx, args...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := ui.NewTable(out, noColorFlag, "Model", "Rows", "Statements", "Duration")
			for _, m := range report.Models {
				table.AddRow(m.Model, strconv.FormatInt(m.Rows, 10), strconv.Itoa(m.Statements), m.Duration.String())
			}
			table.Render()

			if s.cfg.Redis.Enabled {
				store, err := connectCache(ctx, s.cfg.Redis)
				if err != nil {
					return fmt.Errorf("rebuilt, but the entity cache was not cleared: %w", err)
				}
				defer store.Close()
				if err := store.Clear(ctx); err != nil {
					return fmt.Errorf("rebuilt, but the entity cache was not cleared: %w", err)
				}
			}

			ui.Success(out, fmt.Sprintf("Rebuilt %d models (run %s)", len(report.Models), report.RunID), noColorFlag)
			return nil
		},
	}
}

func newDBVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [models...]",
		Short: "Compare fast tables with the revision log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			counts, err := s.rebuilder().Verify(ctx, args...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := ui.NewTable(out, noColorFlag, "Model", "Fast", "Live", "Status")
			drifted := 0
			for _, c := range counts {
				status := "ok"
				if c.Drifted() {
					status = "drift"
					drifted++
				}
				table.AddRow(c.Model, strconv.FormatInt(c.Fast, 10), strconv.FormatInt(c.Live, 10), status)
			}
			table.Render()

			if drifted == 0 {
				ui.Success(out, fmt.Sprintf("%d models in sync", len(counts)), noColorFlag)
				return nil
			}
			ui.Warning(out, fmt.Sprintf("%d of %d models drifted, run 'revstore db rebuild'", drifted, len(counts)), noColorFlag)
			if dbStrictFlag {
				return fmt.Errorf("%d models drifted", drifted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dbStrictFlag, "strict", false, "Exit with an error when any model drifted")
	return cmd
}
