package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/revstore/internal/cli/ui"
	"github.com/conduit-lang/revstore/internal/orm/codegen"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

var (
	generateOutputFlag  string
	generatePackageFlag string
)

// NewGenerateCommand creates the generate command
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"g"},
		Short:   "Generate SQL and Go code from the schema",
		Long: `Generate artifacts derived from the model schema.

Available generators:
  ddl      - revision, fast and join tables, then revision triggers
  triggers - revision triggers only
  rebuild  - statements regenerating fast tables from the revision log
  diagram  - dbdiagram.io table and ref definitions
  structs  - Go structs with CreateBody/UpdateBody helpers`,
		Example: `  revstore generate ddl
  revstore generate triggers Book Author
  revstore g structs --package models -o models/models_gen.go`,
	}

	cmd.PersistentFlags().StringVarP(&generateOutputFlag, "output", "o", "", "Write to a file instead of stdout")

	cmd.AddCommand(newGenerateDDLCommand())
	cmd.AddCommand(newGenerateTriggersCommand())
	cmd.AddCommand(newGenerateRebuildCommand())
	cmd.AddCommand(newGenerateDiagramCommand())
	cmd.AddCommand(newGenerateStructsCommand())

	return cmd
}

// runGenerator loads the schema and writes what render produces
func runGenerator(render func(w io.Writer, registry *schema.Registry, models []*schema.Model) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := loadRegistry(cfg)
		if err != nil {
			return err
		}
		models, err := selectModels(registry, args)
		if err != nil {
			return err
		}

		w, closeFn, err := output(cmd, generateOutputFlag)
		if err != nil {
			return err
		}
		if err := render(w, registry, models); err != nil {
			closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}

		if generateOutputFlag != "" {
			ui.Success(cmd.ErrOrStderr(), fmt.Sprintf("Wrote %s (%d models)", generateOutputFlag, len(models)), noColorFlag)
		}
		return nil
	}
}

func newGenerateDDLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ddl [models...]",
		Short: "Generate tables and triggers",
		Long: `Generate the CREATE TABLE statements of every model, followed by the
revision triggers. Foreign keys are added after every table exists, so
models may reference models declared later in the schema.`,
		RunE: runGenerator(func(w io.Writer, _ *schema.Registry, models []*schema.Model) error {
			gen := codegen.NewDDLGenerator()
			_, err := io.WriteString(w, gen.GenerateModels(models))
			return err
		}),
	}
}

func newGenerateTriggersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "triggers [models...]",
		Short: "Generate revision triggers",
		RunE: runGenerator(func(w io.Writer, _ *schema.Registry, models []*schema.Model) error {
			gen := codegen.NewDDLGenerator()
			parts := make([]string, 0, len(models))
			for _, m := range models {
				parts = append(parts, gen.GenerateTriggers(m))
			}
			_, err := io.WriteString(w, strings.Join(parts, "\n"))
			return err
		}),
	}
}

func newGenerateRebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [models...]",
		Short: "Generate fast table rebuild statements",
		Long: `Generate the statements regenerating fast tables and join tables from
the latest revision of every id, wrapped in foreign key check toggles.
Use 'revstore db rebuild' to run them in a transaction instead.`,
		RunE: runGenerator(func(w io.Writer, _ *schema.Registry, models []*schema.Model) error {
			gen := codegen.NewDDLGenerator()
			parts := []string{codegen.DisableForeignKeyChecks}
			for _, m := range models {
				parts = append(parts, gen.RebuildStatements(m)...)
			}
			parts = append(parts, codegen.EnableForeignKeyChecks)
			_, err := io.WriteString(w, strings.Join(parts, "\n\n")+"\n")
			return err
		}),
	}
}

func newGenerateDiagramCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diagram",
		Short: "Generate a dbdiagram.io definition",
		Args:  cobra.NoArgs,
		RunE: runGenerator(func(w io.Writer, registry *schema.Registry, _ []*schema.Model) error {
			_, err := io.WriteString(w, codegen.GenerateDiagram(registry))
			return err
		}),
	}
}

func newGenerateStructsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "structs",
		Short: "Generate Go structs for every model",
		Args:  cobra.NoArgs,
		RunE: runGenerator(func(w io.Writer, registry *schema.Registry, _ []*schema.Model) error {
			if generatePackageFlag == "" {
				return fmt.Errorf("--package must not be empty")
			}
			if err := codegen.GenerateStructs(registry, generatePackageFlag).Render(w); err != nil {
				return fmt.Errorf("render structs: %w", err)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&generatePackageFlag, "package", "p", "models", "Package name of the generated file")
	return cmd
}
