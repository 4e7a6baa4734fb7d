package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/revstore/internal/cli/config"
	"github.com/conduit-lang/revstore/internal/cli/ui"
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

func loadConfig() (*config.Config, error) {
	return config.Load(configFlag)
}

// loadRegistry reads the schema named by --schema, or by schema.path
// relative to the config file
func loadRegistry(cfg *config.Config) (*schema.Registry, error) {
	path := schemaFlag
	if path == "" {
		path = config.SchemaPath(cfg, configFlag)
	}
	registry, err := schema.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return registry, nil
}

// selectModels returns the named models, or every model when names is empty
func selectModels(registry *schema.Registry, names []string) ([]*schema.Model, error) {
	if len(names) == 0 {
		return registry.All(), nil
	}
	models := make([]*schema.Model, 0, len(names))
	for _, name := range names {
		m, ok := registry.Get(name)
		if !ok {
			return nil, &ui.UnknownModelError{Name: name, Suggestions: ui.Suggest(name, registry.List(), 3)}
		}
		models = append(models, m)
	}
	return models, nil
}

// output returns the command's stdout, or the file named by path
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
