package cli

import (
	"fmt"

	"github.com/mugisham37/product-management-interview-project/internal/config"
	"github.com/mugisham37/product-management-interview-project/internal/logging"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the productsync command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "productsync",
		Short:         "Product catalogue API with optimistic concurrency",
		Long:          "Serves the product REST API with versioned writes and conflict detection, and runs the client-side sync loop against it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (default $PRODUCT_SYNC_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the configured log level")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// load reads the configuration and builds the logger the command runs with.
func (o *RootOptions) load() (config.Config, *logging.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.LoadFrom(o.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, logging.New(cfg.LogLevel), nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
