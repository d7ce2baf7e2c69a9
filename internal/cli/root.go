package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpile/internal/config"
	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides store.path when set

	// engineOpts are passed to inventory.Open; tests inject a fake clock here.
	engineOpts []inventory.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stockpile CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockpile",
		Short: "stockpile - transactional inventory store",
		Long: `Operator tooling for a stockpile inventory store.

Records, groups, prices and the audit trail live in a single SQLite file.
Every command opens the store, runs one or more transactions, and closes it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "store file, overrides store.path")

	// Record commands
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewAttrsCommand(opts))
	cmd.AddCommand(NewSetGroupCommand(opts))
	cmd.AddCommand(NewGroupCommand(opts))

	// Pricing, audit, reporting
	cmd.AddCommand(NewPriceCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))

	// Maintenance
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewCredentialCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter builds the OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig resolves configuration and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// withEngine opens the engine, runs fn, and closes the engine.
func withEngine(ctx context.Context, opts *RootOptions, fn func(*inventory.Engine) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	defer func() { _ = log.Sync() }()

	engine, err := inventory.Open(ctx, cfg, log, opts.engineOpts...)
	if err != nil {
		return engineError("failed to open store", err)
	}
	defer engine.Close()

	return fn(engine)
}
