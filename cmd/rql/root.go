package main

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/config"
)

// rootOptions holds global flags and the state built from them before a
// subcommand runs.
type rootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	config *config.Config
	logger zerolog.Logger
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "rql",
		Short:         "Resource Query Language tool",
		Long:          "Parse, normalize and execute RQL queries against JSON or YAML collections.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			level := zerolog.InfoLevel
			if opts.Verbose {
				level = zerolog.DebugLevel
			}
			opts.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}).
				Level(level).With().Timestamp().Logger()

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.config = cfg
			opts.logger.Debug().
				Str("primaryKey", cfg.PrimaryKey).
				Bool("compatible", cfg.Compatible).
				Int("hardLimit", cfg.HardLimit).
				Int("maxIterations", cfg.MaxIterations).
				Msg("loaded config")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newParseCommand(opts))
	cmd.AddCommand(newNormalizeCommand(opts))
	cmd.AddCommand(newExecCommand(opts))
	cmd.AddCommand(newOperatorsCommand(opts))
	cmd.AddCommand(newConvertersCommand(opts))

	return cmd
}
