// Command tilecache drives the tile cache from the command line: it runs
// synthetic workloads against it and manages its configuration file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/objectfs/tilecache/internal/config"
	"github.com/objectfs/tilecache/internal/logger"
)

type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v: error: %v\n", root.CommandPath(), err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "tilecache {[flags]|SUBCOMMAND}",
		Short: "Exercise and configure the hybrid memory/disk tile cache",

		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},

		SilenceErrors: true, // main() reports the error after ExecuteContext returns
		SilenceUsage:  true,

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "load settings from the YAML file `path`")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "override the log format (console, json)")
	if err := root.MarkPersistentFlagFilename("config", "yaml", "yml"); err != nil {
		panic(err)
	}

	root.AddCommand(newSoakCommand(flags))
	root.AddCommand(newConfigCommand(flags))
	return root
}

// load builds the effective configuration: defaults, then the config file,
// then the environment, then command line overrides.
func (f *globalFlags) load() (*config.Configuration, error) {
	cfg := config.NewDefault()
	if f.configFile != "" {
		if err := cfg.LoadFromFile(f.configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Global.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Global.LogFormat = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *globalFlags) newLogger(cfg *config.Configuration) (*zap.Logger, error) {
	return logger.New(cfg.Global.LogLevel, cfg.Global.LogFormat)
}
