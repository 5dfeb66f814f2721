// Stack Daily Login - visits askubuntu, serverfault, stackoverflow and
// gis.stackexchange with a headless browser, logs in where needed, and
// confirms each profile page so the daily access calendar counts the day.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nikshitha/stack-daily-login/config"
	"github.com/nikshitha/stack-daily-login/logger"
	"github.com/spf13/cobra"
)

// options holds the persistent command line flags
type options struct {
	configPath string
	envFile    string
	verbose    bool
	headful    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "stack-daily-login",
		Short:        "Log into the Stack Exchange sites and confirm each profile page",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVisit(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file (optional)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file with STACK_EMAIL, STACK_PASS and STACK_NAME")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.headful, "headful", false, "Show the browser window")

	cmd.AddCommand(visitCmd(opts), daemonCmd(opts), historyCmd(opts), initConfigCmd(opts))
	return cmd
}

func visitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "visit",
		Short: "Visit every site once (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVisit(cmd, opts)
		},
	}
}

func daemonCmd(opts *options) *cobra.Command {
	var schedule string

	c := &cobra.Command{
		Use:   "daemon",
		Short: "Visit every site on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(opts, true)
			if err != nil {
				return err
			}
			defer app.Close()

			if schedule != "" {
				app.config.Schedule.Cron = schedule
			}
			return app.RunScheduled(cmd.Context())
		},
	}

	c.Flags().StringVar(&schedule, "schedule", "", `Cron expression, e.g. "17 9 * * *" (overrides config)`)
	return c
}

func historyCmd(opts *options) *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs, visits and per-site daily streaks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.PrintHistory(cmd.OutOrStdout(), limit)
		},
	}

	c.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs and visits to show")
	return c
}

func initConfigCmd(opts *options) *cobra.Command {
	var force bool

	c := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.configPath)
			}
			if err := config.DefaultConfig().SaveConfig(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", opts.configPath)
			return nil
		},
	}

	c.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return c
}

func runVisit(cmd *cobra.Command, opts *options) error {
	app, err := bootstrap(opts, true)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.RunOnce(cmd.Context())
}

// bootstrap loads the dotenv file, configuration and logger. With
// needCredentials it fails before anything touches the network when any
// credential variable is missing.
func bootstrap(opts *options, needCredentials bool) (*Application, error) {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.headful {
		cfg.Browser.Headless = false
	}

	if needCredentials {
		if err := cfg.RequireCredentials(); err != nil {
			return nil, err
		}
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputFile: cfg.Logging.OutputFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return NewApplication(cfg, log)
}
