package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/JakeFAU/sitereport/internal/config"
	"github.com/JakeFAU/sitereport/internal/server"
	"github.com/spf13/cobra"
)

var cfgFile string

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// App defines the application surface the commands use. Tests inject a fake.
type App interface {
	Run(ctx context.Context) error
	Migrate(ctx context.Context) error
	SweepTempCarts(ctx context.Context) (int64, error)
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitereport",
		Short: "Turns paid website orders into PDF analysis reports.",
		Long: `sitereport receives order webhooks, scrapes the purchased website,
analyzes it with a language model and delivers a set of PDF reports
through signed download links.`,
		SilenceUsage: true,

		// Loads configuration before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the SITEREPORT_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSweepCmd())

	return cmd
}

// buildApp constructs the application from the config loaded by the root command.
func buildApp(ctx context.Context) (App, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	app, err := newApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return app, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "sitereport: %v\n", err)
		os.Exit(1)
	}
}
