package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/app"
	"github.com/JakeFAU/noticewatch/internal/config"
	"github.com/JakeFAU/noticewatch/internal/logging"
	"github.com/JakeFAU/noticewatch/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Runner() pipeline.Runner
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string, opts app.Options) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "noticewatch",
		Short: "Polls notice sources and reports what is new since the last run.",
		Long: `noticewatch fetches configured RSS feeds and HTML listing pages, compares
each notice against the persisted history, and hands the new or changed ones
to a notifier. Run it once from a scheduler with "run", or keep it resident
with "serve".`,
		SilenceUsage: true,

		// Builds the App after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var opts app.Options
			if f := cmd.Flags().Lookup("dry-run"); f != nil {
				opts.DryRun = f.Value.String() == "true"
			}
			appInstance, err := newApp(cmd.Context(), cfgFile, opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); env vars use the NOTICEWATCH_ prefix")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "noticewatch: %v\n", err)
		os.Exit(1)
	}
}

// resolveApp returns the App built by the root command. Callers own closing it.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
