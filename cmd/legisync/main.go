package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coolbeans/legisync/pkg/config"
)

var version = "2.3.0"

// errNothingResolved makes the process exit non-zero after a run in which no
// article text could be obtained.
var errNothingResolved = errors.New("no article could be resolved")

// cli holds the state shared by the subcommands of one invocation.
type cli struct {
	configPath   string
	envFile      string
	registryPath string
	trackedPath  string
	environment  string
	historyDB    string
	noFallback   bool
	verbose      bool
	format       string

	logger *zap.Logger
	config *config.Config
	stdout io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	app := &cli{stdout: stdout}

	rootCmd := &cobra.Command{
		Use:   "legisync",
		Short: "Légifrance legal registry synchronizer",
		Long: `legisync keeps the frontend legal registry in line with Légifrance.

It resolves every tracked article of the Code de la consommation, the Code
civil and the Code de procédure civile through the PISTE API, validates the
returned text, and rewrites the registry without ever dropping a valid entry
because of a transient failure.

Credentials are read from LEGIFRANCE_CLIENT_ID and LEGIFRANCE_CLIENT_SECRET
(a .env file in the working directory is honoured).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&app.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	flags.StringVar(&app.registryPath, "registry", "", "registry file (default "+config.DefaultRegistryPath+")")
	flags.StringVar(&app.trackedPath, "tracked", "", "YAML list of tracked articles (default built-in list)")
	flags.StringVar(&app.environment, "env", "", "PISTE environment: prod or sandbox")
	flags.StringVar(&app.historyDB, "history-db", "", "SQLite sync history database (disabled when empty)")
	flags.BoolVar(&app.noFallback, "no-fallback", false, "never scrape the public website")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "debug logging")
	flags.StringVarP(&app.format, "format", "f", "table", "output format: table or json")

	rootCmd.AddCommand(syncCmd(app))
	rootCmd.AddCommand(articleCmd(app))
	rootCmd.AddCommand(statusCmd(app))
	rootCmd.AddCommand(historyCmd(app))
	rootCmd.AddCommand(watchCmd(app))

	return rootCmd
}

// setup builds the logger and the effective configuration.
func (app *cli) setup(cmd *cobra.Command) error {
	loggerConfig := zap.NewProductionConfig()
	if app.verbose {
		loggerConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.logger = logger

	cfg, err := config.Load(config.LoadOptions{ConfigPath: app.configPath, EnvFile: app.envFile})
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(config.Overrides{
		Environment:  app.environment,
		RegistryPath: app.registryPath,
		TrackedPath:  app.trackedPath,
		HistoryDB:    app.historyDB,
		NoFallback:   app.noFallback,
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	app.config = cfg

	logger.Debug("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("registry", cfg.RegistryPath),
		zap.String("history_db", cfg.HistoryDB),
		zap.Bool("fallback", !cfg.Scraper.Disabled))
	return nil
}
