package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/brickdash/internal/agent"
	"github.com/ethpandaops/brickdash/internal/version"
)

var (
	cfgFile  string
	logLevel string
	endpoint string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brickdash",
		Short: "Live brick counter dashboard for a PLC",
		Long: `brickdash polls the brick counter on a PLC status page, corrects
for counter resets, logs every change to a daily CSV file and keeps an
HTML dashboard of the live count and cutting rate up to date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVar(
		&cfgFile, "config", "",
		"path to config file (optional)",
	)
	cmd.Flags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)
	cmd.Flags().StringVar(
		&endpoint, "url", "",
		"override PLC endpoint (takes precedence over "+agent.EnvEndpoint+")",
	)

	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := agent.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file and environment.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if endpoint != "" {
		cfg.PLC.Endpoint = endpoint

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	a, err := agent.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	log.WithField("version", version.Full()).Info("Starting brickdash")

	if err := a.Start(ctx); err != nil {
		if stopErr := a.Stop(); stopErr != nil {
			log.WithError(stopErr).Warn("Cleanup after failed start")
		}

		return fmt.Errorf("starting agent: %w", err)
	}

	log.WithField("dashboard", cfg.Dashboard.Path).Info("Dashboard ready")

	<-ctx.Done()

	log.Info("Shutting down brickdash")

	// A poller that misses the grace period is logged, not fatal, so a
	// signal-driven shutdown still exits 0.
	if err := a.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}

	log.Info("Shutdown complete")

	return nil
}
