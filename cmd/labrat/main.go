package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"labrat/internal/config"
	"labrat/internal/launcher"
	"labrat/internal/logging"
	"labrat/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	homeDir    string

	// Loaded configuration, available to every command after PersistentPreRunE
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command. Running it without arguments performs
// the full launch sequence, which is what a double-clicked shortcut does.
var rootCmd = &cobra.Command{
	Use:   "labrat",
	Short: "labRAT - launcher and operator toolkit for the dual-task labeling experiment",
	Long: `labRAT runs the dual-task audio labeling experiment for a seated labeler
and gives the operator tools to set up and monitor a session.

Run without arguments (or double-click a shortcut) to start a session:
  1. Check that the installed Python matches the required version
  2. Install the experiment's Python dependencies
  3. Start the experiment

The window stays open at the end so the outcome can be read.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
	PersistentPostRun: teardownRuntime,
	RunE:              runLaunch,
}

// launchCmd is the explicit spelling of the default behavior.
var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Run the launch sequence: version gate, dependency install, experiment",
	RunE:  runLaunch,
}

// initRuntime loads configuration and wires up logging before any command runs.
func initRuntime(cmd *cobra.Command, args []string) error {
	// A .env next to the binary can carry LABRAT_* overrides for a lab machine.
	_ = godotenv.Load()

	zapCfg := zap.NewProductionConfig()
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	logger, err = zapCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	if homeDir != "" {
		cfg.Experiment.Home = homeDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.HomeAbs()); err != nil {
		logger.Warn("File logging unavailable", zap.Error(err))
	}
	if err := logging.InitAudit(); err != nil {
		logger.Warn("Audit log unavailable", zap.Error(err))
	}
	return nil
}

func teardownRuntime(cmd *cobra.Command, args []string) {
	logging.CloseAudit()
	logging.CloseAll()
	if logger != nil {
		_ = logger.Sync()
	}
}

// runLaunch performs the guarded launch sequence.
func runLaunch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C ends the experiment process and lets the sequence wind down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	ledger, err := store.NewLedger(cfg.LedgerPath())
	if err != nil {
		// The sequence is more important than its bookkeeping.
		logger.Warn("Launch ledger unavailable", zap.Error(err))
	} else {
		defer ledger.Close()
	}

	l := launcher.New(cfg, launcher.Options{Ledger: ledger})
	return l.Run(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: labrat.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Experiment home directory (default: from config)")

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(randomizeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(guideCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
