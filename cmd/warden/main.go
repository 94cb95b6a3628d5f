package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"warden/internal/artifact"
	"warden/internal/config"
	"warden/internal/logging"
	"warden/internal/store"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	projectID   string
	policyPath  string
	artifactDir string
	outPath     string

	// Logger
	logger *zap.Logger

	// Loaded configuration
	cfg *config.Config

	// exitCode carries the severity mapping out of RunE: 0 stable,
	// 1 volatile, 2 critical. Fatal errors exit 2 from main.
	exitCode int
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "warden - Policy Governance Engine for autonomous coding agents",
	Long: `warden governs the actions an autonomous coding agent wants to take
(run a shell command, write a file, start a session) and continuously audits
the health of that governance: rule evaluation with trace capture, drift
detection, policy inference, rule-change review, counterfactual replay,
Monte Carlo futures forecasting, federated policy health, a risk-scoring
autopilot, and a remediation-runbook generator.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if projectID != "" {
			cfg.ProjectID = projectID
		}
		if policyPath != "" {
			cfg.PolicyPath = policyPath
		}
		if artifactDir != "" {
			cfg.ArtifactDir = artifactDir
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := logging.Initialize(cfg.Logging.Dir, verbose || cfg.Logging.Debug, cfg.Logging.Level); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "warden.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", "", "Project identifier (overrides config)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Policy document path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&artifactDir, "artifacts", "", "Artifact root directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&outPath, "out", "o", "", "Also write the result to this path")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(forecastCmd)
	rootCmd.AddCommand(federateCmd)
	rootCmd.AddCommand(autopilotCmd)
	rootCmd.AddCommand(runbookCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}

// artifacts returns the artifact store rooted at the configured directory.
func artifacts() *artifact.Store {
	return artifact.NewStore(cfg.ArtifactDir)
}

// openTraceStore opens the SQLite trace archive.
func openTraceStore() (*store.TraceStore, error) {
	return store.Open(cfg.Store.DatabasePath)
}
