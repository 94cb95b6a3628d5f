package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warden/internal/artifact"
	"warden/internal/counterfactual"
	"warden/internal/federated"
	"warden/internal/futures"
)

var (
	alternatePolicyPath string

	forecastIterations int
	forecastSeed       int64

	snapshotsDir     string
	clusterThreshold float64
	outlierThreshold float64
)

// simulateCmd replays the trace history under an alternate policy.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay trace history under an alternate policy",
	Long: `Re-evaluates every archived action under an alternate policy document and
classifies each transition as same, stronger, or weaker.

Example:
  warden simulate --alternate policy-proposed.json`,
	RunE: runSimulate,
}

// forecastCmd runs the Monte Carlo futures forecast.
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast policy futures with seeded Monte Carlo simulation",
	RunE:  runForecast,
}

// federateCmd analyzes policy health across a federation of projects.
var federateCmd = &cobra.Command{
	Use:   "federate",
	Short: "Analyze policy similarity and health across projects",
	Long: `Reads one snapshot JSON file per project from the snapshots directory and
computes pairwise similarity, clusters, outliers, consensus rules, the
influence graph, and the system stability score.`,
	RunE: runFederate,
}

func init() {
	simulateCmd.Flags().StringVar(&alternatePolicyPath, "alternate", "", "Alternate policy document to replay under")
	_ = simulateCmd.MarkFlagRequired("alternate")

	forecastCmd.Flags().IntVar(&forecastIterations, "iterations", 0, "Simulation count (default from config)")
	forecastCmd.Flags().Int64Var(&forecastSeed, "seed", 0, "Base seed (default from config)")

	federateCmd.Flags().StringVar(&snapshotsDir, "snapshots", "federation", "Directory of per-project snapshot JSON files")
	federateCmd.Flags().Float64Var(&clusterThreshold, "cluster-threshold", 0, "Similarity threshold for clustering (default from config)")
	federateCmd.Flags().Float64Var(&outlierThreshold, "outlier-threshold", 0, "Mean-similarity threshold for outliers (default from config)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	original, err := loadPolicy()
	if err != nil {
		return err
	}
	alternate, err := loadPolicyFrom(alternatePolicyPath)
	if err != nil {
		return err
	}
	traces, err := tracesInWindow(cfg.Drift.WindowHours)
	if err != nil {
		return err
	}

	result, err := counterfactual.Run(original, alternate, traces, counterfactual.Context{ProjectID: cfg.ProjectID})
	if err != nil {
		return err
	}
	logger.Info("counterfactual complete", zap.Int("replayed", len(result.Actions)))
	return emit(artifact.LayerCounterfactual, "counterfactual", result)
}

func runForecast(cmd *cobra.Command, args []string) error {
	pol, err := loadPolicy()
	if err != nil {
		return err
	}
	traces, err := tracesInWindow(cfg.Futures.WindowHours)
	if err != nil {
		return err
	}
	driftHist, err := driftHistory()
	if err != nil {
		return err
	}
	recHist, err := recommendationHistory()
	if err != nil {
		return err
	}
	verdictHist, err := verdictHistory()
	if err != nil {
		return err
	}

	fctx := futures.Context{
		WindowHours: cfg.Futures.WindowHours,
		Iterations:  cfg.Futures.Iterations,
		Seed:        cfg.Futures.Seed,
	}
	if forecastIterations > 0 {
		fctx.Iterations = forecastIterations
	}
	if forecastSeed != 0 {
		fctx.Seed = forecastSeed
	}

	result, err := futures.Forecast(pol, driftHist, traces, recHist, verdictHist, fctx)
	if err != nil {
		return err
	}
	logger.Info("forecast complete",
		zap.Int("simulations", len(result.Simulations)),
		zap.String("riskLevel", result.Aggregate.RiskLevel))
	return emit(artifact.LayerFutures, "forecast", result)
}

func runFederate(cmd *cobra.Command, args []string) error {
	snapshots, err := loadSnapshots(snapshotsDir)
	if err != nil {
		return err
	}

	ct := clusterThreshold
	if ct <= 0 {
		ct = cfg.Federated.ClusterThreshold
	}
	ot := outlierThreshold
	if ot <= 0 {
		ot = cfg.Federated.OutlierThreshold
	}

	health, err := federated.ComputeHealth(snapshots, ct, ot)
	if err != nil {
		return err
	}
	logger.Info("federation analyzed",
		zap.Int("projects", len(health.ProjectIDs)),
		zap.Float64("stability", health.SystemStabilityScore))
	return emit(artifact.LayerFederated, "federated", health)
}

// loadSnapshots reads one federated.Snapshot per JSON file, sorted by
// filename for deterministic ordering.
func loadSnapshots(dir string) ([]federated.Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	snapshots := make([]federated.Snapshot, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
		}
		var s federated.Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}
