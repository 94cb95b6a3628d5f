package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warden/internal/artifact"
	"warden/internal/drift"
	"warden/internal/inference"
	"warden/internal/llm"
	"warden/internal/review"
)

var driftWindowHours float64

// driftCmd analyzes governance drift over the trace window.
var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Detect governance drift across the recent trace window",
	RunE:  runDrift,
}

// inferCmd derives policy recommendations from trace history.
var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Infer policy change recommendations from trace history",
	RunE:  runInfer,
}

// reviewCmd reviews the latest recommendation batch.
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review the most recent recommendation batch",
	Long: `Reviews the latest inferred recommendations against the governing
principles. With an LLM provider configured and review.strategy set to "ai",
verdicts come from the model; otherwise the deterministic strategy applies.
A capability failure on one recommendation degrades that verdict alone.`,
	RunE: runReview,
}

func init() {
	driftCmd.Flags().Float64Var(&driftWindowHours, "window", 0, "Analysis window in hours (default from config)")
}

func runDrift(cmd *cobra.Command, args []string) error {
	pol, err := loadPolicy()
	if err != nil {
		return err
	}
	window := driftWindowHours
	if window <= 0 {
		window = cfg.Drift.WindowHours
	}
	traces, err := tracesInWindow(window)
	if err != nil {
		return err
	}
	recs, err := latestRecommendations()
	if err != nil {
		return err
	}
	verdicts, err := latestVerdicts()
	if err != nil {
		return err
	}

	analysis, err := drift.Analyze(traces, recs, verdicts, pol, time.Duration(window*float64(time.Hour)))
	if err != nil {
		return err
	}
	logger.Info("drift analyzed",
		zap.Float64("score", analysis.OverallDriftScore),
		zap.String("classification", string(analysis.Classification)))
	return emit(artifact.LayerDrift, "drift", analysis)
}

func runInfer(cmd *cobra.Command, args []string) error {
	pol, err := loadPolicy()
	if err != nil {
		return err
	}
	traces, err := tracesInWindow(cfg.Drift.WindowHours)
	if err != nil {
		return err
	}

	result, err := inference.Infer(traces, inference.Metadata{ProjectID: cfg.ProjectID, Policy: pol})
	if err != nil {
		return err
	}
	logger.Info("inference complete", zap.Int("recommendations", len(result.Recommendations)))
	return emit(artifact.LayerRecommendations, "recommendations", result)
}

func runReview(cmd *cobra.Command, args []string) error {
	recs, err := latestRecommendations()
	if err != nil {
		return err
	}

	var strategy review.VerdictStrategy = review.DeterministicStrategy{}
	if cfg.Review.Strategy == "ai" {
		client, err := llm.NewFromConfig(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if client != nil {
			strategy = review.NewAIStrategy(client, cfg.Review.Prompts)
		}
	}

	reviewer := review.New(strategy, review.WithConcurrency(cfg.Review.MaxConcurrent))
	result, err := reviewer.Review(cmd.Context(), recs, cfg.PolicyPath, cfg.ProjectID)
	if err != nil {
		return err
	}
	logger.Info("review complete",
		zap.String("strategy", strategy.Name()),
		zap.Int("verdicts", len(result.Verdicts)),
		zap.Int("flags", len(result.GovernanceFlags)))
	return emit(artifact.LayerReview, "review", result)
}
