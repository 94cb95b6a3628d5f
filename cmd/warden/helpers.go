package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"warden/internal/artifact"
	"warden/internal/drift"
	"warden/internal/inference"
	"warden/internal/policy"
	"warden/internal/review"
)

// loadPolicy reads the configured policy document.
func loadPolicy() (policy.Policy, error) {
	var pol policy.Policy
	data, err := os.ReadFile(cfg.PolicyPath)
	if err != nil {
		return pol, fmt.Errorf("failed to read policy %s: %w", cfg.PolicyPath, err)
	}
	if err := json.Unmarshal(data, &pol); err != nil {
		return pol, policy.Errorf(policy.KindInvalidPolicy, "failed to parse policy %s: %v", cfg.PolicyPath, err)
	}
	return pol, nil
}

// loadPolicyFrom reads a policy document from an explicit path.
func loadPolicyFrom(path string) (policy.Policy, error) {
	var pol policy.Policy
	data, err := os.ReadFile(path)
	if err != nil {
		return pol, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &pol); err != nil {
		return pol, policy.Errorf(policy.KindInvalidPolicy, "failed to parse policy %s: %v", path, err)
	}
	return pol, nil
}

// emit writes the result to the layer's artifact directory, to stdout, and
// optionally to --out.
func emit(layer, prefix string, v interface{}) error {
	if _, err := artifacts().Write(layer, prefix, v, time.Now()); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(data))

	if outPath != "" {
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outPath, err)
		}
	}
	return nil
}

// tracesInWindow loads archived traces inside the window, padding with any
// trace artifacts when the archive is empty.
func tracesInWindow(windowHours float64) ([]policy.PolicyTrace, error) {
	ts, err := openTraceStore()
	if err != nil {
		return nil, err
	}
	defer ts.Close()

	cutoff := time.Now().Add(-time.Duration(windowHours * float64(time.Hour)))
	traces, err := ts.Since(cutoff)
	if err != nil {
		return nil, err
	}
	if len(traces) > 0 {
		return traces, nil
	}
	return artifact.ReadAll[policy.PolicyTrace](artifacts(), artifact.LayerTraces)
}

// latestRecommendations returns the recommendations from the most recent
// inference artifact, or nil when none exists.
func latestRecommendations() ([]policy.Recommendation, error) {
	var res inference.Result
	found, err := artifacts().Latest(artifact.LayerRecommendations, &res)
	if err != nil || !found {
		return nil, err
	}
	return res.Recommendations, nil
}

// latestVerdicts returns the verdicts from the most recent review artifact.
func latestVerdicts() ([]policy.ReviewVerdict, error) {
	var res review.Result
	found, err := artifacts().Latest(artifact.LayerReview, &res)
	if err != nil || !found {
		return nil, err
	}
	return res.Verdicts, nil
}

// driftHistory returns every archived drift analysis, oldest first.
func driftHistory() ([]drift.Analysis, error) {
	return artifact.ReadAll[drift.Analysis](artifacts(), artifact.LayerDrift)
}

// recommendationHistory flattens every archived inference result.
func recommendationHistory() ([]policy.Recommendation, error) {
	results, err := artifact.ReadAll[inference.Result](artifacts(), artifact.LayerRecommendations)
	if err != nil {
		return nil, err
	}
	var recs []policy.Recommendation
	for _, r := range results {
		recs = append(recs, r.Recommendations...)
	}
	return recs, nil
}

// verdictHistory flattens every archived review result.
func verdictHistory() ([]policy.ReviewVerdict, error) {
	results, err := artifact.ReadAll[review.Result](artifacts(), artifact.LayerReview)
	if err != nil {
		return nil, err
	}
	var verdicts []policy.ReviewVerdict
	for _, r := range results {
		verdicts = append(verdicts, r.Verdicts...)
	}
	return verdicts, nil
}
