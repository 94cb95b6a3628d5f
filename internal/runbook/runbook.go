// Package runbook turns the autopilot assessment and the per-layer analyses
// into an ordered remediation plan. Steps carry literal command templates and
// expected artifact names as opaque text; nothing here executes them.
package runbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"warden/internal/autopilot"
	"warden/internal/drift"
	"warden/internal/federated"
	"warden/internal/futures"
	"warden/internal/logging"
	"warden/internal/policy"
	"warden/internal/review"
)

// Severity levels, mirroring the autopilot risk bands 1:1.
const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Step is one remediation action in the plan.
type Step struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	RecommendedCommands []string `json:"recommendedCommands"`
	ExpectedArtifacts   []string `json:"expectedArtifacts"`
}

// Output is the full remediation plan.
type Output struct {
	ProjectID   string    `json:"projectId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Severity    string    `json:"severity"`
	Steps       []Step    `json:"steps"`
	Narrative   string    `json:"narrative"`
}

// Generate builds the remediation plan for one autopilot cycle. The drift,
// futures, federated, trace, and review inputs are optional; when present
// they refine the trigger scores the autopilot metrics already carry.
func Generate(projectID string, ap autopilot.Output, driftA *drift.Analysis, fut *futures.Result,
	fed *federated.Health, traces []policy.PolicyTrace, reviews []review.Result, now time.Time) (Output, error) {
	if ap.Risk.GlobalRisk == "" {
		return Output{}, policy.Errorf(policy.KindEmptyInput, "runbook for %s requires an autopilot assessment", projectID)
	}

	severity := severityFor(ap.Risk.GlobalRisk)

	driftScore := ap.Risk.Metrics.Drift
	if driftA != nil {
		driftScore = driftA.OverallDriftScore
	}
	volatility := ap.Risk.Metrics.Volatility
	if fut != nil {
		volatility = fut.Aggregate.VolatilityIndex
	}
	stability := 1 - ap.Risk.Metrics.Divergence
	if fed != nil {
		stability = fed.SystemStabilityScore
	}
	contradicted := contradictionFlagged(reviews)

	var steps []Step
	var issues []string
	if driftScore > 0.5 {
		steps = append(steps, driftInvestigationStep(driftScore))
		issues = append(issues, fmt.Sprintf("drift %.2f", driftScore))
	}
	if volatility > 0.4 {
		steps = append(steps, volatilityMitigationStep(volatility))
		issues = append(issues, fmt.Sprintf("volatility %.2f", volatility))
	}
	if stability < 0.5 {
		steps = append(steps, federatedSyncStep(stability))
		issues = append(issues, fmt.Sprintf("federation stability %.2f", stability))
	}
	if contradicted {
		steps = append(steps, contradictionResolutionStep())
		issues = append(issues, "contradictory recommendations flagged in review")
	}
	if severity == SeverityCritical {
		steps = append(steps, criticalStateSteps()...)
	}
	if len(steps) == 0 {
		if severity != SeverityLow {
			steps = append(steps, generalInvestigationStep(severity, ap.Risk.Metrics.RiskScore))
		} else {
			steps = append(steps, routineMonitoringStep(len(traces)))
		}
	}

	out := Output{
		ProjectID:   projectID,
		GeneratedAt: now.UTC(),
		Severity:    severity,
		Steps:       steps,
		Narrative:   narrate(projectID, severity, steps, issues),
	}
	logging.Runbook("plan %s: severity=%s steps=%d", projectID, severity, len(steps))
	return out, nil
}

// severityFor mirrors the autopilot band 1:1.
func severityFor(band string) string {
	switch band {
	case autopilot.BandCritical:
		return SeverityCritical
	case autopilot.BandVolatile:
		return SeverityHigh
	case autopilot.BandElevated:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

func contradictionFlagged(reviews []review.Result) bool {
	for _, r := range reviews {
		for _, f := range r.GovernanceFlags {
			if f.Type == review.FlagContradictionDetected {
				return true
			}
		}
	}
	return false
}

func newStep(title, description string, commands, artifacts []string) Step {
	return Step{
		ID:                  uuid.NewString(),
		Title:               title,
		Description:         description,
		RecommendedCommands: commands,
		ExpectedArtifacts:   artifacts,
	}
}

func driftInvestigationStep(score float64) Step {
	return newStep(
		"Investigate governance drift",
		fmt.Sprintf("Drift score %.2f exceeds 0.50. Diff the active policy against the last stable snapshot and review every override in the window.", score),
		[]string{
			"warden drift --window 168h --out drift-report.json",
			"diff policy.json policy.baseline.json",
		},
		[]string{"drift-report.json", "policy-diff.txt"},
	)
}

func volatilityMitigationStep(volatility float64) Step {
	return newStep(
		"Mitigate forecast volatility",
		fmt.Sprintf("Forecast volatility %.2f exceeds 0.40. Re-run the forecast with a longer window and consolidate the rules driving the spread.", volatility),
		[]string{
			"warden forecast --iterations 500 --out forecast.json",
		},
		[]string{"forecast.json"},
	)
}

func federatedSyncStep(stability float64) Step {
	return newStep(
		"Re-sync with the federation",
		fmt.Sprintf("Federation stability %.2f is below 0.50. Compare the local policy against the consensus rule set and adopt or justify each divergence.", stability),
		[]string{
			"warden federate --snapshots ./federation --out federated-health.json",
		},
		[]string{"federated-health.json", "consensus-diff.txt"},
	)
}

func contradictionResolutionStep() Step {
	return newStep(
		"Resolve contradictory recommendations",
		"Review flagged recommendations that add and remove the same rule. Reject one side of each contradiction and re-run the review.",
		[]string{
			"warden review --recommendations recommendations.json --out review.json",
		},
		[]string{"review.json"},
	)
}

// criticalStateSteps is the fixed emergency block, always emitted in this
// order when severity is critical.
func criticalStateSteps() []Step {
	return []Step{
		newStep(
			"Freeze policy changes",
			"Suspend all automated rule changes and overrides until the assessment clears.",
			[]string{"warden autopilot --emit-tasks=false"},
			[]string{"freeze-confirmation.txt"},
		),
		newStep(
			"Capture governance snapshot",
			"Archive the current policy, trace history, and all layer analyses before anything changes.",
			[]string{"warden evaluate --dry-run --out snapshot.json", "tar czf governance-snapshot.tgz artifacts/"},
			[]string{"governance-snapshot.tgz"},
		),
		newStep(
			"Escalate to policy owner",
			"Notify the policy owner with the autopilot narrative and the captured snapshot.",
			[]string{"warden runbook --out runbook.json"},
			[]string{"escalation-ticket.txt"},
		),
		newStep(
			"Restore last stable baseline",
			"Roll the policy back to the most recent snapshot whose drift classification was stable.",
			[]string{"cp policy.baseline.json policy.json", "warden drift --window 24h"},
			[]string{"restore-report.json"},
		),
	}
}

func generalInvestigationStep(severity string, risk float64) Step {
	return newStep(
		"General governance investigation",
		fmt.Sprintf("Severity is %s (risk %.2f) but no single signal crossed its threshold. Inspect the latest trace and review artifacts for the source.", severity, risk),
		[]string{"warden drift --window 72h", "warden infer --out recommendations.json"},
		[]string{"drift-report.json", "recommendations.json"},
	)
}

func routineMonitoringStep(traceCount int) Step {
	return newStep(
		"Routine monitoring",
		fmt.Sprintf("All signals nominal across %d recent trace(s). Continue scheduled autopilot cycles.", traceCount),
		[]string{"warden autopilot"},
		[]string{"autopilot-report.json"},
	)
}

func narrate(projectID, severity string, steps []Step, issues []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Runbook for %s: severity %s, %d step(s). ", projectID, severity, len(steps))
	if len(issues) == 0 {
		b.WriteString("No specific issues detected.")
	} else {
		fmt.Fprintf(&b, "Detected issues: %s.", strings.Join(issues, "; "))
	}
	return b.String()
}
