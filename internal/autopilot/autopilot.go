// Package autopilot folds the drift, futures, and federated signals into one
// global risk score, bands it, and emits remediation tasks for every breached
// threshold.
package autopilot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"warden/internal/drift"
	"warden/internal/federated"
	"warden/internal/futures"
	"warden/internal/logging"
	"warden/internal/policy"
	"warden/internal/review"
)

// Risk bands, ordered from calm to emergency.
const (
	BandStable   = "stable"
	BandElevated = "elevated"
	BandVolatile = "volatile"
	BandCritical = "critical"
)

// Task types emitted per breached threshold.
const (
	TaskDriftInvestigation = "drift-investigation"
	TaskPolicyReview       = "policy-review"
	TaskFederatedSync      = "federated-sync"
	TaskRewritePolicy      = "rewrite-policy"
	TaskAudit              = "audit"
)

// Thresholds gate task emission. A signal above (or, for stability, below)
// its threshold breaches.
type Thresholds struct {
	Drift      float64 `yaml:"drift" json:"drift"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
	Stability  float64 `yaml:"stability" json:"stability"`
}

// Config controls one autopilot cycle.
type Config struct {
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
	EmitTasks  bool       `yaml:"emit_tasks" json:"emitTasks"`
}

// DefaultConfig returns thresholds aligned with the runbook gates.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{Drift: 0.5, Volatility: 0.4, Stability: 0.5},
		EmitTasks:  true,
	}
}

// CycleSnapshot carries the latest per-layer analyses. Any layer may be nil;
// a missing layer contributes no risk.
type CycleSnapshot struct {
	Drift     *drift.Analysis
	Futures   *futures.Result
	Federated *federated.Health
	Review    *review.Result
}

// Metrics are the four risk inputs plus the combined score.
type Metrics struct {
	RiskScore         float64 `json:"riskScore"`
	Volatility        float64 `json:"volatility"`
	Drift             float64 `json:"drift"`
	Divergence        float64 `json:"divergence"`
	ContradictionRate float64 `json:"contradictionRate"`
}

// Risk is the banded global assessment.
type Risk struct {
	GlobalRisk string   `json:"globalRisk"`
	Reasons    []string `json:"reasons"`
	Metrics    Metrics  `json:"metrics"`
}

// Task is one emitted remediation action.
type Task struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Deadline    time.Time `json:"deadline"`
}

// Output is the full result of one autopilot cycle.
type Output struct {
	ProjectID          string    `json:"projectId"`
	GeneratedAt        time.Time `json:"generatedAt"`
	Risk               Risk      `json:"risk"`
	RecommendedActions []Task    `json:"recommendedActions"`
	Narrative          string    `json:"narrative"`
}

// RunCycle scores global risk from the snapshot and emits tasks per breached
// threshold. At least one layer must be present.
func RunCycle(projectID string, snap CycleSnapshot, now time.Time, cfg Config) (Output, error) {
	if snap.Drift == nil && snap.Futures == nil && snap.Federated == nil && snap.Review == nil {
		return Output{}, policy.Errorf(policy.KindEmptyInput, "autopilot cycle for %s has no analyses to score", projectID)
	}

	m := collectMetrics(snap)
	m.RiskScore = scoreRisk(m.Volatility, m.Drift, m.Divergence, m.ContradictionRate)
	band := Band(m.RiskScore)

	risk := Risk{
		GlobalRisk: band,
		Reasons:    riskReasons(m, cfg.Thresholds),
		Metrics:    m,
	}

	var tasks []Task
	if cfg.EmitTasks {
		tasks = emitTasks(m, cfg.Thresholds, band, now)
	}

	out := Output{
		ProjectID:          projectID,
		GeneratedAt:        now.UTC(),
		Risk:               risk,
		RecommendedActions: tasks,
		Narrative:          narrate(projectID, band, m, tasks),
	}
	logging.Autopilot("cycle %s: risk=%.3f band=%s tasks=%d", projectID, m.RiskScore, band, len(tasks))
	return out, nil
}

// scoreRisk is the fixed weighted combination of the four signals.
func scoreRisk(volatility, driftScore, divergence, contradictionRate float64) float64 {
	return policy.Clamp01(volatility*0.4 + driftScore*0.3 + divergence*0.2 + contradictionRate*0.1)
}

// Band maps a risk score to its band.
func Band(score float64) string {
	switch {
	case score < 0.25:
		return BandStable
	case score < 0.45:
		return BandElevated
	case score < 0.70:
		return BandVolatile
	default:
		return BandCritical
	}
}

func collectMetrics(snap CycleSnapshot) Metrics {
	var m Metrics
	if snap.Drift != nil {
		m.Drift = policy.Clamp01(snap.Drift.OverallDriftScore)
	}
	if snap.Futures != nil {
		m.Volatility = policy.Clamp01(snap.Futures.Aggregate.VolatilityIndex)
		m.ContradictionRate = meanContradiction(snap.Futures.Simulations)
	}
	if snap.Federated != nil {
		m.Divergence = policy.Clamp01(1 - snap.Federated.SystemStabilityScore)
	}
	return m
}

func meanContradiction(sims []futures.Simulation) float64 {
	if len(sims) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sims {
		sum += s.Breakdown.Contradiction
	}
	return policy.Clamp01(sum / float64(len(sims)))
}

func riskReasons(m Metrics, th Thresholds) []string {
	var reasons []string
	if m.Drift > th.Drift {
		reasons = append(reasons, fmt.Sprintf("drift score %.2f exceeds threshold %.2f", m.Drift, th.Drift))
	}
	if m.Volatility > th.Volatility {
		reasons = append(reasons, fmt.Sprintf("forecast volatility %.2f exceeds threshold %.2f", m.Volatility, th.Volatility))
	}
	if stability := 1 - m.Divergence; stability < th.Stability {
		reasons = append(reasons, fmt.Sprintf("federation stability %.2f below threshold %.2f", stability, th.Stability))
	}
	if m.ContradictionRate > 0.15 {
		reasons = append(reasons, fmt.Sprintf("forecast contradiction rate %.2f exceeds 0.15", m.ContradictionRate))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("all signals within thresholds at risk %.2f", m.RiskScore))
	}
	return reasons
}

// bandUrgency scales task priority and deadline with the risk band.
func bandUrgency(band string) (priority int, lead time.Duration) {
	switch band {
	case BandCritical:
		return 100, 4 * time.Hour
	case BandVolatile:
		return 75, 24 * time.Hour
	case BandElevated:
		return 50, 72 * time.Hour
	default:
		return 25, 7 * 24 * time.Hour
	}
}

func emitTasks(m Metrics, th Thresholds, band string, now time.Time) []Task {
	priority, lead := bandUrgency(band)
	deadline := now.UTC().Add(lead)

	newTask := func(typ, desc string) Task {
		return Task{
			ID:          uuid.NewString(),
			Type:        typ,
			Description: desc,
			Priority:    priority,
			Deadline:    deadline,
		}
	}

	var tasks []Task
	if m.Drift > th.Drift {
		tasks = append(tasks, newTask(TaskDriftInvestigation,
			fmt.Sprintf("Investigate governance drift (score %.2f): review recent rule changes and override activity.", m.Drift)))
	}
	if m.Volatility > th.Volatility {
		tasks = append(tasks, newTask(TaskPolicyReview,
			fmt.Sprintf("Review policy against forecast volatility %.2f: tighten or consolidate unstable rules.", m.Volatility)))
	}
	if stability := 1 - m.Divergence; stability < th.Stability {
		tasks = append(tasks, newTask(TaskFederatedSync,
			fmt.Sprintf("Re-sync with the federation (stability %.2f): compare against consensus rules.", stability)))
	}
	if m.ContradictionRate > 0.15 {
		tasks = append(tasks, newTask(TaskRewritePolicy,
			fmt.Sprintf("Rewrite contradictory policy sections (contradiction rate %.2f).", m.ContradictionRate)))
	}
	if len(tasks) == 0 {
		audit := newTask(TaskAudit, "Routine audit: no thresholds breached; spot-check recent traces.")
		audit.Priority = 10
		tasks = append(tasks, audit)
	}
	return tasks
}

func narrate(projectID, band string, m Metrics, tasks []Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Autopilot cycle for %s: global risk %.2f (%s). ", projectID, m.RiskScore, band)
	fmt.Fprintf(&b, "Signals: volatility %.2f, drift %.2f, divergence %.2f, contradiction rate %.2f. ",
		m.Volatility, m.Drift, m.Divergence, m.ContradictionRate)
	if len(tasks) == 1 && tasks[0].Type == TaskAudit {
		b.WriteString("No thresholds breached; emitted a routine audit task.")
	} else {
		types := make([]string, len(tasks))
		for i, t := range tasks {
			types[i] = t.Type
		}
		fmt.Fprintf(&b, "Emitted %d task(s): %s.", len(tasks), strings.Join(types, ", "))
	}
	return b.String()
}
