// Package drift detects governance instability signals across a window of
// policy traces, recommendations, and review verdicts. The output is a single
// PolicyDriftAnalysis: typed signals, an overall drift score, a stability
// index, and a fixed-band classification.
package drift

import "time"

// SignalType identifies one of the six drift signal families.
type SignalType string

const (
	SignalRuleChurn            SignalType = "rule-churn"
	SignalOverrideEscalation   SignalType = "override-escalation"
	SignalPermissionCreep      SignalType = "permission-creep"
	SignalRestrictionCreep     SignalType = "restriction-creep"
	SignalFlipFlop             SignalType = "flip-flop"
	SignalReviewerDisagreement SignalType = "reviewer-disagreement"
)

// Signal is one detected instability indicator.
type Signal struct {
	Type        SignalType `json:"type"`
	Severity    float64    `json:"severity"`
	Confidence  float64    `json:"confidence"`
	Description string     `json:"description"`
}

// Classification is the fixed-band drift verdict.
type Classification string

const (
	ClassStable   Classification = "stable"
	ClassWatch    Classification = "watch"
	ClassVolatile Classification = "volatile"
	ClassCritical Classification = "critical"
)

// Analysis is the full drift report for one window.
type Analysis struct {
	Signals           []Signal       `json:"signals"`
	OverallDriftScore float64        `json:"overallDriftScore"`
	StabilityIndex    float64        `json:"stabilityIndex"`
	Classification    Classification `json:"classification"`
	Narrative         string         `json:"narrative"`
	WindowHours       float64        `json:"windowHours"`
	GeneratedAt       time.Time      `json:"generatedAt"`
}
