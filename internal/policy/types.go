// Package policy defines the governance data model and the rule evaluation
// engine. A Policy is a set of prioritized rules per action category; evaluating
// an Action against it yields a Decision and an immutable PolicyTrace that
// records every candidate rule, matched or not.
//
// The package is pure: no I/O, no clocks beyond timestamps passed in by the
// caller, no global state. Persistence of traces and policies belongs to
// collaborators (internal/artifact, internal/store).
package policy

import (
	"strings"
	"time"
)

// Decision is the outcome of evaluating an action against a policy.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionDeny   Decision = "deny"
	DecisionReview Decision = "review"
)

// NormalizeDecision lowercases and trims a decision string so that values
// produced by different layers (CLI flags, JSON artifacts, LLM output) compare
// consistently. Unknown values normalize to the empty Decision.
func NormalizeDecision(s string) Decision {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionAllow:
		return DecisionAllow
	case DecisionDeny:
		return DecisionDeny
	case DecisionReview:
		return DecisionReview
	}
	return Decision("")
}

// Valid reports whether d is one of the three known decisions.
func (d Decision) Valid() bool {
	return d == DecisionAllow || d == DecisionDeny || d == DecisionReview
}

// ActionType identifies the kind of governed operation.
type ActionType string

const (
	ActionRunCommand ActionType = "run-command"
	ActionWriteFile  ActionType = "write-file"
	ActionStart      ActionType = "start"
)

// Action is one governed operation an agent wants to perform. Exactly one of
// the target fields is meaningful, selected by Type.
type Action struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Command     string     `json:"command,omitempty"`
	Path        string     `json:"path,omitempty"`
	ProjectPath string     `json:"projectPath,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Target returns the type-specific target string the rules match against.
func (a Action) Target() (string, error) {
	switch a.Type {
	case ActionRunCommand:
		return a.Command, nil
	case ActionWriteFile:
		return a.Path, nil
	case ActionStart:
		return a.ProjectPath, nil
	}
	return "", Errorf(KindInvalidAction, "unknown action type %q", a.Type)
}

// Rule is one governance rule. Pattern is a plain substring match unless
// written as /…/, in which case it is compiled as a regular expression.
type Rule struct {
	ID       string   `json:"id"`
	Pattern  string   `json:"pattern"`
	Mode     Decision `json:"mode"`
	Priority int      `json:"priority"`
}

// Defaults holds the per-category fallback decision applied when no rule
// matches. An unset field means allow.
type Defaults struct {
	Commands   Decision `json:"commands,omitempty"`
	FileWrites Decision `json:"fileWrites,omitempty"`
	Sessions   Decision `json:"sessions,omitempty"`
}

// Policy is the full governance document for one project.
type Policy struct {
	Commands   []Rule   `json:"commands"`
	FileWrites []Rule   `json:"fileWrites"`
	Sessions   []Rule   `json:"sessions"`
	Defaults   Defaults `json:"defaults"`
}

// RulesFor returns the rule array governing the given action type.
func (p Policy) RulesFor(t ActionType) ([]Rule, error) {
	switch t {
	case ActionRunCommand:
		return p.Commands, nil
	case ActionWriteFile:
		return p.FileWrites, nil
	case ActionStart:
		return p.Sessions, nil
	}
	return nil, Errorf(KindInvalidAction, "unknown action type %q", t)
}

// DefaultFor returns the fallback decision for the given action type.
// Unset defaults resolve to allow.
func (p Policy) DefaultFor(t ActionType) Decision {
	var d Decision
	switch t {
	case ActionRunCommand:
		d = p.Defaults.Commands
	case ActionWriteFile:
		d = p.Defaults.FileWrites
	case ActionStart:
		d = p.Defaults.Sessions
	}
	if !d.Valid() {
		return DecisionAllow
	}
	return d
}

// AllRules returns every rule in the policy, category order preserved.
func (p Policy) AllRules() []Rule {
	out := make([]Rule, 0, len(p.Commands)+len(p.FileWrites)+len(p.Sessions))
	out = append(out, p.Commands...)
	out = append(out, p.FileWrites...)
	out = append(out, p.Sessions...)
	return out
}

// OverrideContext lets a caller replace the mode of one selected rule for one
// action type, e.g. a human operator temporarily forcing review on a rule.
type OverrideContext struct {
	ActionType ActionType `json:"actionType"`
	RuleID     string     `json:"ruleId"`
	Mode       Decision   `json:"mode"`
	// Condition is free text describing when the override applies.
	// Condition evaluation is a stub that always matches; see evaluate.go.
	Condition string `json:"condition,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// RecommendationType classifies a proposed policy change.
type RecommendationType string

const (
	RecommendationAddRule    RecommendationType = "add-rule"
	RecommendationModifyRule RecommendationType = "modify-rule"
	RecommendationRemoveRule RecommendationType = "remove-rule"
)

// Valid reports whether t is a known recommendation type.
func (t RecommendationType) Valid() bool {
	return t == RecommendationAddRule || t == RecommendationModifyRule || t == RecommendationRemoveRule
}

// Recommendation is a proposed policy change mined from trace history.
type Recommendation struct {
	ID              string             `json:"id"`
	Type            RecommendationType `json:"type"`
	Reason          string             `json:"reason"`
	AffectedActions []string           `json:"affectedActions"`
	ProposedRule    Rule               `json:"proposedRule"`
	Confidence      float64            `json:"confidence"`
}

// ReviewDecision is the verdict on a recommendation.
type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
	ReviewRevise  ReviewDecision = "revise"
)

// ReviewVerdict is the judged outcome for one recommendation.
type ReviewVerdict struct {
	ID               string         `json:"id"`
	RecommendationID string         `json:"recommendationId"`
	Decision         ReviewDecision `json:"decision"`
	RiskScore        float64        `json:"riskScore"`
	Rationale        string         `json:"rationale"`
	AISummary        string         `json:"aiSummary"`
}

// Clamp01 clamps a score or probability into [0,1]. Every score-valued field
// in this repository passes through it before leaving an engine.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
