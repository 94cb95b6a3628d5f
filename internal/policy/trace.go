package policy

import (
	"fmt"
	"time"
)

// PolicyTrace is the immutable audit record of one evaluation. It is
// constructed once by NewTrace and never mutated; persistence belongs to
// collaborators. Target carries the structured replay payload so downstream
// replay does not have to scrape it back out of the summaries.
type PolicyTrace struct {
	ActionID        string           `json:"actionId"`
	ActionType      ActionType       `json:"actionType"`
	Target          string           `json:"target,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	EvaluatedRules  []RuleEvaluation `json:"evaluatedRules"`
	OverrideContext *OverrideContext `json:"overrideContext,omitempty"`
	OverrideApplied bool             `json:"overrideApplied,omitempty"`
	FinalDecision   Decision         `json:"finalDecision"`
	FinalRuleID     string           `json:"finalRuleId,omitempty"`
	// Summary is terse, for automation; Detail is a full sentence for humans.
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}

// NewTrace assembles the audit record for one evaluation: the evaluated rule
// set, the triggered override if any, and the two rendered summaries.
func NewTrace(action Action, target string, evaluated []RuleEvaluation, winner *Rule, octx *OverrideContext, overrideApplied bool, decision Decision) PolicyTrace {
	tr := PolicyTrace{
		ActionID:        action.ID,
		ActionType:      action.Type,
		Target:          target,
		Timestamp:       action.Timestamp,
		EvaluatedRules:  evaluated,
		OverrideApplied: overrideApplied,
		FinalDecision:   decision,
	}
	if octx != nil && overrideApplied {
		o := *octx
		tr.OverrideContext = &o
	}
	if winner != nil {
		tr.FinalRuleID = winner.ID
	}
	tr.Summary, tr.Detail = renderSummaries(action, target, winner, tr.OverrideContext, decision)
	return tr
}

func renderSummaries(action Action, target string, winner *Rule, octx *OverrideContext, decision Decision) (string, string) {
	verb := decisionVerb(decision)
	switch {
	case octx != nil:
		return fmt.Sprintf("%s %s by override on %s", action.Type, verb, octx.RuleID),
			fmt.Sprintf("Action %s (%s on %q) was %s because an override replaced rule %s with %s: %s",
				action.ID, action.Type, target, verb, octx.RuleID, decision, octx.Reason)
	case winner != nil:
		return fmt.Sprintf("%s %s by rule %s", action.Type, verb, winner.ID),
			fmt.Sprintf("Action %s (%s on %q) was %s by rule %s (pattern %q, priority %d)",
				action.ID, action.Type, target, verb, winner.ID, winner.Pattern, winner.Priority)
	default:
		return fmt.Sprintf("%s %s by default", action.Type, verb),
			fmt.Sprintf("Action %s (%s on %q) matched no rule and was %s by the policy default",
				action.ID, action.Type, target, verb)
	}
}

func decisionVerb(d Decision) string {
	switch d {
	case DecisionAllow:
		return "allowed"
	case DecisionDeny:
		return "denied"
	case DecisionReview:
		return "held for review"
	}
	return string(d)
}
