// Package counterfactual replays historical traces under an alternate policy
// and classifies every decision transition. The transition table is total over
// the 3x3 decision space, which makes the contradiction category structurally
// unreachable; it is still counted because the narrative gates on its ratio.
package counterfactual

import (
	"fmt"
	"regexp"
	"strings"

	"warden/internal/logging"
	"warden/internal/policy"
)

// Transition classifies one (original, new) decision pair.
type Transition string

const (
	TransitionSame          Transition = "same"
	TransitionStronger      Transition = "stronger"
	TransitionWeaker        Transition = "weaker"
	TransitionContradiction Transition = "contradiction"
)

// transitions is the fixed total table over {allow,deny,review}^2. Moving
// toward deny is stronger, away from it weaker.
var transitions = map[[2]policy.Decision]Transition{
	{policy.DecisionAllow, policy.DecisionAllow}:   TransitionSame,
	{policy.DecisionDeny, policy.DecisionDeny}:     TransitionSame,
	{policy.DecisionReview, policy.DecisionReview}: TransitionSame,
	{policy.DecisionAllow, policy.DecisionReview}:  TransitionStronger,
	{policy.DecisionAllow, policy.DecisionDeny}:    TransitionStronger,
	{policy.DecisionReview, policy.DecisionDeny}:   TransitionStronger,
	{policy.DecisionReview, policy.DecisionAllow}:  TransitionWeaker,
	{policy.DecisionDeny, policy.DecisionAllow}:    TransitionWeaker,
	{policy.DecisionDeny, policy.DecisionReview}:   TransitionWeaker,
}

// Classify resolves one decision pair against the table.
func Classify(original, updated policy.Decision) Transition {
	return transitions[[2]policy.Decision{original, updated}]
}

// ReplayedAction is the per-trace replay outcome.
type ReplayedAction struct {
	ActionID      string            `json:"actionId"`
	ActionType    policy.ActionType `json:"actionType"`
	Target        string            `json:"target"`
	Reconstructed bool              `json:"reconstructed"`
	Original      policy.Decision   `json:"original"`
	New           policy.Decision   `json:"new"`
	Transition    Transition        `json:"transition"`
}

// Summary aggregates transition counts.
type Summary struct {
	Total              int     `json:"total"`
	Same               int     `json:"same"`
	Stronger           int     `json:"stronger"`
	Weaker             int     `json:"weaker"`
	Contradictions     int     `json:"contradictions"`
	ContradictionRatio float64 `json:"contradictionRatio"`
}

// Result is the full simulation output.
type Result struct {
	Summary   Summary          `json:"summary"`
	Actions   []ReplayedAction `json:"actions"`
	Narrative string           `json:"narrative"`
}

// Context carries replay parameters.
type Context struct {
	ProjectID string
}

// detailTarget scrapes the quoted target out of a trace's detailed summary,
// e.g. `Action a1 (run-command on "git push") was ...`.
var detailTarget = regexp.MustCompile(`\([a-z-]+ on "((?:[^"\\]|\\.)*)"\)`)

// Run re-evaluates every trace's action under the alternate policy and
// classifies the pairwise transitions. The original policy is consulted only
// when a trace predates final decisions (never in practice) so the parameter
// primarily documents what the traces were produced under.
func Run(original, alternate policy.Policy, traces []policy.PolicyTrace, rctx Context) (Result, error) {
	timer := logging.StartTimer(logging.CategoryCounterfactual, "Run")
	defer timer.Stop()
	_ = original

	if len(traces) == 0 {
		return Result{}, policy.Errorf(policy.KindEmptyInput, "counterfactual replay requires at least one trace")
	}

	actions := make([]ReplayedAction, 0, len(traces))
	var sum Summary
	for _, tr := range traces {
		target, ok := replayTarget(tr)
		action := rebuildAction(tr, target)

		newDecision := tr.FinalDecision
		res, err := policy.Evaluate(action, nil, alternate)
		if err == nil {
			newDecision = res.Outcome
		}
		// Evaluation can only fail on an unknown action type, which a stored
		// trace cannot carry; keeping the original decision degrades to "same".

		transition := Classify(tr.FinalDecision, newDecision)
		actions = append(actions, ReplayedAction{
			ActionID:      tr.ActionID,
			ActionType:    tr.ActionType,
			Target:        target,
			Reconstructed: ok,
			Original:      tr.FinalDecision,
			New:           newDecision,
			Transition:    transition,
		})

		sum.Total++
		switch transition {
		case TransitionSame:
			sum.Same++
		case TransitionStronger:
			sum.Stronger++
		case TransitionWeaker:
			sum.Weaker++
		case TransitionContradiction:
			sum.Contradictions++
		}
	}
	if sum.Total > 0 {
		sum.ContradictionRatio = float64(sum.Contradictions) / float64(sum.Total)
	}

	res := Result{Summary: sum, Actions: actions, Narrative: narrate(sum, rctx)}
	logging.Get(logging.CategoryCounterfactual).Info("replayed %d traces: %d same, %d stronger, %d weaker",
		sum.Total, sum.Same, sum.Stronger, sum.Weaker)
	return res, nil
}

// replayTarget recovers the action target for replay. The structured payload
// on the trace wins; older traces fall back to scraping the detailed summary;
// when both fail the action carries an unknown-* sentinel that matches no
// rule.
func replayTarget(tr policy.PolicyTrace) (string, bool) {
	if tr.Target != "" {
		return tr.Target, true
	}
	if m := detailTarget.FindStringSubmatch(tr.Detail); m != nil {
		return m[1], true
	}
	return "unknown-" + tr.ActionID, false
}

func rebuildAction(tr policy.PolicyTrace, target string) policy.Action {
	a := policy.Action{ID: tr.ActionID, Type: tr.ActionType, Timestamp: tr.Timestamp}
	switch tr.ActionType {
	case policy.ActionRunCommand:
		a.Command = target
	case policy.ActionWriteFile:
		a.Path = target
	case policy.ActionStart:
		a.ProjectPath = target
	}
	return a
}

func narrate(sum Summary, rctx Context) string {
	pct := func(n int) float64 {
		if sum.Total == 0 {
			return 0
		}
		return float64(n) / float64(sum.Total) * 100
	}
	var b strings.Builder
	if rctx.ProjectID != "" {
		fmt.Fprintf(&b, "Counterfactual replay for %s: ", rctx.ProjectID)
	} else {
		b.WriteString("Counterfactual replay: ")
	}
	fmt.Fprintf(&b, "%d actions re-evaluated; %.1f%% unchanged, %.1f%% stronger, %.1f%% weaker.",
		sum.Total, pct(sum.Same), pct(sum.Stronger), pct(sum.Weaker))

	switch {
	case sum.ContradictionRatio > 0.10:
		fmt.Fprintf(&b, " HIGH RISK: %.1f%% of transitions are contradictory; the alternate policy conflicts with recorded intent.", pct(sum.Contradictions))
	case sum.ContradictionRatio > 0:
		fmt.Fprintf(&b, " Caution: %.1f%% of transitions are contradictory.", pct(sum.Contradictions))
	default:
		b.WriteString(" No contradictory transitions detected.")
	}
	return b.String()
}
