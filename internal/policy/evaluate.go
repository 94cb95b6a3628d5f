package policy

import (
	"fmt"
	"regexp"
	"strings"

	"warden/internal/logging"
)

// RuleEvaluation records how one candidate rule fared during evaluation.
// Every rule in the governing category lands in the trace, matched or not,
// so post-hoc analysis can see the full decision surface.
type RuleEvaluation struct {
	RuleID   string   `json:"ruleId"`
	Pattern  string   `json:"pattern"`
	Matched  bool     `json:"matched"`
	Reason   string   `json:"reason"`
	Priority int      `json:"priority"`
	Effect   Decision `json:"effect"`
}

// EvalResult is the outcome of evaluating one action.
type EvalResult struct {
	Outcome Decision    `json:"outcome"`
	Reason  string      `json:"reason"`
	Trace   PolicyTrace `json:"trace"`
}

// Evaluate matches the action's target against the governing rule array,
// picks the highest-priority match (stable tie-break on original order),
// and falls back to the category default when nothing matches. An override
// context may replace the winning rule's mode when it names this action type
// and rule id. Unknown action types fail with INVALID_ACTION.
func Evaluate(action Action, octx *OverrideContext, pol Policy) (EvalResult, error) {
	target, err := action.Target()
	if err != nil {
		return EvalResult{}, err
	}
	rules, err := pol.RulesFor(action.Type)
	if err != nil {
		return EvalResult{}, err
	}

	evaluated := make([]RuleEvaluation, 0, len(rules))
	winnerIdx := -1
	for i, r := range rules {
		matched, reason := matchPattern(r.Pattern, target)
		evaluated = append(evaluated, RuleEvaluation{
			RuleID:   r.ID,
			Pattern:  r.Pattern,
			Matched:  matched,
			Reason:   reason,
			Priority: r.Priority,
			Effect:   NormalizeDecision(string(r.Mode)),
		})
		if matched && (winnerIdx < 0 || r.Priority > rules[winnerIdx].Priority) {
			winnerIdx = i
		}
	}

	var (
		outcome Decision
		reason  string
		winner  *Rule
	)
	if winnerIdx >= 0 {
		w := rules[winnerIdx]
		winner = &w
		outcome = NormalizeDecision(string(w.Mode))
		if !outcome.Valid() {
			return EvalResult{}, Errorf(KindInvalidPolicy, "rule %q has invalid mode %q", w.ID, w.Mode)
		}
		reason = fmt.Sprintf("rule %s (%s) matched %q", w.ID, w.Pattern, target)
	} else {
		outcome = pol.DefaultFor(action.Type)
		reason = fmt.Sprintf("no rule matched %q; default %s applies", target, outcome)
	}

	overrideApplied := false
	if winner != nil && overrideApplies(octx, action.Type, winner.ID) {
		outcome = NormalizeDecision(string(octx.Mode))
		if !outcome.Valid() {
			return EvalResult{}, Errorf(KindInvalidPolicy, "override on rule %q has invalid mode %q", winner.ID, octx.Mode)
		}
		overrideApplied = true
		reason = fmt.Sprintf("override replaced rule %s: %s", winner.ID, octx.Reason)
	}

	trace := NewTrace(action, target, evaluated, winner, octx, overrideApplied, outcome)
	logging.PolicyDebug("evaluated action %s (%s): %s", action.ID, action.Type, outcome)

	return EvalResult{Outcome: outcome, Reason: reason, Trace: trace}, nil
}

// overrideApplies reports whether the override context replaces the winning
// rule's mode. The condition text is not interpreted: condition evaluation is
// a stub that always matches. That is a documented simplification of the
// override model, kept deliberately narrow rather than half-implemented.
func overrideApplies(octx *OverrideContext, t ActionType, ruleID string) bool {
	if octx == nil {
		return false
	}
	if octx.ActionType != t || octx.RuleID != ruleID {
		return false
	}
	return conditionMatches(octx.Condition)
}

// conditionMatches is the override-condition stub. Always true.
func conditionMatches(string) bool { return true }

// matchPattern matches target against pattern. A pattern delimited by slashes
// (/…/) compiles as a regular expression; anything else is a case-sensitive
// substring match. Invalid regexes never match and carry the parse error as
// the rule's reason.
func matchPattern(pattern, target string) (bool, string) {
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		expr := pattern[1 : len(pattern)-1]
		re, err := regexp.Compile(expr)
		if err != nil {
			return false, fmt.Sprintf("invalid regex %q: %v", expr, err)
		}
		if re.MatchString(target) {
			return true, fmt.Sprintf("regex %q matched", expr)
		}
		return false, fmt.Sprintf("regex %q did not match", expr)
	}
	if strings.Contains(target, pattern) {
		return true, fmt.Sprintf("substring %q matched", pattern)
	}
	return false, fmt.Sprintf("substring %q not found", pattern)
}
