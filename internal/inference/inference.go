// Package inference mines policy traces for recurring friction and proposes
// rule changes. Each detector is independent; running the engine twice on the
// same input yields byte-identical recommendations, including their ids.
package inference

import (
	"fmt"
	"hash/fnv"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"

	"warden/internal/logging"
	"warden/internal/policy"
)

// Detector thresholds and proposed-rule priorities.
const (
	frequentDenyMin     = 3
	frequentOverrideMin = 2
	reviewLoopMin       = 3
	pathTemplateMin     = 3
	unusedRuleMaxFreq   = 0.01

	priorityFrequentDeny = 150
	priorityReviewLoop   = 120
	priorityPathTemplate = 100
)

// Metadata carries the context the detectors need beyond the traces.
type Metadata struct {
	ProjectID string
	Policy    policy.Policy
}

// Result is the full inference output.
type Result struct {
	Recommendations []policy.Recommendation `json:"recommendations"`
	Insights        []string                `json:"insights"`
	AISummary       string                  `json:"aiSummary"`
}

// Infer runs every detector over the trace set. An empty trace set is a valid
// input here: there is simply nothing to infer, and the result says so.
func Infer(traces []policy.PolicyTrace, meta Metadata) (Result, error) {
	timer := logging.StartTimer(logging.CategoryInference, "Infer")
	defer timer.Stop()

	var recs []policy.Recommendation
	var insights []string

	collect := func(r []policy.Recommendation, note string) {
		recs = append(recs, r...)
		if len(r) > 0 && note != "" {
			insights = append(insights, note)
		}
	}

	fd := detectFrequentDeny(traces)
	collect(fd, pluralNote(len(fd), "recurring denial pattern"))
	fo := detectFrequentOverride(traces)
	collect(fo, pluralNote(len(fo), "repeated override pattern"))
	rl := detectReviewLoop(traces)
	collect(rl, pluralNote(len(rl), "review loop"))
	ur := detectUnusedRules(traces, meta.Policy)
	collect(ur, pluralNote(len(ur), "unused rule"))
	pt := detectPathTemplates(traces)
	collect(pt, pluralNote(len(pt), "templatable write-file directory"))

	res := Result{
		Recommendations: recs,
		Insights:        insights,
		AISummary:       summarize(recs, len(traces)),
	}
	logging.Inference("inferred %d recommendation(s) from %d traces", len(recs), len(traces))
	return res, nil
}

// Confidence is monotonic in count, bounded to [0,1]:
// min(1, ln(count+1)/ln(total+10)).
func Confidence(count, total int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(1, math.Log(float64(count)+1)/math.Log(float64(total)+10))
}

// RecommendationID derives a stable id from the recommendation content and the
// trace count: FNV-1a 32-bit of the content, base-36, left-padded to 8 chars,
// prefixed by the trace count. Fixed-width hashing keeps the ids identical
// across runtimes; identical input always reproduces the same id.
func RecommendationID(content string, traceCount int) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(content))
	enc := strconv.FormatUint(uint64(h.Sum32()), 36)
	for len(enc) < 8 {
		enc = "0" + enc
	}
	return fmt.Sprintf("%d-%s", traceCount, enc)
}

func newRecommendation(traces []policy.PolicyTrace, t policy.RecommendationType, reason string, rule policy.Rule, affected []string, count int) policy.Recommendation {
	content := strings.Join([]string{string(t), reason, rule.Pattern, string(rule.Mode), strconv.Itoa(rule.Priority)}, "|")
	return policy.Recommendation{
		ID:              RecommendationID(content, len(traces)),
		Type:            t,
		Reason:          reason,
		AffectedActions: affected,
		ProposedRule:    rule,
		Confidence:      Confidence(count, len(traces)),
	}
}

// detectFrequentDeny proposes an allow rule when three or more denials share
// the same match reason: the agent keeps running into the same wall.
func detectFrequentDeny(traces []policy.PolicyTrace) []policy.Recommendation {
	groups := map[string][]policy.PolicyTrace{}
	for _, tr := range traces {
		if tr.FinalDecision != policy.DecisionDeny {
			continue
		}
		key := winnerReason(tr)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], tr)
	}

	var recs []policy.Recommendation
	for _, key := range sortedKeys(groups) {
		g := groups[key]
		if len(g) < frequentDenyMin {
			continue
		}
		win := winnerEvaluation(g[0])
		pattern := g[0].Target
		if win != nil {
			pattern = win.Pattern
		}
		rule := policy.Rule{
			ID:       "auto-allow-" + shortSlug(key),
			Pattern:  pattern,
			Mode:     policy.DecisionAllow,
			Priority: priorityFrequentDeny,
		}
		reason := fmt.Sprintf("%d actions denied for the same reason (%s); consider allowing explicitly", len(g), key)
		recs = append(recs, newRecommendation(traces, policy.RecommendationAddRule, reason, rule, actionIDs(g), len(g)))
	}
	return recs
}

// detectFrequentOverride proposes modifying a rule whose decision operators
// keep overriding for the same stated reason.
func detectFrequentOverride(traces []policy.PolicyTrace) []policy.Recommendation {
	groups := map[string][]policy.PolicyTrace{}
	for _, tr := range traces {
		if !tr.OverrideApplied || tr.OverrideContext == nil || tr.FinalRuleID == "" {
			continue
		}
		key := tr.FinalRuleID + "|" + tr.OverrideContext.Reason
		groups[key] = append(groups[key], tr)
	}

	var recs []policy.Recommendation
	for _, key := range sortedKeys(groups) {
		g := groups[key]
		if len(g) < frequentOverrideMin {
			continue
		}
		win := winnerEvaluation(g[0])
		pattern := g[0].Target
		if win != nil {
			pattern = win.Pattern
		}
		rule := policy.Rule{
			ID:       g[0].FinalRuleID,
			Pattern:  pattern,
			Mode:     g[0].FinalDecision,
			Priority: winnerPriority(g[0]),
		}
		reason := fmt.Sprintf("rule %s overridden %d times (%s); its mode no longer reflects practice",
			g[0].FinalRuleID, len(g), g[0].OverrideContext.Reason)
		recs = append(recs, newRecommendation(traces, policy.RecommendationModifyRule, reason, rule, actionIDs(g), len(g)))
	}
	return recs
}

// detectReviewLoop formalizes an allow when the same kind of action keeps
// landing in manual review.
func detectReviewLoop(traces []policy.PolicyTrace) []policy.Recommendation {
	groups := map[string][]policy.PolicyTrace{}
	for _, tr := range traces {
		if tr.FinalDecision != policy.DecisionReview {
			continue
		}
		groups[tr.Summary] = append(groups[tr.Summary], tr)
	}

	var recs []policy.Recommendation
	for _, key := range sortedKeys(groups) {
		g := groups[key]
		if len(g) < reviewLoopMin {
			continue
		}
		pattern := g[0].Target
		if win := winnerEvaluation(g[0]); win != nil {
			pattern = win.Pattern
		}
		rule := policy.Rule{
			ID:       "auto-formalize-" + shortSlug(key),
			Pattern:  pattern,
			Mode:     policy.DecisionAllow,
			Priority: priorityReviewLoop,
		}
		reason := fmt.Sprintf("%d actions repeatedly held for review (%s); formalize the outcome as a rule", len(g), key)
		recs = append(recs, newRecommendation(traces, policy.RecommendationAddRule, reason, rule, actionIDs(g), len(g)))
	}
	return recs
}

// detectUnusedRules proposes removing rules that matched fewer than 1% of the
// observed actions.
func detectUnusedRules(traces []policy.PolicyTrace, snapshot policy.Policy) []policy.Recommendation {
	if len(traces) == 0 {
		return nil
	}
	matches := map[string]int{}
	for _, tr := range traces {
		for _, re := range tr.EvaluatedRules {
			if re.Matched {
				matches[re.RuleID]++
			}
		}
	}

	var recs []policy.Recommendation
	for _, r := range snapshot.AllRules() {
		freq := float64(matches[r.ID]) / float64(len(traces))
		if freq >= unusedRuleMaxFreq {
			continue
		}
		reason := fmt.Sprintf("rule %s matched %.1f%% of %d traces; it carries maintenance cost without effect",
			r.ID, freq*100, len(traces))
		recs = append(recs, newRecommendation(traces, policy.RecommendationRemoveRule, reason, r, nil, matches[r.ID]+1))
	}
	return recs
}

// detectPathTemplates groups write-file traces by parent directory and
// proposes a directory-scoped rule using the majority observed decision.
func detectPathTemplates(traces []policy.PolicyTrace) []policy.Recommendation {
	groups := map[string][]policy.PolicyTrace{}
	for _, tr := range traces {
		if tr.ActionType != policy.ActionWriteFile || tr.Target == "" {
			continue
		}
		dir := path.Dir(tr.Target)
		if dir == "." || dir == "/" {
			continue
		}
		groups[dir] = append(groups[dir], tr)
	}

	var recs []policy.Recommendation
	for _, dir := range sortedKeys(groups) {
		g := groups[dir]
		if len(g) < pathTemplateMin {
			continue
		}
		mode := majorityDecision(g)
		rule := policy.Rule{
			ID:       "auto-dir-" + shortSlug(dir),
			Pattern:  dir + "/",
			Mode:     mode,
			Priority: priorityPathTemplate,
		}
		reason := fmt.Sprintf("%d writes under %s all resolved case by case; a directory-scoped %s rule covers them",
			len(g), dir, mode)
		recs = append(recs, newRecommendation(traces, policy.RecommendationAddRule, reason, rule, actionIDs(g), len(g)))
	}
	return recs
}

func majorityDecision(traces []policy.PolicyTrace) policy.Decision {
	counts := map[policy.Decision]int{}
	for _, tr := range traces {
		counts[tr.FinalDecision]++
	}
	best := policy.DecisionAllow
	bestN := -1
	// Fixed iteration order keeps ties deterministic.
	for _, d := range []policy.Decision{policy.DecisionAllow, policy.DecisionReview, policy.DecisionDeny} {
		if counts[d] > bestN {
			best, bestN = d, counts[d]
		}
	}
	return best
}

func winnerEvaluation(tr policy.PolicyTrace) *policy.RuleEvaluation {
	if tr.FinalRuleID == "" {
		return nil
	}
	for i := range tr.EvaluatedRules {
		if tr.EvaluatedRules[i].RuleID == tr.FinalRuleID {
			return &tr.EvaluatedRules[i]
		}
	}
	return nil
}

func winnerReason(tr policy.PolicyTrace) string {
	if win := winnerEvaluation(tr); win != nil {
		return win.Reason
	}
	return tr.Summary
}

func winnerPriority(tr policy.PolicyTrace) int {
	if win := winnerEvaluation(tr); win != nil {
		return win.Priority
	}
	return 0
}

func actionIDs(traces []policy.PolicyTrace) []string {
	ids := make([]string, 0, len(traces))
	for _, tr := range traces {
		ids = append(ids, tr.ActionID)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string][]policy.PolicyTrace) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shortSlug derives a compact stable identifier fragment from free text.
func shortSlug(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}

func pluralNote(n int, what string) string {
	if n == 0 {
		return ""
	}
	if n == 1 {
		return fmt.Sprintf("detected 1 %s", what)
	}
	return fmt.Sprintf("detected %d %ss", n, what)
}

func summarize(recs []policy.Recommendation, traceCount int) string {
	if len(recs) == 0 {
		return fmt.Sprintf("No policy changes inferred from %d traces; observed behavior matches the current rule set.", traceCount)
	}
	byType := map[policy.RecommendationType]int{}
	for _, r := range recs {
		byType[r.Type]++
	}
	return fmt.Sprintf("Inferred %d recommendation(s) from %d traces: %d addition(s), %d modification(s), %d removal(s).",
		len(recs), traceCount,
		byType[policy.RecommendationAddRule], byType[policy.RecommendationModifyRule], byType[policy.RecommendationRemoveRule])
}
