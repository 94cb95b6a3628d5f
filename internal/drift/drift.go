package drift

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"warden/internal/logging"
	"warden/internal/policy"
)

// Per-family weights for the overall score. Trend signals that directly change
// what the agent may do weigh more than churn around the edges.
var signalWeights = map[SignalType]float64{
	SignalRuleChurn:            0.15,
	SignalOverrideEscalation:   0.20,
	SignalPermissionCreep:      0.20,
	SignalRestrictionCreep:     0.15,
	SignalFlipFlop:             0.20,
	SignalReviewerDisagreement: 0.10,
}

// Analyze runs the six signal detectors over the window and combines them into
// one weighted drift score. The trace set must be non-empty; an empty history
// is a misconfiguration, not a stable system.
func Analyze(traces []policy.PolicyTrace, recs []policy.Recommendation, reviews []policy.ReviewVerdict, snapshot policy.Policy, window time.Duration) (Analysis, error) {
	timer := logging.StartTimer(logging.CategoryDrift, "Analyze")
	defer timer.Stop()

	if len(traces) == 0 {
		return Analysis{}, policy.Errorf(policy.KindEmptyInput, "drift analysis requires at least one trace")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}

	ordered := make([]policy.PolicyTrace, len(traces))
	copy(ordered, traces)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var signals []Signal
	appendIf := func(s *Signal) {
		if s != nil {
			s.Severity = policy.Clamp01(s.Severity)
			s.Confidence = policy.Clamp01(s.Confidence)
			signals = append(signals, *s)
		}
	}
	appendIf(detectRuleChurn(recs, snapshot))
	appendIf(detectOverrideEscalation(ordered))
	appendIf(detectDecisionCreep(ordered, policy.DecisionAllow, SignalPermissionCreep, "share of allowed actions"))
	appendIf(detectDecisionCreep(ordered, policy.DecisionDeny, SignalRestrictionCreep, "share of denied actions"))
	appendIf(detectFlipFlop(ordered, window))
	appendIf(detectReviewerDisagreement(reviews))

	score := combine(signals)
	analysis := Analysis{
		Signals:           signals,
		OverallDriftScore: score,
		StabilityIndex:    policy.Clamp01(1 - score),
		Classification:    classify(score),
		WindowHours:       window.Hours(),
		GeneratedAt:       lastTimestamp(ordered),
	}
	analysis.Narrative = narrative(analysis, len(ordered))

	logging.Drift("analysis: %s (score %.3f, %d signals over %d traces)",
		analysis.Classification, score, len(signals), len(ordered))
	return analysis, nil
}

// combine folds signals into a weighted score. Each signal contributes
// severity x confidence x family weight, normalized by the full weight budget
// so silent families pull the score toward stable.
func combine(signals []Signal) float64 {
	var sum, total float64
	for _, w := range signalWeights {
		total += w
	}
	for _, s := range signals {
		sum += signalWeights[s.Type] * s.Severity * s.Confidence
	}
	if total == 0 {
		return 0
	}
	return policy.Clamp01(sum / total)
}

func classify(score float64) Classification {
	switch {
	case score < 0.25:
		return ClassStable
	case score < 0.50:
		return ClassWatch
	case score < 0.75:
		return ClassVolatile
	default:
		return ClassCritical
	}
}

// sampleConfidence grows with evidence volume and saturates around ten
// observations.
func sampleConfidence(n int) float64 {
	if n <= 0 {
		return 0
	}
	return policy.Clamp01(math.Log(float64(n)+1) / math.Log(11))
}

func detectRuleChurn(recs []policy.Recommendation, snapshot policy.Policy) *Signal {
	if len(recs) == 0 {
		return nil
	}
	ruleCount := len(snapshot.AllRules())
	if ruleCount == 0 {
		ruleCount = 1
	}
	ratio := float64(len(recs)) / float64(ruleCount)
	if ratio < 0.2 {
		return nil
	}
	return &Signal{
		Type:       SignalRuleChurn,
		Severity:   policy.Clamp01(ratio),
		Confidence: sampleConfidence(len(recs)),
		Description: fmt.Sprintf("%d pending rule changes against %d rules (churn ratio %.2f)",
			len(recs), ruleCount, ratio),
	}
}

func detectOverrideEscalation(ordered []policy.PolicyTrace) *Signal {
	first, second := splitHalves(ordered)
	r1 := overrideRate(first)
	r2 := overrideRate(second)
	overrides := 0
	for _, tr := range ordered {
		if tr.OverrideApplied {
			overrides++
		}
	}
	if overrides < 2 || r2 <= r1 {
		return nil
	}
	return &Signal{
		Type:       SignalOverrideEscalation,
		Severity:   policy.Clamp01((r2 - r1) * 2),
		Confidence: sampleConfidence(overrides),
		Description: fmt.Sprintf("override rate rose from %.0f%% to %.0f%% across the window",
			r1*100, r2*100),
	}
}

// detectDecisionCreep flags a rising share of one decision between window
// halves. Invoked once for allow (permission creep) and once for deny
// (restriction creep).
func detectDecisionCreep(ordered []policy.PolicyTrace, d policy.Decision, st SignalType, label string) *Signal {
	first, second := splitHalves(ordered)
	if len(first) == 0 || len(second) == 0 {
		return nil
	}
	f1 := decisionFraction(first, d)
	f2 := decisionFraction(second, d)
	delta := f2 - f1
	if delta <= 0.1 {
		return nil
	}
	return &Signal{
		Type:       st,
		Severity:   policy.Clamp01(delta * 2),
		Confidence: sampleConfidence(len(second)),
		Description: fmt.Sprintf("%s rose from %.0f%% to %.0f%% across the window",
			label, f1*100, f2*100),
	}
}

// detectFlipFlop buckets traces by window and counts rules whose effective
// decision toggles between adjacent buckets.
func detectFlipFlop(ordered []policy.PolicyTrace, window time.Duration) *Signal {
	if len(ordered) < 2 {
		return nil
	}
	start := ordered[0].Timestamp
	type bucketDecision map[string]policy.Decision
	buckets := map[int]bucketDecision{}
	maxBucket := 0
	for _, tr := range ordered {
		if tr.FinalRuleID == "" {
			continue
		}
		b := int(tr.Timestamp.Sub(start) / window)
		if buckets[b] == nil {
			buckets[b] = bucketDecision{}
		}
		// Last write wins inside a bucket; traces are time-ordered.
		buckets[b][tr.FinalRuleID] = tr.FinalDecision
		if b > maxBucket {
			maxBucket = b
		}
	}
	if maxBucket == 0 {
		return nil
	}

	toggles := 0
	flipped := map[string]bool{}
	for b := 1; b <= maxBucket; b++ {
		prev, cur := buckets[b-1], buckets[b]
		for rule, d := range cur {
			if pd, ok := prev[rule]; ok && pd != d {
				toggles++
				flipped[rule] = true
			}
		}
	}
	if toggles == 0 {
		return nil
	}
	names := make([]string, 0, len(flipped))
	for r := range flipped {
		names = append(names, r)
	}
	sort.Strings(names)
	return &Signal{
		Type:       SignalFlipFlop,
		Severity:   policy.Clamp01(float64(toggles) / float64(maxBucket+1)),
		Confidence: sampleConfidence(toggles),
		Description: fmt.Sprintf("effective decision toggled %d time(s) for rule(s) %s",
			toggles, strings.Join(names, ", ")),
	}
}

func detectReviewerDisagreement(reviews []policy.ReviewVerdict) *Signal {
	if len(reviews) < 2 {
		return nil
	}
	contested := 0
	for _, v := range reviews {
		if v.Decision == policy.ReviewReject || v.Decision == policy.ReviewRevise {
			contested++
		}
	}
	frac := float64(contested) / float64(len(reviews))
	if frac <= 0.3 {
		return nil
	}
	return &Signal{
		Type:       SignalReviewerDisagreement,
		Severity:   policy.Clamp01(frac),
		Confidence: sampleConfidence(len(reviews)),
		Description: fmt.Sprintf("%d of %d review verdicts rejected or requested revision",
			contested, len(reviews)),
	}
}

func splitHalves(ordered []policy.PolicyTrace) ([]policy.PolicyTrace, []policy.PolicyTrace) {
	mid := len(ordered) / 2
	return ordered[:mid], ordered[mid:]
}

func overrideRate(traces []policy.PolicyTrace) float64 {
	if len(traces) == 0 {
		return 0
	}
	n := 0
	for _, tr := range traces {
		if tr.OverrideApplied {
			n++
		}
	}
	return float64(n) / float64(len(traces))
}

func decisionFraction(traces []policy.PolicyTrace, d policy.Decision) float64 {
	if len(traces) == 0 {
		return 0
	}
	n := 0
	for _, tr := range traces {
		if tr.FinalDecision == d {
			n++
		}
	}
	return float64(n) / float64(len(traces))
}

func lastTimestamp(ordered []policy.PolicyTrace) time.Time {
	return ordered[len(ordered)-1].Timestamp
}

func narrative(a Analysis, traceCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Policy drift is %s: score %.2f (stability %.2f) over %d traces in a %.0fh window.",
		a.Classification, a.OverallDriftScore, a.StabilityIndex, traceCount, a.WindowHours)
	if len(a.Signals) == 0 {
		b.WriteString(" No instability signals fired.")
		return b.String()
	}
	top := make([]Signal, len(a.Signals))
	copy(top, a.Signals)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Severity*top[i].Confidence > top[j].Severity*top[j].Confidence
	})
	fmt.Fprintf(&b, " %d signal(s) fired; strongest is %s (severity %.2f): %s",
		len(top), top[0].Type, top[0].Severity, top[0].Description)
	return b.String()
}
