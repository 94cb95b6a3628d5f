package inference

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"warden/internal/policy"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func denyTrace(id, target, ruleID, reason string) policy.PolicyTrace {
	return policy.PolicyTrace{
		ActionID:      id,
		ActionType:    policy.ActionRunCommand,
		Target:        target,
		Timestamp:     base,
		FinalDecision: policy.DecisionDeny,
		FinalRuleID:   ruleID,
		EvaluatedRules: []policy.RuleEvaluation{
			{RuleID: ruleID, Pattern: target, Matched: true, Reason: reason, Priority: 100, Effect: policy.DecisionDeny},
		},
	}
}

func writeTrace(id, path string, d policy.Decision) policy.PolicyTrace {
	return policy.PolicyTrace{
		ActionID:      id,
		ActionType:    policy.ActionWriteFile,
		Target:        path,
		Timestamp:     base,
		FinalDecision: d,
	}
}

func TestConfidence_MonotonicAndBounded(t *testing.T) {
	total := 50
	prev := 0.0
	for count := 0; count <= total; count++ {
		c := Confidence(count, total)
		if c < 0 || c > 1 {
			t.Fatalf("Confidence(%d,%d) = %f out of [0,1]", count, total, c)
		}
		if c < prev {
			t.Fatalf("Confidence not monotonic at count=%d: %f < %f", count, c, prev)
		}
		prev = c
	}
	if Confidence(1000, 10) != 1 {
		t.Error("confidence should saturate at 1")
	}
}

func TestRecommendationID_Stable(t *testing.T) {
	a := RecommendationID("add-rule|reason|pattern|allow|150", 42)
	b := RecommendationID("add-rule|reason|pattern|allow|150", 42)
	if a != b {
		t.Fatalf("same content must give same id: %s vs %s", a, b)
	}
	if RecommendationID("other", 42) == a {
		t.Error("different content should give different ids")
	}
	if RecommendationID("add-rule|reason|pattern|allow|150", 43) == a {
		t.Error("trace count is part of the id")
	}
	// <count>-<8 base36 chars>
	if len(a) != len("42-")+8 {
		t.Errorf("unexpected id shape: %s", a)
	}
}

func TestInfer_Idempotent(t *testing.T) {
	traces := []policy.PolicyTrace{
		denyTrace("a1", "npm publish", "deny-publish", "substring \"publish\" matched"),
		denyTrace("a2", "npm publish", "deny-publish", "substring \"publish\" matched"),
		denyTrace("a3", "npm publish", "deny-publish", "substring \"publish\" matched"),
		writeTrace("w1", "build/out/a.js", policy.DecisionAllow),
		writeTrace("w2", "build/out/b.js", policy.DecisionAllow),
		writeTrace("w3", "build/out/c.js", policy.DecisionReview),
	}
	meta := Metadata{ProjectID: "p1"}

	r1, err := Infer(traces, meta)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Infer(traces, meta)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Fatalf("Infer is not idempotent (-first +second):\n%s", diff)
	}
}

func TestInfer_FrequentDeny(t *testing.T) {
	traces := []policy.PolicyTrace{
		denyTrace("a1", "npm publish", "deny-publish", "substring \"publish\" matched"),
		denyTrace("a2", "npm publish", "deny-publish", "substring \"publish\" matched"),
		denyTrace("a3", "npm publish", "deny-publish", "substring \"publish\" matched"),
	}
	res, err := Infer(traces, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	rec := findByType(res.Recommendations, policy.RecommendationAddRule)
	if rec == nil {
		t.Fatalf("expected add-rule recommendation, got %+v", res.Recommendations)
	}
	if rec.ProposedRule.Mode != policy.DecisionAllow || rec.ProposedRule.Priority != 150 {
		t.Errorf("frequent-deny should propose allow@150, got %s@%d", rec.ProposedRule.Mode, rec.ProposedRule.Priority)
	}
	if len(rec.AffectedActions) != 3 {
		t.Errorf("expected 3 affected actions, got %d", len(rec.AffectedActions))
	}
}

func TestInfer_TwoDenialsBelowThreshold(t *testing.T) {
	traces := []policy.PolicyTrace{
		denyTrace("a1", "npm publish", "deny-publish", "substring \"publish\" matched"),
		denyTrace("a2", "npm publish", "deny-publish", "substring \"publish\" matched"),
	}
	res, err := Infer(traces, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if rec := findByType(res.Recommendations, policy.RecommendationAddRule); rec != nil {
		t.Errorf("two denials must not trigger frequent-deny: %+v", rec)
	}
}

func TestInfer_FrequentOverride(t *testing.T) {
	octx := &policy.OverrideContext{ActionType: policy.ActionRunCommand, RuleID: "deny-docker", Mode: policy.DecisionAllow, Reason: "ci needs docker"}
	mk := func(id string) policy.PolicyTrace {
		tr := denyTrace(id, "docker build .", "deny-docker", "substring \"docker\" matched")
		tr.OverrideApplied = true
		tr.OverrideContext = octx
		tr.FinalDecision = policy.DecisionAllow
		return tr
	}
	res, err := Infer([]policy.PolicyTrace{mk("a1"), mk("a2")}, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	rec := findByType(res.Recommendations, policy.RecommendationModifyRule)
	if rec == nil {
		t.Fatalf("expected modify-rule from two matching overrides, got %+v", res.Recommendations)
	}
	if rec.ProposedRule.ID != "deny-docker" || rec.ProposedRule.Mode != policy.DecisionAllow {
		t.Errorf("modification should target deny-docker with the overriding mode, got %+v", rec.ProposedRule)
	}
}

func TestInfer_ReviewLoop(t *testing.T) {
	mk := func(id string) policy.PolicyTrace {
		tr := writeTrace(id, "deploy/config.yaml", policy.DecisionReview)
		tr.Summary = "write-file held for review by rule review-deploy"
		return tr
	}
	res, err := Infer([]policy.PolicyTrace{mk("a1"), mk("a2"), mk("a3")}, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	rec := findByType(res.Recommendations, policy.RecommendationAddRule)
	if rec == nil {
		t.Fatal("expected review-loop add-rule recommendation")
	}
	if rec.ProposedRule.Priority != 120 || rec.ProposedRule.Mode != policy.DecisionAllow {
		t.Errorf("review-loop should formalize allow@120, got %s@%d", rec.ProposedRule.Mode, rec.ProposedRule.Priority)
	}
}

func TestInfer_UnusedRule(t *testing.T) {
	var traces []policy.PolicyTrace
	for i := 0; i < 120; i++ {
		traces = append(traces, denyTrace(
			"a"+string(rune('0'+i%10))+string(rune('a'+i/10)),
			"npm test", "deny-test", "substring matched"))
	}
	snapshot := policy.Policy{Commands: []policy.Rule{
		{ID: "deny-test", Pattern: "npm test", Mode: policy.DecisionDeny, Priority: 10},
		{ID: "never-used", Pattern: "zz-nothing", Mode: policy.DecisionDeny, Priority: 5},
	}}
	res, err := Infer(traces, Metadata{Policy: snapshot})
	if err != nil {
		t.Fatal(err)
	}
	rec := findByType(res.Recommendations, policy.RecommendationRemoveRule)
	if rec == nil {
		t.Fatal("expected remove-rule for never-used")
	}
	if rec.ProposedRule.ID != "never-used" {
		t.Errorf("expected never-used removal, got %s", rec.ProposedRule.ID)
	}
}

func TestInfer_PathTemplating(t *testing.T) {
	traces := []policy.PolicyTrace{
		writeTrace("w1", "src/gen/a.go", policy.DecisionAllow),
		writeTrace("w2", "src/gen/b.go", policy.DecisionAllow),
		writeTrace("w3", "src/gen/c.go", policy.DecisionReview),
	}
	res, err := Infer(traces, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	rec := findByType(res.Recommendations, policy.RecommendationAddRule)
	if rec == nil {
		t.Fatal("expected directory-scoped recommendation")
	}
	if rec.ProposedRule.Pattern != "src/gen/" {
		t.Errorf("expected pattern src/gen/, got %q", rec.ProposedRule.Pattern)
	}
	if rec.ProposedRule.Mode != policy.DecisionAllow {
		t.Errorf("majority decision is allow, got %s", rec.ProposedRule.Mode)
	}
	if rec.ProposedRule.Priority != 100 {
		t.Errorf("expected priority 100, got %d", rec.ProposedRule.Priority)
	}
}

func TestInfer_EmptyTraces(t *testing.T) {
	res, err := Infer(nil, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Recommendations) != 0 {
		t.Errorf("no traces, no recommendations: %+v", res.Recommendations)
	}
	if res.AISummary == "" {
		t.Error("summary should still state that nothing was inferred")
	}
}

func findByType(recs []policy.Recommendation, t policy.RecommendationType) *policy.Recommendation {
	for i := range recs {
		if recs[i].Type == t {
			return &recs[i]
		}
	}
	return nil
}
