package policy

import (
	"testing"
	"time"
)

func testPolicy() Policy {
	return Policy{
		Commands: []Rule{
			{ID: "deny-rm", Pattern: "rm -rf", Mode: DecisionDeny, Priority: 200},
			{ID: "allow-git", Pattern: "git ", Mode: DecisionAllow, Priority: 100},
			{ID: "review-curl", Pattern: "/curl\\s+http/", Mode: DecisionReview, Priority: 50},
		},
		FileWrites: []Rule{
			{ID: "deny-env", Pattern: ".env", Mode: DecisionDeny, Priority: 150},
		},
		Sessions: []Rule{
			{ID: "allow-home", Pattern: "/home/", Mode: DecisionAllow, Priority: 10},
		},
		Defaults: Defaults{Commands: DecisionAllow, FileWrites: DecisionReview},
	}
}

func cmdAction(cmd string) Action {
	return Action{ID: "a1", Type: ActionRunCommand, Command: cmd, Timestamp: time.Unix(1700000000, 0)}
}

func TestEvaluate_Totality(t *testing.T) {
	pol := testPolicy()
	actions := []Action{
		cmdAction("git status"),
		{ID: "a2", Type: ActionWriteFile, Path: "src/main.go"},
		{ID: "a3", Type: ActionStart, ProjectPath: "/home/dev/proj"},
	}
	for _, a := range actions {
		res, err := Evaluate(a, nil, pol)
		if err != nil {
			t.Fatalf("Evaluate(%s): %v", a.Type, err)
		}
		if !res.Outcome.Valid() {
			t.Errorf("Evaluate(%s) returned invalid outcome %q", a.Type, res.Outcome)
		}
	}
}

func TestEvaluate_UnknownActionType(t *testing.T) {
	_, err := Evaluate(Action{ID: "x", Type: "teleport"}, nil, testPolicy())
	if err == nil {
		t.Fatal("expected error for unknown action type")
	}
	if !IsKind(err, KindInvalidAction) {
		t.Errorf("expected INVALID_ACTION, got %v", err)
	}
}

func TestEvaluate_PriorityWins(t *testing.T) {
	// Both rules match "rm -rf git-cache"; priority 200 deny must win even
	// though the allow rule also matches.
	res, err := Evaluate(cmdAction("git rm -rf cache"), nil, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionDeny {
		t.Errorf("expected deny from priority-200 rule, got %s", res.Outcome)
	}
	if res.Trace.FinalRuleID != "deny-rm" {
		t.Errorf("expected winner deny-rm, got %s", res.Trace.FinalRuleID)
	}
}

func TestEvaluate_PriorityTieBreakIsStable(t *testing.T) {
	pol := Policy{Commands: []Rule{
		{ID: "first", Pattern: "build", Mode: DecisionAllow, Priority: 100},
		{ID: "second", Pattern: "build", Mode: DecisionDeny, Priority: 100},
	}}
	res, err := Evaluate(cmdAction("make build"), nil, pol)
	if err != nil {
		t.Fatal(err)
	}
	if res.Trace.FinalRuleID != "first" {
		t.Errorf("tie should resolve to original order, got %s", res.Trace.FinalRuleID)
	}
	if res.Outcome != DecisionAllow {
		t.Errorf("expected allow from first rule, got %s", res.Outcome)
	}

	// Same pair at different priorities: the higher one wins regardless of
	// array order.
	pol.Commands[0].Priority = 50
	res, err = Evaluate(cmdAction("make build"), nil, pol)
	if err != nil {
		t.Fatal(err)
	}
	if res.Trace.FinalRuleID != "second" {
		t.Errorf("priority 100 should beat 50 regardless of order, got %s", res.Trace.FinalRuleID)
	}
}

func TestEvaluate_DefaultFallback(t *testing.T) {
	pol := testPolicy()

	res, err := Evaluate(cmdAction("ls -la"), nil, pol)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionAllow {
		t.Errorf("commands default should be allow, got %s", res.Outcome)
	}
	if res.Trace.FinalRuleID != "" {
		t.Errorf("no rule should have won, got %s", res.Trace.FinalRuleID)
	}

	res, err = Evaluate(Action{ID: "w", Type: ActionWriteFile, Path: "docs/notes.md"}, nil, pol)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionReview {
		t.Errorf("fileWrites default should be review, got %s", res.Outcome)
	}

	// Unset category default resolves to allow.
	res, err = Evaluate(Action{ID: "s", Type: ActionStart, ProjectPath: "/tmp/x"}, nil, pol)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionAllow {
		t.Errorf("unset sessions default should be allow, got %s", res.Outcome)
	}
}

func TestEvaluate_RegexPattern(t *testing.T) {
	res, err := Evaluate(cmdAction("curl  https://example.com"), nil, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionReview {
		t.Errorf("regex rule should match, got %s", res.Outcome)
	}
}

func TestEvaluate_InvalidRegexNeverMatches(t *testing.T) {
	pol := Policy{Commands: []Rule{
		{ID: "broken", Pattern: "/([unclosed/", Mode: DecisionDeny, Priority: 500},
	}, Defaults: Defaults{Commands: DecisionAllow}}
	res, err := Evaluate(cmdAction("anything"), nil, pol)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionAllow {
		t.Errorf("invalid regex must not match, got %s", res.Outcome)
	}
	if len(res.Trace.EvaluatedRules) != 1 || res.Trace.EvaluatedRules[0].Matched {
		t.Fatal("broken rule should be recorded as unmatched")
	}
	if res.Trace.EvaluatedRules[0].Reason == "" {
		t.Error("unmatched broken rule should carry the parse error as reason")
	}
}

func TestEvaluate_TraceRecordsAllCandidates(t *testing.T) {
	res, err := Evaluate(cmdAction("git push"), nil, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if got := len(res.Trace.EvaluatedRules); got != 3 {
		t.Fatalf("expected all 3 command rules in trace, got %d", got)
	}
	matched := 0
	for _, re := range res.Trace.EvaluatedRules {
		if re.Reason == "" {
			t.Errorf("rule %s has empty reason", re.RuleID)
		}
		if re.Matched {
			matched++
		}
	}
	if matched != 1 {
		t.Errorf("expected exactly 1 matched rule, got %d", matched)
	}
}

func TestEvaluate_OverrideReplacesWinningRuleMode(t *testing.T) {
	octx := &OverrideContext{
		ActionType: ActionRunCommand,
		RuleID:     "deny-rm",
		Mode:       DecisionReview,
		Reason:     "operator requested manual review",
	}
	res, err := Evaluate(cmdAction("rm -rf build/"), octx, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionReview {
		t.Errorf("override should replace deny with review, got %s", res.Outcome)
	}
	if !res.Trace.OverrideApplied || res.Trace.OverrideContext == nil {
		t.Error("trace should record the applied override")
	}
}

func TestEvaluate_OverrideIgnoredForOtherRule(t *testing.T) {
	octx := &OverrideContext{ActionType: ActionRunCommand, RuleID: "allow-git", Mode: DecisionDeny}
	res, err := Evaluate(cmdAction("rm -rf build/"), octx, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionDeny {
		t.Errorf("override names a different rule and must not apply, got %s", res.Outcome)
	}
	if res.Trace.OverrideApplied {
		t.Error("override should not be flagged as applied")
	}
}

func TestEvaluate_OverrideIgnoredForOtherActionType(t *testing.T) {
	octx := &OverrideContext{ActionType: ActionWriteFile, RuleID: "deny-rm", Mode: DecisionAllow}
	res, err := Evaluate(cmdAction("rm -rf build/"), octx, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != DecisionDeny {
		t.Errorf("override for another action type must not apply, got %s", res.Outcome)
	}
}

func TestNormalizeDecision(t *testing.T) {
	cases := map[string]Decision{
		"allow": DecisionAllow, "ALLOW": DecisionAllow, " Deny ": DecisionDeny,
		"Review": DecisionReview, "maybe": "", "": "",
	}
	for in, want := range cases {
		if got := NormalizeDecision(in); got != want {
			t.Errorf("NormalizeDecision(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTraceSummaries(t *testing.T) {
	res, err := Evaluate(cmdAction("git push"), nil, testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if res.Trace.Summary == "" || res.Trace.Detail == "" {
		t.Fatal("both summaries must be rendered")
	}
	if len(res.Trace.Summary) >= len(res.Trace.Detail) {
		t.Error("terse summary should be shorter than the detailed one")
	}
	if res.Trace.Target != "git push" {
		t.Errorf("trace should carry the structured target, got %q", res.Trace.Target)
	}
}
