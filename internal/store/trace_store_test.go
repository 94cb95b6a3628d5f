package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/policy"
)

func openTestStore(t *testing.T) *TraceStore {
	t.Helper()
	ts, err := Open(filepath.Join(t.TempDir(), "data", "warden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ts.Close() })
	return ts
}

func trace(id string, typ policy.ActionType, decision policy.Decision, at time.Time) policy.PolicyTrace {
	return policy.PolicyTrace{
		ActionID:      id,
		ActionType:    typ,
		Target:        "target-" + id,
		Timestamp:     at,
		FinalDecision: decision,
		FinalRuleID:   "rule-1",
		Summary:       "summary " + id,
	}
}

func TestArchiveAndRecent(t *testing.T) {
	ts := openTestStore(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, ts.Archive(trace("a1", policy.ActionRunCommand, policy.DecisionAllow, base)))
	require.NoError(t, ts.Archive(trace("a2", policy.ActionWriteFile, policy.DecisionDeny, base.Add(time.Minute))))
	require.NoError(t, ts.Archive(trace("a3", policy.ActionRunCommand, policy.DecisionReview, base.Add(2*time.Minute))))

	got, err := ts.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a3", got[0].ActionID, "newest first")
	assert.Equal(t, "a2", got[1].ActionID)

	n, err := ts.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestArchive_RoundTripsFullTrace(t *testing.T) {
	ts := openTestStore(t)
	in := trace("a1", policy.ActionRunCommand, policy.DecisionDeny, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	in.EvaluatedRules = []policy.RuleEvaluation{
		{RuleID: "rule-1", Matched: true, Reason: `pattern "rm -rf" matched`},
		{RuleID: "rule-2", Matched: false, Reason: "pattern not found"},
	}
	in.Detail = "full detail text"
	require.NoError(t, ts.Archive(in))

	got, err := ts.Recent(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in.EvaluatedRules, got[0].EvaluatedRules)
	assert.Equal(t, in.Detail, got[0].Detail)
	assert.Equal(t, in.Target, got[0].Target)
}

func TestArchive_DuplicateActionID(t *testing.T) {
	ts := openTestStore(t)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, ts.Archive(trace("a1", policy.ActionRunCommand, policy.DecisionAllow, at)))
	require.Error(t, ts.Archive(trace("a1", policy.ActionRunCommand, policy.DecisionAllow, at)),
		"archive is insert-only; duplicate ids must fail")
}

func TestByActionTypeAndDecision(t *testing.T) {
	ts := openTestStore(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, ts.Archive(trace("a1", policy.ActionRunCommand, policy.DecisionAllow, base)))
	require.NoError(t, ts.Archive(trace("a2", policy.ActionWriteFile, policy.DecisionDeny, base.Add(time.Minute))))
	require.NoError(t, ts.Archive(trace("a3", policy.ActionRunCommand, policy.DecisionDeny, base.Add(2*time.Minute))))

	cmds, err := ts.ByActionType(policy.ActionRunCommand, 10)
	require.NoError(t, err)
	require.Len(t, cmds, 2)

	denies, err := ts.ByDecision(policy.DecisionDeny, 10)
	require.NoError(t, err)
	require.Len(t, denies, 2)
	assert.Equal(t, "a3", denies[0].ActionID)
}

func TestSince(t *testing.T) {
	ts := openTestStore(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, ts.Archive(trace("old", policy.ActionRunCommand, policy.DecisionAllow, base)))
	require.NoError(t, ts.Archive(trace("new", policy.ActionRunCommand, policy.DecisionAllow, base.Add(time.Hour))))

	got, err := ts.Since(base.Add(30 * time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ActionID)

	all, err := ts.Since(base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "old", all[0].ActionID, "oldest first")
}
