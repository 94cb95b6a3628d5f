package federated

import (
	"math"
	"testing"

	"warden/internal/policy"
)

func snapshot(id string, drift float64, rules ...policy.Rule) Snapshot {
	return Snapshot{
		ProjectID:  id,
		DriftScore: drift,
		Policy:     policy.Policy{Commands: rules},
	}
}

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	v := Embed(policy.Policy{Commands: []policy.Rule{
		{ID: "r1", Pattern: "git ", Mode: policy.DecisionAllow, Priority: 100},
		{ID: "r2", Pattern: "rm -rf", Mode: policy.DecisionDeny, Priority: 200},
	}})
	if got := CosineSimilarity(v, v); math.Abs(got-1) > 1e-9 {
		t.Errorf("CosineSimilarity(v,v) = %f, want 1", got)
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	p := policy.Policy{
		Commands:   []policy.Rule{{ID: "a", Pattern: "x", Mode: policy.DecisionDeny, Priority: 10}},
		FileWrites: []policy.Rule{{ID: "b", Pattern: ".env", Mode: policy.DecisionDeny, Priority: 50}},
	}
	v1, v2 := Embed(p), Embed(p)
	if len(v1) != VectorDim {
		t.Fatalf("expected %d-length vector, got %d", VectorDim, len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("identical policy must embed identically, differs at %d", i)
		}
	}
}

func TestComputeHealth_EmptyInput(t *testing.T) {
	_, err := ComputeHealth(nil, 0.5, 0.3)
	if err == nil {
		t.Fatal("expected error on empty snapshot set")
	}
	if !policy.IsKind(err, policy.KindEmptyInput) {
		t.Errorf("expected EMPTY_INPUT, got %v", err)
	}
}

func TestCluster_ThresholdBehavior(t *testing.T) {
	ids := []string{"p1", "p2"}
	high := [][]float64{{1, 0.8}, {0.8, 1}}
	low := [][]float64{{1, 0.1}, {0.1, 1}}

	if got := cluster(ids, high, 0.5); len(got) != 1 {
		t.Errorf("similarity 0.8 at threshold 0.5 should form one cluster, got %d", len(got))
	}
	if got := cluster(ids, low, 0.5); len(got) != 2 {
		t.Errorf("similarity 0.1 at threshold 0.5 should stay separate, got %d", len(got))
	}
}

func TestComputeHealth_MatrixShape(t *testing.T) {
	shared := policy.Rule{ID: "r1", Pattern: "git ", Mode: policy.DecisionAllow, Priority: 100}
	h, err := ComputeHealth([]Snapshot{
		snapshot("p1", 0.1, shared),
		snapshot("p2", 0.4, shared),
		snapshot("p3", 0.7, policy.Rule{ID: "x", Pattern: "docker", Mode: policy.DecisionDeny, Priority: 10}),
	}, 0.5, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	n := len(h.ProjectIDs)
	if len(h.SimilarityMatrix) != n {
		t.Fatalf("matrix has %d rows for %d projects", len(h.SimilarityMatrix), n)
	}
	for i := 0; i < n; i++ {
		if h.SimilarityMatrix[i][i] != 1 {
			t.Errorf("diagonal [%d][%d] = %f, want 1", i, i, h.SimilarityMatrix[i][i])
		}
		for j := 0; j < n; j++ {
			if h.SimilarityMatrix[i][j] != h.SimilarityMatrix[j][i] {
				t.Errorf("matrix not symmetric at [%d][%d]", i, j)
			}
			if s := h.SimilarityMatrix[i][j]; s < 0 || s > 1 {
				t.Errorf("similarity out of [0,1]: %f", s)
			}
		}
	}
}

func TestComputeHealth_IdenticalPoliciesFormOneCluster(t *testing.T) {
	shared := policy.Rule{ID: "r1", Pattern: "git ", Mode: policy.DecisionAllow, Priority: 100}
	h, err := ComputeHealth([]Snapshot{
		snapshot("p1", 0.1, shared),
		snapshot("p2", 0.2, shared),
		snapshot("p3", 0.3, shared),
	}, 0.5, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Clusters) != 1 {
		t.Fatalf("identical policies should form one cluster, got %d", len(h.Clusters))
	}
	if len(h.Outliers) != 0 {
		t.Errorf("no outliers expected, got %v", h.Outliers)
	}
	if h.SystemStabilityScore != 1 {
		t.Errorf("one all-encompassing cluster with zero outliers should score 1, got %f", h.SystemStabilityScore)
	}
}

func TestComputeHealth_StabilityDegrades(t *testing.T) {
	if stabilityScore(1, 0) != 1 {
		t.Error("single cluster, no outliers should score 1")
	}
	if stabilityScore(3, 0) >= stabilityScore(2, 0) {
		t.Error("more clusters must score lower")
	}
	if stabilityScore(1, 2) >= stabilityScore(1, 1) {
		t.Error("more outliers must score lower")
	}
	if s := stabilityScore(10, 10); s != 0 {
		t.Errorf("score must clamp at 0, got %f", s)
	}
}

func TestConsensus_MajorityRule(t *testing.T) {
	shared := policy.Rule{ID: "r1", Pattern: "rm -rf", Mode: policy.DecisionDeny, Priority: 200}
	rare := policy.Rule{ID: "r2", Pattern: "sudo", Mode: policy.DecisionReview, Priority: 150}
	h, err := ComputeHealth([]Snapshot{
		snapshot("p1", 0.1, shared, rare),
		snapshot("p2", 0.1, shared),
		snapshot("p3", 0.1, shared),
	}, 0.5, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Consensus.Baseline) != 1 {
		t.Fatalf("expected exactly the shared rule in baseline consensus, got %+v", h.Consensus.Baseline)
	}
	got := h.Consensus.Baseline[0]
	if got.Rule.Pattern != "rm -rf" || got.Category != "commands" {
		t.Errorf("unexpected consensus rule: %+v", got)
	}
	if got.Support <= 0.5 || got.Support > 1 {
		t.Errorf("support should be a strict majority share, got %f", got.Support)
	}
}

func TestInfluenceGraph_StableInfluencesUnstable(t *testing.T) {
	shared := policy.Rule{ID: "r1", Pattern: "git ", Mode: policy.DecisionAllow, Priority: 100}
	h, err := ComputeHealth([]Snapshot{
		snapshot("calm", 0.1, shared),
		snapshot("shaky", 0.8, shared),
	}, 0.5, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.InfluenceGraph) != 1 {
		t.Fatalf("expected one influence edge, got %+v", h.InfluenceGraph)
	}
	e := h.InfluenceGraph[0]
	if e.From != "calm" || e.To != "shaky" {
		t.Errorf("edge should run stable -> unstable, got %s -> %s", e.From, e.To)
	}
	if e.Weight <= 0 || e.Weight > 1 {
		t.Errorf("edge weight out of (0,1]: %f", e.Weight)
	}
}

func TestComputeHealth_SingleSnapshot(t *testing.T) {
	h, err := ComputeHealth([]Snapshot{snapshot("solo", 0.2)}, 0.5, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Clusters) != 1 || len(h.Outliers) != 0 {
		t.Errorf("single project: one cluster, no outliers; got %d clusters, %v outliers",
			len(h.Clusters), h.Outliers)
	}
}
