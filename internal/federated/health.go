package federated

import (
	"sort"

	"warden/internal/logging"
	"warden/internal/policy"
)

// ComputeHealth runs the full federation analysis. Thresholds at or below
// zero fall back to the defaults; an empty snapshot set fails with
// EMPTY_INPUT.
func ComputeHealth(snapshots []Snapshot, clusterThreshold, outlierThreshold float64) (Health, error) {
	timer := logging.StartTimer(logging.CategoryFederated, "ComputeHealth")
	defer timer.Stop()

	if len(snapshots) == 0 {
		return Health{}, policy.Errorf(policy.KindEmptyInput, "federated health requires at least one snapshot")
	}
	if clusterThreshold <= 0 {
		clusterThreshold = DefaultClusterThreshold
	}
	if outlierThreshold <= 0 {
		outlierThreshold = DefaultOutlierThreshold
	}

	n := len(snapshots)
	ids := make([]string, n)
	vectors := make([][]float64, n)
	for i, s := range snapshots {
		ids[i] = s.ProjectID
		vectors[i] = Embed(s.Policy)
	}

	matrix := similarityMatrix(vectors)
	clusters := cluster(ids, matrix, clusterThreshold)
	outliers := detectOutliers(ids, matrix, outlierThreshold)

	h := Health{
		ProjectIDs:           ids,
		SimilarityMatrix:     matrix,
		Clusters:             clusters,
		Outliers:             outliers,
		Consensus:            buildConsensus(snapshots, matrix),
		InfluenceGraph:       influenceGraph(snapshots, matrix, clusterThreshold),
		SystemStabilityScore: stabilityScore(len(clusters), len(outliers)),
	}
	logging.Federated("federation of %d projects: %d cluster(s), %d outlier(s), stability %.2f",
		n, len(clusters), len(outliers), h.SystemStabilityScore)
	return h, nil
}

// similarityMatrix builds the symmetric pairwise matrix with a unit diagonal.
func similarityMatrix(vectors [][]float64) [][]float64 {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := Similarity(vectors[i], vectors[j])
			m[i][j] = s
			m[j][i] = s
		}
	}
	return m
}

// cluster transitively merges projects whose pairwise similarity exceeds the
// threshold, via union-find.
func cluster(ids []string, matrix [][]float64, threshold float64) []Cluster {
	n := len(ids)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if matrix[i][j] > threshold {
				union(i, j)
			}
		}
	}

	members := map[int][]int{}
	for i := 0; i < n; i++ {
		r := find(i)
		members[r] = append(members[r], i)
	}
	roots := make([]int, 0, len(members))
	for r := range members {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	clusters := make([]Cluster, 0, len(roots))
	for ci, r := range roots {
		idx := members[r]
		c := Cluster{ID: ci, ProjectIDs: make([]string, 0, len(idx))}
		for _, i := range idx {
			c.ProjectIDs = append(c.ProjectIDs, ids[i])
		}
		c.MeanSimilarity = meanPairSimilarity(idx, matrix)
		clusters = append(clusters, c)
	}
	return clusters
}

func meanPairSimilarity(idx []int, matrix [][]float64) float64 {
	if len(idx) < 2 {
		return 1
	}
	var sum float64
	var pairs int
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			sum += matrix[idx[a]][idx[b]]
			pairs++
		}
	}
	return sum / float64(pairs)
}

// detectOutliers flags projects whose mean similarity to all others falls
// below the threshold. A lone project cannot be an outlier.
func detectOutliers(ids []string, matrix [][]float64, threshold float64) []string {
	n := len(ids)
	if n < 2 {
		return nil
	}
	var outliers []string
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			if j != i {
				sum += matrix[i][j]
			}
		}
		if sum/float64(n-1) < threshold {
			outliers = append(outliers, ids[i])
		}
	}
	return outliers
}

// ruleKey is the equivalence class for consensus: same category, pattern and
// mode count as the same rule across projects.
type ruleKey struct {
	category string
	pattern  string
	mode     policy.Decision
}

type ruleVote struct {
	key      ruleKey
	rule     policy.Rule
	weight   float64
	firstIdx int
}

// buildConsensus assembles the three consensus variants. Baseline weights
// every snapshot equally; the similarity-weighted variant biases toward
// well-connected projects, the drift-weighted variant toward stable ones.
func buildConsensus(snapshots []Snapshot, matrix [][]float64) Consensus {
	n := len(snapshots)

	uniform := make([]float64, n)
	simW := make([]float64, n)
	driftW := make([]float64, n)
	for i := range snapshots {
		uniform[i] = 1
		simW[i] = meanSimilarityTo(i, matrix)
		driftW[i] = policy.Clamp01(1 - snapshots[i].DriftScore)
	}

	return Consensus{
		Baseline:           consensusVariant(snapshots, uniform),
		SimilarityWeighted: consensusVariant(snapshots, simW),
		DriftWeighted:      consensusVariant(snapshots, driftW),
	}
}

func meanSimilarityTo(i int, matrix [][]float64) float64 {
	n := len(matrix)
	if n < 2 {
		return 1
	}
	var sum float64
	for j := 0; j < n; j++ {
		if j != i {
			sum += matrix[i][j]
		}
	}
	return sum / float64(n-1)
}

// consensusVariant includes a rule when the weights of the snapshots carrying
// an equivalent rule exceed half the total weight.
func consensusVariant(snapshots []Snapshot, weights []float64) []ConsensusRule {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return nil
	}

	votes := map[ruleKey]*ruleVote{}
	for i, s := range snapshots {
		for category, rules := range map[string][]policy.Rule{
			"commands":   s.Policy.Commands,
			"fileWrites": s.Policy.FileWrites,
			"sessions":   s.Policy.Sessions,
		} {
			seen := map[ruleKey]bool{}
			for _, r := range rules {
				k := ruleKey{category: category, pattern: r.Pattern, mode: r.Mode}
				if seen[k] {
					continue // one vote per project per equivalence class
				}
				seen[k] = true
				v, ok := votes[k]
				if !ok {
					votes[k] = &ruleVote{key: k, rule: r, weight: weights[i], firstIdx: i}
					continue
				}
				v.weight += weights[i]
				if i < v.firstIdx {
					v.rule, v.firstIdx = r, i
				}
			}
		}
	}

	var out []ConsensusRule
	for _, v := range votes {
		if v.weight > total/2 {
			out = append(out, ConsensusRule{
				Category: v.key.category,
				Rule:     v.rule,
				Support:  v.weight / total,
			})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Category != out[b].Category {
			return out[a].Category < out[b].Category
		}
		return out[a].Rule.Pattern < out[b].Rule.Pattern
	})
	return out
}

// influenceGraph directs weighted edges from more-stable (lower drift)
// projects toward similar, less-stable ones.
func influenceGraph(snapshots []Snapshot, matrix [][]float64, threshold float64) []InfluenceEdge {
	var edges []InfluenceEdge
	n := len(snapshots)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || matrix[i][j] <= threshold {
				continue
			}
			gap := snapshots[j].DriftScore - snapshots[i].DriftScore
			if gap <= 0 {
				continue
			}
			edges = append(edges, InfluenceEdge{
				From:   snapshots[i].ProjectID,
				To:     snapshots[j].ProjectID,
				Weight: policy.Clamp01(matrix[i][j] * gap),
			})
		}
	}
	return edges
}

// stabilityScore peaks at one all-encompassing cluster with zero outliers and
// degrades with every extra cluster and outlier.
func stabilityScore(clusters, outliers int) float64 {
	return policy.Clamp01(1 - 0.15*float64(clusters-1) - 0.2*float64(outliers))
}
