// Package federated analyzes policy health across projects: pairwise
// similarity of policy embeddings, transitive clustering, outlier detection,
// consensus rule sets, and a directed influence graph from stable projects
// toward similar, less stable ones.
package federated

import "warden/internal/policy"

// VectorDim is the fixed policy embedding length.
const VectorDim = 128

// Default thresholds.
const (
	DefaultClusterThreshold = 0.5
	DefaultOutlierThreshold = 0.3
)

// Snapshot is one project's contribution to the federation.
type Snapshot struct {
	ProjectID  string        `json:"projectId"`
	Policy     policy.Policy `json:"policy"`
	DriftScore float64       `json:"driftScore"`
}

// Cluster is a transitively merged group of similar projects.
type Cluster struct {
	ID             int      `json:"id"`
	ProjectIDs     []string `json:"projectIds"`
	MeanSimilarity float64  `json:"meanSimilarity"`
}

// ConsensusRule is a rule that recurs across the federation, with the vote
// weight that carried it.
type ConsensusRule struct {
	Category string      `json:"category"`
	Rule     policy.Rule `json:"rule"`
	Support  float64     `json:"support"`
}

// Consensus holds the three consensus variants.
type Consensus struct {
	Baseline           []ConsensusRule `json:"baseline"`
	SimilarityWeighted []ConsensusRule `json:"similarityWeighted"`
	DriftWeighted      []ConsensusRule `json:"driftWeighted"`
}

// InfluenceEdge is a weighted directed edge from a more-stable project to a
// similar, less-stable one.
type InfluenceEdge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// Health is the full federation report.
type Health struct {
	ProjectIDs           []string        `json:"projectIds"`
	SimilarityMatrix     [][]float64     `json:"similarityMatrix"`
	Clusters             []Cluster       `json:"clusters"`
	Outliers             []string        `json:"outliers"`
	Consensus            Consensus       `json:"consensus"`
	InfluenceGraph       []InfluenceEdge `json:"influenceGraph"`
	SystemStabilityScore float64         `json:"systemStabilityScore"`
}
