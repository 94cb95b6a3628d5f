package federated

import (
	"fmt"
	"hash/fnv"
	"math"

	"warden/internal/policy"
)

// Embed maps a policy into a fixed-length vector by deterministic bucketing:
// each rule hashes to a bucket by category and pattern, contributing a weight
// that grows with the restrictiveness of its mode and its priority. Identical
// policies always embed identically.
func Embed(p policy.Policy) []float64 {
	vec := make([]float64, VectorDim)
	add := func(category string, rules []policy.Rule) {
		for _, r := range rules {
			b := bucket(category + "|" + r.Pattern)
			vec[b] += modeWeight(r.Mode) * (1 + float64(r.Priority)/100)
		}
	}
	add("commands", p.Commands)
	add("fileWrites", p.FileWrites)
	add("sessions", p.Sessions)

	for category, d := range map[string]policy.Decision{
		"commands":   p.DefaultFor(policy.ActionRunCommand),
		"fileWrites": p.DefaultFor(policy.ActionWriteFile),
		"sessions":   p.DefaultFor(policy.ActionStart),
	} {
		b := bucket(fmt.Sprintf("default|%s|%s", category, d))
		vec[b] += modeWeight(d)
	}
	return vec
}

func bucket(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % VectorDim)
}

func modeWeight(d policy.Decision) float64 {
	switch d {
	case policy.DecisionDeny:
		return 3
	case policy.DecisionReview:
		return 2
	default:
		return 1
	}
}

// CosineSimilarity returns the raw cosine of two vectors in [-1,1]. Two zero
// vectors are identical by construction (the empty policy) and score 1; a
// single zero vector is orthogonal to anything and scores 0.
func CosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 && nb == 0 {
		return 1
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Similarity remaps cosine similarity from [-1,1] to [0,1].
func Similarity(a, b []float64) float64 {
	return policy.Clamp01((CosineSimilarity(a, b) + 1) / 2)
}
