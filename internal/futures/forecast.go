// Package futures forecasts governance trajectories by repeated seeded
// simulation. Identical inputs produce bit-identical output: every iteration
// re-seeds its generator from baseSeed + index, so neither execution order nor
// parallelism can change a result.
package futures

import (
	"fmt"
	"math"

	"warden/internal/drift"
	"warden/internal/logging"
	"warden/internal/policy"
)

// DefaultIterations applies when the context leaves Iterations unset.
const DefaultIterations = 100

// Context carries the forecast parameters.
type Context struct {
	WindowHours float64 `json:"windowHours"`
	Iterations  int     `json:"iterations"`
	Seed        int64   `json:"seed"`
}

// Breakdown holds the per-iteration likelihoods of each failure mode.
type Breakdown struct {
	RuleModification float64 `json:"ruleModification"`
	RuleRemoval      float64 `json:"ruleRemoval"`
	RuleAddition     float64 `json:"ruleAddition"`
	Contradiction    float64 `json:"contradiction"`
}

// Simulation is one sampled future.
type Simulation struct {
	Iteration            int       `json:"iteration"`
	PredictedDrift       float64   `json:"predictedDrift"`
	PredictedOverrides   int       `json:"predictedOverrides"`
	PredictedEscalations int       `json:"predictedEscalations"`
	PredictedViolations  int       `json:"predictedViolations"`
	Breakdown            Breakdown `json:"breakdown"`
	Narrative            string    `json:"narrative"`
}

// Aggregate summarizes the simulation set.
type Aggregate struct {
	VolatilityIndex       float64 `json:"volatilityIndex"`
	MeanPredictedDrift    float64 `json:"meanPredictedDrift"`
	MostProbableNarrative string  `json:"mostProbableNarrative"`
	BestCaseNarrative     string  `json:"bestCaseNarrative"`
	WorstCaseNarrative    string  `json:"worstCaseNarrative"`
	RiskLevel             string  `json:"riskLevel"`
}

// Result is the full forecast output.
type Result struct {
	Simulations []Simulation `json:"simulations"`
	Aggregate   Aggregate    `json:"aggregate"`
}

// baselines are the historical rates every iteration perturbs.
type baselines struct {
	meanDrift      float64
	momentum       float64
	historyLen     int
	overrideRate   float64
	escalationRate float64
	violationRate  float64
	addRate        float64
	modifyRate     float64
	removeRate     float64
	approveRate    float64
	rejectRate     float64
	reviseRate     float64
}

var confidenceDescriptors = []string{
	"high confidence", "moderate confidence", "low confidence", "speculative",
}

// Forecast samples Iterations futures from the history baselines. The trace
// history must be non-empty; forecasting from nothing is misconfiguration.
func Forecast(snapshot policy.Policy, driftHist []drift.Analysis, traceHist []policy.PolicyTrace, inferHist []policy.Recommendation, reviewHist []policy.ReviewVerdict, fctx Context) (Result, error) {
	timer := logging.StartTimer(logging.CategoryFutures, "Forecast")
	defer timer.Stop()
	_ = snapshot

	if len(traceHist) == 0 {
		return Result{}, policy.Errorf(policy.KindEmptyInput, "futures forecast requires trace history")
	}
	iterations := fctx.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	base := computeBaselines(driftHist, traceHist, inferHist, reviewHist)
	sims := make([]Simulation, iterations)
	for i := 0; i < iterations; i++ {
		sims[i] = simulate(newRNG(fctx.Seed+int64(i)), i, base)
	}

	res := Result{Simulations: sims, Aggregate: aggregate(sims)}
	logging.Futures("forecast: %d iterations, volatility %.4f, risk %s",
		iterations, res.Aggregate.VolatilityIndex, res.Aggregate.RiskLevel)
	return res, nil
}

func computeBaselines(driftHist []drift.Analysis, traceHist []policy.PolicyTrace, inferHist []policy.Recommendation, reviewHist []policy.ReviewVerdict) baselines {
	b := baselines{historyLen: len(traceHist)}

	if n := len(driftHist); n > 0 {
		var sum float64
		for _, d := range driftHist {
			sum += d.OverallDriftScore
		}
		b.meanDrift = sum / float64(n)
		b.momentum = driftHist[n-1].OverallDriftScore - driftHist[0].OverallDriftScore
	}

	var overrides, escalations, violations int
	for _, tr := range traceHist {
		if tr.OverrideApplied {
			overrides++
		}
		switch tr.FinalDecision {
		case policy.DecisionReview:
			escalations++
		case policy.DecisionDeny:
			violations++
		}
	}
	n := float64(len(traceHist))
	b.overrideRate = float64(overrides) / n
	b.escalationRate = float64(escalations) / n
	b.violationRate = float64(violations) / n

	if rn := len(inferHist); rn > 0 {
		counts := map[policy.RecommendationType]int{}
		for _, r := range inferHist {
			counts[r.Type]++
		}
		b.addRate = float64(counts[policy.RecommendationAddRule]) / float64(rn)
		b.modifyRate = float64(counts[policy.RecommendationModifyRule]) / float64(rn)
		b.removeRate = float64(counts[policy.RecommendationRemoveRule]) / float64(rn)
	}
	if vn := len(reviewHist); vn > 0 {
		counts := map[policy.ReviewDecision]int{}
		for _, v := range reviewHist {
			counts[v.Decision]++
		}
		b.approveRate = float64(counts[policy.ReviewApprove]) / float64(vn)
		b.rejectRate = float64(counts[policy.ReviewReject]) / float64(vn)
		b.reviseRate = float64(counts[policy.ReviewRevise]) / float64(vn)
	}
	return b
}

// simulate draws one future. The draw order is fixed; reordering draws would
// silently change every forecast.
func simulate(r rng, iteration int, b baselines) Simulation {
	var driftNoise, u float64

	r, driftNoise = r.noise(0.1)
	predictedDrift := policy.Clamp01(b.meanDrift + b.momentum*0.3 + driftNoise)

	scale := func(rate float64) (next rng, count int) {
		next, u = r.next()
		return next, int(math.Round(rate * float64(b.historyLen) * (1 + u*0.5)))
	}
	r, overrides := scale(b.overrideRate)
	r, escalations := scale(b.escalationRate)
	r, violations := scale(b.violationRate)

	var bd Breakdown
	r, u = r.noise(0.1)
	bd.RuleModification = policy.Clamp01(b.modifyRate + b.reviseRate*0.5 + u)
	r, u = r.noise(0.1)
	bd.RuleRemoval = policy.Clamp01(b.removeRate + b.rejectRate*0.25 + u)
	r, u = r.noise(0.1)
	bd.RuleAddition = policy.Clamp01(b.addRate + b.approveRate*0.25 + u)
	r, u = r.noise(0.1)
	bd.Contradiction = policy.Clamp01((b.modifyRate+b.removeRate)/2 + u)

	var di int
	r, di = r.pick(len(confidenceDescriptors))
	_ = r

	return Simulation{
		Iteration:            iteration,
		PredictedDrift:       predictedDrift,
		PredictedOverrides:   overrides,
		PredictedEscalations: escalations,
		PredictedViolations:  violations,
		Breakdown:            bd,
		Narrative: fmt.Sprintf("Iteration %d projects %s drift (%.3f) with %d override(s), %d escalation(s), %d violation(s) (%s).",
			iteration, driftBand(predictedDrift), predictedDrift, overrides, escalations, violations, confidenceDescriptors[di]),
	}
}

func driftBand(d float64) string {
	switch {
	case d < 0.25:
		return "minimal"
	case d < 0.5:
		return "moderate"
	case d < 0.75:
		return "substantial"
	default:
		return "severe"
	}
}

func aggregate(sims []Simulation) Aggregate {
	n := float64(len(sims))
	var mean float64
	for _, s := range sims {
		mean += s.PredictedDrift
	}
	mean /= n

	var variance float64
	for _, s := range sims {
		d := s.PredictedDrift - mean
		variance += d * d
	}
	volatility := math.Sqrt(variance / n) // population stddev

	// Most probable: nearest the mean. Worst/best: lexicographic on
	// (drift, violations, escalations).
	probable, worst, best := 0, 0, 0
	for i, s := range sims {
		if math.Abs(s.PredictedDrift-mean) < math.Abs(sims[probable].PredictedDrift-mean) {
			probable = i
		}
		if lexMore(s, sims[worst]) {
			worst = i
		}
		if lexMore(sims[best], s) {
			best = i
		}
	}

	return Aggregate{
		VolatilityIndex:       volatility,
		MeanPredictedDrift:    mean,
		MostProbableNarrative: sims[probable].Narrative,
		WorstCaseNarrative:    sims[worst].Narrative,
		BestCaseNarrative:     sims[best].Narrative,
		RiskLevel:             riskLevel(volatility, mean),
	}
}

// lexMore reports whether a outranks b on (drift, violations, escalations).
func lexMore(a, b Simulation) bool {
	if a.PredictedDrift != b.PredictedDrift {
		return a.PredictedDrift > b.PredictedDrift
	}
	if a.PredictedViolations != b.PredictedViolations {
		return a.PredictedViolations > b.PredictedViolations
	}
	return a.PredictedEscalations > b.PredictedEscalations
}

func riskLevel(volatility, meanDrift float64) string {
	switch {
	case meanDrift >= 0.7 || volatility >= 0.2:
		return "severe"
	case meanDrift >= 0.5 || volatility >= 0.12:
		return "high"
	case meanDrift >= 0.3 || volatility >= 0.06:
		return "moderate"
	default:
		return "low"
	}
}
