package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"warden/internal/logging"
	"warden/internal/policy"
)

// Reviewer judges recommendation batches with a constructor-selected strategy.
type Reviewer struct {
	strategy VerdictStrategy
	fallback DeterministicStrategy
	// maxConcurrent bounds parallel capability calls.
	maxConcurrent int
}

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithConcurrency bounds the number of parallel capability calls.
func WithConcurrency(n int) Option {
	return func(r *Reviewer) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

// New builds a Reviewer. A nil strategy means deterministic-only review.
func New(strategy VerdictStrategy, opts ...Option) *Reviewer {
	r := &Reviewer{strategy: strategy, maxConcurrent: 4}
	if strategy == nil {
		r.strategy = DeterministicStrategy{}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Review runs the pre-checks, then judges every structurally valid
// recommendation concurrently. One recommendation's capability failure
// degrades that recommendation to the deterministic fallback; it never aborts
// the others. Output order follows input order.
func (r *Reviewer) Review(ctx context.Context, recs []policy.Recommendation, policyCtx, projectCtx string) (Result, error) {
	timer := logging.StartTimer(logging.CategoryReview, "Review")
	defer timer.Stop()

	flags, invalid := precheck(recs)

	verdicts := make([]policy.ReviewVerdict, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)
	for i := range recs {
		g.Go(func() error {
			rec := recs[i]
			if reason, bad := invalid[rec.ID]; bad {
				verdicts[i] = rejectVerdict(rec, reason)
				return nil
			}
			v, err := r.strategy.Judge(gctx, rec, policyCtx, projectCtx)
			if err != nil {
				logging.Review("strategy %s failed for %s, degrading to fallback: %v", r.strategy.Name(), rec.ID, err)
				v, _ = r.fallback.Judge(gctx, rec, policyCtx, projectCtx)
			}
			verdicts[i] = v
			return nil
		})
	}
	// Workers only write disjoint slots and never return errors; Wait is for
	// completion, not failure propagation.
	_ = g.Wait()

	res := Result{
		Verdicts:          verdicts,
		GovernanceFlags:   flags,
		OverallAssessment: assess(verdicts, flags),
	}
	logging.Review("reviewed %d recommendation(s): %s", len(recs), res.OverallAssessment)
	return res, nil
}

// precheck validates the batch without any external call. It returns the
// governance flags plus the set of recommendations too malformed to judge.
func precheck(recs []policy.Recommendation) ([]GovernanceFlag, map[string]string) {
	var flags []GovernanceFlag
	invalid := map[string]string{}

	// Contradictory add/remove of the same rule id.
	adds := map[string][]string{}
	removes := map[string][]string{}
	for _, rec := range recs {
		switch rec.Type {
		case policy.RecommendationAddRule:
			adds[rec.ProposedRule.ID] = append(adds[rec.ProposedRule.ID], rec.ID)
		case policy.RecommendationRemoveRule:
			removes[rec.ProposedRule.ID] = append(removes[rec.ProposedRule.ID], rec.ID)
		}
	}
	contradicted := make([]string, 0)
	for ruleID := range adds {
		if _, ok := removes[ruleID]; ok {
			contradicted = append(contradicted, ruleID)
		}
	}
	sort.Strings(contradicted)
	for _, ruleID := range contradicted {
		ids := append(append([]string{}, adds[ruleID]...), removes[ruleID]...)
		sort.Strings(ids)
		flags = append(flags, GovernanceFlag{
			Type:              FlagContradictionDetected,
			RecommendationIDs: ids,
			Detail:            fmt.Sprintf("rule %s is both proposed for addition and removal in the same batch", ruleID),
		})
	}

	for _, rec := range recs {
		switch {
		case rec.ID == "" || rec.Reason == "":
			flags = append(flags, GovernanceFlag{
				Type:              FlagMalformedRecommendation,
				RecommendationIDs: []string{rec.ID},
				Detail:            "recommendation is missing id or reason",
			})
			invalid[rec.ID] = "malformed recommendation: missing id or reason"
		case !rec.Type.Valid():
			flags = append(flags, GovernanceFlag{
				Type:              FlagInvalidType,
				RecommendationIDs: []string{rec.ID},
				Detail:            fmt.Sprintf("unknown recommendation type %q", rec.Type),
			})
			invalid[rec.ID] = fmt.Sprintf("invalid recommendation type %q", rec.Type)
		case rec.Confidence < 0 || rec.Confidence > 1:
			flags = append(flags, GovernanceFlag{
				Type:              FlagConfidenceOutOfRange,
				RecommendationIDs: []string{rec.ID},
				Detail:            fmt.Sprintf("confidence %.3f outside [0,1]", rec.Confidence),
			})
			invalid[rec.ID] = fmt.Sprintf("confidence %.3f outside [0,1]", rec.Confidence)
		}
	}
	return flags, invalid
}

func rejectVerdict(rec policy.Recommendation, reason string) policy.ReviewVerdict {
	return policy.ReviewVerdict{
		ID:               "verdict-" + rec.ID,
		RecommendationID: rec.ID,
		Decision:         policy.ReviewReject,
		RiskScore:        1,
		Rationale:        "Rejected without strategy consultation: " + reason,
		AISummary:        "Rejected by validation pre-check.",
	}
}

// assess derives the batch-level summary deterministically from the verdicts.
func assess(verdicts []policy.ReviewVerdict, flags []GovernanceFlag) string {
	if len(verdicts) == 0 {
		return "No recommendations to review."
	}
	counts := map[policy.ReviewDecision]int{}
	var risk float64
	for _, v := range verdicts {
		counts[v.Decision]++
		risk += v.RiskScore
	}
	risk /= float64(len(verdicts))

	var b strings.Builder
	fmt.Fprintf(&b, "Reviewed %d recommendation(s): %d approved, %d to revise, %d rejected; mean risk %.2f.",
		len(verdicts), counts[policy.ReviewApprove], counts[policy.ReviewRevise], counts[policy.ReviewReject], risk)
	if len(flags) > 0 {
		fmt.Fprintf(&b, " %d governance flag(s) raised.", len(flags))
	}
	return b.String()
}
