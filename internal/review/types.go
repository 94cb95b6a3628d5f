// Package review judges proposed policy changes. Verdict generation is a
// constructor-selected strategy: an AI strategy calling an injected text
// capability, or a deterministic strategy bucketing a stable hash. A failing
// capability call degrades to the deterministic strategy for that
// recommendation only; it never aborts the batch.
package review

import (
	"context"

	"warden/internal/policy"
)

// LLMClient is the injected text-generation capability. The engine depends
// only on this contract, never on a specific provider.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// FlagType classifies a governance flag raised by the pre-checks.
type FlagType string

const (
	FlagContradictionDetected  FlagType = "contradiction-detected"
	FlagMalformedRecommendation FlagType = "malformed-recommendation"
	FlagInvalidType            FlagType = "invalid-type"
	FlagConfidenceOutOfRange   FlagType = "confidence-out-of-range"
)

// GovernanceFlag marks a structural problem in the recommendation batch that
// no individual verdict can express.
type GovernanceFlag struct {
	Type              FlagType `json:"type"`
	RecommendationIDs []string `json:"recommendationIds"`
	Detail            string   `json:"detail"`
}

// Result is the full review output for one batch.
type Result struct {
	Verdicts          []policy.ReviewVerdict `json:"verdicts"`
	OverallAssessment string                 `json:"overallAssessment"`
	GovernanceFlags   []GovernanceFlag       `json:"governanceFlags"`
}

// Prompts holds the externalized prompt configuration. The governing
// principles are injected, not compiled in; DefaultPrompts supplies the
// shipped text.
type Prompts struct {
	GoverningPrinciples string `yaml:"governing_principles"`
	VerdictInstructions string `yaml:"verdict_instructions"`
}

// DefaultPrompts returns the shipped prompt configuration.
func DefaultPrompts() Prompts {
	return Prompts{
		GoverningPrinciples: `You review proposed changes to an autonomous coding agent's governance policy.
Principles, in order of precedence:
1. Never widen destructive-command permissions without explicit human sign-off.
2. Prefer narrow, high-priority rules over broad low-priority ones.
3. A rule that formalizes observed safe behavior is better than a standing override.
4. Removing an unused rule is low risk; removing a deny rule is never low risk.`,
		VerdictInstructions: `Respond with a single JSON object and nothing else:
{"decision": "approve" | "reject" | "revise", "riskScore": <number 0..1>, "rationale": "<one paragraph>", "aiSummary": "<one sentence>"}`,
	}
}
