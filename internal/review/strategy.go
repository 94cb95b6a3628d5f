package review

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"warden/internal/logging"
	"warden/internal/policy"
)

// VerdictStrategy produces a verdict for one structurally valid
// recommendation.
type VerdictStrategy interface {
	Judge(ctx context.Context, rec policy.Recommendation, policyCtx, projectCtx string) (policy.ReviewVerdict, error)
	Name() string
}

// =============================================================================
// DETERMINISTIC STRATEGY
// =============================================================================

// DeterministicStrategy buckets a stable hash of the recommendation id:
// approve below 40, revise below 70, reject for the remainder. It never fails
// and serves both as a standalone strategy and as the AI strategy's fallback.
type DeterministicStrategy struct{}

func (DeterministicStrategy) Name() string { return "deterministic" }

func (DeterministicStrategy) Judge(_ context.Context, rec policy.Recommendation, _, _ string) (policy.ReviewVerdict, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rec.ID))
	bucket := h.Sum32() % 100

	var decision policy.ReviewDecision
	switch {
	case bucket < 40:
		decision = policy.ReviewApprove
	case bucket < 70:
		decision = policy.ReviewRevise
	default:
		decision = policy.ReviewReject
	}
	return policy.ReviewVerdict{
		ID:               "verdict-" + rec.ID,
		RecommendationID: rec.ID,
		Decision:         decision,
		RiskScore:        policy.Clamp01(float64(bucket) / 100),
		Rationale: fmt.Sprintf("Deterministic review of %s recommendation %s: bucketed to %s (hash bucket %d).",
			rec.Type, rec.ID, decision, bucket),
		AISummary: fmt.Sprintf("Deterministic verdict: %s.", decision),
	}, nil
}

// =============================================================================
// AI STRATEGY
// =============================================================================

// AIStrategy asks the injected capability for a structured verdict and parses
// the strict JSON contract {decision, riskScore, rationale, aiSummary}.
type AIStrategy struct {
	client  LLMClient
	prompts Prompts
}

// NewAIStrategy builds an AI strategy around a capability client. Zero-value
// prompts fall back to the shipped defaults.
func NewAIStrategy(client LLMClient, prompts Prompts) *AIStrategy {
	def := DefaultPrompts()
	if prompts.GoverningPrinciples == "" {
		prompts.GoverningPrinciples = def.GoverningPrinciples
	}
	if prompts.VerdictInstructions == "" {
		prompts.VerdictInstructions = def.VerdictInstructions
	}
	return &AIStrategy{client: client, prompts: prompts}
}

func (*AIStrategy) Name() string { return "ai" }

// verdictPayload is the wire contract expected from the capability.
type verdictPayload struct {
	Decision  string  `json:"decision"`
	RiskScore float64 `json:"riskScore"`
	Rationale string  `json:"rationale"`
	AISummary string  `json:"aiSummary"`
}

func (s *AIStrategy) Judge(ctx context.Context, rec policy.Recommendation, policyCtx, projectCtx string) (policy.ReviewVerdict, error) {
	if s.client == nil {
		return policy.ReviewVerdict{}, fmt.Errorf("no capability client configured")
	}
	userPrompt := s.buildPrompt(rec, policyCtx, projectCtx)

	raw, err := s.client.CompleteWithSystem(ctx, s.prompts.GoverningPrinciples, userPrompt)
	if err != nil {
		return policy.ReviewVerdict{}, fmt.Errorf("capability call failed: %w", err)
	}

	payload, err := parseVerdict(raw)
	if err != nil {
		return policy.ReviewVerdict{}, err
	}

	decision, err := normalizeReviewDecision(payload.Decision)
	if err != nil {
		return policy.ReviewVerdict{}, err
	}
	logging.ReviewDebug("ai verdict for %s: %s (risk %.2f)", rec.ID, decision, payload.RiskScore)
	return policy.ReviewVerdict{
		ID:               "verdict-" + rec.ID,
		RecommendationID: rec.ID,
		Decision:         decision,
		RiskScore:        policy.Clamp01(payload.RiskScore),
		Rationale:        payload.Rationale,
		AISummary:        payload.AISummary,
	}, nil
}

func (s *AIStrategy) buildPrompt(rec policy.Recommendation, policyCtx, projectCtx string) string {
	recJSON, _ := json.MarshalIndent(rec, "", "  ")
	var b strings.Builder
	b.WriteString("Proposed policy change:\n")
	b.Write(recJSON)
	b.WriteString("\n\nCurrent policy context:\n")
	b.WriteString(policyCtx)
	b.WriteString("\n\nProject context:\n")
	b.WriteString(projectCtx)
	b.WriteString("\n\n")
	b.WriteString(s.prompts.VerdictInstructions)
	return b.String()
}

// parseVerdict extracts the JSON object from the capability response. Models
// routinely wrap contracts in code fences or prose; anything that does not
// yield the full contract is an error, and the caller falls back.
func parseVerdict(raw string) (verdictPayload, error) {
	var payload verdictPayload
	candidate := extractJSONObject(raw)
	if candidate == "" {
		return payload, fmt.Errorf("no JSON object in capability response")
	}
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return payload, fmt.Errorf("unparseable capability response: %w", err)
	}
	if payload.Decision == "" || payload.Rationale == "" {
		return payload, fmt.Errorf("capability response missing required fields")
	}
	return payload, nil
}

func normalizeReviewDecision(s string) (policy.ReviewDecision, error) {
	switch policy.ReviewDecision(strings.ToLower(strings.TrimSpace(s))) {
	case policy.ReviewApprove:
		return policy.ReviewApprove, nil
	case policy.ReviewReject:
		return policy.ReviewReject, nil
	case policy.ReviewRevise:
		return policy.ReviewRevise, nil
	}
	return "", fmt.Errorf("unknown review decision %q", s)
}

// extractJSONObject returns the first brace-balanced object in s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
