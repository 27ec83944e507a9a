package service

import "github.com/reelforge/clip-engine/internal/domain"

// RetryPolicy decides what a retry pass should regenerate given the latest
// critic score. The evaluator already supplies a target alongside its scores;
// this seam exists so that a deterministic, score-derived policy can replace
// the evaluator's opinion without touching the pipeline.
type RetryPolicy func(score *domain.CriticScore) domain.RetryTarget

// CriticSuppliedTarget is the default policy: trust the target the evaluator
// returned with the scores, falling back to a full regeneration when the
// verdict asks for a retry without naming a target.
func CriticSuppliedTarget(score *domain.CriticScore) domain.RetryTarget {
	if score == nil || score.Verdict != domain.VerdictRetry {
		return domain.RetryTargetNone
	}
	if score.RetryTarget == domain.RetryTargetNone || !score.RetryTarget.IsValid() {
		return domain.RetryTargetFull
	}
	return score.RetryTarget
}

// WeakestDimensionTarget derives the target from the lowest-scoring dimension
// instead of the evaluator's suggestion: a weak hook regenerates the hook, a
// weak loop regenerates the ending, anything else regenerates in full.
func WeakestDimensionTarget(score *domain.CriticScore) domain.RetryTarget {
	if score == nil || score.Verdict != domain.VerdictRetry {
		return domain.RetryTargetNone
	}

	switch name, _ := score.WeakestDimension(); name {
	case domain.DimensionHook:
		return domain.RetryTargetHookOnly
	case domain.DimensionLoop:
		return domain.RetryTargetEndingOnly
	default:
		return domain.RetryTargetFull
	}
}
