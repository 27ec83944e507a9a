package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reelforge/clip-engine/internal/domain"
	"github.com/reelforge/clip-engine/internal/generator"
	"go.uber.org/zap"
)

// evaluationPayload is the wire shape the critic evaluator returns. The
// retry target arrives from the same call as the scores; see RetryPolicy for
// the seam that keeps that decision swappable.
type evaluationPayload struct {
	Scores struct {
		Hook      *float64 `json:"hook"`
		Pacing    *float64 `json:"pacing"`
		Loop      *float64 `json:"loop"`
		Alignment *float64 `json:"alignment"`
	} `json:"scores"`
	RetryTarget string `json:"retryTarget"`
	Feedback    string `json:"feedback"`
}

const degradedScore = 0.5

// CriticScorer turns evaluator output into a CriticScore. Evaluator failures
// of any kind, transport or format, are recovered locally: the scorer fails
// open with neutral scores and an accept verdict so a broken critic never
// blocks generation.
type CriticScorer struct {
	evaluator generator.CriticEvaluator
	threshold float64
	logger    *zap.Logger
	now       func() time.Time
}

func NewCriticScorer(evaluator generator.CriticEvaluator, threshold float64, logger *zap.Logger) (*CriticScorer, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("critic evaluator is required")
	}
	if threshold <= 0 || threshold > 1 {
		threshold = domain.DefaultRetryThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CriticScorer{
		evaluator: evaluator,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Score runs one evaluation pass. It never returns an error; degraded input
// is absorbed per the fail-open policy.
func (s *CriticScorer) Score(ctx context.Context, scenes []domain.Scene, platform domain.Platform, profile *domain.AlignmentProfile) *domain.CriticScore {
	raw, err := s.evaluator.Evaluate(ctx, scenes, platform, profile)
	if err != nil {
		s.logger.Warn("critic evaluation failed, scoring degraded", zap.Error(err))
		return s.degraded(fmt.Sprintf("critic call failed: %v", err))
	}

	var payload evaluationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("critic response unparsable, scoring degraded", zap.Error(err))
		return s.degraded(fmt.Sprintf("unparsable critic response: %v", err))
	}
	if payload.Scores.Hook == nil || payload.Scores.Pacing == nil ||
		payload.Scores.Loop == nil || payload.Scores.Alignment == nil {
		s.logger.Warn("critic response missing dimensions, scoring degraded")
		return s.degraded("critic response missing one or more dimension scores")
	}

	score := &domain.CriticScore{
		Hook:      domain.Clamp01(*payload.Scores.Hook),
		Pacing:    domain.Clamp01(*payload.Scores.Pacing),
		Loop:      domain.Clamp01(*payload.Scores.Loop),
		Alignment: domain.Clamp01(*payload.Scores.Alignment),
		Feedback:  payload.Feedback,
		CreatedAt: s.now(),
	}
	score.Total = domain.WeightedTotal(score.Hook, score.Pacing, score.Loop, score.Alignment)

	if score.Total >= s.threshold {
		score.Verdict = domain.VerdictAccept
		return score
	}

	score.Verdict = domain.VerdictRetry
	target := domain.RetryTarget(payload.RetryTarget)
	if !target.IsValid() {
		target = domain.RetryTargetFull
	}
	score.RetryTarget = target
	return score
}

// Threshold returns the configured accept cutoff.
func (s *CriticScorer) Threshold() float64 { return s.threshold }

func (s *CriticScorer) degraded(warning string) *domain.CriticScore {
	return &domain.CriticScore{
		Hook:      degradedScore,
		Pacing:    degradedScore,
		Loop:      degradedScore,
		Alignment: degradedScore,
		Total:     domain.WeightedTotal(degradedScore, degradedScore, degradedScore, degradedScore),
		Verdict:   domain.VerdictAccept,
		Feedback:  "warning: " + warning,
		Degraded:  true,
		CreatedAt: s.now(),
	}
}
