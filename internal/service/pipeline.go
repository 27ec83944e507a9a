package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reelforge/clip-engine/internal/domain"
	"github.com/reelforge/clip-engine/internal/generator"
	"github.com/reelforge/clip-engine/internal/observability"
	"github.com/reelforge/clip-engine/internal/ratelimit"
	"github.com/reelforge/clip-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries   = 2
	defaultAssetWorkers = 4
)

// Pipeline runs one unit through the generation stages: content generation,
// rule validation with mechanical fixes, critic scoring, the quality-gated
// retry loop, asset materialization, and persistence.
//
// Retries are exclusively quality-driven. A collaborator error anywhere but
// the critic or the per-scene asset stage fails the attempt and propagates to
// the scheduler; it is never papered over here.
type Pipeline struct {
	content      generator.ContentGenerator
	rules        generator.RuleValidator
	critic       *CriticScorer
	retryPolicy  RetryPolicy
	audio        generator.AudioSynthesizer
	video        generator.VideoSynthesizer
	stitcher     generator.Stitcher
	units        repository.UnitRepository
	limiter      ratelimit.RateLimiter
	metrics      *observability.Metrics
	logger       *zap.Logger
	assetWorkers int
	now          func() time.Time
}

type PipelineDeps struct {
	Content  generator.ContentGenerator
	Rules    generator.RuleValidator
	Critic   *CriticScorer
	Retry    RetryPolicy
	Audio    generator.AudioSynthesizer
	Video    generator.VideoSynthesizer
	Stitcher generator.Stitcher
	Units    repository.UnitRepository
	Limiter  ratelimit.RateLimiter
	Metrics  *observability.Metrics
	Logger   *zap.Logger

	AssetWorkers int
}

func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Content == nil {
		return nil, fmt.Errorf("content generator is required")
	}
	if deps.Critic == nil {
		return nil, fmt.Errorf("critic scorer is required")
	}
	if deps.Audio == nil || deps.Video == nil || deps.Stitcher == nil {
		return nil, fmt.Errorf("asset synthesizers are required")
	}
	if deps.Units == nil {
		return nil, fmt.Errorf("unit repository is required")
	}
	if deps.Rules == nil {
		deps.Rules = generator.NewStructuralValidator()
	}
	if deps.Retry == nil {
		deps.Retry = CriticSuppliedTarget
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.AllowAll{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.AssetWorkers < 1 {
		deps.AssetWorkers = defaultAssetWorkers
	}

	return &Pipeline{
		content:      deps.Content,
		rules:        deps.Rules,
		critic:       deps.Critic,
		retryPolicy:  deps.Retry,
		audio:        deps.Audio,
		video:        deps.Video,
		stitcher:     deps.Stitcher,
		units:        deps.Units,
		limiter:      deps.Limiter,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		assetWorkers: deps.AssetWorkers,
		now:          time.Now,
	}, nil
}

// Execute runs the unit to a terminal state and returns the final artifact
// reference. The unit is persisted at every state change; on error the unit
// is already marked FAILED.
func (p *Pipeline) Execute(ctx context.Context, unit *domain.Unit) (string, error) {
	start := p.now()
	platform := unit.Config.Platform

	spec, err := domain.SpecFor(platform)
	if err != nil {
		return "", p.failUnit(ctx, unit, err)
	}

	if err := unit.MarkRunning(p.now()); err != nil {
		return "", err
	}
	if err := p.units.Save(ctx, unit); err != nil {
		return "", err
	}

	if p.metrics != nil {
		defer func() {
			p.metrics.ObservePipelineDuration(platform.String(), p.now().Sub(start))
		}()
	}

	if err := p.limiter.Wait(ctx, "generate"); err != nil {
		return "", p.failUnit(ctx, unit, fmt.Errorf("%w: rate limiter: %v", domain.ErrGeneration, err))
	}

	scenes, err := p.content.Generate(ctx, unit.Config)
	if err != nil {
		return "", p.failUnit(ctx, unit, fmt.Errorf("%w: %w", domain.ErrGeneration, err))
	}

	maxRetries := unit.Config.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	for {
		scenes, err = p.applyRules(scenes, spec, unit.Config.TargetDurationSec)
		if err != nil {
			return "", p.failUnit(ctx, unit, err)
		}

		score := p.critic.Score(ctx, scenes, platform, unit.Config.Alignment)
		unit.Score = score

		if score.Verdict == domain.VerdictAccept || unit.RetryCount >= maxRetries {
			break
		}

		target := p.retryPolicy(score)
		if target == domain.RetryTargetNone {
			break
		}

		unit.RetryCount++
		if p.metrics != nil {
			p.metrics.IncCriticRetry(string(target))
		}
		p.logger.Info("critic requested regeneration",
			zap.String("unitId", unit.ID),
			zap.String("target", string(target)),
			zap.Float64("total", score.Total),
			zap.Int("retryCount", unit.RetryCount),
		)

		scenes, err = p.regenerate(ctx, unit.Config, scenes, target)
		if err != nil {
			return "", p.failUnit(ctx, unit, fmt.Errorf("%w: %w", domain.ErrGeneration, err))
		}
	}

	p.materializeAssets(ctx, unit.ID, scenes)

	outputRef, err := p.stitcher.Stitch(ctx, scenes)
	if err != nil {
		return "", p.failUnit(ctx, unit, fmt.Errorf("%w: stitch: %w", domain.ErrGeneration, err))
	}

	unit.Scenes = scenes
	if err := unit.MarkCompleted(outputRef, p.now()); err != nil {
		return "", err
	}
	if err := p.units.Save(ctx, unit); err != nil {
		return "", err
	}

	if p.metrics != nil {
		p.metrics.IncUnitCompleted(platform.String())
	}
	return outputRef, nil
}

// applyRules validates the scene sequence and applies the mechanical fixes
// the validator offers. Unfixable violations fail the attempt.
func (p *Pipeline) applyRules(scenes []domain.Scene, spec domain.PlatformSpec, targetSec float64) ([]domain.Scene, error) {
	valid, issues := p.rules.Validate(scenes, spec, targetSec)
	if valid {
		return scenes, nil
	}
	if generator.HasUnfixable(issues) {
		return nil, fmt.Errorf("%w: %s", domain.ErrGeneration, describeIssues(issues))
	}

	for _, issue := range issues {
		switch issue.Code {
		case generator.IssueDurationOutOfRange:
			scenes = p.rules.FixDuration(scenes, targetSec)
		case generator.IssueHookTooLong:
			scenes[0] = p.rules.FixHook(scenes[0], spec)
		}
	}

	if _, issues := p.rules.Validate(scenes, spec, targetSec); generator.HasUnfixable(issues) {
		return nil, fmt.Errorf("%w: %s", domain.ErrGeneration, describeIssues(issues))
	}
	return scenes, nil
}

func (p *Pipeline) regenerate(ctx context.Context, cfg domain.UnitConfig, scenes []domain.Scene, target domain.RetryTarget) ([]domain.Scene, error) {
	if err := p.limiter.Wait(ctx, "generate"); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	switch target {
	case domain.RetryTargetHookOnly:
		replacement, err := p.content.RegenerateSection(ctx, cfg, scenes, domain.SceneRoleHook)
		if err != nil {
			return nil, err
		}
		scenes[0] = replacement
		return scenes, nil

	case domain.RetryTargetEndingOnly:
		replacement, err := p.content.RegenerateSection(ctx, cfg, scenes, domain.SceneRoleLoop)
		if err != nil {
			return nil, err
		}
		scenes[len(scenes)-1] = replacement
		return scenes, nil

	case domain.RetryTargetFull:
		return p.content.Generate(ctx, cfg)

	default:
		return scenes, nil
	}
}

// materializeAssets synthesizes narration audio and a visual clip for every
// scene on a small fixed worker pool. A single scene's synthesis failure
// leaves that scene degraded and is logged; it never aborts the unit.
func (p *Pipeline) materializeAssets(ctx context.Context, unitID string, scenes []domain.Scene) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < p.assetWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p.materializeScene(ctx, unitID, &scenes[i], i)
			}
		}()
	}

	for i := range scenes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (p *Pipeline) materializeScene(ctx context.Context, unitID string, scene *domain.Scene, index int) {
	if err := p.limiter.Wait(ctx, "synthesize"); err != nil {
		p.logger.Warn("asset synthesis rate limit wait failed, scene degraded",
			zap.String("unitId", unitID),
			zap.Int("scene", index),
			zap.Error(err),
		)
		return
	}

	audioRef, err := p.audio.SynthesizeAudio(ctx, scene.Narration)
	if err != nil {
		p.logger.Warn("audio synthesis failed, scene degraded",
			zap.String("unitId", unitID),
			zap.Int("scene", index),
			zap.String("role", scene.Role.String()),
			zap.Error(err),
		)
	} else {
		scene.AudioRef = audioRef
	}

	videoRef, err := p.video.SynthesizeVideo(ctx, scene.Prompt)
	if err != nil {
		p.logger.Warn("video synthesis failed, scene degraded",
			zap.String("unitId", unitID),
			zap.Int("scene", index),
			zap.String("role", scene.Role.String()),
			zap.Error(err),
		)
	} else {
		scene.VideoRef = videoRef
	}
}

// failUnit marks the unit FAILED, persists it best-effort, and returns the
// causing error for the scheduler to record on the item.
func (p *Pipeline) failUnit(ctx context.Context, unit *domain.Unit, cause error) error {
	if err := unit.MarkFailed(cause.Error(), p.now()); err == nil {
		if saveErr := p.units.Save(ctx, unit); saveErr != nil {
			p.logger.Error("failed to persist failed unit",
				zap.String("unitId", unit.ID),
				zap.Error(saveErr),
			)
		}
	}
	if p.metrics != nil {
		p.metrics.IncUnitFailed(unit.Config.Platform.String(), failureReason(cause))
	}
	return cause
}

func describeIssues(issues []generator.Issue) string {
	msg := "content failed validation"
	for _, issue := range issues {
		if !issue.Fixable {
			return fmt.Sprintf("%s: %s", msg, issue.Detail)
		}
	}
	return msg
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case isTimeout(err):
		return "timeout"
	default:
		return "generation_error"
	}
}
