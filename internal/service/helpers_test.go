package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/reelforge/clip-engine/internal/domain"
	"github.com/reelforge/clip-engine/internal/events"
)

// testScenes builds a valid hook/escalate/loop sequence summing to targetSec.
func testScenes(targetSec float64) []domain.Scene {
	rest := (targetSec - 3) / 2
	return []domain.Scene{
		{Role: domain.SceneRoleHook, Narration: "you won't believe this", Prompt: "close-up shot", DurationSec: 3},
		{Role: domain.SceneRoleEscalate, Narration: "it gets worse", Prompt: "wide shot", DurationSec: rest},
		{Role: domain.SceneRoleLoop, Narration: "and that's why it loops", Prompt: "match cut to open", DurationSec: rest},
	}
}

func criticPayload(t *testing.T, hook, pacing, loop, alignment float64, target, feedback string) []byte {
	t.Helper()

	payload := map[string]any{
		"scores": map[string]float64{
			"hook":      hook,
			"pacing":    pacing,
			"loop":      loop,
			"alignment": alignment,
		},
		"retryTarget": target,
		"feedback":    feedback,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal critic payload: %v", err)
	}
	return raw
}

type fakeContent struct {
	generateFn   func(ctx context.Context, cfg domain.UnitConfig) ([]domain.Scene, error)
	regenerateFn func(ctx context.Context, cfg domain.UnitConfig, scenes []domain.Scene, section domain.SceneRole) (domain.Scene, error)
}

func (f *fakeContent) Generate(ctx context.Context, cfg domain.UnitConfig) ([]domain.Scene, error) {
	if f.generateFn != nil {
		return f.generateFn(ctx, cfg)
	}
	return testScenes(cfg.TargetDurationSec), nil
}

func (f *fakeContent) RegenerateSection(ctx context.Context, cfg domain.UnitConfig, scenes []domain.Scene, section domain.SceneRole) (domain.Scene, error) {
	if f.regenerateFn != nil {
		return f.regenerateFn(ctx, cfg, scenes, section)
	}

	replaced := scenes[0]
	if section == domain.SceneRoleLoop {
		replaced = scenes[len(scenes)-1]
	}
	replaced.Narration = "regenerated " + section.String()
	return replaced, nil
}

type fakeEvaluator struct {
	evaluateFn func(ctx context.Context, scenes []domain.Scene, platform domain.Platform, profile *domain.AlignmentProfile) ([]byte, error)
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, scenes []domain.Scene, platform domain.Platform, profile *domain.AlignmentProfile) ([]byte, error) {
	if f.evaluateFn != nil {
		return f.evaluateFn(ctx, scenes, platform, profile)
	}
	return []byte(`{"scores":{"hook":0.9,"pacing":0.9,"loop":0.9,"alignment":0.9},"retryTarget":"","feedback":"solid"}`), nil
}

type fakeAudio struct {
	synthesizeFn func(ctx context.Context, text string) (string, error)
}

func (f *fakeAudio) SynthesizeAudio(ctx context.Context, text string) (string, error) {
	if f.synthesizeFn != nil {
		return f.synthesizeFn(ctx, text)
	}
	return "audio://ok", nil
}

type fakeVideo struct {
	synthesizeFn func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeVideo) SynthesizeVideo(ctx context.Context, prompt string) (string, error) {
	if f.synthesizeFn != nil {
		return f.synthesizeFn(ctx, prompt)
	}
	return "video://ok", nil
}

type fakeStitcher struct {
	stitchFn func(ctx context.Context, scenes []domain.Scene) (string, error)
}

func (f *fakeStitcher) Stitch(ctx context.Context, scenes []domain.Scene) (string, error) {
	if f.stitchFn != nil {
		return f.stitchFn(ctx, scenes)
	}
	return "clip://final.mp4", nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []events.BatchEvent
	publishFn func(ctx context.Context, evt events.BatchEvent) error
}

func (f *fakePublisher) PublishBatchEvent(ctx context.Context, evt events.BatchEvent) error {
	f.mu.Lock()
	f.published = append(f.published, evt)
	f.mu.Unlock()

	if f.publishFn != nil {
		return f.publishFn(ctx, evt)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) snapshot() []events.BatchEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.BatchEvent, len(f.published))
	copy(out, f.published)
	return out
}

func testBatchConfig() domain.BatchConfig {
	return domain.BatchConfig{
		Platform:          domain.PlatformTikTok,
		TargetDurationSec: 30,
		Voice:             "narrator-1",
		Genre:             "horror",
		Language:          "en",
		Audience:          "18-24",
	}
}
