// Package generator declares the outbound collaborator ports the engine
// drives: content generation, rule validation, critic evaluation, and asset
// synthesis. Implementations live behind these interfaces; the engine never
// depends on their internals.
package generator

import (
	"context"

	"github.com/reelforge/clip-engine/internal/domain"
)

// ContentGenerator produces the scene sequence for a unit, and replacements
// for single scenes on targeted retries.
type ContentGenerator interface {
	Generate(ctx context.Context, cfg domain.UnitConfig) ([]domain.Scene, error)
	RegenerateSection(ctx context.Context, cfg domain.UnitConfig, scenes []domain.Scene, section domain.SceneRole) (domain.Scene, error)
}

// CriticEvaluator scores a scene sequence. The raw payload is parsed by the
// critic scorer; transport or format failures there are recovered locally.
type CriticEvaluator interface {
	Evaluate(ctx context.Context, scenes []domain.Scene, platform domain.Platform, profile *domain.AlignmentProfile) ([]byte, error)
}

// AudioSynthesizer turns narration text into an audio asset reference.
type AudioSynthesizer interface {
	SynthesizeAudio(ctx context.Context, text string) (string, error)
}

// VideoSynthesizer turns a scene prompt into a video asset reference.
type VideoSynthesizer interface {
	SynthesizeVideo(ctx context.Context, prompt string) (string, error)
}

// Stitcher assembles per-scene assets into the final artifact.
type Stitcher interface {
	Stitch(ctx context.Context, scenes []domain.Scene) (string, error)
}
