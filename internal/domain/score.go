package domain

import "time"

// Verdict is the critic's decision for a scoring pass.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictRetry  Verdict = "retry"
)

func (v Verdict) IsValid() bool {
	return v == VerdictAccept || v == VerdictRetry
}

// RetryTarget names the portion of a unit a retry pass regenerates.
type RetryTarget string

const (
	RetryTargetNone       RetryTarget = ""
	RetryTargetHookOnly   RetryTarget = "hook_only"
	RetryTargetEndingOnly RetryTarget = "ending_only"
	RetryTargetFull       RetryTarget = "full"
)

func (t RetryTarget) IsValid() bool {
	switch t {
	case RetryTargetNone, RetryTargetHookOnly, RetryTargetEndingOnly, RetryTargetFull:
		return true
	}
	return false
}

// Dimension weights for the critic total.
const (
	WeightHook      = 0.35
	WeightPacing    = 0.25
	WeightLoop      = 0.25
	WeightAlignment = 0.15
)

// DefaultRetryThreshold is the accept cutoff for the weighted total.
const DefaultRetryThreshold = 0.6

// Score dimension names used by feedback and observability.
const (
	DimensionHook      = "hook_strength"
	DimensionPacing    = "pacing"
	DimensionLoop      = "loop_effectiveness"
	DimensionAlignment = "alignment"
)

// CriticScore is the evaluation result of one scoring pass. A new pass
// supersedes the previous score; instances are never mutated in place.
type CriticScore struct {
	Hook        float64     `json:"hook"`
	Pacing      float64     `json:"pacing"`
	Loop        float64     `json:"loop"`
	Alignment   float64     `json:"alignment"`
	Total       float64     `json:"total"`
	Verdict     Verdict     `json:"verdict"`
	RetryTarget RetryTarget `json:"retryTarget,omitempty"`
	Feedback    string      `json:"feedback,omitempty"`
	Degraded    bool        `json:"degraded,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// WeightedTotal computes the critic total from clamped dimension scores.
func WeightedTotal(hook, pacing, loop, alignment float64) float64 {
	return Clamp01(hook)*WeightHook +
		Clamp01(pacing)*WeightPacing +
		Clamp01(loop)*WeightLoop +
		Clamp01(alignment)*WeightAlignment
}

// Clamp01 bounds a score to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WeakestDimension returns the minimum-scoring dimension and its value. It
// exists for observability and alternative retry policies; the default retry
// decision does not consult it.
func (s *CriticScore) WeakestDimension() (string, float64) {
	name, value := DimensionHook, s.Hook
	if s.Pacing < value {
		name, value = DimensionPacing, s.Pacing
	}
	if s.Loop < value {
		name, value = DimensionLoop, s.Loop
	}
	if s.Alignment < value {
		name, value = DimensionAlignment, s.Alignment
	}
	return name, value
}
