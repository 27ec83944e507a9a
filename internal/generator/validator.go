package generator

import (
	"fmt"
	"strings"

	"github.com/reelforge/clip-engine/internal/domain"
)

// IssueCode classifies one rule violation found in a scene sequence.
type IssueCode string

const (
	IssueHookTooLong        IssueCode = "hook_too_long"
	IssueDurationOutOfRange IssueCode = "duration_out_of_range"
	IssueEmptyNarration     IssueCode = "empty_narration"
	IssueBadStructure       IssueCode = "bad_structure"
)

// Issue is one diagnostic from rule validation. Fixable issues are corrected
// mechanically by the pipeline; unfixable ones fail the attempt.
type Issue struct {
	Code    IssueCode
	Fixable bool
	Detail  string
}

// RuleValidator checks structural constraints on a scene sequence and offers
// mechanical fixes for the violations that admit one.
type RuleValidator interface {
	Validate(scenes []domain.Scene, spec domain.PlatformSpec, targetDurationSec float64) (bool, []Issue)
	FixHook(scene domain.Scene, spec domain.PlatformSpec) domain.Scene
	FixDuration(scenes []domain.Scene, targetDurationSec float64) []domain.Scene
}

// StructuralValidator is the default RuleValidator.
type StructuralValidator struct{}

func NewStructuralValidator() *StructuralValidator { return &StructuralValidator{} }

var _ RuleValidator = (*StructuralValidator)(nil)

// durationSlackSec is the tolerated drift around the target before duration
// is flagged, provided the platform maximum is still respected.
const durationSlackSec = 5.0

func (v *StructuralValidator) Validate(scenes []domain.Scene, spec domain.PlatformSpec, targetDurationSec float64) (bool, []Issue) {
	var issues []Issue

	if err := domain.ValidateSceneStructure(scenes); err != nil {
		issues = append(issues, Issue{Code: IssueBadStructure, Fixable: false, Detail: err.Error()})
		return false, issues
	}

	for i := range scenes {
		if strings.TrimSpace(scenes[i].Narration) == "" {
			issues = append(issues, Issue{
				Code:    IssueEmptyNarration,
				Fixable: false,
				Detail:  fmt.Sprintf("scene %d (%s) has empty narration", i, scenes[i].Role),
			})
		}
	}

	if scenes[0].DurationSec > spec.HookWindowSec {
		issues = append(issues, Issue{
			Code:    IssueHookTooLong,
			Fixable: true,
			Detail:  fmt.Sprintf("hook runs %.1fs, window is %.1fs", scenes[0].DurationSec, spec.HookWindowSec),
		})
	}

	total := domain.TotalDurationSec(scenes)
	drift := total - targetDurationSec
	if drift < 0 {
		drift = -drift
	}
	if total > spec.MaxDurationSec || total < spec.MinDurationSec || drift > durationSlackSec {
		issues = append(issues, Issue{
			Code:    IssueDurationOutOfRange,
			Fixable: true,
			Detail:  fmt.Sprintf("total %.1fs, target %.1fs, platform bounds [%.0fs, %.0fs]", total, targetDurationSec, spec.MinDurationSec, spec.MaxDurationSec),
		})
	}

	return len(issues) == 0, issues
}

// FixHook trims an overlong hook down to the platform hook window.
func (v *StructuralValidator) FixHook(scene domain.Scene, spec domain.PlatformSpec) domain.Scene {
	if scene.DurationSec > spec.HookWindowSec {
		scene.DurationSec = spec.HookWindowSec
	}
	return scene
}

// FixDuration rescales scene durations proportionally so the sequence sums to
// the target duration.
func (v *StructuralValidator) FixDuration(scenes []domain.Scene, targetDurationSec float64) []domain.Scene {
	total := domain.TotalDurationSec(scenes)
	if total <= 0 || targetDurationSec <= 0 {
		return scenes
	}

	factor := targetDurationSec / total
	fixed := make([]domain.Scene, len(scenes))
	copy(fixed, scenes)
	for i := range fixed {
		fixed[i].DurationSec *= factor
	}
	return fixed
}

// HasUnfixable reports whether any diagnostic cannot be corrected in place.
func HasUnfixable(issues []Issue) bool {
	for _, issue := range issues {
		if !issue.Fixable {
			return true
		}
	}
	return false
}
