package generator

import (
	"math"
	"testing"

	"github.com/reelforge/clip-engine/internal/domain"
)

var tiktokSpec = domain.PlatformSpec{MaxDurationSec: 180, MinDurationSec: 5, HookWindowSec: 3}

func validScenes() []domain.Scene {
	return []domain.Scene{
		{Role: domain.SceneRoleHook, Narration: "wait for it", Prompt: "close-up", DurationSec: 2},
		{Role: domain.SceneRoleEscalate, Narration: "it builds", Prompt: "wide shot", DurationSec: 20},
		{Role: domain.SceneRoleTwist, Narration: "but then", Prompt: "reveal", DurationSec: 13},
		{Role: domain.SceneRoleLoop, Narration: "watch again", Prompt: "callback", DurationSec: 10},
	}
}

func TestStructuralValidatorValid(t *testing.T) {
	t.Parallel()

	v := NewStructuralValidator()
	valid, issues := v.Validate(validScenes(), tiktokSpec, 45)
	if !valid {
		t.Fatalf("Validate() = invalid, issues = %+v", issues)
	}
}

func TestStructuralValidatorIssues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(scenes []domain.Scene) []domain.Scene
		wantCode    IssueCode
		wantFixable bool
	}{
		{
			name: "hook too long",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[0].DurationSec = 8
				s[1].DurationSec = 14
				return s
			},
			wantCode:    IssueHookTooLong,
			wantFixable: true,
		},
		{
			name: "duration drifted",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[1].DurationSec = 80
				return s
			},
			wantCode:    IssueDurationOutOfRange,
			wantFixable: true,
		},
		{
			name: "empty narration",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[2].Narration = "  "
				return s
			},
			wantCode:    IssueEmptyNarration,
			wantFixable: false,
		},
		{
			name: "missing loop",
			mutate: func(s []domain.Scene) []domain.Scene {
				return s[:2]
			},
			wantCode:    IssueBadStructure,
			wantFixable: false,
		},
	}

	v := NewStructuralValidator()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			valid, issues := v.Validate(tt.mutate(validScenes()), tiktokSpec, 45)
			if valid {
				t.Fatal("Validate() = valid, want invalid")
			}

			found := false
			for _, issue := range issues {
				if issue.Code == tt.wantCode {
					found = true
					if issue.Fixable != tt.wantFixable {
						t.Fatalf("issue %s fixable = %v, want %v", issue.Code, issue.Fixable, tt.wantFixable)
					}
				}
			}
			if !found {
				t.Fatalf("issues %+v missing code %s", issues, tt.wantCode)
			}
		})
	}
}

func TestFixHook(t *testing.T) {
	t.Parallel()

	v := NewStructuralValidator()
	fixed := v.FixHook(domain.Scene{Role: domain.SceneRoleHook, DurationSec: 9}, tiktokSpec)
	if fixed.DurationSec != tiktokSpec.HookWindowSec {
		t.Fatalf("FixHook() duration = %v, want %v", fixed.DurationSec, tiktokSpec.HookWindowSec)
	}

	untouched := v.FixHook(domain.Scene{Role: domain.SceneRoleHook, DurationSec: 2}, tiktokSpec)
	if untouched.DurationSec != 2 {
		t.Fatalf("FixHook() shortened a compliant hook to %v", untouched.DurationSec)
	}
}

func TestFixDuration(t *testing.T) {
	t.Parallel()

	v := NewStructuralValidator()
	scenes := validScenes()
	scenes[1].DurationSec = 80 // total 105

	fixed := v.FixDuration(scenes, 45)
	if got := domain.TotalDurationSec(fixed); math.Abs(got-45) > 1e-9 {
		t.Fatalf("FixDuration() total = %v, want 45", got)
	}
	// Proportions are preserved.
	ratio := fixed[1].DurationSec / fixed[0].DurationSec
	if math.Abs(ratio-40) > 1e-9 {
		t.Fatalf("scene ratio = %v, want 40", ratio)
	}
	// Input slice is left untouched.
	if scenes[1].DurationSec != 80 {
		t.Fatalf("FixDuration() mutated its input: %v", scenes[1].DurationSec)
	}
}

func TestHasUnfixable(t *testing.T) {
	t.Parallel()

	if HasUnfixable([]Issue{{Code: IssueHookTooLong, Fixable: true}}) {
		t.Fatal("HasUnfixable() = true for fixable-only issues")
	}
	if !HasUnfixable([]Issue{{Code: IssueHookTooLong, Fixable: true}, {Code: IssueEmptyNarration}}) {
		t.Fatal("HasUnfixable() = false with an unfixable issue present")
	}
}
