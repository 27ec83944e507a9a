package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnitStatus represents the lifecycle state of one generation run.
type UnitStatus string

const (
	UnitStatusQueued    UnitStatus = "QUEUED"
	UnitStatusRunning   UnitStatus = "RUNNING"
	UnitStatusCompleted UnitStatus = "COMPLETED"
	UnitStatusFailed    UnitStatus = "FAILED"
)

func (s UnitStatus) String() string { return string(s) }

func (s UnitStatus) IsValid() bool {
	switch s {
	case UnitStatusQueued, UnitStatusRunning, UnitStatusCompleted, UnitStatusFailed:
		return true
	}
	return false
}

func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusCompleted || s == UnitStatusFailed
}

// SceneRole tags the structural purpose of a scene inside a clip.
type SceneRole string

const (
	SceneRoleHook     SceneRole = "hook"
	SceneRoleEscalate SceneRole = "escalate"
	SceneRoleTension  SceneRole = "tension"
	SceneRoleTwist    SceneRole = "twist"
	SceneRoleLoop     SceneRole = "loop"
)

func (r SceneRole) String() string { return string(r) }

func (r SceneRole) IsValid() bool {
	switch r {
	case SceneRoleHook, SceneRoleEscalate, SceneRoleTension, SceneRoleTwist, SceneRoleLoop:
		return true
	}
	return false
}

// Scene is one narrative segment of a unit's content. Audio/video refs are
// filled during asset materialization; an empty ref marks a degraded scene.
type Scene struct {
	Role        SceneRole `json:"role"`
	Narration   string    `json:"narration"`
	Prompt      string    `json:"prompt"`
	DurationSec float64   `json:"durationSec"`
	AudioRef    string    `json:"audioRef,omitempty"`
	VideoRef    string    `json:"videoRef,omitempty"`
}

// ValidateSceneStructure checks the fixed narrative frame: non-empty, opening
// hook, closing loop, known roles.
func ValidateSceneStructure(scenes []Scene) error {
	if len(scenes) == 0 {
		return fmt.Errorf("%w: no scenes", ErrValidation)
	}
	if scenes[0].Role != SceneRoleHook {
		return fmt.Errorf("%w: first scene must be %s, got %s", ErrValidation, SceneRoleHook, scenes[0].Role)
	}
	if scenes[len(scenes)-1].Role != SceneRoleLoop {
		return fmt.Errorf("%w: last scene must be %s, got %s", ErrValidation, SceneRoleLoop, scenes[len(scenes)-1].Role)
	}
	for i := range scenes {
		if !scenes[i].Role.IsValid() {
			return fmt.Errorf("%w: scene %d has invalid role %q", ErrValidation, i, scenes[i].Role)
		}
	}
	return nil
}

// TotalDurationSec sums scene durations.
func TotalDurationSec(scenes []Scene) float64 {
	var total float64
	for i := range scenes {
		total += scenes[i].DurationSec
	}
	return total
}

// AlignmentProfile describes an expected progression of narrative or
// emotional beats the critic scores alignment against.
type AlignmentProfile struct {
	Progression []string `json:"progression"`
}

// UnitConfig is the frozen configuration for one generation run.
type UnitConfig struct {
	Content           string
	Platform          Platform
	TargetDurationSec float64
	Voice             string
	Genre             string
	Language          string
	Audience          string
	MaxRetries        int
	Alignment         *AlignmentProfile
}

// UnitConfigFromBatch derives a unit config for one item of a locked batch.
func UnitConfigFromBatch(cfg BatchConfig, content string, maxRetries int) UnitConfig {
	return UnitConfig{
		Content:           content,
		Platform:          cfg.Platform,
		TargetDurationSec: cfg.TargetDurationSec,
		Voice:             cfg.Voice,
		Genre:             cfg.Genre,
		Language:          cfg.Language,
		Audience:          cfg.Audience,
		MaxRetries:        maxRetries,
	}
}

// Unit is one end-to-end generation run, standalone or produced by a batch
// item. It may outlive its batch item for audit purposes.
type Unit struct {
	ID           string
	BatchID      *string
	ItemID       *string
	Status       UnitStatus
	Config       UnitConfig
	Scenes       []Scene
	Score        *CriticScore
	RetryCount   int
	ErrorMessage *string
	OutputRef    *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// NewUnit creates a QUEUED unit.
func NewUnit(cfg UnitConfig, batchID, itemID *string, now time.Time) *Unit {
	return &Unit{
		ID:        uuid.NewString(),
		BatchID:   batchID,
		ItemID:    itemID,
		Status:    UnitStatusQueued,
		Config:    cfg,
		CreatedAt: now,
	}
}

// MarkRunning transitions QUEUED to RUNNING.
func (u *Unit) MarkRunning(now time.Time) error {
	if u.Status != UnitStatusQueued {
		return fmt.Errorf("%w: cannot run %s unit", ErrState, u.Status)
	}
	u.Status = UnitStatusRunning
	u.StartedAt = &now
	return nil
}

// MarkCompleted sets the terminal COMPLETED state exactly once.
func (u *Unit) MarkCompleted(outputRef string, now time.Time) error {
	if u.Status.IsTerminal() {
		return fmt.Errorf("%w: unit already %s", ErrState, u.Status)
	}
	u.Status = UnitStatusCompleted
	ref := strings.TrimSpace(outputRef)
	u.OutputRef = &ref
	u.CompletedAt = &now
	return nil
}

// MarkFailed sets the terminal FAILED state exactly once.
func (u *Unit) MarkFailed(message string, now time.Time) error {
	if u.Status.IsTerminal() {
		return fmt.Errorf("%w: unit already %s", ErrState, u.Status)
	}
	u.Status = UnitStatusFailed
	msg := strings.TrimSpace(message)
	u.ErrorMessage = &msg
	u.CompletedAt = &now
	return nil
}
