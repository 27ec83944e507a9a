package domain

import (
	"fmt"
	"strings"
)

// Platform identifies the distribution target of a generated clip.
type Platform string

const (
	PlatformTikTok         Platform = "TIKTOK"
	PlatformYouTubeShorts  Platform = "YOUTUBE_SHORTS"
	PlatformInstagramReels Platform = "INSTAGRAM_REELS"
)

func (p Platform) String() string { return string(p) }

func (p Platform) IsValid() bool {
	switch p {
	case PlatformTikTok, PlatformYouTubeShorts, PlatformInstagramReels:
		return true
	}
	return false
}

func ParsePlatformFromString(s string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid platform %q", ErrValidation, s)
	}
	return p, nil
}

// PlatformSpec holds the structural limits a platform imposes on a clip.
type PlatformSpec struct {
	MaxDurationSec  float64
	MinDurationSec  float64
	HookWindowSec   float64
	PreferredAspect string
}

var platformSpecs = map[Platform]PlatformSpec{
	PlatformTikTok:         {MaxDurationSec: 180, MinDurationSec: 5, HookWindowSec: 3, PreferredAspect: "9:16"},
	PlatformYouTubeShorts:  {MaxDurationSec: 180, MinDurationSec: 5, HookWindowSec: 3, PreferredAspect: "9:16"},
	PlatformInstagramReels: {MaxDurationSec: 90, MinDurationSec: 5, HookWindowSec: 3, PreferredAspect: "9:16"},
}

// SpecFor returns the structural limits for a platform.
func SpecFor(p Platform) (PlatformSpec, error) {
	spec, ok := platformSpecs[p]
	if !ok {
		return PlatformSpec{}, fmt.Errorf("%w: invalid platform %q", ErrValidation, p)
	}
	return spec, nil
}
