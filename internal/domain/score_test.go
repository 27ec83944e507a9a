package domain

import (
	"math"
	"testing"
)

func TestWeightedTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                          string
		hook, pacing, loop, alignment float64
		want                          float64
	}{
		{"uniform high", 0.9, 0.9, 0.9, 0.9, 0.9},
		{"uniform low", 0.4, 0.4, 0.4, 0.4, 0.4},
		{"weighted mix", 1.0, 0.0, 0.0, 0.0, 0.35},
		{"clamped above", 2.0, 1.0, 1.0, 1.0, 1.0},
		{"clamped below", -1.0, 0.0, 0.0, 0.0, 0.0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := WeightedTotal(tt.hook, tt.pacing, tt.loop, tt.alignment)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("WeightedTotal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeakestDimension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		score     CriticScore
		wantName  string
		wantValue float64
	}{
		{"pacing weakest", CriticScore{Hook: 0.8, Pacing: 0.2, Loop: 0.7, Alignment: 0.6}, DimensionPacing, 0.2},
		{"alignment weakest", CriticScore{Hook: 0.8, Pacing: 0.7, Loop: 0.7, Alignment: 0.1}, DimensionAlignment, 0.1},
		{"tie keeps earlier dimension", CriticScore{Hook: 0.5, Pacing: 0.5, Loop: 0.5, Alignment: 0.5}, DimensionHook, 0.5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			name, value := tt.score.WeakestDimension()
			if name != tt.wantName || value != tt.wantValue {
				t.Fatalf("WeakestDimension() = (%s, %v), want (%s, %v)", name, value, tt.wantName, tt.wantValue)
			}
		})
	}
}

func TestParsePlatformFromString(t *testing.T) {
	t.Parallel()

	got, err := ParsePlatformFromString(" tiktok ")
	if err != nil {
		t.Fatalf("ParsePlatformFromString() unexpected error = %v", err)
	}
	if got != PlatformTikTok {
		t.Fatalf("ParsePlatformFromString() = %s, want %s", got, PlatformTikTok)
	}

	if _, err := ParsePlatformFromString("vine"); err == nil {
		t.Fatal("ParsePlatformFromString(vine) should fail")
	}
}
