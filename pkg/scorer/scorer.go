// Package scorer rates post quality through the remote agent chat API.
package scorer

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
)

// ErrScoring marks a failed scoring call. The pipeline records such posts with score 0.
var ErrScoring = errors.New("scoring failed")

// Scorer rates formatted post text on a 0-2 scale.
type Scorer interface {
	Score(ctx context.Context, formatted string) (float64, error)
}

const (
	MinScore = 0.0
	MaxScore = 2.0
)

var numberPattern = regexp.MustCompile(`-?\d+\.\d+|-?\d+`)

// ExtractScore returns the first number appearing in a free-text reply, or 0.
func ExtractScore(reply string) float64 {
	m := numberPattern.FindString(reply)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// NormalizeScore clamps s into [MinScore, MaxScore]. Non-finite values become 0.
func NormalizeScore(s float64) float64 {
	switch {
	case math.IsNaN(s), math.IsInf(s, 0):
		return 0
	case s < MinScore:
		return MinScore
	case s > MaxScore:
		return MaxScore
	default:
		return s
	}
}
