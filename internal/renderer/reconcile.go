package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdmedia/newsreel/internal/models"
)

// maxReconcileIters caps the duration reconciliation loop. Hitting it with
// a remaining deficit means the durations/overlap configuration is
// inconsistent and the render must fail rather than ship a short video.
const maxReconcileIters = 200

const reconcileEpsilon = 1e-3

// ErrReconcileBudget marks a reconciliation that could not cover the audio
// within the iteration cap.
var ErrReconcileBudget = errors.New("duration reconciliation exceeded iteration budget")

// FillerFunc encodes a solid-color filler clip of the given duration and
// returns it as a segment. index is 1-based over the grown segment list.
type FillerFunc func(ctx context.Context, index int, duration float64) (models.VisualSegment, error)

// EffectiveDuration is the on-screen length of the segment chain. With
// crossfades each of the n-1 transitions swallows one overlap.
func EffectiveDuration(segments []models.VisualSegment, useXfade bool, overlap float64) float64 {
	if len(segments) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range segments {
		total += s.Duration
	}
	if useXfade && len(segments) >= 2 {
		total -= overlap * float64(len(segments)-1)
	}
	if total < 0 {
		return 0
	}
	return total
}

// Reconcile grows the segment list until its effective duration covers the
// narration. When the last segment is long enough to survive a crossfade it
// is repeated; otherwise a filler clip is appended so the chain keeps
// making progress.
func Reconcile(ctx context.Context, segments []models.VisualSegment, audioDuration float64, useXfade bool, overlap float64, makeFiller FillerFunc) ([]models.VisualSegment, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments to reconcile")
	}

	eff := EffectiveDuration(segments, useXfade, overlap)
	iter := 0
	for eff+reconcileEpsilon < audioDuration && iter < maxReconcileIters {
		last := segments[len(segments)-1]
		threshold := 0.0
		if useXfade {
			threshold = overlap
		}
		if last.Duration <= threshold {
			dur := overlap + 0.2
			if dur < 1.0 {
				dur = 1.0
			}
			filler, err := makeFiller(ctx, len(segments)+1, dur)
			if err != nil {
				return nil, fmt.Errorf("filler segment: %w", err)
			}
			segments = append(segments, filler)
		} else {
			segments = append(segments, last)
		}
		eff = EffectiveDuration(segments, useXfade, overlap)
		iter++
	}

	if eff+reconcileEpsilon < audioDuration {
		return nil, fmt.Errorf("%w: effective %.2fs < audio %.2fs after %d iterations",
			ErrReconcileBudget, eff, audioDuration, iter)
	}
	return segments, nil
}
