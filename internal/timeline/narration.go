package timeline

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/jdmedia/newsreel/internal/models"
	"github.com/jdmedia/newsreel/internal/services"
)

// AudioTool is the slice of the encoder the narration builder needs.
type AudioTool interface {
	ProbeDuration(ctx context.Context, path string) float64
	MakeSilence(ctx context.Context, duration float64, outPath string) error
	ConcatAudio(ctx context.Context, parts []string, outPath string) error
}

// Narration is the synthesized voice track plus the per-segment timeline
// that drives caption generation.
type Narration struct {
	AudioPath string
	Timeline  []models.NarrationSegment
}

// Builder synthesizes segments one by one and stitches them into a single
// narration track. Segments whose synthesis fails degrade to estimated
// silence rather than failing the render.
type Builder struct {
	synth services.Synthesizer
	audio AudioTool
}

func NewBuilder(synth services.Synthesizer, audio AudioTool) *Builder {
	return &Builder{synth: synth, audio: audio}
}

// Build generates per-segment MP3s, laying each on a running cursor so the
// timeline is contiguous: segment[0] starts at 0 and each start equals the
// previous end.
func (b *Builder) Build(ctx context.Context, segments []models.NarrationSegment, settings models.TTSSettings, outDir string) (*Narration, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no narration segments")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create narration dir: %w", err)
	}

	timeline := make([]models.NarrationSegment, 0, len(segments))
	parts := make([]string, 0, len(segments))
	cursor := 0.0

	for _, seg := range segments {
		segPath := filepath.Join(outDir, fmt.Sprintf("seg_%03d.mp3", seg.ID))
		fallback := false

		err := b.synth.Synthesize(ctx, seg.Text, settings.Voice, settings.Speed, segPath)
		if err != nil || !fileExists(segPath) {
			sec := EstimateSpeechSeconds(seg.Text, settings.Speed)
			log.Printf("[Narration] TTS failed for segment %d (%v), using %.1fs silence", seg.ID, err, sec)
			if serr := b.audio.MakeSilence(ctx, sec, segPath); serr != nil {
				return nil, fmt.Errorf("silence fallback for segment %d: %w", seg.ID, serr)
			}
			fallback = true
		}

		dur := round2(b.audio.ProbeDuration(ctx, segPath))
		if dur <= 0 {
			dur = 1.2
		}
		timeline = append(timeline, models.NarrationSegment{
			ID:       seg.ID,
			Text:     seg.Text,
			Start:    round2(cursor),
			End:      round2(cursor + dur),
			Fallback: fallback,
		})
		cursor += dur
		parts = append(parts, segPath)
	}

	audioPath := filepath.Join(outDir, "narration.mp3")
	if err := b.audio.ConcatAudio(ctx, parts, audioPath); err != nil {
		return nil, fmt.Errorf("stitch narration: %w", err)
	}

	return &Narration{AudioPath: audioPath, Timeline: timeline}, nil
}

// EstimateSpeechSeconds approximates how long the text would take to speak
// at ~160 wpm (5 chars/word), clamped to a sane caption window.
func EstimateSpeechSeconds(text string, speed float64) float64 {
	chars := float64(len([]rune(text)))
	if chars < 20 {
		chars = 20
	}
	if speed < 0.5 {
		speed = 0.5
	} else if speed > 2.0 {
		speed = 2.0
	}
	wpm := 160.0 * speed
	sec := (chars / 5.0) / (wpm / 60.0)
	if sec < 1.2 {
		sec = 1.2
	} else if sec > 14.0 {
		sec = 14.0
	}
	return sec
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
