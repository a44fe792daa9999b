package renderer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jdmedia/newsreel/internal/captions"
	"github.com/jdmedia/newsreel/internal/services"
	"github.com/jdmedia/newsreel/internal/timeline"
)

// Assembler builds the assets every provider needs before composing
// visuals: the narration track and both caption files.
type Assembler struct {
	encoder      *services.Encoder
	synthesizers map[string]services.Synthesizer
	captionStyle captions.Style
}

func NewAssembler(encoder *services.Encoder, synthesizers map[string]services.Synthesizer) *Assembler {
	return &Assembler{
		encoder:      encoder,
		synthesizers: synthesizers,
		captionStyle: captions.DefaultStyle(),
	}
}

// PrepareAssets segments the narration text, synthesizes the voice track
// and writes captions.srt / captions.ass under outputs/.
func (a *Assembler) PrepareAssets(ctx context.Context, job *Job) (*PreparedAssets, error) {
	payload := job.Payload
	text := payload.NarrationText()
	if text == "" {
		return nil, fmt.Errorf("payload has no narration text")
	}
	synth, ok := a.synthesizers[payload.TTS.Provider]
	if !ok {
		return nil, fmt.Errorf("TTS provider %q is not configured", payload.TTS.Provider)
	}
	if payload.TTS.Voice == "" {
		return nil, fmt.Errorf("no TTS voice configured")
	}

	segments := timeline.SegmentText(text, timeline.DefaultMaxChars)
	if len(segments) == 0 {
		return nil, fmt.Errorf("narration text produced no segments")
	}

	builder := timeline.NewBuilder(synth, a.encoder)
	narration, err := builder.Build(ctx, segments, payload.TTS, filepath.Join(job.ProjectDir, "audio"))
	if err != nil {
		return nil, fmt.Errorf("narration: %w", err)
	}
	for _, seg := range narration.Timeline {
		if seg.Fallback {
			job.AppendLog(fmt.Sprintf("tts fallback: segment %d rendered as estimated silence", seg.ID))
		}
	}

	audioDuration := a.encoder.ProbeDuration(ctx, narration.AudioPath)
	log.Printf("[Render] Narration synthesized: %.2fs, %d segments (voice=%s, provider=%s)",
		audioDuration, len(narration.Timeline), payload.TTS.Voice, payload.TTS.Provider)

	outDir := filepath.Join(job.ProjectDir, "outputs")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create outputs dir: %w", err)
	}
	srtPath := filepath.Join(outDir, "captions.srt")
	assPath := filepath.Join(outDir, "captions.ass")
	if err := captions.WriteSRT(narration.Timeline, srtPath); err != nil {
		return nil, err
	}
	if err := captions.WriteASS(narration.Timeline, job.Profile, a.captionStyle, assPath); err != nil {
		return nil, err
	}

	return &PreparedAssets{
		Narration:     narration,
		AudioDuration: audioDuration,
		OutDir:        outDir,
		SRTPath:       srtPath,
		ASSPath:       assPath,
	}, nil
}
