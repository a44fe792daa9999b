package services

// ---------------------------------------------------------------------------
// Text-to-Speech provider contract
// ---------------------------------------------------------------------------

import "context"

// Synthesizer converts narration text into an MP3 on disk. A failed
// synthesis is not fatal for the pipeline: the narration builder degrades
// to estimated silence for that segment.
type Synthesizer interface {
	// Synthesize writes spoken audio for the text to outPath.
	Synthesize(ctx context.Context, text, voiceID string, speed float64, outPath string) error
}
