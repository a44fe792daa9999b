package timeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jdmedia/newsreel/internal/models"
)

func TestSegmentTextPacksShortSentencesTogether(t *testing.T) {
	segs := SegmentText("To jest test. Drugie zdanie tutaj.", 220)
	if len(segs) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segs))
	}
	if segs[0].Text != "To jest test. Drugie zdanie tutaj." {
		t.Errorf("Unexpected segment text: %q", segs[0].Text)
	}
	if segs[0].ID != 1 {
		t.Errorf("Expected 1-based id, got %d", segs[0].ID)
	}
}

func TestSegmentTextSplitsAtMaxChars(t *testing.T) {
	text := "Pierwsze zdanie o pewnej długości tutaj. Drugie zdanie o pewnej długości tutaj. Trzecie zdanie o pewnej długości tutaj."
	segs := SegmentText(text, 60)
	if len(segs) < 2 {
		t.Fatalf("Expected multiple segments, got %d", len(segs))
	}
	for _, s := range segs {
		if len([]rune(s.Text)) > 60 {
			t.Errorf("Segment %d exceeds max chars: %q", s.ID, s.Text)
		}
	}
	// Concatenating segments reproduces the source text.
	var parts []string
	for _, s := range segs {
		parts = append(parts, s.Text)
	}
	if strings.Join(parts, " ") != text {
		t.Errorf("Segments do not reproduce source text: %q", strings.Join(parts, " "))
	}
	// IDs are sequential from 1.
	for i, s := range segs {
		if s.ID != i+1 {
			t.Errorf("Expected id %d, got %d", i+1, s.ID)
		}
	}
}

func TestSegmentTextOversizedSentenceKeptWhole(t *testing.T) {
	long := strings.Repeat("bardzo ", 40) + "długie zdanie."
	segs := SegmentText("Krótkie. "+long, 50)
	found := false
	for _, s := range segs {
		if strings.Contains(s.Text, "długie zdanie.") {
			found = true
		}
	}
	if !found {
		t.Error("Oversized sentence must survive as its own segment")
	}
}

func TestSegmentTextEmpty(t *testing.T) {
	if segs := SegmentText("   ", 220); segs != nil {
		t.Errorf("Expected nil for blank text, got %v", segs)
	}
}

func TestSplitSentencesKeepsPunctuationClusters(t *testing.T) {
	got := splitSentences("Naprawdę?! Tak. Koniec")
	want := []string{"Naprawdę?!", "Tak.", "Koniec"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d sentences, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Narration builder
// ---------------------------------------------------------------------------

// fakeSynth writes a marker file, failing for segment texts it is told to.
type fakeSynth struct {
	failFor map[string]bool
}

func (f *fakeSynth) Synthesize(_ context.Context, text, _ string, _ float64, outPath string) error {
	if f.failFor[text] {
		return fmt.Errorf("provider down")
	}
	return os.WriteFile(outPath, []byte("mp3"), 0o644)
}

// fakeAudio reports a fixed duration per probe and records silence calls.
type fakeAudio struct {
	durations    map[string]float64
	defaultDur   float64
	silenceCalls []float64
}

func (f *fakeAudio) ProbeDuration(_ context.Context, path string) float64 {
	if d, ok := f.durations[path]; ok {
		return d
	}
	return f.defaultDur
}

func (f *fakeAudio) MakeSilence(_ context.Context, duration float64, outPath string) error {
	f.silenceCalls = append(f.silenceCalls, duration)
	return os.WriteFile(outPath, []byte("silence"), 0o644)
}

func (f *fakeAudio) ConcatAudio(_ context.Context, parts []string, outPath string) error {
	if len(parts) == 0 {
		return fmt.Errorf("no parts")
	}
	return os.WriteFile(outPath, []byte("narration"), 0o644)
}

func TestBuildTimelineContiguity(t *testing.T) {
	segs := []models.NarrationSegment{
		{ID: 1, Text: "Pierwsze zdanie."},
		{ID: 2, Text: "Drugie zdanie."},
		{ID: 3, Text: "Trzecie zdanie."},
	}
	b := NewBuilder(&fakeSynth{}, &fakeAudio{defaultDur: 2.5})

	n, err := b.Build(context.Background(), segs, models.TTSSettings{Voice: "v", Speed: 1.0}, t.TempDir())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(n.Timeline) != 3 {
		t.Fatalf("Expected 3 timeline entries, got %d", len(n.Timeline))
	}
	if n.Timeline[0].Start != 0 {
		t.Errorf("Timeline must start at 0, got %f", n.Timeline[0].Start)
	}
	for i := 0; i < len(n.Timeline)-1; i++ {
		if n.Timeline[i].End != n.Timeline[i+1].Start {
			t.Errorf("Timeline gap between %d and %d: end=%f next start=%f",
				i, i+1, n.Timeline[i].End, n.Timeline[i+1].Start)
		}
	}
	if n.AudioPath == "" {
		t.Error("Expected stitched narration path")
	}
}

func TestBuildFallsBackToSilence(t *testing.T) {
	segs := []models.NarrationSegment{
		{ID: 1, Text: "Działa."},
		{ID: 2, Text: "To zdanie nie zostanie zsyntezowane."},
	}
	audio := &fakeAudio{defaultDur: 2.0}
	synth := &fakeSynth{failFor: map[string]bool{segs[1].Text: true}}
	b := NewBuilder(synth, audio)

	n, err := b.Build(context.Background(), segs, models.TTSSettings{Speed: 1.0}, t.TempDir())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(audio.silenceCalls) != 1 {
		t.Fatalf("Expected one silence fallback, got %d", len(audio.silenceCalls))
	}
	want := EstimateSpeechSeconds(segs[1].Text, 1.0)
	if audio.silenceCalls[0] != want {
		t.Errorf("Expected estimated %f seconds of silence, got %f", want, audio.silenceCalls[0])
	}
	if n.Timeline[0].Fallback {
		t.Error("Successful segment must not be marked as fallback")
	}
	if !n.Timeline[1].Fallback {
		t.Error("Degraded segment must be marked as fallback")
	}
}

func TestBuildEmptySegments(t *testing.T) {
	b := NewBuilder(&fakeSynth{}, &fakeAudio{defaultDur: 1})
	if _, err := b.Build(context.Background(), nil, models.TTSSettings{}, t.TempDir()); err == nil {
		t.Error("Expected error for empty segment list")
	}
}

func TestEstimateSpeechSeconds(t *testing.T) {
	// 100 chars at 160 wpm: (100/5)/(160/60) = 7.5s
	if got := EstimateSpeechSeconds(strings.Repeat("a", 100), 1.0); got != 7.5 {
		t.Errorf("Expected 7.5s, got %f", got)
	}
	// Short text clamps to the 20-char floor: (20/5)/(160/60) = 1.5s
	if got := EstimateSpeechSeconds("hej", 1.0); got != 1.5 {
		t.Errorf("Expected 1.5s floor behavior, got %f", got)
	}
	// Lower clamp on the result
	if got := EstimateSpeechSeconds("x", 2.0); got != 1.2 {
		t.Errorf("Expected 1.2s minimum, got %f", got)
	}
	// Upper clamp
	if got := EstimateSpeechSeconds(strings.Repeat("a", 2000), 0.5); got != 14.0 {
		t.Errorf("Expected 14s cap, got %f", got)
	}
	// Speed clamps into 0.5..2.0
	slow := EstimateSpeechSeconds(strings.Repeat("a", 100), 0.1)
	if slow != EstimateSpeechSeconds(strings.Repeat("a", 100), 0.5) {
		t.Errorf("Speed below 0.5 must clamp, got %f", slow)
	}
}
