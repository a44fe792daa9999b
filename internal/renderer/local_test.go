package renderer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jdmedia/newsreel/internal/models"
	"github.com/jdmedia/newsreel/internal/services"
	"github.com/jdmedia/newsreel/internal/timeline"
)

// fakeExec records invocations and answers every ffprobe with a fixed
// duration. errOn fails the first call whose args contain the marker.
// Renders fan out per format, so recording is mutex-guarded.
type fakeExec struct {
	mu       sync.Mutex
	calls    [][]string
	duration string
	errOn    string
}

func (f *fakeExec) Execute(_ context.Context, name string, args ...string) (string, error) {
	call := append([]string{name}, args...)
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.errOn != "" && strings.Contains(strings.Join(call, " "), f.errOn) {
		return "", errors.New("simulated encoder failure")
	}
	if name == "ffprobe" {
		return f.duration, nil
	}
	return "", nil
}

func (f *fakeExec) joinedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

func preparedJob(t *testing.T, payload *models.Payload, audioDuration float64) *Job {
	t.Helper()
	dir := t.TempDir()
	job := NewJob("proj-1", dir, payload, models.DefaultProfile())
	job.Prepared = &PreparedAssets{
		Narration:     &timeline.Narration{AudioPath: dir + "/audio/narration.mp3"},
		AudioDuration: audioDuration,
		OutDir:        dir,
		SRTPath:       dir + "/captions.srt",
		ASSPath:       dir + "/captions.ass",
	}
	return job
}

func TestLocalRenderFormatXfadePipeline(t *testing.T) {
	exec := &fakeExec{duration: "4.500000"}
	encoder := services.NewEncoder(exec)
	p := NewLocalProvider(NewAssembler(encoder, nil), encoder, nil)

	payload := &models.Payload{
		Text:    "Wiadomości.",
		Formats: []string{"16x9"},
		Media: []models.MediaItem{
			{Type: models.MediaTypeImage, Src: "a.jpg"},
			{Type: models.MediaTypeImage, Src: "b.jpg"},
		},
		Transitions: models.TransitionsConfig{UseXfade: true, Duration: 0.5, Transition: "fade"},
	}
	job := preparedJob(t, payload, 5.0)

	vdur, err := p.renderFormat(context.Background(), job, "16x9")
	if err != nil {
		t.Fatalf("renderFormat failed: %v", err)
	}
	if vdur != 4.5 {
		t.Fatalf("Expected probed duration 4.5, got %v", vdur)
	}

	outputs := job.Outputs()
	if _, ok := outputs["mp4_16x9"]; !ok {
		t.Fatalf("Expected mp4_16x9 output, got %v", outputs)
	}

	var sawXfade, sawMux bool
	for _, call := range exec.joinedCalls() {
		if strings.Contains(call, "-shortest") {
			t.Fatalf("Mux must not pass -shortest: %s", call)
		}
		if strings.Contains(call, "xfade=transition=fade") {
			sawXfade = true
		}
		if strings.Contains(call, "-c:v copy") && strings.Contains(call, "+faststart") {
			sawMux = true
		}
	}
	if !sawXfade {
		t.Fatal("Expected an xfade filter invocation")
	}
	if !sawMux {
		t.Fatal("Expected a stream-copy mux invocation")
	}
}

func TestLocalRenderFormatNoMediaUsesFiller(t *testing.T) {
	exec := &fakeExec{duration: "6.000000"}
	encoder := services.NewEncoder(exec)
	p := NewLocalProvider(NewAssembler(encoder, nil), encoder, nil)

	payload := &models.Payload{
		Text:    "Wiadomości.",
		Formats: []string{"16x9"},
	}
	job := preparedJob(t, payload, 6.0)

	if _, err := p.renderFormat(context.Background(), job, "16x9"); err != nil {
		t.Fatalf("renderFormat failed: %v", err)
	}

	var sawColorSource bool
	for _, call := range exec.joinedCalls() {
		if strings.Contains(call, "color=c=black:s=1920x1080") {
			sawColorSource = true
		}
	}
	if !sawColorSource {
		t.Fatal("Expected a black color-source filler invocation")
	}
	if len(job.Logs()) == 0 {
		t.Fatal("Expected a manifest log line about the filler")
	}
}

func TestLocalRenderFormatBrandingFailureFallsBackToRaw(t *testing.T) {
	exec := &fakeExec{duration: "4.500000", errOn: "overlay"}
	encoder := services.NewEncoder(exec)
	p := NewLocalProvider(NewAssembler(encoder, nil), encoder, nil)

	payload := &models.Payload{
		Text:    "Wiadomości.",
		Formats: []string{"16x9"},
		Media: []models.MediaItem{
			{Type: models.MediaTypeImage, Src: "a.jpg"},
		},
		Brand: models.BrandConfig{LogoPath: "logo.png", Position: "top-right", Opacity: 0.85, Scale: 0.2},
	}
	job := preparedJob(t, payload, 4.0)

	if _, err := p.renderFormat(context.Background(), job, "16x9"); err != nil {
		t.Fatalf("Expected branding failure to be non-fatal, got: %v", err)
	}

	outputs := job.Outputs()
	if _, ok := outputs["mp4_16x9"]; !ok {
		t.Fatalf("Expected mux to run on raw visuals, got %v", outputs)
	}
}

func TestLocalRenderFormatDropsFailedMediaItems(t *testing.T) {
	exec := &fakeExec{duration: "4.500000", errOn: "broken.jpg"}
	encoder := services.NewEncoder(exec)
	p := NewLocalProvider(NewAssembler(encoder, nil), encoder, nil)

	payload := &models.Payload{
		Text:    "Wiadomości.",
		Formats: []string{"16x9"},
		Media: []models.MediaItem{
			{Type: models.MediaTypeImage, Src: "broken.jpg"},
			{Type: models.MediaTypeImage, Src: "good.jpg"},
		},
	}
	job := preparedJob(t, payload, 4.0)

	if _, err := p.renderFormat(context.Background(), job, "16x9"); err != nil {
		t.Fatalf("renderFormat failed: %v", err)
	}

	var dropped bool
	for _, line := range job.Logs() {
		if strings.Contains(line, "broken.jpg") {
			dropped = true
		}
	}
	if !dropped {
		t.Fatalf("Expected a dropped-media log line, got %v", job.Logs())
	}
}

type recordingUploader struct {
	mu   sync.Mutex
	keys []string
}

func (u *recordingUploader) Upload(_ context.Context, _, key, _ string) (string, error) {
	u.mu.Lock()
	u.keys = append(u.keys, key)
	u.mu.Unlock()
	return "https://cdn.example.com/" + key, nil
}

func TestLocalRenderPublishesOutputs(t *testing.T) {
	exec := &fakeExec{duration: "4.500000"}
	encoder := services.NewEncoder(exec)
	uploader := &recordingUploader{}
	p := NewLocalProvider(NewAssembler(encoder, nil), encoder, uploader)

	payload := &models.Payload{
		Text:    "Wiadomości.",
		Formats: []string{"16x9", "9x16"},
		Media: []models.MediaItem{
			{Type: models.MediaTypeImage, Src: "a.jpg"},
		},
	}
	job := preparedJob(t, payload, 10.0)

	if err := p.Render(context.Background(), job); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if job.State().Status != StatusDone {
		t.Fatalf("Expected done state, got %+v", job.State())
	}

	outputs := job.Outputs()
	for _, key := range []string{"mp4_16x9", "mp4_9x16", "mp4_16x9_url", "mp4_9x16_url", "srt", "ass", "audio", "audio_url", "duration_sec"} {
		if _, ok := outputs[key]; !ok {
			t.Fatalf("Expected output %q, got %v", key, outputs)
		}
	}

	// Every probe answers 4.5s, so the reported duration is the video
	// minimum rather than the 10s narration.
	if got := outputs["duration_sec"]; got != 4.5 {
		t.Fatalf("Expected duration_sec 4.5, got %v", got)
	}

	for _, key := range uploader.keys {
		if !strings.HasPrefix(key, "proj-1/") {
			t.Fatalf("Expected upload keys scoped to the project id, got %q", key)
		}
	}
}

func TestLocalRenderIsIdempotentAcrossReruns(t *testing.T) {
	payload := &models.Payload{
		Text:    "Wiadomości.",
		Formats: []string{"16x9", "9x16"},
		Media: []models.MediaItem{
			{Type: models.MediaTypeImage, Src: "a.jpg"},
			{Type: models.MediaTypeImage, Src: "b.jpg"},
		},
		Transitions: models.TransitionsConfig{UseXfade: true, Duration: 0.5, Transition: "fade"},
	}

	render := func() map[string]any {
		exec := &fakeExec{duration: "4.500000"}
		encoder := services.NewEncoder(exec)
		p := NewLocalProvider(NewAssembler(encoder, nil), encoder, &recordingUploader{})
		job := preparedJob(t, payload, 8.0)
		if err := p.Render(context.Background(), job); err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		return job.Outputs()
	}

	first := render()
	second := render()

	if len(first) != len(second) {
		t.Fatalf("Output key sets differ in size: %d vs %d", len(first), len(second))
	}
	for key := range first {
		if _, ok := second[key]; !ok {
			t.Fatalf("Key %q missing from the re-render outputs: %v", key, second)
		}
	}
	if first["duration_sec"] != second["duration_sec"] {
		t.Fatalf("Expected stable duration across reruns, got %v vs %v",
			first["duration_sec"], second["duration_sec"])
	}
}
