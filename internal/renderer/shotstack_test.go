package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jdmedia/newsreel/internal/models"
)

func shotstackJob(t *testing.T, payload *models.Payload, audioDuration float64) *Job {
	t.Helper()
	job := preparedJob(t, payload, audioDuration)
	return job
}

func TestIsRemoteURL(t *testing.T) {
	cases := map[string]bool{
		"http://x":                    true,
		"https://cdn.example.com/a":   true,
		"http://":                     false,
		"/srv/projects/p1/photo.jpg":  false,
		"httpx://not-a-remote-scheme": false,
	}
	for src, want := range cases {
		if got := isRemoteURL(src); got != want {
			t.Errorf("isRemoteURL(%q) = %v, want %v", src, got, want)
		}
	}
}

func TestShotstackBuildEditMapsPayload(t *testing.T) {
	p := NewShotstackProvider(nil, "key", "http://example.invalid", &recordingUploader{})

	payload := &models.Payload{
		Text:    "Wiadomości.",
		Formats: []string{"16x9"},
		Media: []models.MediaItem{
			{Type: models.MediaTypeImage, Src: "https://cdn.example.com/a.jpg"},
			{Type: models.MediaTypeVideo, Src: "https://cdn.example.com/b.mp4", Clip: &models.ClipRange{Start: 1.0, End: 4.0}},
		},
		Transitions: models.TransitionsConfig{UseXfade: true, Duration: 0.5},
	}
	job := shotstackJob(t, payload, 12.0)

	edit, err := p.buildEdit(context.Background(), job, models.DefaultProfile(), "https://cdn.example.com/narration.mp3")
	if err != nil {
		t.Fatalf("buildEdit failed: %v", err)
	}

	timeline := edit["timeline"].(map[string]any)
	soundtrack := timeline["soundtrack"].(map[string]any)
	if soundtrack["src"] != "https://cdn.example.com/narration.mp3" {
		t.Fatalf("Expected narration soundtrack, got %v", soundtrack)
	}

	tracks := timeline["tracks"].([]map[string]any)
	clips := tracks[0]["clips"].([]map[string]any)
	if len(clips) != 2 {
		t.Fatalf("Expected 2 clips, got %d", len(clips))
	}

	first := clips[0]
	if first["start"] != 0.0 || first["length"] != 4.5 {
		t.Fatalf("Expected first clip at 0.0 for 4.5s, got %v", first)
	}
	second := clips[1]
	// xfade: second clip starts one overlap early; the 3s video is padded
	// out so the visuals cover the 12s narration.
	if second["start"] != 4.0 {
		t.Fatalf("Expected second clip at 4.0, got %v", second)
	}
	if second["asset"].(map[string]any)["trim"] != 1.0 {
		t.Fatalf("Expected clip trim 1.0, got %v", second)
	}
	if second["length"].(float64) <= 3.0 {
		t.Fatalf("Expected last clip padded past its 3s range, got %v", second["length"])
	}

	output := edit["output"].(map[string]any)
	size := output["size"].(map[string]any)
	if size["width"] != 1920 || size["height"] != 1080 {
		t.Fatalf("Expected 1920x1080 output, got %v", size)
	}
}

func TestShotstackBuildEditNoMedia(t *testing.T) {
	p := NewShotstackProvider(nil, "key", "http://example.invalid", &recordingUploader{})
	job := shotstackJob(t, &models.Payload{Text: "x", Formats: []string{"16x9"}}, 5.0)

	if _, err := p.buildEdit(context.Background(), job, models.DefaultProfile(), "u"); err == nil {
		t.Fatal("Expected error with no usable media")
	}
}

func TestShotstackSubmitParsesRenderID(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/render" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("x-api-key")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"response": map[string]any{"id": "rend-123"}})
	}))
	defer srv.Close()

	p := NewShotstackProvider(nil, "sekret", srv.URL, nil)
	id, err := p.submit(context.Background(), map[string]any{"timeline": map[string]any{}})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if id != "rend-123" {
		t.Fatalf("Expected render id rend-123, got %q", id)
	}
	if gotKey != "sekret" {
		t.Fatalf("Expected x-api-key header, got %q", gotKey)
	}
}

func TestShotstackSubmitRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad edit"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewShotstackProvider(nil, "key", srv.URL, nil)
	if _, err := p.submit(context.Background(), map[string]any{}); err == nil {
		t.Fatal("Expected error on 400 response")
	}
}

func TestShotstackFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render/rend-123" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"response": map[string]any{
			"status": "done",
			"url":    "https://cdn.shotstack.io/out.mp4",
		}})
	}))
	defer srv.Close()

	p := NewShotstackProvider(nil, "key", srv.URL, nil)
	status, url, err := p.fetchStatus(context.Background(), "rend-123")
	if err != nil {
		t.Fatalf("fetchStatus failed: %v", err)
	}
	if status != "done" || url != "https://cdn.shotstack.io/out.mp4" {
		t.Fatalf("Unexpected status %q url %q", status, url)
	}
}
