package models

import (
	"encoding/json"
	"testing"
)

func TestProjectStatus(t *testing.T) {
	statuses := []ProjectStatus{
		ProjectStatusCreated,
		ProjectStatusQueued,
		ProjectStatusProcessing,
		ProjectStatusDone,
		ProjectStatusError,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}

	if !ProjectStatusDone.IsTerminal() || !ProjectStatusError.IsTerminal() {
		t.Error("done/error should be terminal")
	}
	if ProjectStatusProcessing.IsTerminal() {
		t.Error("processing should not be terminal")
	}
}

func TestPayloadApplyDefaults(t *testing.T) {
	var p Payload
	p.ApplyDefaults()

	if len(p.Formats) != 1 || p.Formats[0] != "16x9" {
		t.Errorf("expected default format 16x9, got %v", p.Formats)
	}
	if p.Renderer.Type != RendererLocal {
		t.Errorf("expected local renderer, got %s", p.Renderer.Type)
	}
	if p.TTS.Speed != 1.0 {
		t.Errorf("expected speed 1.0, got %f", p.TTS.Speed)
	}
	if p.Brand.Position != "top-right" {
		t.Errorf("expected top-right logo position, got %s", p.Brand.Position)
	}
}

func TestPayloadApplyDefaultsDropsUnknownFormats(t *testing.T) {
	p := Payload{Formats: []string{"4x3", "9x16", "bogus"}}
	p.ApplyDefaults()

	if len(p.Formats) != 1 || p.Formats[0] != "9x16" {
		t.Errorf("expected only 9x16 to survive, got %v", p.Formats)
	}
}

func TestNarrationTextPrefersScript(t *testing.T) {
	p := Payload{Text: "digest", NarrationScript: "edited script"}
	if p.NarrationText() != "edited script" {
		t.Errorf("expected narration script to win, got %q", p.NarrationText())
	}

	p.NarrationScript = ""
	if p.NarrationText() != "digest" {
		t.Errorf("expected digest text fallback, got %q", p.NarrationText())
	}
}

func TestProfileFor(t *testing.T) {
	base := DefaultProfile()

	p := ProfileFor("9x16", base)
	if p.Width != 1080 || p.Height != 1920 {
		t.Errorf("unexpected 9x16 dims: %dx%d", p.Width, p.Height)
	}
	if p.FPS != base.FPS || p.VideoBitrate != base.VideoBitrate {
		t.Error("ProfileFor should keep base fps/bitrates")
	}

	p = ProfileFor("unknown", base)
	if p.Width != 1920 || p.Height != 1080 {
		t.Errorf("unknown format should map to 16x9, got %dx%d", p.Width, p.Height)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	m := Manifest{
		ProjectID: "proj-1",
		Title:     "News video",
		Status:    ProjectStatusCreated,
		Outputs:   map[string]any{},
		Logs:      []string{},
		Payload: &Payload{
			Text:  "Hello.",
			Media: []MediaItem{{Type: MediaTypeImage, Src: "a.jpg"}},
		},
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}

	var back Manifest
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("failed to unmarshal manifest: %v", err)
	}
	if back.ProjectID != "proj-1" || back.Payload.Media[0].Src != "a.jpg" {
		t.Errorf("round trip lost data: %+v", back)
	}
}
