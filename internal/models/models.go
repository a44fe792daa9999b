package models

import (
	"time"
)

// Enums
type ProjectStatus string

const (
	ProjectStatusCreated    ProjectStatus = "created"
	ProjectStatusQueued     ProjectStatus = "queued"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusDone       ProjectStatus = "done"
	ProjectStatusError      ProjectStatus = "error"
)

// IsTerminal reports whether the status ends a render attempt.
// A re-render re-enters at queued regardless of a prior terminal state.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusDone || s == ProjectStatusError
}

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type RendererType string

const (
	RendererLocal        RendererType = "local"
	RendererShotstack    RendererType = "shotstack"
	RendererJSON2Video   RendererType = "json2video"
	RendererMediaConvert RendererType = "mediaconvert"
	RendererOpenShot     RendererType = "openshot"
	RendererSora         RendererType = "sora"
)

// SupportedRenderers is the closed set accepted by the dispatcher.
// Anything outside this set falls back to the local path with a warning.
var SupportedRenderers = map[RendererType]bool{
	RendererLocal:        true,
	RendererShotstack:    true,
	RendererJSON2Video:   true,
	RendererMediaConvert: true,
	RendererOpenShot:     true,
	RendererSora:         true,
}

// FormatPresets maps social video formats to their pixel dimensions.
var FormatPresets = map[string][2]int{
	"16x9": {1920, 1080},
	"1x1":  {1080, 1080},
	"9x16": {1080, 1920},
}

// ---------------------------------------------------------------------------
// Manifest — the durable JSON document describing one render project.
// It is the single source of truth; all mutation goes through merge-patch
// updates in the manifest store.
// ---------------------------------------------------------------------------

type Manifest struct {
	ProjectID string         `json:"project_id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   *Payload       `json:"payload"`
	Status    ProjectStatus  `json:"status"`
	Outputs   map[string]any `json:"outputs"`
	Error     string         `json:"error,omitempty"`
	Logs      []string       `json:"logs"`
}

// Payload is the immutable-until-edited project configuration.
type Payload struct {
	Title           string            `json:"title"`
	Text            string            `json:"text"`
	NarrationScript string            `json:"narration_script,omitempty"`
	Media           []MediaItem       `json:"media"`
	Formats         []string          `json:"formats"`
	Renderer        RendererConfig    `json:"renderer"`
	Subtitles       SubtitleConfig    `json:"subtitles"`
	Transitions     TransitionsConfig `json:"transitions"`
	TTS             TTSSettings       `json:"tts"`
	Brand           BrandConfig       `json:"brand"`
}

// NarrationText prefers the explicit narration script so voiceover and
// visuals stay aligned when an editor rewrote the digest text.
func (p Payload) NarrationText() string {
	if p.NarrationScript != "" {
		return p.NarrationScript
	}
	return p.Text
}

type MediaItem struct {
	Type MediaType  `json:"type"`
	Src  string     `json:"src"`
	Clip *ClipRange `json:"clip,omitempty"` // video only
}

type ClipRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type RendererConfig struct {
	Type   RendererType   `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

type SubtitleConfig struct {
	BurnIn bool `json:"burn_in"`
}

type TransitionsConfig struct {
	UseXfade   bool    `json:"use_xfade"`
	Duration   float64 `json:"duration"`   // seconds, clamped to 0.1–2.0 at use
	Transition string  `json:"transition"` // xfade style: fade, wipeleft, circleopen, ...
}

type TTSSettings struct {
	Provider string  `json:"provider"` // "elevenlabs" | "openai"
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"` // 0.5 .. 2.0
	Language string  `json:"language"`
}

type BrandConfig struct {
	LogoPath string  `json:"logo_path"` // local path or HTTP URL
	Position string  `json:"position"`  // top-left | top-right | bottom-left | bottom-right
	Opacity  float64 `json:"opacity"`   // 0.0–1.0
	Scale    float64 `json:"scale"`     // logo width = scale * video width
}

// ApplyDefaults fills zero values once at the manifest boundary so the
// pipeline never re-interprets raw payload mappings.
func (p *Payload) ApplyDefaults() {
	if len(p.Formats) == 0 {
		p.Formats = []string{"16x9"}
	}
	valid := p.Formats[:0]
	for _, f := range p.Formats {
		if _, ok := FormatPresets[f]; ok {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		valid = append(valid, "16x9")
	}
	p.Formats = valid

	if p.Renderer.Type == "" {
		p.Renderer.Type = RendererLocal
	}
	if p.Transitions.Duration == 0 {
		p.Transitions.Duration = 0.5
	}
	if p.Transitions.Transition == "" {
		p.Transitions.Transition = "fade"
	}
	if p.TTS.Provider == "" {
		p.TTS.Provider = "elevenlabs"
	}
	if p.TTS.Speed == 0 {
		p.TTS.Speed = 1.0
	}
	if p.TTS.Language == "" {
		p.TTS.Language = "pl"
	}
	if p.Brand.Position == "" {
		p.Brand.Position = "top-right"
	}
	if p.Brand.Opacity == 0 {
		p.Brand.Opacity = 0.85
	}
	if p.Brand.Scale == 0 {
		p.Brand.Scale = 0.15
	}
}

// ---------------------------------------------------------------------------
// Render profile — the resolution/bitrate envelope a format renders at
// ---------------------------------------------------------------------------

type RenderProfile struct {
	Width        int
	Height       int
	FPS          int
	VideoBitrate string
	AudioBitrate string
}

// DefaultProfile is the 16x9 baseline; ProfileFor derives the others.
func DefaultProfile() RenderProfile {
	return RenderProfile{
		Width:        1920,
		Height:       1080,
		FPS:          30,
		VideoBitrate: "5000k",
		AudioBitrate: "192k",
	}
}

// ProfileFor returns the profile resized for the given social format,
// keeping the base profile's fps and bitrates.
func ProfileFor(format string, base RenderProfile) RenderProfile {
	dims, ok := FormatPresets[format]
	if !ok {
		dims = FormatPresets["16x9"]
	}
	base.Width = dims[0]
	base.Height = dims[1]
	return base
}

// ---------------------------------------------------------------------------
// Timeline artifacts
// ---------------------------------------------------------------------------

// NarrationSegment is one narrated chunk of the script with its position on
// the narration track. Fallback marks segments whose audio is estimated
// silence because the TTS capability failed.
type NarrationSegment struct {
	ID       int     `json:"id"`
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Fallback bool    `json:"fallback,omitempty"`
}

// VisualSegment is an encoded clip of known duration, produced per render
// attempt inside the job's working directory and never persisted.
type VisualSegment struct {
	Path     string
	Duration float64
}

// DTOs for API responses

type CreateProjectRequest struct {
	Payload Payload `json:"payload"`
	Title   string  `json:"title,omitempty"`
}

type CreateProjectResponse struct {
	ProjectID string        `json:"project_id"`
	Status    ProjectStatus `json:"status"`
}

type StatusResponse struct {
	ProjectID string         `json:"project_id"`
	Status    ProjectStatus  `json:"status"`
	Error     string         `json:"error,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
}
