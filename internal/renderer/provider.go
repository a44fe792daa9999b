package renderer

import (
	"context"
	"sync"

	"github.com/jdmedia/newsreel/internal/models"
	"github.com/jdmedia/newsreel/internal/timeline"
)

// ---------------------------------------------------------------------------
// Renderer provider contract
// ---------------------------------------------------------------------------

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRendering Status = "rendering"
	StatusPrepared  Status = "prepared"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCanceled  Status = "canceled"
)

// State is a provider's view of one render attempt.
type State struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Provider renders one project attempt. Prepare builds the shared assets
// (narration track, captions), Render produces the per-format videos, and
// CollectOutputs returns the outputs mapping for the manifest.
type Provider interface {
	Name() string
	Prepare(ctx context.Context, job *Job) error
	Render(ctx context.Context, job *Job) error
	Status(ctx context.Context, job *Job) (State, error)
	CollectOutputs(ctx context.Context, job *Job) (map[string]any, error)
	Cancel(ctx context.Context, job *Job) error
}

// PreparedAssets is everything Prepare leaves behind for Render.
type PreparedAssets struct {
	Narration     *timeline.Narration
	AudioDuration float64
	OutDir        string
	SRTPath       string
	ASSPath       string
}

// Job carries one render attempt through a provider. It is confined to a
// single worker goroutine except for State/outputs reads, which are
// mutex-guarded for status polling.
type Job struct {
	ProjectID  string
	ProjectDir string
	Payload    *models.Payload
	Profile    models.RenderProfile

	Prepared *PreparedAssets

	mu      sync.Mutex
	state   State
	outputs map[string]any
	logs    []string
}

func NewJob(projectID, projectDir string, payload *models.Payload, profile models.RenderProfile) *Job {
	return &Job{
		ProjectID:  projectID,
		ProjectDir: projectDir,
		Payload:    payload,
		Profile:    profile,
		state:      State{Status: StatusQueued},
		outputs:    map[string]any{},
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) SetState(s Status, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = State{Status: s, Message: msg}
}

func (j *Job) SetOutput(key string, value any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outputs[key] = value
}

// Outputs returns a copy of the collected outputs mapping.
func (j *Job) Outputs() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]any, len(j.outputs))
	for k, v := range j.outputs {
		out[k] = v
	}
	return out
}

// AppendLog records a line destined for the manifest's log list.
func (j *Job) AppendLog(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, line)
}

func (j *Job) Logs() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.logs...)
}
