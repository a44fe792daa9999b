package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jdmedia/newsreel/internal/manifest"
	"github.com/jdmedia/newsreel/internal/models"
	"github.com/jdmedia/newsreel/internal/queue"
	"github.com/jdmedia/newsreel/internal/renderer"
	"github.com/jdmedia/newsreel/internal/services"
)

// StateReporter exposes live render state for projects currently in
// flight in this process. Nil when the worker runs elsewhere.
type StateReporter interface {
	ActiveState(projectID string) (renderer.State, bool)
}

type Handler struct {
	store  *manifest.Store
	queue  *queue.Queue
	voices *services.VoiceCatalog
	worker StateReporter
}

func NewHandler(store *manifest.Store, q *queue.Queue, voices *services.VoiceCatalog, worker StateReporter) *Handler {
	return &Handler{
		store:  store,
		queue:  q,
		voices: voices,
		worker: worker,
	}
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payload := req.Payload
	if payload.Title == "" {
		payload.Title = req.Title
	}
	if payload.NarrationText() == "" {
		respondError(w, http.StatusBadRequest, "Narration text is required")
		return
	}
	payload.ApplyDefaults()

	m, _, err := h.store.Create(&payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateProjectResponse{
		ProjectID: m.ProjectID,
		Status:    m.Status,
	})
}

// GetProject handles GET /v1/projects/{id} and returns the full manifest.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	m, _, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// GetProjectStatus handles GET /v1/projects/{id}/status. When the render
// is in flight in this process the live provider state is included.
func (h *Handler) GetProjectStatus(w http.ResponseWriter, r *http.Request) {
	m, _, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	resp := models.StatusResponse{
		ProjectID: m.ProjectID,
		Status:    m.Status,
		Error:     m.Error,
		Outputs:   m.Outputs,
	}
	if h.worker != nil {
		if state, active := h.worker.ActiveState(m.ProjectID); active {
			respondJSON(w, http.StatusOK, map[string]any{
				"project_id": resp.ProjectID,
				"status":     resp.Status,
				"error":      resp.Error,
				"outputs":    resp.Outputs,
				"render":     state,
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// PatchProject handles PATCH /v1/projects/{id}. The body is merged into
// the manifest document; invalid results are rejected without writing.
func (h *Handler) PatchProject(w http.ResponseWriter, r *http.Request) {
	_, dir, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.store.Patch(r.Context(), dir, patch)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// RenderProject handles POST /v1/projects/{id}/render. A terminal project
// re-enters the pipeline at queued; an in-flight one is rejected.
func (h *Handler) RenderProject(w http.ResponseWriter, r *http.Request) {
	m, dir, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	switch m.Status {
	case models.ProjectStatusQueued, models.ProjectStatusProcessing:
		respondError(w, http.StatusConflict, "Render already in progress")
		return
	}
	rerender := m.Status.IsTerminal()

	if _, err := h.store.Patch(r.Context(), dir, map[string]any{
		"status": string(models.ProjectStatusQueued),
		"error":  "",
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to queue project")
		return
	}

	if err := h.queue.EnqueueRender(r.Context(), m.ProjectID, dir, rerender); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue render job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateProjectResponse{
		ProjectID: m.ProjectID,
		Status:    models.ProjectStatusQueued,
	})
}

// DeleteProject handles DELETE /v1/projects/{id}. Removes the mirrored
// artifacts first, then the local project directory.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if projectID == "" {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}
	if !h.store.Delete(r.Context(), projectID) {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"project_id": projectID, "status": "deleted"})
}

// ListVoices handles GET /v1/voices. Separator rows are filtered out;
// they only matter for ordered selection UIs, which should request
// ?grouped=true.
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = "elevenlabs"
	}

	var voices []services.Voice
	if r.URL.Query().Get("grouped") == "true" {
		voices = h.voices.List(provider)
	} else {
		voices = h.voices.Selectable(provider)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"provider": provider,
		"voices":   voices,
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadProject resolves {id} to a manifest and its directory, writing the
// error response itself on failure.
func (h *Handler) loadProject(w http.ResponseWriter, r *http.Request) (*models.Manifest, string, bool) {
	projectID := chi.URLParam(r, "id")
	if projectID == "" {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return nil, "", false
	}

	dir, found := h.store.FindProjectDir(projectID)
	if !found {
		respondError(w, http.StatusNotFound, "Project not found")
		return nil, "", false
	}

	m, err := h.store.Load(dir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load project")
		return nil, "", false
	}
	return m, dir, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
