package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jdmedia/newsreel/internal/manifest"
	"github.com/jdmedia/newsreel/internal/models"
	"github.com/jdmedia/newsreel/internal/queue"
	"github.com/jdmedia/newsreel/internal/renderer"
)

// Worker drains the render queue and drives provider jobs, mirroring
// every state change into the project manifest.
type Worker struct {
	queue      *queue.Queue
	store      *manifest.Store
	dispatcher *renderer.Dispatcher
	profile    models.RenderProfile

	// TimelineBuilder, when set, is invoked for projects that carry no
	// media plan and no timeline.json; it may write one into any of the
	// candidate locations.
	TimelineBuilder func(ctx context.Context, projectDir string) error

	mu     sync.Mutex
	active map[string]*renderer.Job // one in-flight job per project
}

func New(q *queue.Queue, store *manifest.Store, dispatcher *renderer.Dispatcher, profile models.RenderProfile) *Worker {
	return &Worker{
		queue:      q,
		store:      store,
		dispatcher: dispatcher,
		profile:    profile,
		active:     map[string]*renderer.Job{},
	}
}

// Start begins processing render jobs with the given concurrency and
// blocks until the context is canceled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queue.QueueRender, 5*time.Second)
			if err != nil {
				log.Printf("Error dequeuing render job: %v", err)
				continue
			}
			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing render job %s (project: %s, rerender: %v)", job.ID, job.ProjectID, job.Rerender)

			if err := w.handleRender(ctx, job); err != nil {
				log.Printf("Render job %s failed: %v", job.ID, err)
			} else {
				log.Printf("Render job %s completed successfully", job.ID)
			}
		}
	}
}

// ActiveState reports the live provider state for a project, if a render
// is currently in flight in this process.
func (w *Worker) ActiveState(projectID string) (renderer.State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job, ok := w.active[projectID]; ok {
		return job.State(), true
	}
	return renderer.State{}, false
}

func (w *Worker) acquire(projectID string, job *renderer.Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.active[projectID]; busy {
		return false
	}
	w.active[projectID] = job
	return true
}

func (w *Worker) release(projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, projectID)
}

func (w *Worker) handleRender(ctx context.Context, job *queue.Job) error {
	m, err := w.store.Load(job.ProjectDir)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	if m.Payload == nil {
		return w.fail(ctx, job.ProjectDir, fmt.Errorf("manifest has no payload"))
	}

	payload := m.Payload
	payload.ApplyDefaults()
	if len(payload.Media) == 0 {
		media, source := w.resolveMedia(ctx, job.ProjectDir)
		payload.Media = media
		if len(media) > 0 {
			log.Printf("[Worker] Project %s has no media list; assembled %d items from %s", job.ProjectID, len(media), source)
			w.store.AppendLog(job.ProjectDir, fmt.Sprintf("assembled fallback media list with %d items (%s)", len(media), source))
		}
	}

	rjob := renderer.NewJob(job.ProjectID, job.ProjectDir, payload, w.profile)
	if !w.acquire(job.ProjectID, rjob) {
		// Another worker holds this project; push the job back and let a
		// later dequeue retry it.
		log.Printf("[Worker] Project %s already rendering, requeueing job %s", job.ProjectID, job.ID)
		time.Sleep(2 * time.Second)
		return w.queue.Enqueue(ctx, queue.QueueRender, job)
	}
	defer w.release(job.ProjectID)

	if _, err := w.store.Patch(ctx, job.ProjectDir, map[string]any{
		"status": string(models.ProjectStatusProcessing),
		"error":  "",
	}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	provider := w.dispatcher.Resolve(payload.Renderer.Type)
	log.Printf("[Worker] Project %s dispatched to renderer %q", job.ProjectID, provider.Name())

	if err := provider.Prepare(ctx, rjob); err != nil {
		w.flushLogs(job.ProjectDir, rjob)
		return w.fail(ctx, job.ProjectDir, err)
	}
	if err := provider.Render(ctx, rjob); err != nil {
		w.flushLogs(job.ProjectDir, rjob)
		return w.fail(ctx, job.ProjectDir, err)
	}

	outputs, err := provider.CollectOutputs(ctx, rjob)
	if err != nil {
		w.flushLogs(job.ProjectDir, rjob)
		return w.fail(ctx, job.ProjectDir, err)
	}

	w.flushLogs(job.ProjectDir, rjob)
	if _, err := w.store.Patch(ctx, job.ProjectDir, map[string]any{
		"status":  string(models.ProjectStatusDone),
		"outputs": outputs,
	}); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// fail records the error on the manifest; the pool itself keeps running.
func (w *Worker) fail(ctx context.Context, projectDir string, cause error) error {
	if _, err := w.store.Patch(ctx, projectDir, map[string]any{
		"status": string(models.ProjectStatusError),
		"error":  cause.Error(),
	}); err != nil {
		log.Printf("[Worker] Failed to record error on %s: %v", projectDir, err)
	}
	return cause
}

func (w *Worker) flushLogs(projectDir string, rjob *renderer.Job) {
	for _, line := range rjob.Logs() {
		w.store.AppendLog(projectDir, line)
	}
}

// resolveMedia fills the media plan for projects whose payload carries
// none: a timeline.json at one of the candidate locations wins, then the
// optional builder hook gets a chance to produce one, then a naive scan
// of the project directory lays the files out sequentially.
func (w *Worker) resolveMedia(ctx context.Context, projectDir string) ([]models.MediaItem, string) {
	if items := loadTimeline(projectDir); len(items) > 0 {
		return items, "timeline.json"
	}
	if w.TimelineBuilder != nil {
		if err := w.TimelineBuilder(ctx, projectDir); err != nil {
			log.Printf("[Worker] Timeline builder failed for %s: %v", projectDir, err)
		} else if items := loadTimeline(projectDir); len(items) > 0 {
			return items, "timeline builder"
		}
	}
	return discoverMedia(projectDir), "directory scan"
}

// timelineCandidates are checked in order, relative to the project dir.
var timelineCandidates = []string{".", "outputs", ".build", "data"}

func loadTimeline(projectDir string) []models.MediaItem {
	for _, sub := range timelineCandidates {
		path := filepath.Join(projectDir, sub, "timeline.json")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var doc struct {
			Media []models.MediaItem `json:"media"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			log.Printf("[Worker] Ignoring unreadable timeline at %s: %v", path, err)
			continue
		}
		if len(doc.Media) > 0 {
			return doc.Media
		}
	}
	return nil
}

var mediaExtensions = map[string]models.MediaType{
	".jpg":  models.MediaTypeImage,
	".jpeg": models.MediaTypeImage,
	".png":  models.MediaTypeImage,
	".webp": models.MediaTypeImage,
	".mp4":  models.MediaTypeVideo,
	".mov":  models.MediaTypeVideo,
	".mkv":  models.MediaTypeVideo,
	".webm": models.MediaTypeVideo,
}

// discoverMedia assembles a media list from files sitting in the project
// directory, for projects created by dropping files next to the manifest.
// Generated directories are skipped so reruns never pick up their own
// output.
func discoverMedia(projectDir string) []models.MediaItem {
	var items []models.MediaItem
	_ = filepath.WalkDir(projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != projectDir && (name == "outputs" || name == "audio" || name == ".build" ||
				strings.HasPrefix(name, "segments_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if mt, ok := mediaExtensions[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			items = append(items, models.MediaItem{Type: mt, Src: path})
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Src < items[j].Src })
	return items
}
