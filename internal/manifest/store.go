package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdmedia/newsreel/internal/models"
)

// ---------------------------------------------------------------------------
// Project manifest store
// ---------------------------------------------------------------------------

// Mirror uploads project artifacts to a blob store once a project reaches a
// terminal state. The manifest on disk stays the source of truth.
type Mirror interface {
	Upload(ctx context.Context, localPath, key, contentType string) (string, error)
}

// Store persists one manifest.json per project under a root directory laid
// out as YYYY/MM/<slug>-<project_id>. All merge-writes go through a
// per-project mutex so a re-render cannot interleave with a job still
// writing the same document.
type Store struct {
	rootDir string
	mirror  Mirror

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(rootDir string, mirror Mirror) *Store {
	return &Store{
		rootDir: rootDir,
		mirror:  mirror,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Store) RootDir() string {
	return s.rootDir
}

// projectLock returns the mutex guarding one project's manifest file.
func (s *Store) projectLock(projectDir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[projectDir]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectDir] = l
	}
	return l
}

// Create allocates a project id and directory and writes the initial
// manifest with status "created".
func (s *Store) Create(payload *models.Payload) (*models.Manifest, string, error) {
	title := payload.Title
	if title == "" {
		title = "news-video"
	}
	now := time.Now()
	projectID := now.Format("20060102-150405") + "-" + uuid.New().String()[:6]
	slug := Slugify(title)
	if slug == "" {
		slug = projectID
	}
	projectDir := filepath.Join(s.rootDir, now.Format("2006/01"), slug+"-"+projectID)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create project dir: %w", err)
	}

	m := &models.Manifest{
		ProjectID: projectID,
		Title:     title,
		CreatedAt: now.UTC(),
		Payload:   payload,
		Status:    models.ProjectStatusCreated,
		Outputs:   map[string]any{},
		Logs:      []string{},
	}
	if err := s.Save(projectDir, m); err != nil {
		return nil, "", err
	}
	log.Printf("[Manifest] Created project %s in %s", projectID, projectDir)
	return m, projectDir, nil
}

// Load reads and decodes the manifest for a project directory.
func (s *Store) Load(projectDir string) (*models.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Save writes the manifest after running it through the validation gate.
func (s *Store) Save(projectDir string, m *models.Manifest) error {
	if err := Validate(m); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(projectDir, "manifest.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, path)
}

// Patch merge-patches root-level manifest fields: when both the patch value
// and the stored value are maps they are merged key by key, everything else
// (scalars, lists) is replaced wholesale. Returns the updated document.
//
// When the patch marks the project done or touches outputs, the project is
// mirrored to the blob store.
func (s *Store) Patch(ctx context.Context, projectDir string, patch map[string]any) (*models.Manifest, error) {
	lock := s.projectLock(projectDir)
	lock.Lock()
	defer lock.Unlock()

	mpath := filepath.Join(projectDir, "manifest.json")
	data, err := os.ReadFile(mpath)
	if err != nil {
		return nil, fmt.Errorf("manifest.json not found in %s: %w", projectDir, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	for k, v := range patch {
		patchMap, pOK := v.(map[string]any)
		docMap, dOK := doc[k].(map[string]any)
		if pOK && dOK {
			for kk, vv := range patchMap {
				docMap[kk] = vv
			}
			doc[k] = docMap
		} else {
			doc[k] = v
		}
	}

	if err := validateDoc(doc); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	tmp := mpath + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, mpath); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	_, hasOutputs := patch["outputs"]
	if st, _ := patch["status"].(string); st == string(models.ProjectStatusDone) || hasOutputs {
		if err := s.SyncProject(ctx, projectDir); err != nil {
			log.Printf("[Manifest] Mirror sync failed for %s: %v", projectDir, err)
		}
	}

	var m models.Manifest
	if err := json.Unmarshal(out, &m); err != nil {
		return nil, fmt.Errorf("decode patched manifest: %w", err)
	}
	return &m, nil
}

// AppendLog adds a line to the manifest's log list.
func (s *Store) AppendLog(projectDir, line string) {
	lock := s.projectLock(projectDir)
	lock.Lock()
	defer lock.Unlock()

	m, err := s.Load(projectDir)
	if err != nil {
		log.Printf("[Manifest] AppendLog load failed: %v", err)
		return
	}
	m.Logs = append(m.Logs, line)
	if err := s.Save(projectDir, m); err != nil {
		log.Printf("[Manifest] AppendLog save failed: %v", err)
	}
}

// FindProjectDir walks the projects tree looking for the manifest carrying
// the given project id.
func (s *Store) FindProjectDir(projectID string) (string, bool) {
	var found string
	_ = filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return filepath.SkipAll
		}
		if d.IsDir() || d.Name() != "manifest.json" {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		var doc struct {
			ProjectID string `json:"project_id"`
		}
		if json.Unmarshal(data, &doc) == nil && doc.ProjectID == projectID {
			found = filepath.Dir(path)
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

// Delete removes a project directory, mirroring artifacts to the blob store
// first so the remote copy survives local cleanup. Empty date directories
// left behind are pruned.
func (s *Store) Delete(ctx context.Context, projectID string) bool {
	pdir, ok := s.FindProjectDir(projectID)
	if !ok {
		log.Printf("[Manifest] Delete: project not found: %s", projectID)
		return false
	}
	if s.mirror != nil {
		if err := s.SyncProject(ctx, pdir); err != nil {
			log.Printf("[Manifest] Delete: mirror sync failed for %s: %v", projectID, err)
		}
	}
	if err := os.RemoveAll(pdir); err != nil {
		log.Printf("[Manifest] Delete: error removing %s: %v", pdir, err)
		return false
	}
	// Prune empty MM / YYYY parents.
	parent := filepath.Dir(pdir)
	for i := 0; i < 2; i++ {
		if !strings.HasPrefix(parent, s.rootDir) || parent == s.rootDir {
			break
		}
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(parent); err != nil {
			break
		}
		parent = filepath.Dir(parent)
	}
	log.Printf("[Manifest] Deleted project %s (%s)", projectID, pdir)
	return true
}

// SyncProject uploads the manifest and all output artifacts for a project
// directory, keyed by the path relative to the store root.
func (s *Store) SyncProject(ctx context.Context, projectDir string) error {
	if s.mirror == nil {
		return nil
	}
	m, err := s.Load(projectDir)
	if err != nil {
		return err
	}
	if err := Validate(m); err != nil {
		return fmt.Errorf("refusing to mirror invalid manifest: %w", err)
	}

	files := []string{filepath.Join(projectDir, "manifest.json")}
	for _, v := range m.Outputs {
		p, ok := v.(string)
		if !ok || p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectDir, p)
		}
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}

	for _, f := range files {
		key, err := filepath.Rel(s.rootDir, f)
		if err != nil {
			key = filepath.Base(f)
		}
		key = filepath.ToSlash(key)
		if _, err := s.mirror.Upload(ctx, f, key, contentTypeFor(f)); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
	}
	log.Printf("[Manifest] Mirrored %d files for %s", len(files), projectDir)
	return nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".srt", ".ass":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// ---------------------------------------------------------------------------
// Validation gate
// ---------------------------------------------------------------------------

// Validate enforces the invariants required before a manifest may be
// persisted as done or mirrored: non-empty project id, a payload present,
// and a fully serializable document.
func Validate(m *models.Manifest) error {
	if m == nil {
		return fmt.Errorf("manifest is nil")
	}
	if strings.TrimSpace(m.ProjectID) == "" {
		return fmt.Errorf("manifest project_id must be a non-empty string")
	}
	if m.Payload == nil {
		return fmt.Errorf("manifest payload must be present")
	}
	if _, err := json.Marshal(m); err != nil {
		return fmt.Errorf("manifest not serializable: %w", err)
	}
	return nil
}

func validateDoc(doc map[string]any) error {
	pid, ok := doc["project_id"].(string)
	if !ok || strings.TrimSpace(pid) == "" {
		return fmt.Errorf("manifest project_id must be a non-empty string")
	}
	if _, ok := doc["payload"].(map[string]any); !ok {
		return fmt.Errorf("manifest payload must be a mapping")
	}
	if _, err := json.Marshal(doc); err != nil {
		return fmt.Errorf("manifest not serializable: %w", err)
	}
	return nil
}

// Slugify lowercases a title into a filesystem-safe directory fragment.
func Slugify(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('-')
		}
	}
	s := b.String()
	if len(s) > 64 {
		s = s[:64]
	}
	return strings.Trim(s, "-")
}
