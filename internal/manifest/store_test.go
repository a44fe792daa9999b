package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jdmedia/newsreel/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), nil)
}

func TestCreateAndLoad(t *testing.T) {
	s := newTestStore(t)
	payload := &models.Payload{Title: "Wieczorne Wydanie!", Text: "Hello world."}
	payload.ApplyDefaults()

	m, dir, err := s.Create(payload)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if m.Status != models.ProjectStatusCreated {
		t.Errorf("Expected status created, got %s", m.Status)
	}
	if m.ProjectID == "" {
		t.Error("Expected non-empty project id")
	}
	if !strings.Contains(dir, "wieczorne-wydanie") {
		t.Errorf("Expected slugged dir, got %s", dir)
	}

	loaded, err := s.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ProjectID != m.ProjectID {
		t.Errorf("Expected project id %s, got %s", m.ProjectID, loaded.ProjectID)
	}
	if loaded.Payload.Title != "Wieczorne Wydanie!" {
		t.Errorf("Unexpected payload title %q", loaded.Payload.Title)
	}
}

func TestPatchMergesNestedMapsAndReplacesScalars(t *testing.T) {
	s := newTestStore(t)
	payload := &models.Payload{Title: "t", Text: "x."}
	payload.ApplyDefaults()
	_, dir, err := s.Create(payload)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := s.Patch(context.Background(), dir, map[string]any{
		"status":  "processing",
		"outputs": map[string]any{"srt": "captions.srt"},
	}); err != nil {
		t.Fatalf("First patch failed: %v", err)
	}

	m, err := s.Patch(context.Background(), dir, map[string]any{
		"status":  "done",
		"outputs": map[string]any{"mp4_16x9": "final_16x9.mp4"},
	})
	if err != nil {
		t.Fatalf("Second patch failed: %v", err)
	}
	if m.Status != models.ProjectStatusDone {
		t.Errorf("Expected status done, got %s", m.Status)
	}
	// Nested outputs map must merge, not replace.
	if m.Outputs["srt"] != "captions.srt" {
		t.Errorf("Expected srt key to survive merge, got %v", m.Outputs)
	}
	if m.Outputs["mp4_16x9"] != "final_16x9.mp4" {
		t.Errorf("Expected mp4_16x9 key, got %v", m.Outputs)
	}
}

func TestPatchWritesAtomically(t *testing.T) {
	s := newTestStore(t)
	payload := &models.Payload{Title: "t", Text: "x."}
	payload.ApplyDefaults()
	_, dir, err := s.Create(payload)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := s.Patch(context.Background(), dir, map[string]any{"status": "queued"}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	// The temp file from the write-then-rename must not survive.
	if _, err := os.Stat(filepath.Join(dir, "manifest.json.tmp")); !os.IsNotExist(err) {
		t.Errorf("Expected no leftover temp file, stat err: %v", err)
	}
	m, err := s.Load(dir)
	if err != nil {
		t.Fatalf("Load after patch failed: %v", err)
	}
	if m.Status != models.ProjectStatusQueued {
		t.Errorf("Expected status queued, got %s", m.Status)
	}
}

func TestPatchReplacesLists(t *testing.T) {
	s := newTestStore(t)
	payload := &models.Payload{Title: "t", Text: "x."}
	payload.ApplyDefaults()
	_, dir, err := s.Create(payload)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := s.Patch(context.Background(), dir, map[string]any{"logs": []any{"a", "b"}}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	m, err := s.Patch(context.Background(), dir, map[string]any{"logs": []any{"c"}})
	if err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if len(m.Logs) != 1 || m.Logs[0] != "c" {
		t.Errorf("Expected list replacement, got %v", m.Logs)
	}
}

func TestFindProjectDirAndDelete(t *testing.T) {
	s := newTestStore(t)
	payload := &models.Payload{Title: "findable", Text: "x."}
	payload.ApplyDefaults()
	m, dir, err := s.Create(payload)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	found, ok := s.FindProjectDir(m.ProjectID)
	if !ok {
		t.Fatal("Expected to find project dir")
	}
	if found != dir {
		t.Errorf("Expected %s, got %s", dir, found)
	}

	if _, ok := s.FindProjectDir("no-such-id"); ok {
		t.Error("Expected miss for unknown project id")
	}

	if !s.Delete(context.Background(), m.ProjectID) {
		t.Fatal("Expected delete to succeed")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Expected project dir removed, stat err=%v", err)
	}
	// Empty YYYY/MM parents should be pruned too.
	if _, ok := s.FindProjectDir(m.ProjectID); ok {
		t.Error("Expected project to be gone after delete")
	}
}

func TestValidateRejectsBadManifests(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Error("Expected error for nil manifest")
	}
	if err := Validate(&models.Manifest{ProjectID: "  ", Payload: &models.Payload{}}); err == nil {
		t.Error("Expected error for blank project id")
	}
	if err := Validate(&models.Manifest{ProjectID: "p1"}); err == nil {
		t.Error("Expected error for missing payload")
	}
	if err := Validate(&models.Manifest{ProjectID: "p1", Payload: &models.Payload{}}); err != nil {
		t.Errorf("Expected valid manifest to pass, got %v", err)
	}
}

func TestPatchValidationGateBlocksWrite(t *testing.T) {
	s := newTestStore(t)
	payload := &models.Payload{Title: "t", Text: "x."}
	payload.ApplyDefaults()
	_, dir, err := s.Create(payload)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	before, _ := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if _, err := s.Patch(context.Background(), dir, map[string]any{"project_id": ""}); err == nil {
		t.Fatal("Expected validation error for empty project_id patch")
	}
	after, _ := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if string(before) != string(after) {
		t.Error("Invalid patch must not modify the stored manifest")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":  "hello--world",
		"  spaced  ":     "spaced",
		"ŁódźNews":       "d-news",
		"":               "",
		strings.Repeat("a", 80): strings.Repeat("a", 64),
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
