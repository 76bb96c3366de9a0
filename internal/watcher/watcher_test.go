package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, paths []string, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := New(Config{Paths: paths, Debounce: debounce, PollInterval: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	return w
}

func TestHashFile(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "session.json")
	content := []byte(`{"version": 1, "trials": []}`)

	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	hash1, size1, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if size1 != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), size1)
	}

	hash2, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("second HashFile failed: %v", err)
	}
	if hash1 != hash2 {
		t.Error("same file should produce same hash")
	}

	if err := os.WriteFile(testFile, []byte("different content"), 0600); err != nil {
		t.Fatalf("failed to modify test file: %v", err)
	}
	hash3, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("third HashFile failed: %v", err)
	}
	if hash1 == hash3 {
		t.Error("different content should produce different hash")
	}
}

func TestHashFileNotFound(t *testing.T) {
	_, _, err := HashFile("/nonexistent/session.json")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Debounce: time.Second}); err == nil {
		t.Error("expected error without paths")
	}
	if _, err := New(Config{Paths: []string{t.TempDir()}}); err == nil {
		t.Error("expected error without debounce")
	}
}

func TestWatcherCreation(t *testing.T) {
	w := newTestWatcher(t, []string{t.TempDir()}, time.Second)
	defer w.Stop()

	if len(w.WatchedPaths()) != 1 {
		t.Errorf("expected 1 watched path, got %d", len(w.WatchedPaths()))
	}
	if w.PendingFiles() != 0 {
		t.Errorf("expected 0 pending files before start, got %d", w.PendingFiles())
	}
}

func TestWatcherStartStop(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "initial.yaml"), []byte("version: 1\n"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("ignored"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	w := newTestWatcher(t, []string{tmpDir}, time.Hour)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	if w.PendingFiles() != 1 {
		t.Errorf("expected 1 pending session file, got %d", w.PendingFiles())
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("failed to stop watcher: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op: %v", err)
	}
}

func TestWatcherEvents(t *testing.T) {
	tmpDir := t.TempDir()

	w := newTestWatcher(t, []string{tmpDir}, 200*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(tmpDir, "ignored.csv"), []byte("a,b"), 0600); err != nil {
		t.Fatalf("failed to create ignored file: %v", err)
	}
	testFile := filepath.Join(tmpDir, "session.json")
	if err := os.WriteFile(testFile, []byte("test content"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Path != testFile {
			t.Errorf("expected path %s, got %s", testFile, event.Path)
		}
		if event.Size != 12 { // "test content" = 12 bytes
			t.Errorf("expected size 12, got %d", event.Size)
		}
		want, _, _ := HashFile(testFile)
		if event.Hash != want {
			t.Error("event hash does not match file content")
		}
	case <-time.After(3 * time.Second):
		t.Error("timeout waiting for event")
	}
}

func TestWatcherSingleFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "trials.dat")
	if err := os.WriteFile(testFile, []byte("explicit"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	w := newTestWatcher(t, []string{testFile}, 100*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	select {
	case event := <-w.Events():
		if event.Path != testFile {
			t.Errorf("expected path %s, got %s", testFile, event.Path)
		}
	case <-time.After(3 * time.Second):
		t.Error("explicitly watched file should be reported regardless of extension")
	}
}

func TestWatcherDebounce(t *testing.T) {
	tmpDir := t.TempDir()

	w := newTestWatcher(t, []string{tmpDir}, time.Second)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	testFile := filepath.Join(tmpDir, "debounce.toml")

	// Write multiple times quickly
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(testFile, []byte("v"+string(rune('0'+i))), 0600); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	eventCount := 0
	timeout := time.After(3 * time.Second)

	for {
		select {
		case <-w.Events():
			eventCount++
			if eventCount > 1 {
				t.Error("expected only one event due to debouncing")
				return
			}
		case <-timeout:
			if eventCount != 1 {
				t.Errorf("expected 1 event, got %d", eventCount)
			}
			return
		}
	}
}

func TestWatcherSkipsUnchangedRewrite(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "session.yml")
	if err := os.WriteFile(testFile, []byte("same"), 0600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	w := newTestWatcher(t, []string{tmpDir}, 100*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	select {
	case <-w.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for first event")
	}

	if err := os.WriteFile(testFile, []byte("same"), 0600); err != nil {
		t.Fatalf("failed to rewrite: %v", err)
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event for unchanged content: %s", ev.Path)
	case <-time.After(700 * time.Millisecond):
	}
}

func TestStartFailureReleasesWatcher(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{
		Paths:    []string{dir, filepath.Join(dir, "missing")},
		Debounce: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := w.Start(); err == nil {
		t.Fatal("expected error for missing path")
	}
	if _, ok := <-w.Events(); ok {
		t.Error("events channel should be closed after a failed start")
	}
	if err := w.fsWatcher.Add(dir); err == nil {
		t.Error("fsnotify watcher should be closed after a failed start")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop after failed start: %v", err)
	}
}
