package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_DetectsNewSkill(t *testing.T) {
	personal := t.TempDir()

	changes := make(chan []Metadata, 4)
	w, err := NewWatcher(DiscoveryPaths{PersonalSkillsDir: personal}, func(m []Metadata) {
		changes <- m
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	dir := filepath.Join(personal, "deploy")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(dir, "SKILL.md"), "---\nname: deploy\ndescription: Deploy the app\n---\nRun it.\n")

	select {
	case found := <-changes:
		if len(found) != 1 || found[0].Name != "deploy" {
			t.Fatalf("unexpected discovery result: %+v", found)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher to observe the new skill")
	}
}

func TestNewWatcher_SkipsEmptyDirs(t *testing.T) {
	w, err := NewWatcher(DiscoveryPaths{}, func([]Metadata) {})
	if err != nil {
		t.Fatalf("NewWatcher with no directories configured should not error: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
