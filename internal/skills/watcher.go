package skills

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-runs Discover against paths whenever a SKILL.md or legacy
// command file under its watched directories changes, pushing the
// refreshed set to onChange. Mirrors the teacher's runtime skills watcher
// (cmd/gateway.go's "Skills watcher — auto-detect new/removed/modified
// skills at runtime"), generalized to this repo's single DiscoveryPaths
// shape instead of a per-agent watch list.
type Watcher struct {
	paths    DiscoveryPaths
	onChange func([]Metadata)
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher builds a Watcher over paths's project/personal directories.
// A missing directory is skipped rather than treated as an error — not
// every deployment configures a personal skills or commands dir.
func NewWatcher(paths DiscoveryPaths, onChange func([]Metadata)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{paths: paths, onChange: onChange, logger: slog.Default(), fsw: fsw}

	for _, dir := range []string{paths.PersonalSkillsDir, paths.PersonalCommandsDir} {
		if dir == "" {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("skills: watch directory unavailable", "dir", dir, "error", err)
		}
	}
	return w, nil
}

// Start runs the watch loop until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer w.fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				w.refresh()
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("skills: watch error", "error", err)
			}
		}
	}()
}

func (w *Watcher) refresh() {
	found, err := Discover(w.paths)
	if err != nil {
		w.logger.Warn("skills: re-discovery failed", "error", err)
		return
	}
	w.onChange(found)
}

// Stop closes the underlying filesystem watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}
