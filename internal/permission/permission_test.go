package permission

import (
	"os"
	"testing"
)

func TestCheckBashDirectoryBoundary(t *testing.T) {
	tests := []struct {
		name        string
		command     string
		workingDir  string
		approved    []string
		wantAllowed bool
	}{
		{"read only command always allowed", "cat /etc/passwd", "/repo", []string{"/repo"}, true},
		{"mkdir inside approved", "mkdir newdir", "/repo", []string{"/repo"}, true},
		{"mkdir outside approved", "mkdir /etc/newdir", "/repo", []string{"/repo"}, false},
		{"rm traversal outside approved", "rm -rf ../../evil", "/repo/sub", []string{"/repo"}, false},
		{"find without mutating action allowed", "find . -name '*.go'", "/repo", []string{"/repo"}, true},
		{"find with -delete outside checked", "find /tmp -delete", "/repo", []string{"/repo"}, false},
		{"chained commands both validated", "cd /repo/sub && rm file.txt", "/repo", []string{"/repo"}, true},
		{"chained commands one violates", "cd /repo/sub && rm /etc/file.txt", "/repo", []string{"/repo"}, false},
		{"flags are skipped", "cp -r . /repo/dest", "/repo", []string{"/repo"}, true},
		{"second approved dir matches", "cp file.txt /other/dest", "/repo", []string{"/repo", "/other"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, msg := CheckBashDirectoryBoundary(tt.command, tt.workingDir, tt.approved)
			if allowed != tt.wantAllowed {
				t.Fatalf("CheckBashDirectoryBoundary(%q) = %v (%q), want allowed=%v", tt.command, allowed, msg, tt.wantAllowed)
			}
			if !allowed && msg == "" {
				t.Fatal("expected a deny message")
			}
		})
	}
}

func TestIsClaudeInternalPath(t *testing.T) {
	home := mustHome(t)
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"plans subdir", home + "/.claude/plans/foo.md", true},
		{"todos subdir", home + "/.claude/todos/bar.json", true},
		{"settings.json file", home + "/.claude/settings.json", true},
		{"arbitrary top-level file", home + "/.claude/secrets.txt", false},
		{"outside claude dir", "/tmp/plans/foo.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsClaudeInternalPath(tt.path); got != tt.want {
				t.Errorf("IsClaudeInternalPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func mustHome(t *testing.T) string {
	t.Helper()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}
	return home
}

func TestGate_CanUseTool_FileOutsideApproved(t *testing.T) {
	g := NewGate("/repo", []string{"/repo"})
	got := g.CanUseTool("Write", map[string]any{"file_path": "/etc/passwd"})
	if got.Allow {
		t.Fatal("expected deny for path outside approved directories")
	}
}

func TestGate_CanUseTool_ClaudeInternalAllowedRegardlessOfApproved(t *testing.T) {
	home := mustHome(t)
	g := NewGate("/repo", []string{"/repo"})
	got := g.CanUseTool("Write", map[string]any{"file_path": home + "/.claude/plans/plan.md"})
	if !got.Allow {
		t.Fatalf("expected allow for claude-internal path, got deny: %s", got.Message)
	}
}

func TestGate_CanUseTool_BashViolation(t *testing.T) {
	g := NewGate("/repo", []string{"/repo"})
	got := g.CanUseTool("Bash", map[string]any{"command": "rm -rf /etc"})
	if got.Allow {
		t.Fatal("expected deny for bash command targeting path outside approved directories")
	}
}

func TestGate_CanUseTool_NonGatedToolAllowed(t *testing.T) {
	g := NewGate("/repo", []string{"/repo"})
	got := g.CanUseTool("Grep", map[string]any{"pattern": "foo"})
	if !got.Allow {
		t.Fatal("expected allow for a tool outside the gated sets")
	}
}
