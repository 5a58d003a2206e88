package telegram

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// filteredDirs lists directory names hidden from the /repo browser as
// noise, in addition to dotfiles. Ported from repo_browser.py's
// FILTERED_DIRS.
var filteredDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"target":       true,
	"build":        true,
	"dist":         true,
	".tox":         true,
}

// listVisibleChildren lists directory's visible child directories,
// filtering dotfiles and filteredDirs, sorted by name. Unreadable
// directories report no children rather than an error — a denied or
// vanished directory is just a dead end in the browser.
func listVisibleChildren(directory string) []string {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil
	}
	var children []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || filteredDirs[name] {
			continue
		}
		children = append(children, name)
	}
	sort.Strings(children)
	return children
}

// isBranchDir reports whether directory has any navigable child
// directory.
func isBranchDir(directory string) bool {
	return len(listVisibleChildren(directory)) > 0
}

// browserButton is one inline-keyboard cell in the /repo browser,
// channel-library-agnostic so render logic stays testable without a
// telego dependency.
type browserButton struct {
	Label        string
	CallbackData string
}

// buildBrowserKeyboard lays out the /repo browser's keyboard: a nav row
// (". (select)" plus ".." unless at a single-root workspace's root),
// followed by two-per-row child-directory buttons tagged "nav:" (has
// further children) or "sel:" (leaf). Ported from
// repo_browser.py's build_browser_keyboard.
func buildBrowserKeyboard(browseDir, workspaceRoot string, multiRoot bool) [][]browserButton {
	rows := [][]browserButton{}

	navRow := []browserButton{{Label: ". (select)", CallbackData: "sel:."}}
	atRoot := browseDir == workspaceRoot
	if !atRoot || multiRoot {
		navRow = append(navRow, browserButton{Label: "..", CallbackData: "nav:.."})
	}
	rows = append(rows, navRow)

	children := listVisibleChildren(browseDir)
	for i := 0; i < len(children); i += 2 {
		var row []browserButton
		for j := 0; j < 2 && i+j < len(children); j++ {
			name := children[i+j]
			childPath := filepath.Join(browseDir, name)
			rel, _ := filepath.Rel(workspaceRoot, childPath)
			prefix := "sel"
			if isBranchDir(childPath) {
				prefix = "nav"
			}
			row = append(row, browserButton{Label: name, CallbackData: fmt.Sprintf("%s:%s", prefix, rel)})
		}
		rows = append(rows, row)
	}
	return rows
}

// buildBrowseHeader renders the "Browsing: <path>/" header shown above the
// /repo keyboard.
func buildBrowseHeader(browseDir, workspaceRoot string) string {
	rel, _ := filepath.Rel(workspaceRoot, browseDir)
	display := "/"
	if rel != "." {
		display = rel + "/"
	}
	return fmt.Sprintf("\U0001F4C2 <b>Browsing:</b> <code>%s</code>", EscapeHTML(display))
}

// resolveBrowsePath resolves a relative path (e.g. "project/src") against
// each approved root in order, returning the first root whose joined,
// cleaned path is both an existing directory and still contained within
// that root (rejecting "../" escapes). Ported from
// repo_browser.py's resolve_browse_path.
func resolveBrowsePath(target string, roots []string) (string, bool) {
	for _, root := range roots {
		candidate := filepath.Clean(filepath.Join(root, target))
		rootClean := filepath.Clean(root)
		if candidate != rootClean && !strings.HasPrefix(candidate, rootClean+string(filepath.Separator)) {
			continue
		}
		info, err := os.Stat(candidate)
		if err != nil || !info.IsDir() {
			continue
		}
		return candidate, true
	}
	return "", false
}
