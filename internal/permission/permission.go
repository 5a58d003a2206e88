// Package permission implements the Tool Permission Gate: a pre-execution
// check run before the backend agent is allowed to invoke a file or bash
// tool, enforcing that file paths and bash commands stay within the
// approved working directories for the current chat.
package permission

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

// claudeInternalSubdirs are the subdirectories under ~/.claude/ the backend
// agent uses for its own bookkeeping. File operations targeting these are
// allowed even when they fall outside the approved directories.
var claudeInternalSubdirs = map[string]bool{
	"plans":         true,
	"todos":         true,
	"settings.json": true,
}

// fsModifyingCommands change the filesystem or the shell's working
// directory and must have their path arguments validated.
var fsModifyingCommands = map[string]bool{
	"mkdir": true, "touch": true, "cp": true, "mv": true, "rm": true,
	"rmdir": true, "ln": true, "install": true, "tee": true, "cd": true,
}

// readOnlyCommands never need path validation.
var readOnlyCommands = map[string]bool{
	"cat": true, "ls": true, "head": true, "tail": true, "less": true, "more": true,
	"which": true, "whoami": true, "pwd": true, "echo": true, "printf": true,
	"env": true, "printenv": true, "date": true, "wc": true, "sort": true,
	"uniq": true, "diff": true, "file": true, "stat": true, "du": true, "df": true,
	"tree": true, "realpath": true, "dirname": true, "basename": true,
}

// findMutatingActions are find(1) expressions that mutate the filesystem,
// making an otherwise read-only find(1) invocation one that needs checking.
var findMutatingActions = map[string]bool{
	"-delete": true, "-exec": true, "-execdir": true, "-ok": true, "-okdir": true,
}

// commandSeparators split a bash command string into independent chained
// commands for per-command classification.
var commandSeparators = map[string]bool{
	"&&": true, "||": true, ";": true, "|": true, "&": true,
}

// fileTools are tool names whose input carries a single file path to
// validate.
var fileTools = map[string]bool{
	"Write": true, "Edit": true, "Read": true,
	"create_file": true, "edit_file": true, "read_file": true,
}

// bashTools are tool names whose input carries a shell command string.
var bashTools = map[string]bool{"Bash": true, "bash": true, "shell": true}

// CheckBashDirectoryBoundary parses command (including chained
// subcommands) and verifies that any filesystem-modifying or
// context-changing command only targets paths within one of
// approvedDirs. Ported from claude-coder's monitor.py,
// check_bash_directory_boundary.
func CheckBashDirectoryBoundary(command, workingDirectory string, approvedDirs []string) (bool, string) {
	resolvedApproved := make([]string, 0, len(approvedDirs))
	for _, d := range approvedDirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			abs = d
		}
		resolvedApproved = append(resolvedApproved, filepath.Clean(abs))
	}

	tokens, err := shlex.Split(command)
	if err != nil {
		// Can't parse the command; let it through and rely on the OS
		// sandbox to catch anything genuinely dangerous.
		return true, ""
	}
	if len(tokens) == 0 {
		return true, ""
	}

	var chains [][]string
	var current []string
	for _, tok := range tokens {
		if commandSeparators[tok] {
			if len(current) > 0 {
				chains = append(chains, current)
			}
			current = nil
			continue
		}
		current = append(current, tok)
	}
	if len(current) > 0 {
		chains = append(chains, current)
	}

	for _, chain := range chains {
		if len(chain) == 0 {
			continue
		}
		base := filepath.Base(chain[0])

		if readOnlyCommands[base] {
			continue
		}

		needsCheck := false
		if base == "find" {
			for _, t := range chain[1:] {
				if findMutatingActions[t] {
					needsCheck = true
					break
				}
			}
		} else if fsModifyingCommands[base] {
			needsCheck = true
		}
		if !needsCheck {
			continue
		}

		for _, tok := range chain[1:] {
			if strings.HasPrefix(tok, "-") {
				continue
			}

			var resolved string
			if strings.HasPrefix(tok, "/") {
				resolved = filepath.Clean(tok)
			} else {
				abs, err := filepath.Abs(filepath.Join(workingDirectory, tok))
				if err != nil {
					continue
				}
				resolved = filepath.Clean(abs)
			}

			within := false
			for _, dir := range resolvedApproved {
				if isWithinDirectory(resolved, dir) {
					within = true
					break
				}
			}
			if !within {
				return false, fmt.Sprintf(
					"Directory boundary violation: '%s' targets '%s' which is outside all approved directories",
					base, tok,
				)
			}
		}
	}

	return true, ""
}

// isWithinDirectory reports whether path is directory itself or nested
// under it.
func isWithinDirectory(path, directory string) bool {
	rel, err := filepath.Rel(directory, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// IsClaudeInternalPath reports whether filePath resolves inside
// ~/.claude/{plans,todos,settings.json}.
func IsClaudeInternalPath(filePath string) bool {
	resolved, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	claudeDir := filepath.Join(home, ".claude")

	rel, err := filepath.Rel(claudeDir, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.SplitN(rel, string(filepath.Separator), 2)
	if len(parts) == 0 {
		return false
	}
	return claudeInternalSubdirs[parts[0]]
}

// PathValidator validates a file path against the approved directories,
// returning an error message when the path falls outside them. Callers
// provide this so the gate can be reused against different boundary
// policies (e.g. symlink-aware resolution) without this package needing
// to own that logic itself.
type PathValidator func(filePath, workingDirectory string) (bool, error)

// Decision is the result of a tool-use permission check.
type Decision struct {
	Allow   bool
	Message string
}

// Allowed is a convenience constructor for an allow decision.
func Allowed() Decision { return Decision{Allow: true} }

// Denied is a convenience constructor for a deny decision.
func Denied(message string) Decision { return Decision{Allow: false, Message: message} }

// Gate evaluates tool-use requests before the backend agent executes them.
type Gate struct {
	WorkingDirectory string
	ApprovedDirs     []string
	ValidatePath     PathValidator
}

// NewGate builds a Gate using the default CheckBashDirectoryBoundary path
// validator for file tools (simple boundary check, no symlink resolution).
func NewGate(workingDirectory string, approvedDirs []string) *Gate {
	g := &Gate{WorkingDirectory: workingDirectory, ApprovedDirs: approvedDirs}
	g.ValidatePath = g.defaultValidatePath
	return g
}

func (g *Gate) defaultValidatePath(filePath, workingDirectory string) (bool, error) {
	var resolved string
	if strings.HasPrefix(filePath, "/") {
		resolved = filepath.Clean(filePath)
	} else {
		abs, err := filepath.Abs(filepath.Join(workingDirectory, filePath))
		if err != nil {
			return false, err
		}
		resolved = filepath.Clean(abs)
	}
	for _, dir := range g.ApprovedDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if isWithinDirectory(resolved, filepath.Clean(abs)) {
			return true, nil
		}
	}
	return false, nil
}

// CanUseTool is the can_use_tool callback equivalent: given a tool name and
// its input map, decide whether the backend agent may execute it. Mirrors
// monitor.py's _make_can_use_tool_callback.
func (g *Gate) CanUseTool(toolName string, toolInput map[string]any) Decision {
	if fileTools[toolName] {
		filePath, _ := stringField(toolInput, "file_path", "path")
		if filePath != "" {
			if IsClaudeInternalPath(filePath) {
				return Allowed()
			}
			valid, err := g.ValidatePath(filePath, g.WorkingDirectory)
			if err != nil || !valid {
				msg := "Invalid file path"
				if err != nil {
					msg = err.Error()
				}
				return Denied(msg)
			}
		}
	}

	if bashTools[toolName] {
		command, _ := stringField(toolInput, "command")
		if command != "" {
			ok, msg := CheckBashDirectoryBoundary(command, g.WorkingDirectory, g.ApprovedDirs)
			if !ok {
				return Denied(msg)
			}
		}
	}

	return Allowed()
}

func stringField(input map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := input[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
