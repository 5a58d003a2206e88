// Package skills implements the Skill Resolver: discovering SKILL.md
// files and legacy slash-command Markdown files across project, personal,
// and plugin locations, parsing their YAML frontmatter, and expanding
// placeholders in their bodies. Ported from claude-coder's
// skills/loader.py.
package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source identifies where a skill was discovered, in discovery-precedence
// order (earlier wins on a name collision).
type Source string

const (
	SourceProject        Source = "project"
	SourcePersonal       Source = "personal"
	SourcePlugin         Source = "plugin"
	SourceLegacyProject  Source = "legacy_project"
	SourceLegacyPersonal Source = "legacy_personal"
)

// Metadata describes one discovered skill.
type Metadata struct {
	Name           string
	Description    string
	ArgumentHint   string
	UserInvocable  bool
	AllowedTools   []string
	Source         Source
	FilePath       string
}

type frontmatter struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	ArgumentHint  string   `yaml:"argument-hint"`
	UserInvocable *bool    `yaml:"user-invocable"`
	AllowedTools  []string `yaml:"allowed-tools"`
}

// parseFrontmatter splits a SKILL.md's "---\n...\n---\nbody" structure,
// returning the parsed frontmatter (nil if absent/invalid) and the body.
func parseFrontmatter(content string) (*frontmatter, string) {
	if !strings.HasPrefix(content, "---") {
		return nil, content
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return nil, content
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return nil, content
	}
	body := strings.TrimLeft(parts[2], "\n")
	return &fm, body
}

// scanSkillsDir walks a directory looking for SKILL.md files, one level
// deep (non-recursive) or arbitrarily nested (recursive), naming each
// skill `{namePrefix}{dirname}`.
func scanSkillsDir(skillsDir string, source Source, recursive bool, namePrefix string) ([]Metadata, error) {
	var out []Metadata

	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("skills: read %s: %w", skillsDir, err)
	}

	var candidates []string
	if recursive {
		err = filepath.WalkDir(skillsDir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Base(path) == "SKILL.md" {
				candidates = append(candidates, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("skills: walk %s: %w", skillsDir, err)
		}
	} else {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			candidate := filepath.Join(skillsDir, e.Name(), "SKILL.md")
			if _, err := os.Stat(candidate); err == nil {
				candidates = append(candidates, candidate)
			}
		}
	}

	for _, path := range candidates {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		fm, _ := parseFrontmatter(string(raw))
		if fm == nil {
			continue
		}
		if fm.UserInvocable != nil && !*fm.UserInvocable {
			continue
		}
		rawName := fm.Name
		if rawName == "" {
			rawName = filepath.Base(filepath.Dir(path))
		}
		out = append(out, Metadata{
			Name:          namePrefix + rawName,
			Description:   fm.Description,
			ArgumentHint:  fm.ArgumentHint,
			UserInvocable: true,
			AllowedTools:  fm.AllowedTools,
			Source:        source,
			FilePath:      path,
		})
	}
	return out, nil
}

// scanLegacyCommandsDir treats every *.md file in commandsDir as an
// unstructured slash command, named after its filename stem.
func scanLegacyCommandsDir(commandsDir string, source Source) ([]Metadata, error) {
	entries, err := os.ReadDir(commandsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("skills: read %s: %w", commandsDir, err)
	}

	var out []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		out = append(out, Metadata{
			Name:          name,
			UserInvocable: true,
			Source:        source,
			FilePath:      filepath.Join(commandsDir, e.Name()),
		})
	}
	return out, nil
}

type installedPlugin struct {
	InstallPath string `json:"installPath"`
}

// readEnabledPlugins reads settingsJSON's "enabledPlugins" map, returning
// nil if the file is missing or the key absent — callers then treat every
// plugin as enabled.
func readEnabledPlugins(settingsJSON string) map[string]bool {
	raw, err := os.ReadFile(settingsJSON)
	if err != nil {
		return nil
	}
	var doc struct {
		EnabledPlugins map[string]bool `json:"enabledPlugins"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	if doc.EnabledPlugins == nil {
		return nil
	}
	return doc.EnabledPlugins
}

type pluginSkillDir struct {
	dir        string
	pluginName string
}

// pluginSkillDirs reads pluginsJSON's registry ("name@marketplace" ->
// []{installPath,...}) and yields the skills/ directory for each enabled
// plugin that has one.
func pluginSkillDirs(pluginsJSON, settingsJSON string) ([]pluginSkillDir, error) {
	raw, err := os.ReadFile(pluginsJSON)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("skills: read %s: %w", pluginsJSON, err)
	}

	var registry map[string][]installedPlugin
	if err := json.Unmarshal(raw, &registry); err != nil {
		return nil, fmt.Errorf("skills: parse %s: %w", pluginsJSON, err)
	}

	enabled := readEnabledPlugins(settingsJSON)

	var out []pluginSkillDir
	for pluginKey, installs := range registry {
		if enabled != nil {
			if allowed, ok := enabled[pluginKey]; ok && !allowed {
				continue
			}
		}
		pluginName := strings.SplitN(pluginKey, "@", 2)[0]
		for _, inst := range installs {
			if inst.InstallPath == "" {
				continue
			}
			dir := filepath.Join(inst.InstallPath, "skills")
			if st, err := os.Stat(dir); err == nil && st.IsDir() {
				out = append(out, pluginSkillDir{dir: dir, pluginName: pluginName})
			}
		}
	}
	return out, nil
}

// DiscoveryPaths names the default locations the resolver scans, in
// precedence order.
type DiscoveryPaths struct {
	ProjectDir          string
	PersonalSkillsDir   string
	PersonalCommandsDir string
	PluginsJSON         string
	SettingsJSON        string
}

// Discover scans project (recursive) > personal (non-recursive) > plugin
// (namespaced "{plugin}:") > legacy project > legacy personal, deduping by
// name so the first-seen source wins. Mirrors loader.py's discover_skills.
func Discover(paths DiscoveryPaths) ([]Metadata, error) {
	seen := make(map[string]bool)
	var out []Metadata

	add := func(items []Metadata) {
		for _, m := range items {
			if seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			out = append(out, m)
		}
	}

	projectSkills, err := scanSkillsDir(filepath.Join(paths.ProjectDir, ".claude", "skills"), SourceProject, true, "")
	if err != nil {
		return nil, err
	}
	add(projectSkills)

	personalSkills, err := scanSkillsDir(paths.PersonalSkillsDir, SourcePersonal, false, "")
	if err != nil {
		return nil, err
	}
	add(personalSkills)

	pluginDirs, err := pluginSkillDirs(paths.PluginsJSON, paths.SettingsJSON)
	if err != nil {
		return nil, err
	}
	for _, pd := range pluginDirs {
		items, err := scanSkillsDir(pd.dir, SourcePlugin, true, pd.pluginName+":")
		if err != nil {
			return nil, err
		}
		add(items)
	}

	legacyProject, err := scanLegacyCommandsDir(filepath.Join(paths.ProjectDir, ".claude", "commands"), SourceLegacyProject)
	if err != nil {
		return nil, err
	}
	add(legacyProject)

	legacyPersonal, err := scanLegacyCommandsDir(paths.PersonalCommandsDir, SourceLegacyPersonal)
	if err != nil {
		return nil, err
	}
	add(legacyPersonal)

	return out, nil
}

// LoadBody reads a skill's file and returns its body: the raw content for
// legacy sources, or everything after the frontmatter for modern skills.
func LoadBody(m Metadata) (string, error) {
	raw, err := os.ReadFile(m.FilePath)
	if err != nil {
		return "", fmt.Errorf("skills: read %s: %w", m.FilePath, err)
	}
	if m.Source == SourceLegacyProject || m.Source == SourceLegacyPersonal {
		return string(raw), nil
	}
	_, body := parseFrontmatter(string(raw))
	return body, nil
}

var (
	argIndexPattern = regexp.MustCompile(`\$ARGUMENTS\[(\d+)\]`)
	positionalPattern = regexp.MustCompile(`\$(\d+)`)
)

// ResolvePrompt expands placeholders in body in the significant order:
// $ARGUMENTS[N], then $N, then $ARGUMENTS, then ${CLAUDE_SESSION_ID}.
// Mirrors loader.py's resolve_skill_prompt.
func ResolvePrompt(body, arguments, sessionID string) string {
	argsList := strings.Fields(arguments)

	result := argIndexPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := argIndexPattern.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(argsList) {
			return ""
		}
		return argsList[idx]
	})

	result = positionalPattern.ReplaceAllStringFunc(result, func(match string) string {
		sub := positionalPattern.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(argsList) {
			return ""
		}
		return argsList[idx]
	})

	result = strings.ReplaceAll(result, "$ARGUMENTS", arguments)
	result = strings.ReplaceAll(result, "${CLAUDE_SESSION_ID}", sessionID)

	return result
}
