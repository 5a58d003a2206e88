package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseFrontmatter(t *testing.T) {
	content := "---\nname: deploy\ndescription: Deploy the app\n---\nRun the deploy.\n"
	fm, body := parseFrontmatter(content)
	if fm == nil || fm.Name != "deploy" || fm.Description != "Deploy the app" {
		t.Fatalf("unexpected frontmatter: %+v", fm)
	}
	if body != "Run the deploy.\n" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestParseFrontmatter_NoFrontmatter(t *testing.T) {
	fm, body := parseFrontmatter("just text, no frontmatter")
	if fm != nil {
		t.Fatalf("expected nil frontmatter, got %+v", fm)
	}
	if body != "just text, no frontmatter" {
		t.Fatalf("expected body to be returned as-is, got %q", body)
	}
}

func TestDiscover_PrecedenceAndDedup(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "project")
	personal := filepath.Join(root, "personal-skills")
	commandsPersonal := filepath.Join(root, "personal-commands")

	mustWrite(t, filepath.Join(project, ".claude", "skills", "deploy", "SKILL.md"),
		"---\nname: deploy\ndescription: project version\n---\nbody")
	mustWrite(t, filepath.Join(personal, "deploy", "SKILL.md"),
		"---\nname: deploy\ndescription: personal version\n---\nbody")
	mustWrite(t, filepath.Join(personal, "greet", "SKILL.md"),
		"---\nname: greet\ndescription: say hi\n---\nHello $ARGUMENTS")
	mustWrite(t, filepath.Join(commandsPersonal, "legacy.md"), "legacy command body")

	skills, err := Discover(DiscoveryPaths{
		ProjectDir:          project,
		PersonalSkillsDir:   personal,
		PersonalCommandsDir: commandsPersonal,
		PluginsJSON:         filepath.Join(root, "plugins.json"),
		SettingsJSON:        filepath.Join(root, "settings.json"),
	})
	if err != nil {
		t.Fatal(err)
	}

	byName := make(map[string]Metadata)
	for _, s := range skills {
		byName[s.Name] = s
	}

	deploy, ok := byName["deploy"]
	if !ok {
		t.Fatal("expected a deploy skill")
	}
	if deploy.Source != SourceProject || deploy.Description != "project version" {
		t.Fatalf("expected project version of deploy to win, got %+v", deploy)
	}

	if _, ok := byName["greet"]; !ok {
		t.Fatal("expected greet skill from personal dir")
	}
	if _, ok := byName["legacy"]; !ok {
		t.Fatal("expected legacy command to be discovered")
	}
}

func TestDiscover_SkipsNonInvocable(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "project")
	mustWrite(t, filepath.Join(project, ".claude", "skills", "hidden", "SKILL.md"),
		"---\nname: hidden\ndescription: internal\nuser-invocable: false\n---\nbody")

	skills, err := Discover(DiscoveryPaths{ProjectDir: project})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range skills {
		if s.Name == "hidden" {
			t.Fatal("expected user-invocable: false skill to be excluded")
		}
	}
}

func TestResolvePrompt_SubstitutionOrder(t *testing.T) {
	body := "run $ARGUMENTS[1] then $2 with all: $ARGUMENTS session=${CLAUDE_SESSION_ID}"
	got := ResolvePrompt(body, "alpha beta gamma", "sess-123")
	want := "run beta then gamma with all: alpha beta gamma session=sess-123"
	if got != want {
		t.Fatalf("ResolvePrompt() = %q, want %q", got, want)
	}
}

func TestResolvePrompt_OutOfRangeIndexBecomesEmpty(t *testing.T) {
	got := ResolvePrompt("value: $ARGUMENTS[5]", "one", "sess")
	if got != "value: " {
		t.Fatalf("ResolvePrompt() = %q, want %q", got, "value: ")
	}
}

func TestLoadBody_LegacyReturnsRawContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "legacy.md")
	mustWrite(t, path, "raw legacy content")
	m := Metadata{Source: SourceLegacyPersonal, FilePath: path}
	body, err := LoadBody(m)
	if err != nil {
		t.Fatal(err)
	}
	if body != "raw legacy content" {
		t.Fatalf("expected raw content for legacy skill, got %q", body)
	}
}
