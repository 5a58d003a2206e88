package historyindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadHistory_SkipsMalformedAndSortsDescending(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	writeFile(t, path, `{"sessionId":"a","display":"A","timestamp":100,"project":"/repo"}
not json
{"sessionId":"b","display":"B","timestamp":200,"project":"/repo"}
{"display":"missing id","timestamp":300,"project":"/repo"}
`)
	idx := New(path, dir, nil)
	entries, err := idx.ReadHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].SessionID != "b" || entries[1].SessionID != "a" {
		t.Fatalf("not sorted descending: %+v", entries)
	}
}

func TestReadHistory_MissingFile(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "nope.jsonl"), t.TempDir(), nil)
	entries, err := idx.ReadHistory()
	if err != nil || entries != nil {
		t.Fatalf("want nil,nil got %v,%v", entries, err)
	}
}

func TestFilterByDirectory(t *testing.T) {
	entries := []Entry{
		{SessionID: "a", Project: "/repo/one"},
		{SessionID: "b", Project: "/repo/two"},
	}
	got := FilterByDirectory(entries, "/repo/one")
	if len(got) != 1 || got[0].SessionID != "a" {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}

func TestHealthWarning_OverThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	writeFile(t, path, "bad1\nbad2\nbad3\n{\"sessionId\":\"a\",\"display\":\"A\",\"timestamp\":1,\"project\":\"/r\"}\n")
	idx := New(path, dir, nil)
	warning, err := idx.HealthWarning()
	if err != nil {
		t.Fatal(err)
	}
	if warning == "" {
		t.Fatal("expected a health warning for >50% malformed lines")
	}
}

func TestHealthWarning_Healthy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	writeFile(t, path, "{\"sessionId\":\"a\",\"display\":\"A\",\"timestamp\":1,\"project\":\"/r\"}\n")
	idx := New(path, dir, nil)
	warning, err := idx.HealthWarning()
	if err != nil {
		t.Fatal(err)
	}
	if warning != "" {
		t.Fatalf("unexpected warning: %q", warning)
	}
}

func TestReadTranscript_FiltersAndLimits(t *testing.T) {
	dir := t.TempDir()
	slug := projectSlug("/repo/one")
	path := filepath.Join(dir, slug, "sess-1.jsonl")
	writeFile(t, path, `{"type":"user","message":{"content":"hello"}}
{"type":"system","message":{"content":"<injected>"}}
{"type":"assistant","message":{"content":[{"type":"text","text":"hi there"}]}}
{"type":"user","message":{"content":"<system note>"}}
`)
	idx := New(filepath.Join(dir, "history.jsonl"), dir, nil)
	msgs, err := idx.ReadTranscript("sess-1", "/repo/one", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(msgs), msgs)
	}
	if msgs[0].Text != "hello" || msgs[1].Text != "hi there" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestAppendEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	idx := New(path, dir, nil)
	idx.AppendEntry("sess-1", "display", "/repo", time.Unix(1000, 0))

	entries, err := idx.ReadHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].SessionID != "sess-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
