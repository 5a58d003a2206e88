package telegram

import "testing"

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`a & b < c > d`)
	want := "a &amp; b &lt; c &gt; d"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMarkdownToHTML_Bold(t *testing.T) {
	got := MarkdownToHTML("this is **bold** text")
	want := "this is <b>bold</b> text"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMarkdownToHTML_FencedCodeBlockPreservesContent(t *testing.T) {
	got := MarkdownToHTML("```go\nfmt.Println(\"<hi>\")\n```")
	want := "<pre><code class=\"language-go\">fmt.Println(\"&lt;hi&gt;\")\n</code></pre>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMarkdownToHTML_InlineCode(t *testing.T) {
	got := MarkdownToHTML("run `go test ./...` now")
	want := "run <code>go test ./...</code> now"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMarkdownToHTML_Link(t *testing.T) {
	got := MarkdownToHTML("[docs](https://example.com)")
	want := `<a href="https://example.com">docs</a>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMarkdownToHTML_Header(t *testing.T) {
	got := MarkdownToHTML("# Title")
	want := "<b>Title</b>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMarkdownToHTML_EscapesPlainAngleBrackets(t *testing.T) {
	got := MarkdownToHTML("a < b")
	want := "a &lt; b"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
