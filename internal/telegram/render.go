package telegram

import (
	"fmt"
	"regexp"
	"strings"
)

// EscapeHTML escapes the 3 HTML-special characters Telegram's HTML parse
// mode requires, replacing the many Markdown-v1 escape rules this bridge
// would otherwise need. Ported from html_format.py's escape_html.
func EscapeHTML(text string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(text)
}

var (
	fencedCodeRe  = regexp.MustCompile("(?s)```(\\w+)?\n(.*?)```")
	tableRe       = regexp.MustCompile(`(?m)(?:^[ \t]*\|.+\|[ \t]*$\n?){2,}`)
	inlineCodeRe  = regexp.MustCompile("`([^`\n]+)`")
	boldStarRe    = regexp.MustCompile(`(?s)\*\*(.+?)\*\*`)
	boldUnderRe   = regexp.MustCompile(`(?s)__(.+?)__`)
	italicStarRe  = regexp.MustCompile(`(?s)\*(\S.*?\S|\S)\*`)
	italicUnderRe = regexp.MustCompile(`(?s)(^|[^\w])_(\S.*?\S|\S)_(?:$|[^\w])`)
	linkRe        = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headerRe      = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	strikeRe      = regexp.MustCompile(`(?s)~~(.+?)~~`)
	tableSepRe    = regexp.MustCompile(`^[:\-]+$`)
)

// MarkdownToHTML converts a Claude response's Markdown into the narrow HTML
// subset Telegram's HTML parse mode supports (<b>, <i>, <code>, <pre>,
// <a href>, <s>). Fenced code, tables, and inline code are pulled out as
// placeholders before the remaining text is escaped, so nothing inside
// them is mistaken for Markdown syntax. Ported step-for-step from
// html_format.py's markdown_to_telegram_html.
func MarkdownToHTML(text string) string {
	var placeholders []string
	place := func(html string) string {
		key := fmt.Sprintf("\x00PH%d\x00", len(placeholders))
		placeholders = append(placeholders, html)
		return key
	}

	text = fencedCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := fencedCodeRe.FindStringSubmatch(m)
		lang, code := sub[1], sub[2]
		escaped := EscapeHTML(code)
		if lang != "" {
			return place(fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`, EscapeHTML(lang), escaped))
		}
		return place(fmt.Sprintf(`<pre><code>%s</code></pre>`, escaped))
	})

	text = tableRe.ReplaceAllStringFunc(text, func(m string) string {
		if html, ok := renderTable(m); ok {
			return place(html)
		}
		return m
	})

	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		code := inlineCodeRe.FindStringSubmatch(m)[1]
		return place(fmt.Sprintf(`<code>%s</code>`, EscapeHTML(code)))
	})

	text = EscapeHTML(text)

	text = boldStarRe.ReplaceAllString(text, "<b>$1</b>")
	text = boldUnderRe.ReplaceAllString(text, "<b>$1</b>")
	text = italicStarRe.ReplaceAllString(text, "<i>$1</i>")
	text = italicUnderRe.ReplaceAllString(text, "$1<i>$2</i>")
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = headerRe.ReplaceAllString(text, "<b>$1</b>")
	text = strikeRe.ReplaceAllString(text, "<s>$1</s>")

	for i, html := range placeholders {
		key := fmt.Sprintf("\x00PH%d\x00", i)
		text = strings.ReplaceAll(text, key, html)
	}
	return text
}

// renderTable pads a Markdown pipe-table's cells into an aligned <pre>
// block, dropping the header/body separator row. Reports false when the
// match wasn't actually a well-formed multi-row table (e.g. a single
// stray line with pipes).
func renderTable(block string) (string, bool) {
	lines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	var rows [][]string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		trimmed := strings.Trim(line, "|")
		var cells []string
		for _, c := range strings.Split(trimmed, "|") {
			cells = append(cells, strings.TrimSpace(c))
		}
		rows = append(rows, cells)
	}
	if len(rows) < 2 {
		return "", false
	}

	var dataRows [][]string
	for _, row := range rows {
		allSep := true
		for _, c := range row {
			if !tableSepRe.MatchString(c) {
				allSep = false
				break
			}
		}
		if !allSep {
			dataRows = append(dataRows, row)
		}
	}
	if len(dataRows) == 0 {
		return "", false
	}

	numCols := 0
	for _, row := range dataRows {
		if len(row) > numCols {
			numCols = len(row)
		}
	}
	widths := make([]int, numCols)
	for _, row := range dataRows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var out []string
	for idx, row := range dataRows {
		var padded []string
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			padded = append(padded, cell+strings.Repeat(" ", widths[i]-len(cell)))
		}
		out = append(out, strings.Join(padded, "  "))
		if idx == 0 && len(dataRows) > 1 {
			var sep []string
			for _, w := range widths {
				sep = append(sep, strings.Repeat("─", w))
			}
			out = append(out, strings.Join(sep, "  "))
		}
	}
	return "<pre>" + EscapeHTML(strings.Join(out, "\n")) + "</pre>", true
}
