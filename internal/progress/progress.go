// Package progress implements the Progress Manager: a throttled, rolling
// Telegram message that renders the backend agent's in-flight activity
// (tool calls, thinking) as it streams, without re-emitting the final text
// answer. Ported from claude-coder's bot/progress.py.
package progress

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/clawbridge/internal/stream"
)

const (
	rolloverThreshold = 4000
	updateInterval    = 2 * time.Second
)

// Verbosity controls how much tool detail the rendered activity log shows.
// Supplemented from orchestrator.py's verbose levels (not in the
// distilled spec, not excluded by a Non-goal).
type Verbosity int

const (
	VerbosityMinimal   Verbosity = 0 // tool icon only
	VerbosityToolNames Verbosity = 1 // icon + tool name
	VerbosityDetailed  Verbosity = 2 // icon + tool name + input summary
)

// EntryKind is the kind of one activity log line.
type EntryKind string

const (
	EntryText     EntryKind = "text"
	EntryTool     EntryKind = "tool"
	EntryThinking EntryKind = "thinking"
)

// ActivityEntry is one line in the activity log.
type ActivityEntry struct {
	Kind       EntryKind
	Content    string
	ToolName   string
	ToolDetail string
	ToolResult string
	IsRunning  bool
}

// secretPatterns mirrors progress.py's _SECRET_PATTERNS, each substituted
// with its first non-empty capture group plus "***".
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(sk-ant-api\d*-[A-Za-z0-9_-]{10})[A-Za-z0-9_-]*` +
		`|(sk-[A-Za-z0-9_-]{20})[A-Za-z0-9_-]*` +
		`|(ghp_[A-Za-z0-9]{5})[A-Za-z0-9]*` +
		`|(gho_[A-Za-z0-9]{5})[A-Za-z0-9]*` +
		`|(github_pat_[A-Za-z0-9_]{5})[A-Za-z0-9_]*` +
		`|(xoxb-[A-Za-z0-9]{5})[A-Za-z0-9-]*`),
	regexp.MustCompile(`(AKIA[0-9A-Z]{4})[0-9A-Z]{12}`),
	regexp.MustCompile(`((?:--token|--secret|--password|--api-key|--apikey|--auth)[= ]+)['"]?[A-Za-z0-9+/_.:-]{8,}['"]?`),
	regexp.MustCompile(`((?:TOKEN|SECRET|PASSWORD|API_KEY|APIKEY|AUTH_TOKEN|PRIVATE_KEY|ACCESS_KEY|CLIENT_SECRET|WEBHOOK_SECRET)=)['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`(Bearer )[A-Za-z0-9+/_.:-]{8,}|(Basic )[A-Za-z0-9+/=]{8,}`),
	regexp.MustCompile(`://([^:]+:)[^@]{4,}(@)`),
}

// RedactSecrets replaces likely secrets/credentials in text with "***",
// keeping the leading flag/key name where the pattern captured one.
func RedactSecrets(text string) string {
	result := text
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			for _, g := range sub[1:] {
				if g != "" {
					return g + "***"
				}
			}
			return "***"
		})
	}
	return result
}

var toolIcons = map[string]string{
	"Read": "📖", "Write": "✏️", "Edit": "✏️", "MultiEdit": "✏️",
	"Bash": "💻", "Glob": "🔍", "Grep": "🔍", "LS": "📂",
	"Task": "🧠", "TaskOutput": "🧠", "WebFetch": "🌐", "WebSearch": "🌐",
	"NotebookRead": "📓", "NotebookEdit": "📓", "TodoRead": "☑️", "TodoWrite": "☑️",
}

// ToolIcon returns the emoji for a tool, defaulting to a wrench.
func ToolIcon(name string) string {
	if icon, ok := toolIcons[name]; ok {
		return icon
	}
	return "🔧"
}

// SummarizeToolInput returns a short summary of tool input for the
// detailed verbosity level.
func SummarizeToolInput(toolName string, toolInput map[string]any) string {
	if len(toolInput) == 0 {
		return ""
	}
	switch toolName {
	case "Read", "Write", "Edit", "MultiEdit":
		path := stringVal(toolInput, "file_path", "path")
		if path != "" {
			parts := strings.Split(path, "/")
			return parts[len(parts)-1]
		}
	case "Glob", "Grep":
		if pattern := stringVal(toolInput, "pattern"); pattern != "" {
			return truncate(pattern, 60)
		}
	case "Bash":
		if cmd := stringVal(toolInput, "command"); cmd != "" {
			return truncate(RedactSecrets(truncate(cmd, 100)), 80)
		}
	case "WebFetch", "WebSearch":
		v := stringVal(toolInput, "url")
		if v == "" {
			v = stringVal(toolInput, "query")
		}
		return truncate(v, 60)
	case "Task":
		if desc := stringVal(toolInput, "description"); desc != "" {
			return truncate(desc, 60)
		}
	}
	for _, v := range toolInput {
		if s, ok := v.(string); ok && s != "" {
			return truncate(s, 60)
		}
	}
	return ""
}

// SummarizeToolResult extracts a brief summary from a raw tool result.
func SummarizeToolResult(raw string) string {
	if raw == "" {
		return ""
	}
	var firstLine string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}
	if firstLine == "" {
		return ""
	}
	if len(firstLine) > 100 {
		return firstLine[:100] + "..."
	}
	return firstLine
}

func stringVal(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Message is one Telegram message this manager owns and edits.
type Message interface {
	EditText(ctx context.Context, text string) error
}

// Chat can send new messages, used when the activity log rolls over.
type Chat interface {
	SendMessage(ctx context.Context, text string) (Message, error)
}

// Manager renders an activity log into a persistent, throttled Telegram
// message, rolling over to a fresh message when the rendered text grows
// past rolloverThreshold.
type Manager struct {
	chat      Chat
	startTime time.Time
	verbosity Verbosity

	limiter     *rate.Limiter
	mu          sync.Mutex
	message     Message
	dotCount    int
	activityLog []ActivityEntry
	Messages    []Message
}

// New builds a Manager around the message that will show the first
// activity log.
func New(chat Chat, initial Message, startTime time.Time, verbosity Verbosity) *Manager {
	return &Manager{
		chat:      chat,
		startTime: startTime,
		verbosity: verbosity,
		message:   initial,
		Messages:  []Message{initial},
		limiter:   rate.NewLimiter(rate.Every(updateInterval), 1),
	}
}

// Render builds the message text from the current activity log. When done
// is true the header reads "Done" and spinners/ellipses are suppressed.
func (m *Manager) Render(done bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renderLocked(done)
}

func (m *Manager) renderLocked(done bool) string {
	elapsed := int(time.Since(m.startTime).Seconds())
	header := fmt.Sprintf("Working... (%ds)", elapsed)
	if done {
		header = fmt.Sprintf("Done (%ds)", elapsed)
	}

	lines := []string{header, ""}
	for i := range m.activityLog {
		entry := &m.activityLog[i]
		switch entry.Kind {
		case EntryText:
			continue // delivered separately as the final answer
		case EntryTool:
			icon := ToolIcon(entry.ToolName)
			running := entry.IsRunning && !done
			spinner := ""
			if running {
				spinner = " ⏳"
			}
			detail := ""
			if entry.ToolDetail != "" && m.verbosity >= VerbosityDetailed {
				detail = ": " + entry.ToolDetail
			}
			line := fmt.Sprintf("%s %s%s%s", icon, entry.ToolName, detail, spinner)
			if m.verbosity == VerbosityMinimal {
				line = icon
			}
			lines = append(lines, line)
			if entry.ToolResult != "" {
				lines = append(lines, "  ↳ "+entry.ToolResult)
			}
		case EntryThinking:
			if done || !entry.IsRunning {
				lines = append(lines, "💭 Thinking (done)")
			} else {
				m.dotCount = (m.dotCount % 3) + 1
				lines = append(lines, "💭 Thinking"+strings.Repeat(".", m.dotCount))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Update edits the underlying message if the throttle interval has
// elapsed, rolling over to a new message first if the rendered text has
// grown past the threshold. Edit failures (e.g. Telegram's "message not
// modified") are swallowed, matching progress.py's best-effort update.
func (m *Manager) Update(ctx context.Context) {
	if !m.limiter.Allow() {
		return
	}

	m.mu.Lock()
	text := m.renderLocked(false)
	needsRollover := len(text) >= rolloverThreshold
	msg := m.message
	m.mu.Unlock()

	if needsRollover {
		m.rollover(ctx)
		return
	}

	_ = msg.EditText(ctx, text)
}

func (m *Manager) rollover(ctx context.Context) {
	m.mu.Lock()
	msg := m.message
	finalText := m.renderLocked(false)
	m.mu.Unlock()

	_ = msg.EditText(ctx, finalText)

	newMsg, err := m.chat.SendMessage(ctx, "Working... (continued)")
	if err != nil {
		// Nothing more we can do; keep editing the old (now full) message.
		return
	}

	m.mu.Lock()
	m.message = newMsg
	m.Messages = append(m.Messages, newMsg)
	m.activityLog = nil
	m.mu.Unlock()
}

// Finalize renders with done=true and performs a best-effort final edit.
func (m *Manager) Finalize(ctx context.Context) {
	m.mu.Lock()
	msg := m.message
	text := m.renderLocked(true)
	m.mu.Unlock()
	_ = msg.EditText(ctx, text)
}

func closeRunningEntry(log []ActivityEntry) {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].IsRunning {
			log[i].IsRunning = false
			if log[i].Kind == EntryThinking {
				log[i].Content = "Thinking (done)"
			}
			return
		}
	}
}

func attachResultToLastTool(log []ActivityEntry, raw string) {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Kind == EntryTool {
			log[i].ToolResult = SummarizeToolResult(raw)
			return
		}
	}
}

// extractToolResultText pulls plain text out of a tool-result event's
// content, which the backend SDK may hand over as a bare string.
func extractToolResultText(content string) string { return content }

// StreamCallback feeds one normalized stream.Event into the activity log
// and triggers a throttled update, mirroring progress.py's
// build_stream_callback.
func (m *Manager) StreamCallback(ctx context.Context, ev stream.Event) {
	m.mu.Lock()

	if ev.Kind != stream.KindToolResult && ev.Kind != stream.KindThinking {
		closeRunningEntry(m.activityLog)
	}

	switch ev.Kind {
	case stream.KindToolUse:
		detail := SummarizeToolInput(ev.ToolName, ev.ToolInput)
		m.activityLog = append(m.activityLog, ActivityEntry{
			Kind: EntryTool, ToolName: ev.ToolName, ToolDetail: detail, IsRunning: true,
		})
	case stream.KindText:
		if n := len(m.activityLog); n > 0 && m.activityLog[n-1].Kind == EntryText {
			m.activityLog[n-1].Content += ev.Content
		} else {
			m.activityLog = append(m.activityLog, ActivityEntry{Kind: EntryText, Content: ev.Content})
		}
	case stream.KindThinking:
		n := len(m.activityLog)
		if !(n > 0 && m.activityLog[n-1].Kind == EntryThinking && m.activityLog[n-1].IsRunning) {
			m.activityLog = append(m.activityLog, ActivityEntry{Kind: EntryThinking, Content: "Thinking", IsRunning: true})
		}
	case stream.KindToolResult:
		attachResultToLastTool(m.activityLog, extractToolResultText(ev.Content))
	}

	m.mu.Unlock()

	m.Update(ctx)
}
