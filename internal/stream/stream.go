// Package stream normalizes backend agent messages into a fixed vocabulary
// of events the rest of the bridge can consume without knowing whether the
// underlying message was a complete turn or a partial SSE-style delta.
package stream

// Kind identifies the shape of a normalized stream event.
type Kind string

const (
	KindText       Kind = "text"
	KindThinking   Kind = "thinking"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindResult     Kind = "result"
	KindUser       Kind = "user"
	KindUnknown    Kind = "unknown"
)

// Event is one normalized unit of backend output.
type Event struct {
	Kind      Kind
	Content   string
	ToolName  string
	ToolInput map[string]any
	SessionID string
	CostUSD   float64
	ToolsUsed int
}

// ContentBlock is a single block inside a complete (non-partial) assistant
// message, mirroring the shape the backend agent SDK exposes.
type ContentBlock struct {
	Type  string // "text", "thinking", "tool_use", "tool_result"
	Text  string
	Name  string
	Input map[string]any
}

// Message is the normalized view of whatever the agentsdk client surfaced.
// Exactly one of the typed fields is populated depending on Type.
type Message struct {
	// Type mirrors the backend SDK's message class name: "result",
	// "assistant", "partial", or "user".
	Type string

	// Result fields.
	ResultText    string
	TotalCostUSD  float64
	SessionID     string
	NumTurns      int
	DurationMS    int64

	// Assistant fields (complete message).
	Blocks []ContentBlock

	// Partial fields — one delta/start/stop event from a streaming turn.
	PartialEvent string // "content_block_start", "content_block_delta", "content_block_stop", etc.
	PartialKind  string // block type for *_start events ("tool_use", "thinking", "text")
	DeltaType    string // "text_delta", "thinking_delta", "input_json_delta", "signature_delta"
	DeltaText    string
	ToolName     string
	ToolInput    map[string]any

	// User fields.
	UserText string
}

// Extract dispatches on msg.Type and returns the normalized event, mirroring
// claude-coder's StreamHandler.extract_content.
func Extract(msg Message) Event {
	switch msg.Type {
	case "result":
		return handleResult(msg)
	case "assistant":
		return handleAssistant(msg)
	case "partial":
		return handlePartial(msg)
	case "user":
		return Event{Kind: KindUser, Content: msg.UserText}
	default:
		return Event{Kind: KindUnknown}
	}
}

func handleResult(msg Message) Event {
	return Event{
		Kind:      KindResult,
		Content:   msg.ResultText,
		SessionID: msg.SessionID,
		CostUSD:   msg.TotalCostUSD,
	}
}

func handleAssistant(msg Message) Event {
	if len(msg.Blocks) == 0 {
		return Event{Kind: KindText, Content: ""}
	}

	if len(msg.Blocks) == 1 {
		b := msg.Blocks[0]
		switch b.Type {
		case "thinking":
			return Event{Kind: KindThinking, Content: b.Text}
		case "tool_use":
			return Event{Kind: KindToolUse, ToolName: b.Name, ToolInput: b.Input}
		}
	}

	var text string
	for _, b := range msg.Blocks {
		if b.Type == "text" {
			text += b.Text
		}
	}
	return Event{Kind: KindText, Content: text}
}

func handlePartial(msg Message) Event {
	switch msg.PartialEvent {
	case "content_block_start":
		switch msg.PartialKind {
		case "tool_use":
			return Event{Kind: KindToolUse, ToolName: msg.ToolName}
		case "thinking":
			return Event{Kind: KindThinking, Content: ""}
		default:
			return Event{Kind: KindUnknown}
		}
	case "content_block_delta":
		switch msg.DeltaType {
		case "text_delta":
			return Event{Kind: KindText, Content: msg.DeltaText}
		case "thinking_delta":
			return Event{Kind: KindThinking, Content: msg.DeltaText}
		case "input_json_delta":
			return Event{Kind: KindUnknown}
		default:
			return Event{Kind: KindUnknown}
		}
	default:
		return Event{Kind: KindUnknown}
	}
}
