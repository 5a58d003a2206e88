// Package claudecli implements agentsdk.Client by driving the real Claude
// Code CLI as a subprocess, speaking its NDJSON stream-json protocol on
// stdin/stdout. This is the one concrete backend binding in the repo —
// internal/agentsdk itself stays an interface against an out-of-scope
// collaborator, matching how the original bot imported claude_agent_sdk as
// a library rather than reimplementing it.
package claudecli

import (
	"encoding/json"

	"github.com/nextlevelbuilder/clawbridge/internal/stream"
)

// contentBlock mirrors one block of a CLI assistant message.
type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// cliEvent is one parsed NDJSON line from `claude --output-format
// stream-json --include-partial-messages`.
type cliEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Cost      float64         `json:"total_cost_usd,omitempty"`
	NumTurns  int             `json:"num_turns,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
}

type assistantMessage struct {
	Content []contentBlock `json:"content"`
}

type streamInner struct {
	Type         string          `json:"type"`
	ContentBlock json.RawMessage `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`
}

type streamContentBlock struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type streamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// translate converts one cliEvent into zero or more stream.Message values.
// "system" and unrecognized events produce nothing — only assistant,
// result, and partial stream_event lines carry content the rest of the
// bridge cares about.
func translate(ev cliEvent) []stream.Message {
	switch ev.Type {
	case "result":
		return []stream.Message{{
			Type:         "result",
			ResultText:   ev.Result,
			SessionID:    ev.SessionID,
			TotalCostUSD: ev.Cost,
			NumTurns:     ev.NumTurns,
			DurationMS:   ev.DurationMS,
		}}
	case "assistant":
		var msg assistantMessage
		if ev.Message == nil || json.Unmarshal(ev.Message, &msg) != nil {
			return nil
		}
		blocks := make([]stream.ContentBlock, 0, len(msg.Content))
		for _, b := range msg.Content {
			var input map[string]any
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &input)
			}
			blocks = append(blocks, stream.ContentBlock{
				Type:  b.Type,
				Text:  b.Text,
				Name:  b.Name,
				Input: input,
			})
		}
		return []stream.Message{{Type: "assistant", Blocks: blocks}}
	case "stream_event":
		return translateStreamEvent(ev.Event)
	default:
		return nil
	}
}

// translateStreamEvent unwraps a --include-partial-messages "stream_event"
// envelope into the partial start/delta messages the Stream Handler
// expects.
func translateStreamEvent(raw json.RawMessage) []stream.Message {
	if raw == nil {
		return nil
	}
	var inner streamInner
	if json.Unmarshal(raw, &inner) != nil {
		return nil
	}

	switch inner.Type {
	case "content_block_start":
		var cb streamContentBlock
		if inner.ContentBlock == nil || json.Unmarshal(inner.ContentBlock, &cb) != nil {
			return nil
		}
		return []stream.Message{{
			Type:         "partial",
			PartialEvent: "content_block_start",
			PartialKind:  cb.Type,
			ToolName:     cb.Name,
		}}
	case "content_block_delta":
		var d streamDelta
		if inner.Delta == nil || json.Unmarshal(inner.Delta, &d) != nil {
			return nil
		}
		return []stream.Message{{
			Type:         "partial",
			PartialEvent: "content_block_delta",
			DeltaType:    d.Type,
			DeltaText:    firstNonEmpty(d.Text, d.PartialJSON),
		}}
	case "content_block_stop":
		return []stream.Message{{Type: "partial", PartialEvent: "content_block_stop"}}
	default:
		return nil
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
