package claudecli

import "testing"

func TestTranslate_Result(t *testing.T) {
	msgs := translate(cliEvent{Type: "result", Result: "done", SessionID: "sess-1", Cost: 0.5})
	if len(msgs) != 1 || msgs[0].Type != "result" || msgs[0].ResultText != "done" || msgs[0].SessionID != "sess-1" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestTranslate_Assistant(t *testing.T) {
	ev := cliEvent{Type: "assistant", Message: []byte(`{"content":[{"type":"text","text":"hi"}]}`)}
	msgs := translate(ev)
	if len(msgs) != 1 || msgs[0].Type != "assistant" || len(msgs[0].Blocks) != 1 || msgs[0].Blocks[0].Text != "hi" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestTranslate_AssistantToolUseWithInput(t *testing.T) {
	ev := cliEvent{Type: "assistant", Message: []byte(`{"content":[{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}`)}
	msgs := translate(ev)
	if len(msgs) != 1 || msgs[0].Blocks[0].Name != "Bash" || msgs[0].Blocks[0].Input["command"] != "ls" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestTranslate_StreamEventContentBlockStart(t *testing.T) {
	ev := cliEvent{Type: "stream_event", Event: []byte(`{"type":"content_block_start","content_block":{"type":"tool_use","name":"Read"}}`)}
	msgs := translate(ev)
	if len(msgs) != 1 || msgs[0].PartialEvent != "content_block_start" || msgs[0].PartialKind != "tool_use" || msgs[0].ToolName != "Read" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestTranslate_StreamEventTextDelta(t *testing.T) {
	ev := cliEvent{Type: "stream_event", Event: []byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"chunk"}}`)}
	msgs := translate(ev)
	if len(msgs) != 1 || msgs[0].DeltaType != "text_delta" || msgs[0].DeltaText != "chunk" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestTranslate_UnknownEventYieldsNothing(t *testing.T) {
	msgs := translate(cliEvent{Type: "system", Subtype: "init"})
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %+v", msgs)
	}
}
