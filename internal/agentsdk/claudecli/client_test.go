package claudecli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"testing"

	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
)

// bufferStdin is an io.WriteCloser backed by a bytes.Buffer, letting tests
// inspect exactly what a Client wrote to the subprocess's stdin.
type bufferStdin struct{ bytes.Buffer }

func (b *bufferStdin) Close() error { return nil }

func newTestClient() (*Client, *bufferStdin) {
	stdin := &bufferStdin{}
	c := &Client{binary: "claude", cmd: exec.Command("true"), stdin: stdin}
	return c, stdin
}

func scanLines(buf *bufferStdin) *bufio.Scanner {
	return bufio.NewScanner(bytes.NewReader(buf.Bytes()))
}

func TestClient_Query_MarshalsTextAndImageBlocks(t *testing.T) {
	c, stdin := newTestClient()

	blocks := []attachments.ContentBlock{
		{Type: "text", Text: "look at this"},
		{Type: "image", MediaType: "image/png", Data: "YWJj"},
	}
	if _, err := c.Query(context.Background(), blocks); err != nil {
		t.Fatalf("Query: %v", err)
	}

	scanner := scanLines(stdin)
	if !scanner.Scan() {
		t.Fatal("expected a stdin line to be written")
	}
	var line stdinUserMessage
	if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal stdin line: %v", err)
	}
	if line.Type != "user" || len(line.Message.Content) != 2 {
		t.Fatalf("unexpected stdin line: %+v", line)
	}
	if line.Message.Content[0].Type != "text" || line.Message.Content[0].Text != "look at this" {
		t.Fatalf("unexpected text block: %+v", line.Message.Content[0])
	}
	img := line.Message.Content[1]
	if img.Type != "image" || img.Source == nil || img.Source.MediaType != "image/png" || img.Source.Data != "YWJj" {
		t.Fatalf("unexpected image block: %+v", img)
	}
}

func TestClient_HandleControlRequest_AllowsViaCanUseTool(t *testing.T) {
	c, stdin := newTestClient()
	c.canUseTool = func(toolName string, input map[string]any) (bool, string) {
		if toolName != "Bash" {
			t.Fatalf("unexpected tool name %q", toolName)
		}
		return true, ""
	}

	req, _ := json.Marshal(controlRequest{Subtype: "can_use_tool", ToolName: "Bash", Input: map[string]any{"command": "ls"}})
	c.handleControlRequest(cliEvent{Type: "control_request", RequestID: "req-1", Request: req})

	scanner := scanLines(stdin)
	if !scanner.Scan() {
		t.Fatal("expected a control_response line")
	}
	var resp controlResponseEnvelope
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal control_response: %v", err)
	}
	if resp.Type != "control_response" || resp.Response.RequestID != "req-1" || resp.Response.Response.Behavior != "allow" {
		t.Fatalf("unexpected control_response: %+v", resp)
	}
}

func TestClient_HandleControlRequest_DeniesViaCanUseTool(t *testing.T) {
	c, stdin := newTestClient()
	c.canUseTool = func(toolName string, input map[string]any) (bool, string) {
		return false, "path escapes the approved directory"
	}

	req, _ := json.Marshal(controlRequest{Subtype: "can_use_tool", ToolName: "Write", Input: map[string]any{"file_path": "/etc/passwd"}})
	c.handleControlRequest(cliEvent{Type: "control_request", RequestID: "req-2", Request: req})

	scanner := scanLines(stdin)
	if !scanner.Scan() {
		t.Fatal("expected a control_response line")
	}
	var resp controlResponseEnvelope
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal control_response: %v", err)
	}
	if resp.Response.Response.Behavior != "deny" || resp.Response.Response.Message == "" {
		t.Fatalf("unexpected control_response: %+v", resp)
	}
}

func TestClient_HandleControlRequest_NoGateAllowsByDefault(t *testing.T) {
	c, stdin := newTestClient()

	req, _ := json.Marshal(controlRequest{Subtype: "can_use_tool", ToolName: "Read"})
	c.handleControlRequest(cliEvent{Type: "control_request", RequestID: "req-3", Request: req})

	scanner := scanLines(stdin)
	if !scanner.Scan() {
		t.Fatal("expected a control_response line")
	}
	var resp controlResponseEnvelope
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal control_response: %v", err)
	}
	if resp.Response.Response.Behavior != "allow" {
		t.Fatalf("expected allow when no gate is configured, got %+v", resp)
	}
}
