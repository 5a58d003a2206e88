package userclient

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/agentsdk"
	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/stream"
)

func textBlocks(text string) []attachments.ContentBlock {
	return []attachments.ContentBlock{{Type: "text", Text: text}}
}

func TestStartSubmitStop(t *testing.T) {
	fake := agentsdk.NewFakeClient([][]stream.Message{
		{
			{Type: "assistant", Blocks: []stream.ContentBlock{{Type: "text", Text: "hi"}}},
			{Type: "result", ResultText: "hi", SessionID: "sess-1", TotalCostUSD: 0.01},
		},
	})
	uc := New(func() agentsdk.Client { return fake })

	ctx := context.Background()
	if err := uc.Start(ctx, agentsdk.Options{WorkingDirectory: "/repo"}); err != nil {
		t.Fatal(err)
	}
	if !uc.IsConnected() {
		t.Fatal("expected connected after Start")
	}

	var gotEvents []stream.Event
	result, err := uc.Submit(ctx, textBlocks("hello"), func(e stream.Event) { gotEvents = append(gotEvents, e) })
	if err != nil {
		t.Fatal(err)
	}
	if result.ResponseText != "hi" || result.SessionID != "sess-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(gotEvents) != 1 || gotEvents[0].Kind != stream.KindText {
		t.Fatalf("unexpected stream events: %+v", gotEvents)
	}
	if uc.SessionID() != "sess-1" {
		t.Fatalf("expected session id to be updated, got %q", uc.SessionID())
	}

	uc.Stop(ctx)
	if uc.IsConnected() {
		t.Fatal("expected disconnected after Stop")
	}
}

func TestStart_ConnectError(t *testing.T) {
	bad := &erroringClient{}
	uc := New(func() agentsdk.Client { return bad })

	err := uc.Start(context.Background(), agentsdk.Options{})
	if err == nil {
		t.Fatal("expected connect error to propagate")
	}
	if uc.IsConnected() {
		t.Fatal("expected not connected after failed Start")
	}
}

func TestSubmit_NotRunning(t *testing.T) {
	uc := New(func() agentsdk.Client { return agentsdk.NewFakeClient(nil) })
	_, err := uc.Submit(context.Background(), textBlocks("hi"), nil)
	if err == nil {
		t.Fatal("expected error submitting to a non-running actor")
	}
}

func TestIdleTimeoutExitsWorker(t *testing.T) {
	fake := agentsdk.NewFakeClient(nil)
	exited := make(chan bool, 1)
	uc := New(func() agentsdk.Client { return fake },
		WithIdleTimeout(30*time.Millisecond),
		WithOnExit(func(idle bool) { exited <- idle }),
	)

	if err := uc.Start(context.Background(), agentsdk.Options{}); err != nil {
		t.Fatal(err)
	}

	select {
	case idle := <-exited:
		if !idle {
			t.Fatal("expected idle exit")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for idle exit")
	}

	if uc.IsConnected() {
		t.Fatal("expected disconnected after idle exit")
	}
}

// erroringClient always fails to Connect.
type erroringClient struct{}

func (e *erroringClient) Connect(ctx context.Context, opts agentsdk.Options) error {
	return context.DeadlineExceeded
}
func (e *erroringClient) Query(ctx context.Context, blocks []attachments.ContentBlock) (<-chan stream.Message, error) {
	return nil, nil
}
func (e *erroringClient) Interrupt(ctx context.Context) error { return nil }
func (e *erroringClient) SessionID() string                  { return "" }
func (e *erroringClient) Disconnect(ctx context.Context) error { return nil }
