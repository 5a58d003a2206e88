package agentsdk

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/stream"
)

// FakeClient is an in-memory Client used by this repo's own tests
// (internal/userclient, internal/clientmanager) to drive the User Client
// actor and Client Manager without a real backend connection.
type FakeClient struct {
	mu        sync.Mutex
	connected bool
	sessionID string
	opts      Options

	// Scripted responds to queries in order; each call to Query consumes
	// the next entry. If exhausted, Query returns a single result event.
	Responses [][]stream.Message

	queryCount    int
	interrupted   bool
	disconnectErr error
	connectErr    error
}

// NewFakeClient builds a FakeClient whose Query calls will emit the given
// scripted message sequences in order.
func NewFakeClient(responses [][]stream.Message) *FakeClient {
	return &FakeClient{Responses: responses}
}

func (f *FakeClient) Connect(ctx context.Context, opts Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.opts = opts
	f.sessionID = opts.SessionID
	return nil
}

func (f *FakeClient) Query(ctx context.Context, blocks []attachments.ContentBlock) (<-chan stream.Message, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return nil, fmt.Errorf("agentsdk: fake client not connected")
	}
	idx := f.queryCount
	f.queryCount++
	var msgs []stream.Message
	if idx < len(f.Responses) {
		msgs = f.Responses[idx]
	} else {
		msgs = []stream.Message{{Type: "result", ResultText: "ok", SessionID: f.sessionID}}
	}
	f.mu.Unlock()

	ch := make(chan stream.Message, len(msgs))
	for _, m := range msgs {
		if m.Type == "result" && m.SessionID == "" {
			f.mu.Lock()
			if f.sessionID == "" {
				f.sessionID = "fake-session-1"
			}
			m.SessionID = f.sessionID
			f.mu.Unlock()
		}
		ch <- m
	}
	close(ch)
	return ch, nil
}

func (f *FakeClient) Interrupt(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupted = true
	return nil
}

func (f *FakeClient) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

func (f *FakeClient) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return f.disconnectErr
}

// WasInterrupted reports whether Interrupt was ever called.
func (f *FakeClient) WasInterrupted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupted
}

// QueryCount returns how many queries have been submitted.
func (f *FakeClient) QueryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCount
}
