// Package userclient implements the User Client actor: one goroutine per
// chat user owning an exclusive backend agent session, processing
// submitted prompts off a FIFO queue and exiting cleanly after an idle
// period. Ported from claude-coder's claude/user_client.py.
package userclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/clawbridge/internal/agentsdk"
	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/stream"
	"github.com/nextlevelbuilder/clawbridge/internal/telemetry"
)

const defaultIdleTimeout = time.Hour

// OnStream is invoked for every normalized event produced while a query is
// in flight (text, thinking, tool_use, tool_result). It is never called
// for the terminal "result" event — that is returned from Submit instead.
type OnStream func(stream.Event)

// QueryResult is what Submit returns once a turn completes.
type QueryResult struct {
	ResponseText string
	SessionID    string
	CostUSD      float64
	NumTurns     int
	DurationMS   int64
}

type workItem struct {
	blocks   []attachments.ContentBlock
	onStream OnStream
	resultCh chan workOutcome
}

type workOutcome struct {
	result QueryResult
	err    error
}

// ExitFunc is called once the actor's worker goroutine has fully exited,
// whether from an explicit Stop or from idling out.
type ExitFunc func(idleExit bool)

// UserClient owns one backend agentsdk.Client across a sequence of
// submitted queries, exposed to callers as a simple
// Start/Submit/Interrupt/Stop actor.
type UserClient struct {
	factory     agentsdk.ClientFactory
	idleTimeout time.Duration
	onExit      ExitFunc
	logger      *slog.Logger

	mu         sync.Mutex
	client     agentsdk.Client
	running    bool
	querying   bool
	sessionID  string
	directory  string
	queue      chan *workItem
	workerDone chan struct{}
}

// Option configures a UserClient at construction time.
type Option func(*UserClient)

// WithIdleTimeout overrides the default 1-hour idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(uc *UserClient) { uc.idleTimeout = d }
}

// WithOnExit registers a callback invoked when the worker goroutine exits.
func WithOnExit(fn ExitFunc) Option {
	return func(uc *UserClient) { uc.onExit = fn }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(uc *UserClient) { uc.logger = l }
}

// New builds a UserClient that will construct backend clients via factory.
func New(factory agentsdk.ClientFactory, opts ...Option) *UserClient {
	uc := &UserClient{
		factory:     factory,
		idleTimeout: defaultIdleTimeout,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(uc)
	}
	return uc
}

// IsConnected reports whether a backend session is currently live.
func (uc *UserClient) IsConnected() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.running
}

// IsQuerying reports whether a query is currently in flight.
func (uc *UserClient) IsQuerying() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.querying
}

// SessionID returns the backend-assigned session id, if any.
func (uc *UserClient) SessionID() string {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.sessionID
}

// Start connects a fresh backend session, stopping any existing one first.
// It blocks until the connection succeeds or fails.
func (uc *UserClient) Start(ctx context.Context, opts agentsdk.Options) error {
	uc.mu.Lock()
	alreadyRunning := uc.running
	uc.mu.Unlock()
	if alreadyRunning {
		uc.Stop(ctx)
	}

	client := uc.factory()
	queue := make(chan *workItem, 256)
	workerDone := make(chan struct{})
	connected := make(chan error, 1)

	uc.mu.Lock()
	uc.client = client
	uc.queue = queue
	uc.workerDone = workerDone
	uc.sessionID = opts.SessionID
	uc.directory = opts.WorkingDirectory
	uc.mu.Unlock()

	go uc.worker(client, opts, queue, workerDone, connected)

	select {
	case err := <-connected:
		if err != nil {
			return fmt.Errorf("userclient: connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop requests the worker goroutine exit and waits up to 10s for it to do
// so, mirroring user_client.py's stop() timeout.
func (uc *UserClient) Stop(ctx context.Context) {
	uc.mu.Lock()
	if !uc.running {
		uc.mu.Unlock()
		return
	}
	queue := uc.queue
	done := uc.workerDone
	uc.mu.Unlock()

	select {
	case queue <- nil:
	default:
		// Queue is full of backlog; still enqueue the sentinel, blocking
		// briefly rather than dropping the stop request.
		select {
		case queue <- nil:
		case <-time.After(10 * time.Second):
		}
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		uc.logger.Warn("userclient: stop timed out waiting for worker exit")
	}
}

// Submit enqueues blocks (the user's text plus any processed attachments)
// and waits until the resulting turn completes (or ctx is canceled).
// onStream, if non-nil, is invoked for every intermediate event produced
// while the turn is in flight.
func (uc *UserClient) Submit(ctx context.Context, blocks []attachments.ContentBlock, onStream OnStream) (QueryResult, error) {
	uc.mu.Lock()
	running := uc.running
	queue := uc.queue
	uc.mu.Unlock()
	if !running {
		return QueryResult{}, fmt.Errorf("userclient: not running")
	}

	item := &workItem{blocks: blocks, onStream: onStream, resultCh: make(chan workOutcome, 1)}

	select {
	case queue <- item:
	case <-ctx.Done():
		return QueryResult{}, ctx.Err()
	}

	select {
	case outcome := <-item.resultCh:
		return outcome.result, outcome.err
	case <-ctx.Done():
		return QueryResult{}, ctx.Err()
	}
}

// Interrupt cancels the in-flight query, if any.
func (uc *UserClient) Interrupt(ctx context.Context) error {
	uc.mu.Lock()
	querying := uc.querying
	client := uc.client
	uc.mu.Unlock()
	if !querying || client == nil {
		return nil
	}
	return client.Interrupt(ctx)
}

func (uc *UserClient) worker(client agentsdk.Client, opts agentsdk.Options, queue chan *workItem, workerDone chan struct{}, connected chan<- error) {
	ctx := context.Background()

	if err := client.Connect(ctx, opts); err != nil {
		connected <- err
		close(workerDone)
		return
	}

	uc.mu.Lock()
	uc.running = true
	uc.mu.Unlock()
	connected <- nil

	idleExit := false
	for {
		var item *workItem
		if uc.idleTimeout <= 0 {
			item = <-queue
		} else {
			timer := time.NewTimer(uc.idleTimeout)
			select {
			case item = <-queue:
				timer.Stop()
			case <-timer.C:
				idleExit = true
			}
		}

		if idleExit {
			break
		}
		if item == nil {
			// Explicit stop sentinel.
			break
		}

		uc.processItem(ctx, client, item)
	}

	_ = client.Disconnect(ctx)

	uc.mu.Lock()
	uc.running = false
	uc.querying = false
	uc.mu.Unlock()

	close(workerDone)

	if uc.onExit != nil {
		uc.onExit(idleExit)
	}
}

func (uc *UserClient) processItem(ctx context.Context, client agentsdk.Client, item *workItem) {
	uc.mu.Lock()
	uc.querying = true
	directory := uc.directory
	uc.mu.Unlock()

	queryCtx, querySpan := telemetry.StartQuery(ctx, directory)

	start := time.Now()
	var outcome workOutcome
	var streamSpan trace.Span

	msgCh, err := client.Query(queryCtx, item.blocks)
	if err != nil {
		outcome.err = err
	} else {
		numTurns := 0
		for msg := range msgCh {
			ev := stream.Extract(msg)
			isPartial := msg.Type == "partial"

			if streamSpan == nil {
				_, streamSpan = telemetry.StartStream(queryCtx, ev.SessionID)
			}

			if ev.Kind == stream.KindToolUse && !isPartial {
				numTurns++
			}

			switch ev.Kind {
			case stream.KindResult:
				outcome.result = QueryResult{
					ResponseText: ev.Content,
					SessionID:    ev.SessionID,
					CostUSD:      ev.CostUSD,
					NumTurns:     numTurns,
					DurationMS:   time.Since(start).Milliseconds(),
				}
				uc.mu.Lock()
				if ev.SessionID != "" {
					uc.sessionID = ev.SessionID
				}
				uc.mu.Unlock()
			case stream.KindText, stream.KindToolUse, stream.KindThinking:
				if item.onStream != nil {
					item.onStream(ev)
				}
			}
		}
	}

	if streamSpan != nil {
		streamSpan.End()
	}
	telemetry.RecordResult(querySpan, outcome.result.CostUSD, outcome.result.NumTurns, outcome.err)

	uc.mu.Lock()
	uc.querying = false
	uc.mu.Unlock()

	item.resultCh <- outcome
}
