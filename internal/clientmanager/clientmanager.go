// Package clientmanager implements the Client Manager: the per-user
// registry of User Client actors, responsible for connecting, reusing,
// and resolving which backend session a chat should land in. Ported from
// claude-coder's claude/client_manager.py.
package clientmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/agentsdk"
	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/historyindex"
	"github.com/nextlevelbuilder/clawbridge/internal/permission"
	"github.com/nextlevelbuilder/clawbridge/internal/userclient"
)

// systemPromptAppend is appended to the CLI's claude_code system-prompt
// preset, grounded on claude-coder's OptionsBuilder.build.
const systemPromptAppend = "You are being accessed via Telegram. Keep responses concise for mobile reading."

// BotSession is the persisted row tracking the last-used session per user.
type BotSession struct {
	UserID    string
	Directory string
	SessionID string
	Model     string
	Betas     []string
	UpdatedAt time.Time
}

// SessionStore persists one BotSession row per user. Implemented by
// internal/store against Postgres.
type SessionStore interface {
	Get(ctx context.Context, userID string) (BotSession, bool, error)
	Upsert(ctx context.Context, row BotSession) error
}

// SessionIndex resolves the most recent session for a directory when no
// explicit or persisted session id applies.
type SessionIndex interface {
	LatestSession(directory string) (historyindex.Entry, bool, error)
}

// GetOrConnectParams mirrors client_manager.py's get_or_connect arguments.
type GetOrConnectParams struct {
	UserID            string
	Directory         string
	SessionID         string // explicit override; empty means "resolve"
	Model             string
	Betas             []string
	ApprovedDirectory []string
	ForceNew          bool
	OnStream          userclient.OnStream
}

type entry struct {
	client    *userclient.UserClient
	directory string
}

// Manager is the Client Manager: a registry of one User Client actor per
// user id, with session-resolution and persistence glue.
type Manager struct {
	factory     agentsdk.ClientFactory
	store       SessionStore
	index       SessionIndex
	idleTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[string]*entry
}

// Option configures a Manager at construction.
type Option func(*Manager)

func WithIdleTimeout(d time.Duration) Option { return func(m *Manager) { m.idleTimeout = d } }
func WithLogger(l *slog.Logger) Option       { return func(m *Manager) { m.logger = l } }

// New builds a Manager.
func New(factory agentsdk.ClientFactory, store SessionStore, index SessionIndex, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		store:   store,
		index:   index,
		clients: make(map[string]*entry),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// GetOrConnect returns a connected User Client actor for params.UserID,
// reusing an existing connection when it matches the requested directory
// and ForceNew is false. Otherwise it resolves a session id (explicit >
// persisted row for the same directory > newest history entry for the
// directory, unless ForceNew), connects a fresh actor, and persists the
// resulting session id.
func (m *Manager) GetOrConnect(ctx context.Context, p GetOrConnectParams) (*userclient.UserClient, error) {
	m.mu.Lock()
	existing, ok := m.clients[p.UserID]
	m.mu.Unlock()

	if ok && !p.ForceNew && existing.directory == p.Directory && existing.client.IsConnected() {
		return existing.client, nil
	}

	if ok {
		existing.client.Stop(ctx)
		m.mu.Lock()
		delete(m.clients, p.UserID)
		m.mu.Unlock()
	}

	resolvedSessionID, model, betas := p.SessionID, p.Model, p.Betas
	if !p.ForceNew {
		var err error
		resolvedSessionID, model, betas, err = m.resolveSession(ctx, p)
		if err != nil {
			return nil, err
		}
	}

	uc := userclient.New(m.factory,
		userclient.WithIdleTimeout(m.idleTimeout),
		userclient.WithLogger(m.logger),
		userclient.WithOnExit(func(idleExit bool) { m.onClientExit(p.UserID, idleExit) }),
	)

	gate := permission.NewGate(p.Directory, p.ApprovedDirectory)
	opts := agentsdk.Options{
		WorkingDirectory:   p.Directory,
		SessionID:          resolvedSessionID,
		Model:              model,
		Betas:              betas,
		PermissionMode:     "bypassPermissions",
		SystemPromptAppend: systemPromptAppend,
		ClearClaudeCodeEnv: true,
		OnStderr: func(line string) {
			m.logger.Debug("claude cli stderr", "user_id", p.UserID, "line", line)
		},
		CanUseTool: func(toolName string, toolInput map[string]any) (bool, string) {
			d := gate.CanUseTool(toolName, toolInput)
			return d.Allow, d.Message
		},
	}
	if err := uc.Start(ctx, opts); err != nil {
		return nil, fmt.Errorf("clientmanager: start: %w", err)
	}

	m.mu.Lock()
	m.clients[p.UserID] = &entry{client: uc, directory: p.Directory}
	m.mu.Unlock()

	if sid := uc.SessionID(); sid != "" && m.store != nil {
		row := BotSession{UserID: p.UserID, Directory: p.Directory, SessionID: sid, Model: model, Betas: betas, UpdatedAt: time.Now()}
		if err := m.store.Upsert(ctx, row); err != nil {
			m.logger.Warn("clientmanager: failed to persist session", "user_id", p.UserID, "error", err)
		}
	}

	return uc, nil
}

// resolveSession implements the priority chain: explicit > persisted row
// (same directory, inheriting model/betas if unset) > newest history entry
// for the directory.
func (m *Manager) resolveSession(ctx context.Context, p GetOrConnectParams) (sessionID, model string, betas []string, err error) {
	sessionID, model, betas = p.SessionID, p.Model, p.Betas
	if sessionID != "" {
		return sessionID, model, betas, nil
	}

	if m.store != nil {
		persisted, found, storeErr := m.store.Get(ctx, p.UserID)
		if storeErr != nil {
			return "", "", nil, fmt.Errorf("clientmanager: load persisted session: %w", storeErr)
		}
		if found && persisted.Directory == p.Directory {
			sessionID = persisted.SessionID
			if model == "" {
				model = persisted.Model
			}
			if len(betas) == 0 {
				betas = persisted.Betas
			}
			return sessionID, model, betas, nil
		}
	}

	if m.index != nil {
		latest, found, idxErr := m.index.LatestSession(p.Directory)
		if idxErr != nil {
			return "", "", nil, fmt.Errorf("clientmanager: resolve latest session: %w", idxErr)
		}
		if found {
			sessionID = latest.SessionID
		}
	}

	return sessionID, model, betas, nil
}

// SwitchSession stops the current actor (if any) and reconnects with an
// explicit session id.
func (m *Manager) SwitchSession(ctx context.Context, userID, directory, sessionID string) (*userclient.UserClient, error) {
	m.mu.Lock()
	existing, ok := m.clients[userID]
	m.mu.Unlock()
	if ok {
		existing.client.Stop(ctx)
		m.mu.Lock()
		delete(m.clients, userID)
		m.mu.Unlock()
	}
	return m.GetOrConnect(ctx, GetOrConnectParams{UserID: userID, Directory: directory, SessionID: sessionID})
}

// Interrupt cancels the in-flight query for userID, if any.
func (m *Manager) Interrupt(ctx context.Context, userID string) error {
	m.mu.Lock()
	e, ok := m.clients[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return e.client.Interrupt(ctx)
}

// SetModel updates the in-memory and (if a session id exists) persisted
// model for userID.
func (m *Manager) SetModel(ctx context.Context, userID, model string, betas []string) error {
	m.mu.Lock()
	e, ok := m.clients[userID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("clientmanager: no active client for user %s", userID)
	}
	sid := e.client.SessionID()
	if sid != "" && m.store != nil {
		row := BotSession{UserID: userID, Directory: e.directory, SessionID: sid, Model: model, Betas: betas, UpdatedAt: time.Now()}
		return m.store.Upsert(ctx, row)
	}
	return nil
}

// GetActiveClient returns the actor currently registered for userID, if
// any.
func (m *Manager) GetActiveClient(userID string) (*userclient.UserClient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.clients[userID]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Disconnect stops and removes the actor for userID.
func (m *Manager) Disconnect(ctx context.Context, userID string) {
	m.mu.Lock()
	e, ok := m.clients[userID]
	delete(m.clients, userID)
	m.mu.Unlock()
	if ok {
		e.client.Stop(ctx)
	}
}

// DisconnectAll stops and removes every active actor.
func (m *Manager) DisconnectAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*entry, 0, len(m.clients))
	for _, e := range m.clients {
		all = append(all, e)
	}
	m.clients = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		e.client.Stop(ctx)
	}
}

// UpdateSessionID records a session id discovered mid-conversation (e.g.
// from a "result" event) against userID's persisted row.
func (m *Manager) UpdateSessionID(ctx context.Context, userID, sessionID string) error {
	m.mu.Lock()
	e, ok := m.clients[userID]
	m.mu.Unlock()
	if !ok || m.store == nil {
		return nil
	}
	return m.store.Upsert(ctx, BotSession{UserID: userID, Directory: e.directory, SessionID: sessionID, UpdatedAt: time.Now()})
}

// GetLatestSession delegates to the SessionIndex.
func (m *Manager) GetLatestSession(directory string) (historyindex.Entry, bool, error) {
	if m.index == nil {
		return historyindex.Entry{}, false, nil
	}
	return m.index.LatestSession(directory)
}

// compactSummaryPrompt asks the backend to condense the conversation so
// far; compactReseedPrompt seeds the replacement session with that
// summary. Mirrors orchestrator.py:agentic_compact's two-step exchange.
const compactSummaryPrompt = "Summarize our conversation so far concisely. Include: " +
	"key decisions, current state of work, pending tasks, and important " +
	"context. Format as bullet points."

func compactReseedPrompt(summary string) string {
	return fmt.Sprintf(
		"This is a compacted session. Here is the context from our previous "+
			"conversation:\n\n%s\n\nPlease acknowledge briefly. We're continuing our work.",
		summary,
	)
}

// Compact asks userID's active session to summarize itself, then replaces
// the connection with a fresh session reseeded with that summary,
// returning the new session id. There must be an active client for userID
// (an un-started conversation has nothing to compact).
func (m *Manager) Compact(ctx context.Context, userID, directory string) (string, error) {
	client, ok := m.GetActiveClient(userID)
	if !ok {
		return "", fmt.Errorf("clientmanager: no active session to compact for user %s", userID)
	}

	summary, err := client.Submit(ctx, []attachments.ContentBlock{{Type: "text", Text: compactSummaryPrompt}}, nil)
	if err != nil {
		return "", fmt.Errorf("clientmanager: compact summary: %w", err)
	}

	fresh, err := m.GetOrConnect(ctx, GetOrConnectParams{
		UserID:    userID,
		Directory: directory,
		ForceNew:  true,
	})
	if err != nil {
		return "", fmt.Errorf("clientmanager: compact reconnect: %w", err)
	}

	reseedBlocks := []attachments.ContentBlock{{Type: "text", Text: compactReseedPrompt(summary.ResponseText)}}
	reseeded, err := fresh.Submit(ctx, reseedBlocks, nil)
	if err != nil {
		return "", fmt.Errorf("clientmanager: compact reseed: %w", err)
	}
	return reseeded.SessionID, nil
}

// onClientExit removes the exited actor from the registry, logging
// differently for a graceful idle exit vs. any other reason.
func (m *Manager) onClientExit(userID string, idleExit bool) {
	m.mu.Lock()
	delete(m.clients, userID)
	m.mu.Unlock()

	if idleExit {
		m.logger.Info("clientmanager: actor idled out", "user_id", userID)
	} else {
		m.logger.Info("clientmanager: actor stopped", "user_id", userID)
	}
}
