package clientmanager

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/agentsdk"
	"github.com/nextlevelbuilder/clawbridge/internal/historyindex"
)

type fakeStore struct {
	rows map[string]BotSession
}

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string]BotSession)} }

func (s *fakeStore) Get(ctx context.Context, userID string) (BotSession, bool, error) {
	row, ok := s.rows[userID]
	return row, ok, nil
}

func (s *fakeStore) Upsert(ctx context.Context, row BotSession) error {
	s.rows[row.UserID] = row
	return nil
}

type fakeIndex struct {
	latest map[string]historyindex.Entry
}

func (i *fakeIndex) LatestSession(directory string) (historyindex.Entry, bool, error) {
	e, ok := i.latest[directory]
	return e, ok, nil
}

func newFactory() agentsdk.ClientFactory {
	return func() agentsdk.Client { return agentsdk.NewFakeClient(nil) }
}

func TestGetOrConnect_ReusesSameDirectory(t *testing.T) {
	m := New(newFactory(), newFakeStore(), &fakeIndex{latest: map[string]historyindex.Entry{}})
	ctx := context.Background()

	c1, err := m.GetOrConnect(ctx, GetOrConnectParams{UserID: "u1", Directory: "/repo"})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := m.GetOrConnect(ctx, GetOrConnectParams{UserID: "u1", Directory: "/repo"})
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Fatal("expected the same actor to be reused for the same directory")
	}
}

func TestGetOrConnect_DifferentDirectoryReconnects(t *testing.T) {
	m := New(newFactory(), newFakeStore(), &fakeIndex{latest: map[string]historyindex.Entry{}})
	ctx := context.Background()

	c1, err := m.GetOrConnect(ctx, GetOrConnectParams{UserID: "u1", Directory: "/repo/a"})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := m.GetOrConnect(ctx, GetOrConnectParams{UserID: "u1", Directory: "/repo/b"})
	if err != nil {
		t.Fatal(err)
	}
	if c1 == c2 {
		t.Fatal("expected a new actor when the directory changes")
	}
	if c1.IsConnected() {
		t.Fatal("expected old actor to be stopped")
	}
}

func TestResolveSession_PrefersExplicitOverPersisted(t *testing.T) {
	store := newFakeStore()
	store.rows["u1"] = BotSession{UserID: "u1", Directory: "/repo", SessionID: "persisted-sess"}
	m := New(newFactory(), store, &fakeIndex{latest: map[string]historyindex.Entry{}})

	sid, _, _, err := m.resolveSession(context.Background(), GetOrConnectParams{
		UserID: "u1", Directory: "/repo", SessionID: "explicit-sess",
	})
	if err != nil {
		t.Fatal(err)
	}
	if sid != "explicit-sess" {
		t.Fatalf("expected explicit session id to win, got %q", sid)
	}
}

func TestResolveSession_PersistedOnlyIfDirectoryMatches(t *testing.T) {
	store := newFakeStore()
	store.rows["u1"] = BotSession{UserID: "u1", Directory: "/other", SessionID: "persisted-sess", Model: "claude-x"}
	idx := &fakeIndex{latest: map[string]historyindex.Entry{"/repo": {SessionID: "history-sess"}}}
	m := New(newFactory(), store, idx)

	sid, model, _, err := m.resolveSession(context.Background(), GetOrConnectParams{UserID: "u1", Directory: "/repo"})
	if err != nil {
		t.Fatal(err)
	}
	if sid != "history-sess" {
		t.Fatalf("expected fallback to history index when directory mismatches persisted row, got %q", sid)
	}
	if model != "" {
		t.Fatalf("expected no model inherited from a non-matching persisted row, got %q", model)
	}
}

func TestResolveSession_PersistedInheritsModelWhenDirectoryMatches(t *testing.T) {
	store := newFakeStore()
	store.rows["u1"] = BotSession{UserID: "u1", Directory: "/repo", SessionID: "persisted-sess", Model: "claude-x"}
	m := New(newFactory(), store, &fakeIndex{latest: map[string]historyindex.Entry{}})

	sid, model, _, err := m.resolveSession(context.Background(), GetOrConnectParams{UserID: "u1", Directory: "/repo"})
	if err != nil {
		t.Fatal(err)
	}
	if sid != "persisted-sess" || model != "claude-x" {
		t.Fatalf("expected persisted session+model to apply, got sid=%q model=%q", sid, model)
	}
}

func TestForceNew_SkipsResolution(t *testing.T) {
	store := newFakeStore()
	store.rows["u1"] = BotSession{UserID: "u1", Directory: "/repo", SessionID: "persisted-sess"}
	m := New(newFactory(), store, &fakeIndex{latest: map[string]historyindex.Entry{}})
	ctx := context.Background()

	c, err := m.GetOrConnect(ctx, GetOrConnectParams{UserID: "u1", Directory: "/repo", ForceNew: true})
	if err != nil {
		t.Fatal(err)
	}
	if c.SessionID() != "" {
		t.Fatalf("expected a forced-new session to start without a resolved id, got %q", c.SessionID())
	}
}

func TestDisconnectAll(t *testing.T) {
	m := New(newFactory(), newFakeStore(), &fakeIndex{latest: map[string]historyindex.Entry{}})
	ctx := context.Background()
	if _, err := m.GetOrConnect(ctx, GetOrConnectParams{UserID: "u1", Directory: "/repo"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetOrConnect(ctx, GetOrConnectParams{UserID: "u2", Directory: "/repo"}); err != nil {
		t.Fatal(err)
	}
	m.DisconnectAll(ctx)
	time.Sleep(10 * time.Millisecond)
	if _, ok := m.GetActiveClient("u1"); ok {
		t.Fatal("expected u1 to be disconnected")
	}
	if _, ok := m.GetActiveClient("u2"); ok {
		t.Fatal("expected u2 to be disconnected")
	}
}
