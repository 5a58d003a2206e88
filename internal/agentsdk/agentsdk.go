// Package agentsdk models the out-of-scope backend agent collaborator
// this bridge drives: a persistent, stateful coding-agent SDK client that
// streams text/thinking/tool events for one query at a time, roughly
// shaped after claude-coder's ClaudeSDKClient.
//
// This package owns no implementation of an actual agent — it defines the
// interface the rest of the bridge programs against, and the concrete
// wire-level client lives behind whatever build actually talks to the
// backend. Tests in this repo exercise a fake implementing Client.
package agentsdk

import (
	"context"

	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/stream"
)

// Options configures one backend session.
type Options struct {
	WorkingDirectory string
	SessionID        string // resume hint; empty starts a fresh session
	Model            string
	Betas            []string
	CanUseTool       func(toolName string, toolInput map[string]any) (bool, string)

	// PermissionMode is passed as the CLI's --permission-mode. Empty means
	// "bypassPermissions" — CanUseTool is a separate, always-active hook
	// and is not bypassed by this mode, matching claude-coder's
	// OptionsBuilder.build (permission_mode="bypassPermissions" alongside
	// a populated can_use_tool callback).
	PermissionMode string

	// SystemPromptAppend is appended to the CLI's default claude_code
	// system-prompt preset, e.g. claude-coder's Telegram mobile-reading
	// notice.
	SystemPromptAppend string

	// OnStderr, if set, receives each line the subprocess writes to
	// stderr. Nil means the line is logged at debug level.
	OnStderr func(line string)

	// ClearClaudeCodeEnv clears the CLAUDECODE environment variable in
	// the subprocess so a bundled CLI launched from inside a Claude
	// session doesn't refuse to start.
	ClearClaudeCodeEnv bool
}

// Client is a single connected backend agent session. Implementations are
// not safe for concurrent use by more than one goroutine — the User Client
// actor owns exclusive access to one Client at a time.
type Client interface {
	// Connect establishes the session. Must be called once before Query.
	Connect(ctx context.Context, opts Options) error

	// Query submits blocks (the user's text plus any processed
	// attachments, in attachments.Query.ToContentBlocks order) and
	// returns a channel of normalized messages for this turn, closed
	// when the turn (including its ResultMessage) completes or ctx is
	// canceled.
	Query(ctx context.Context, blocks []attachments.ContentBlock) (<-chan stream.Message, error)

	// Interrupt cancels the in-flight query, if any.
	Interrupt(ctx context.Context) error

	// SessionID returns the backend-assigned session id, populated once
	// the first result arrives.
	SessionID() string

	// Disconnect tears down the session. Safe to call multiple times.
	Disconnect(ctx context.Context) error
}

// ClientFactory builds a fresh, unconnected Client. The Client Manager
// uses this to spin up a new backend session per User Client actor.
type ClientFactory func() Client
