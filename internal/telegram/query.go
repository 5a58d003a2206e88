package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/clientmanager"
	"github.com/nextlevelbuilder/clawbridge/internal/progress"
	"github.com/nextlevelbuilder/clawbridge/internal/stream"
)

const typingHeartbeatInterval = 2 * time.Second

// startTypingHeartbeat issues a "typing" chat action every 2s until the
// returned stop func is called, independent of stream activity. Ported
// from orchestrator.py:_start_typing_heartbeat.
func (c *Channel) startTypingHeartbeat(ctx context.Context, chatID int64) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(typingHeartbeatInterval)
		defer ticker.Stop()
		action := &telego.SendChatActionParams{ChatID: tu.ID(chatID), Action: telego.ChatActionTyping}
		_ = c.bot.SendChatAction(hbCtx, action)
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				_ = c.bot.SendChatAction(hbCtx, action)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// runQuery submits prompt on behalf of userID/chatID, rendering streamed
// activity through a Progress Manager and a typing heartbeat, and
// delivers the final answer as a fresh HTML message (falling back to
// plain text if HTML rendering is rejected). Mirrors
// orchestrator.py:_run_claude_query plus its progress-message wiring.
func (c *Channel) runQuery(ctx context.Context, chatID int64, userID string, query attachments.Query, forceNew bool) {
	state := c.stateFor(userID)
	directory, verbosity, model, betas := state.snapshot()

	stopHeartbeat := c.startTypingHeartbeat(ctx, chatID)
	defer stopHeartbeat()

	initial, err := c.sendPlain(ctx, chatID, "Working... (0s)")
	if err != nil {
		c.logger.Warn("telegram: failed to send progress message", "error", err)
		return
	}

	progressMgr := progress.New(
		&botChat{bot: c.bot, chatID: chatID},
		&botMessage{bot: c.bot, chatID: chatID, messageID: initial.MessageID},
		time.Now(),
		verbosity,
	)
	onStream := func(ev stream.Event) { progressMgr.StreamCallback(ctx, ev) }

	client, err := c.manager.GetOrConnect(ctx, clientmanager.GetOrConnectParams{
		UserID:            userID,
		Directory:         directory,
		Model:             model,
		Betas:             betas,
		ApprovedDirectory: c.approvedDirectories,
		ForceNew:          forceNew,
	})
	if err != nil {
		progressMgr.Finalize(ctx)
		c.sendHTML(ctx, chatID, fmt.Sprintf("Failed to start session: %s", EscapeHTML(err.Error())))
		return
	}

	result, err := client.Submit(ctx, query.ToContentBlocks(), onStream)
	progressMgr.Finalize(ctx)

	if err != nil {
		c.sendHTML(ctx, chatID, fmt.Sprintf("Query failed: %s", EscapeHTML(err.Error())))
		return
	}

	if result.SessionID != "" {
		if uerr := c.manager.UpdateSessionID(ctx, userID, result.SessionID); uerr != nil {
			c.logger.Warn("telegram: failed to persist session id", "user_id", userID, "error", uerr)
		}
	}

	c.sendHTML(ctx, chatID, MarkdownToHTML(result.ResponseText))
}

// sendHTML sends text rendered through MarkdownToHTML, falling back to an
// unrendered plain-text send if Telegram rejects the HTML (e.g.
// unbalanced tags from an unusual backend response).
func (c *Channel) sendHTML(ctx context.Context, chatID int64, html string) {
	params := tu.Message(tu.ID(chatID), html)
	params.ParseMode = telego.ModeHTML
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		c.logger.Warn("telegram: HTML send failed, falling back to plain text", "error", err)
		_, _ = c.sendPlain(ctx, chatID, html)
	}
}

func (c *Channel) sendPlain(ctx context.Context, chatID int64, text string) (*telego.Message, error) {
	return c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
}
