// Package telegram is the orchestrator glue: a telego long-polling
// channel that routes updates to commands, callbacks, and free-text
// queries against the Client Manager, rendering streamed activity through
// the Progress Manager. Ported from claude-coder's bot/orchestrator.py,
// following the teacher's internal/channels/telegram/channel.go for the
// Go long-polling/Start/Stop idiom.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/clientmanager"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/historyindex"
	"github.com/nextlevelbuilder/clawbridge/internal/skills"
)

// Channel is the Telegram surface of the bridge: one long-polling
// connection dispatching to the Client Manager.
type Channel struct {
	bot     *telego.Bot
	token   string
	manager *clientmanager.Manager
	history *historyindex.Index
	logger  *slog.Logger

	skillsMu sync.RWMutex
	skills   []skills.Metadata

	approvedDirectories []string
	allowedUserIDs      map[string]bool
	defaultDirectory    string
	defaultModel        string
	defaultBetas        []string

	albums *attachments.MediaGroupCollector

	states sync.Map // userID string -> *chatState

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// Option configures a Channel at construction.
type Option func(*Channel)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option { return func(c *Channel) { c.logger = l } }

// WithSkills installs the skill set /commands browses and skill
// invocations resolve against.
func WithSkills(m []skills.Metadata) Option { return func(c *Channel) { c.skills = m } }

// SetSkills replaces the skill set in place, for a running Channel whose
// skills directory changed underneath it (see internal/skills.Watcher).
func (c *Channel) SetSkills(m []skills.Metadata) {
	c.skillsMu.Lock()
	c.skills = m
	c.skillsMu.Unlock()
}

// loadSkills returns the current skill set under the read lock.
func (c *Channel) loadSkills() []skills.Metadata {
	c.skillsMu.RLock()
	defer c.skillsMu.RUnlock()
	return c.skills
}

// New builds a Telegram Channel from configuration, a Client Manager, and
// a Session Index. proxy, if non-empty, routes the bot's HTTP client
// through it (matching the teacher's cfg.Proxy handling).
func New(cfg config.TelegramConfig, agentCfg config.AgentConfig, proxy string, manager *clientmanager.Manager, history *historyindex.Index, opts ...Option) (*Channel, error) {
	var botOpts []telego.BotOption
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("telegram: invalid proxy URL %q: %w", proxy, err)
		}
		botOpts = append(botOpts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	allowed := make(map[string]bool, len(cfg.AllowedUserIDs))
	for _, id := range cfg.AllowedUserIDs {
		allowed[id] = true
	}

	defaultDir := ""
	if len(agentCfg.ApprovedDirectories) > 0 {
		defaultDir = agentCfg.ApprovedDirectories[0]
	}

	c := &Channel{
		bot:                 bot,
		token:               cfg.Token,
		manager:             manager,
		history:             history,
		logger:              slog.Default(),
		approvedDirectories: agentCfg.ApprovedDirectories,
		allowedUserIDs:      allowed,
		defaultDirectory:    defaultDir,
		defaultModel:        agentCfg.DefaultModel,
		defaultBetas:        []string(agentCfg.DefaultBetas),
		albums:              attachments.NewMediaGroupCollector(time.Second),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// IsAllowed reports whether userID may talk to this bot. An empty
// allowlist means "open to anyone" (single-operator deployments).
func (c *Channel) IsAllowed(userID string) bool {
	if len(c.allowedUserIDs) == 0 {
		return true
	}
	return c.allowedUserIDs[userID]
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	c.logger.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				switch {
				case update.Message != nil:
					c.handleMessage(pollCtx, update.Message)
				case update.CallbackQuery != nil:
					c.handleCallbackQuery(pollCtx, update.CallbackQuery)
				}
			}
		}
	}()

	return nil
}

// Stop cancels the long-polling context and waits up to 10s for the
// polling goroutine to exit, mirroring the teacher's shutdown handshake.
func (c *Channel) Stop(_ context.Context) error {
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			c.logger.Warn("telegram: polling goroutine did not exit within timeout")
		}
	}
	return nil
}

func userIDString(id int64) string { return strconv.FormatInt(id, 10) }
