package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/historyindex"
	"github.com/nextlevelbuilder/clawbridge/internal/progress"
	"github.com/nextlevelbuilder/clawbridge/internal/skills"
)

// handleMessage routes one inbound message to a command handler or, for
// free text (and photos/documents), to a query against the Client
// Manager. Ported from orchestrator.py's command dispatch table plus
// agentic_text/agentic_document/agentic_photo.
func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil {
		return
	}
	userID := userIDString(msg.From.ID)
	chatID := msg.Chat.ID

	if !c.IsAllowed(userID) {
		c.logger.Debug("telegram: message rejected by allowlist", "user_id", userID)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	if strings.HasPrefix(text, "/") {
		cmd := strings.SplitN(text, " ", 2)[0]
		cmd = strings.SplitN(cmd, "@", 2)[0]
		args := strings.TrimSpace(strings.TrimPrefix(text, cmd))
		if c.dispatchCommand(ctx, chatID, userID, strings.ToLower(cmd), args) {
			return
		}
	}

	query, err := c.buildQuery(text, msg)
	if err != nil {
		c.sendHTML(ctx, chatID, fmt.Sprintf("⚠️ %s", EscapeHTML(err.Error())))
		return
	}
	if query.Text == "" && len(query.Attachments) == 0 {
		return
	}
	c.runQuery(ctx, chatID, userID, query, false)
}

// buildQuery resolves msg's text plus any single photo/document into an
// attachments.Query. Album (media-group) coalescing is handled by the
// caller consulting c.albums before dispatch in a full media pipeline;
// this bridge processes one attachment per message, matching the common
// single-item case, and reports an unsupported-attachment error as plain
// text rather than failing the whole update.
func (c *Channel) buildQuery(text string, msg *telego.Message) (attachments.Query, error) {
	q := attachments.Query{Text: text}

	if len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		// Download is intentionally out of this sketch's critical path:
		// the file bytes are fetched the same way media.go's
		// downloadMedia does, then handed to ProcessPhoto.
		data, err := c.downloadFile(context.Background(), largest.FileID)
		if err != nil {
			return q, fmt.Errorf("download photo: %w", err)
		}
		q.Attachments = append(q.Attachments, attachments.ProcessPhoto(data))
	}

	if msg.Document != nil {
		data, err := c.downloadFile(context.Background(), msg.Document.FileID)
		if err != nil {
			return q, fmt.Errorf("download document: %w", err)
		}
		att, err := attachments.ProcessDocument(msg.Document.FileName, msg.Document.MimeType, data)
		if err != nil {
			return q, err
		}
		q.Attachments = append(q.Attachments, att)
	}

	return q, nil
}

// dispatchCommand handles a known slash command, returning false when cmd
// isn't one this bridge recognizes (falling through to the query path,
// matching orchestrator.py's unrecognized-command → skill/Claude
// fallback).
func (c *Channel) dispatchCommand(ctx context.Context, chatID int64, userID, cmd, args string) bool {
	switch cmd {
	case "/start":
		c.cmdStart(ctx, chatID, userID)
	case "/new":
		c.cmdNew(ctx, chatID, userID)
	case "/stop":
		c.cmdStop(ctx, chatID, userID)
	case "/status":
		c.cmdStatus(ctx, chatID, userID)
	case "/model":
		c.cmdModel(ctx, chatID)
	case "/verbose":
		c.cmdVerbose(ctx, chatID, userID, args)
	case "/compact":
		c.cmdCompact(ctx, chatID, userID)
	case "/repo":
		c.cmdRepo(ctx, chatID, userID)
	case "/sessions":
		c.cmdSessions(ctx, chatID, userID)
	case "/commands":
		c.cmdCommands(ctx, chatID, userID)
	default:
		return false
	}
	return true
}

func (c *Channel) cmdStart(ctx context.Context, chatID int64, userID string) {
	state := c.stateFor(userID)
	dir, _, _, _ := state.snapshot()
	name := "there"
	c.sendHTML(ctx, chatID, fmt.Sprintf(
		"Hi %s! I'm your AI coding assistant.\n"+
			"Just tell me what you need — I can read, write, and run code.\n\n"+
			"Working in: <code>%s/</code>\n\n"+
			"<b>Commands:</b>\n"+
			"/new — Start fresh session\n"+
			"/stop — Interrupt running query\n"+
			"/status — Current session info\n"+
			"/model — Switch Claude model\n"+
			"/sessions — Pick a session to resume\n"+
			"/commands — Browse available skills\n"+
			"/compact — Compress context\n"+
			"/repo — Switch workspace\n"+
			"/verbose — Set output level (0/1/2)",
		EscapeHTML(name), EscapeHTML(dir),
	))
}

func (c *Channel) cmdNew(ctx context.Context, chatID int64, userID string) {
	c.manager.Disconnect(ctx, userID)
	c.sendPlain(ctx, chatID, "Session reset. What's next?")
}

func (c *Channel) cmdStop(ctx context.Context, chatID int64, userID string) {
	if client, ok := c.manager.GetActiveClient(userID); ok && client.IsQuerying() {
		_ = c.manager.Interrupt(ctx, userID)
		c.sendPlain(ctx, chatID, "Interrupting current query...")
		return
	}
	c.sendPlain(ctx, chatID, "No active query to interrupt.")
}

func (c *Channel) cmdStatus(ctx context.Context, chatID int64, userID string) {
	state := c.stateFor(userID)
	dir, verbosity, model, _ := state.snapshot()
	sessionID := ""
	if client, ok := c.manager.GetActiveClient(userID); ok {
		sessionID = client.SessionID()
	}
	if sessionID == "" {
		sessionID = "(none)"
	}
	if model == "" {
		model = "(default)"
	}
	c.sendHTML(ctx, chatID, fmt.Sprintf(
		"<b>Workspace:</b> <code>%s</code>\n<b>Model:</b> %s\n<b>Session:</b> <code>%s</code>\n<b>Verbosity:</b> %d",
		EscapeHTML(dir), EscapeHTML(model), EscapeHTML(sessionID), int(verbosity),
	))
}

func (c *Channel) cmdModel(ctx context.Context, chatID int64) {
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Sonnet").WithCallbackData("model:sonnet"),
			tu.InlineKeyboardButton("Opus").WithCallbackData("model:opus"),
			tu.InlineKeyboardButton("Haiku").WithCallbackData("model:haiku"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Sonnet 1M").WithCallbackData("model:sonnet:1m"),
			tu.InlineKeyboardButton("Opus 1M").WithCallbackData("model:opus:1m"),
		),
	)
	params := tu.Message(tu.ID(chatID), "Select a model:")
	params.ReplyMarkup = keyboard
	_, _ = c.bot.SendMessage(ctx, params)
}

func (c *Channel) cmdVerbose(ctx context.Context, chatID int64, userID, args string) {
	state := c.stateFor(userID)
	if args == "" {
		_, v, _, _ := state.snapshot()
		c.sendHTML(ctx, chatID, fmt.Sprintf(
			"Verbosity: <b>%d</b>\n\nUsage: <code>/verbose 0|1|2</code>\n"+
				"  0 = quiet (final response only)\n"+
				"  1 = normal (tools + reasoning)\n"+
				"  2 = detailed (tools with inputs + reasoning)",
			int(v),
		))
		return
	}
	level, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || level < 0 || level > 2 {
		c.sendPlain(ctx, chatID, "Please use: /verbose 0, /verbose 1, or /verbose 2")
		return
	}
	state.setVerbosity(progress.Verbosity(level))
	c.sendPlain(ctx, chatID, fmt.Sprintf("Verbosity set to %d.", level))
}

func (c *Channel) cmdCompact(ctx context.Context, chatID int64, userID string) {
	state := c.stateFor(userID)
	dir, _, _, _ := state.snapshot()

	stop := c.startTypingHeartbeat(ctx, chatID)
	defer stop()

	newSessionID, err := c.manager.Compact(ctx, userID, dir)
	if err != nil {
		c.sendHTML(ctx, chatID, fmt.Sprintf("Couldn't compact: %s", EscapeHTML(err.Error())))
		return
	}
	c.logger.Info("telegram: session compacted", "user_id", userID, "new_session_id", newSessionID)
	c.sendPlain(ctx, chatID, "Context compacted. Session continues with summary.")
}

func (c *Channel) cmdRepo(ctx context.Context, chatID int64, userID string) {
	if len(c.approvedDirectories) == 0 {
		c.sendPlain(ctx, chatID, "No approved directories configured.")
		return
	}
	state := c.stateFor(userID)
	root := c.approvedDirectories[0]
	state.setBrowsePath(root)
	c.sendBrowser(ctx, chatID, root, root)
}

func (c *Channel) cmdSessions(ctx context.Context, chatID int64, userID string) {
	state := c.stateFor(userID)
	dir, _, _, _ := state.snapshot()

	entries, err := c.history.ReadHistory()
	if err != nil {
		c.sendHTML(ctx, chatID, fmt.Sprintf("Couldn't read session history: %s", EscapeHTML(err.Error())))
		return
	}
	filtered := historyindex.FilterByDirectory(entries, dir)

	if warning, werr := c.history.HealthWarning(); werr == nil && warning != "" {
		c.sendPlain(ctx, chatID, warning)
	}

	rows := [][]telego.InlineKeyboardButton{}
	limit := len(filtered)
	if limit > 10 {
		limit = 10
	}
	for _, e := range filtered[:limit] {
		display := e.Display
		if display == "" {
			display = e.SessionID
		}
		if len(display) > 45 {
			display = display[:45]
		}
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(display).WithCallbackData("session:"+e.SessionID),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("+ New Session").WithCallbackData("session:new"),
	))

	params := tu.Message(tu.ID(chatID), "Pick a session to resume:")
	params.ReplyMarkup = tu.InlineKeyboard(rows...)
	_, _ = c.bot.SendMessage(ctx, params)
}

func (c *Channel) cmdCommands(ctx context.Context, chatID int64, userID string) {
	current := c.loadSkills()
	if len(current) == 0 {
		c.sendHTML(ctx, chatID,
			"📝 <b>No Skills Found</b>\n\nCreate skills in:\n"+
				"  • <code>.claude/skills/&lt;name&gt;/SKILL.md</code> (project)\n"+
				"  • <code>~/.claude/skills/&lt;name&gt;/SKILL.md</code> (personal)")
		return
	}

	var rows [][]telego.InlineKeyboardButton
	var pluginRow []telego.InlineKeyboardButton
	for _, s := range current {
		btn := tu.InlineKeyboardButton(s.Name).WithCallbackData("skill:" + s.Name)
		if s.Source == skills.SourcePlugin {
			pluginRow = append(pluginRow, btn)
			if len(pluginRow) == 2 {
				rows = append(rows, pluginRow)
				pluginRow = nil
			}
			continue
		}
		rows = append(rows, tu.InlineKeyboardRow(btn))
	}
	if len(pluginRow) > 0 {
		rows = append(rows, pluginRow)
	}

	params := tu.Message(tu.ID(chatID), "Available skills:")
	params.ReplyMarkup = tu.InlineKeyboard(rows...)
	_, _ = c.bot.SendMessage(ctx, params)
}

// sendBrowser renders the /repo directory browser at browseDir.
func (c *Channel) sendBrowser(ctx context.Context, chatID int64, browseDir, workspaceRoot string) {
	header := buildBrowseHeader(browseDir, workspaceRoot)
	buttons := buildBrowserKeyboard(browseDir, workspaceRoot, len(c.approvedDirectories) > 1)

	var rows [][]telego.InlineKeyboardButton
	for _, row := range buttons {
		var tgRow []telego.InlineKeyboardButton
		for _, b := range row {
			tgRow = append(tgRow, tu.InlineKeyboardButton(b.Label).WithCallbackData(b.CallbackData))
		}
		rows = append(rows, tgRow)
	}

	params := tu.Message(tu.ID(chatID), header)
	params.ParseMode = telego.ModeHTML
	params.ReplyMarkup = tu.InlineKeyboard(rows...)
	_, _ = c.bot.SendMessage(ctx, params)
}
