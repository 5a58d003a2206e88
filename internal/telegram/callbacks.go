package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/clawbridge/internal/attachments"
	"github.com/nextlevelbuilder/clawbridge/internal/skills"
)

var modelLabels = map[string]string{"sonnet": "Sonnet", "opus": "Opus", "haiku": "Haiku"}

// handleCallbackQuery dispatches one inline-keyboard tap. Prefixes mirror
// orchestrator.py:_agentic_callback: "model:", "session:", "skill:", and
// the repo browser's "cd:"/"nav:"/"sel:" triggers (spec.md §6).
func (c *Channel) handleCallbackQuery(ctx context.Context, q *telego.CallbackQuery) {
	_ = c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: q.ID})

	if q.From == nil || q.Message == nil {
		return
	}
	userID := userIDString(q.From.ID)
	if !c.IsAllowed(userID) {
		return
	}
	chatID := q.Message.GetChat().ID
	messageID := q.Message.GetMessageID()

	prefix, value, ok := strings.Cut(q.Data, ":")
	if !ok {
		return
	}

	switch prefix {
	case "model":
		c.handleModelCallback(ctx, chatID, messageID, userID, value)
	case "session":
		c.handleSessionCallback(ctx, chatID, userID, value)
	case "skill":
		c.handleSkillCallback(ctx, chatID, userID, value)
	case "nav":
		c.handleNavCallback(ctx, chatID, messageID, userID, value)
	case "sel":
		c.handleSelCallback(ctx, chatID, messageID, userID, value)
	}
}

func (c *Channel) handleModelCallback(ctx context.Context, chatID int64, messageID int, userID, value string) {
	parts := strings.SplitN(value, ":", 2)
	model := parts[0]
	is1M := len(parts) > 1 && parts[1] == "1m"

	var betas []string
	if is1M {
		betas = []string{"context-1m-2025-08-07"}
	}

	label := modelLabels[model]
	if label == "" {
		label = model
	}
	if is1M {
		label += " 1M"
	}

	c.stateFor(userID).setModel(model, betas)
	if _, ok := c.manager.GetActiveClient(userID); ok {
		_ = c.manager.SetModel(ctx, userID, model, betas)
	}

	c.editText(ctx, chatID, messageID, fmt.Sprintf("Model set to: %s", EscapeHTML(label)))
}

func (c *Channel) handleSessionCallback(ctx context.Context, chatID int64, userID, value string) {
	state := c.stateFor(userID)
	dir, _, _, _ := state.snapshot()

	if value == "new" {
		c.sendPlain(ctx, chatID, "Starting a new session...")
		c.runQuery(ctx, chatID, userID, attachments.Query{Text: "/start"}, true)
		return
	}

	c.sendPlain(ctx, chatID, "Resuming session...")
	c.runQuerySession(ctx, chatID, userID, dir, value)
}

// runQuerySession reconnects to an explicit sessionID before handing
// control back to the normal query path with a no-op prompt, matching
// /sessions' "pick one to resume" UX (scenario B): the resumed session is
// ready for the user's next message, no query is issued yet.
func (c *Channel) runQuerySession(ctx context.Context, chatID int64, userID, directory, sessionID string) {
	if _, err := c.manager.SwitchSession(ctx, userID, directory, sessionID); err != nil {
		c.sendHTML(ctx, chatID, fmt.Sprintf("Couldn't resume session: %s", EscapeHTML(err.Error())))
		return
	}
	c.sendPlain(ctx, chatID, "Session resumed. What's next?")
}

func (c *Channel) handleSkillCallback(ctx context.Context, chatID int64, userID, skillName string) {
	current := c.loadSkills()
	var found *skills.Metadata
	for i := range current {
		if current[i].Name == skillName {
			found = &current[i]
			break
		}
	}
	if found == nil {
		c.sendHTML(ctx, chatID, fmt.Sprintf("❌ Skill not found: <code>%s</code>", EscapeHTML(skillName)))
		return
	}

	body, err := skills.LoadBody(*found)
	if err != nil {
		c.sendHTML(ctx, chatID, fmt.Sprintf("❌ Failed to load skill: <code>%s</code>", EscapeHTML(skillName)))
		return
	}

	sessionID := ""
	if client, ok := c.manager.GetActiveClient(userID); ok {
		sessionID = client.SessionID()
	}
	prompt := skills.ResolvePrompt(body, "", sessionID)

	c.sendHTML(ctx, chatID, fmt.Sprintf("⚙️ Running skill: <b>%s</b>...", EscapeHTML(skillName)))
	c.runQuery(ctx, chatID, userID, attachments.Query{Text: prompt}, false)
}

func (c *Channel) handleNavCallback(ctx context.Context, chatID int64, messageID int, userID, target string) {
	state := c.stateFor(userID)
	current := state.getBrowsePath()
	if current == "" && len(c.approvedDirectories) > 0 {
		current = c.approvedDirectories[0]
	}

	var next string
	if target == ".." {
		next = parentWithinRoots(current, c.approvedDirectories)
	} else {
		resolved, ok := resolveBrowsePath(target, c.approvedDirectories)
		if !ok {
			c.editText(ctx, chatID, messageID, "That directory is no longer available.")
			return
		}
		next = resolved
	}

	state.setBrowsePath(next)
	root := workspaceRootFor(next, c.approvedDirectories)
	c.editBrowser(ctx, chatID, messageID, next, root)
}

func (c *Channel) handleSelCallback(ctx context.Context, chatID int64, messageID int, userID, target string) {
	state := c.stateFor(userID)
	current := state.getBrowsePath()
	if current == "" && len(c.approvedDirectories) > 0 {
		current = c.approvedDirectories[0]
	}

	selected := current
	if target != "." {
		resolved, ok := resolveBrowsePath(target, c.approvedDirectories)
		if !ok {
			c.editText(ctx, chatID, messageID, "That directory is no longer available.")
			return
		}
		selected = resolved
	}

	state.setDirectory(selected)
	state.setBrowsePath("")
	c.editText(ctx, chatID, messageID, fmt.Sprintf("Workspace set to <code>%s/</code>", EscapeHTML(selected)))
}

// parentWithinRoots returns dir's parent, unless dir already is (or would
// step above) one of roots, in which case dir is returned unchanged —
// ".." at a workspace root is a no-op, not an escape.
func parentWithinRoots(dir string, roots []string) string {
	for _, root := range roots {
		if dir == root {
			return dir
		}
	}
	parent := parentPath(dir)
	for _, root := range roots {
		if parent == root || strings.HasPrefix(parent, root+"/") {
			return parent
		}
	}
	return dir
}

func workspaceRootFor(dir string, roots []string) string {
	for _, root := range roots {
		if dir == root || strings.HasPrefix(dir, root+"/") {
			return root
		}
	}
	if len(roots) > 0 {
		return roots[0]
	}
	return dir
}

func parentPath(dir string) string {
	idx := strings.LastIndex(strings.TrimSuffix(dir, "/"), "/")
	if idx <= 0 {
		return "/"
	}
	return dir[:idx]
}

func (c *Channel) editText(ctx context.Context, chatID int64, messageID int, html string) {
	if err := (&botMessage{bot: c.bot, chatID: chatID, messageID: messageID}).EditText(ctx, html); err != nil {
		c.logger.Warn("telegram: edit failed", "error", err)
	}
}

func (c *Channel) editBrowser(ctx context.Context, chatID int64, messageID int, browseDir, workspaceRoot string) {
	header := buildBrowseHeader(browseDir, workspaceRoot)
	buttons := buildBrowserKeyboard(browseDir, workspaceRoot, len(c.approvedDirectories) > 1)

	var rows [][]telego.InlineKeyboardButton
	for _, row := range buttons {
		var tgRow []telego.InlineKeyboardButton
		for _, b := range row {
			tgRow = append(tgRow, telego.InlineKeyboardButton{Text: b.Label, CallbackData: b.CallbackData})
		}
		rows = append(rows, tgRow)
	}

	params := &telego.EditMessageTextParams{
		ChatID:      telego.ChatID{ID: chatID},
		MessageID:   messageID,
		Text:        header,
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: &telego.InlineKeyboardMarkup{InlineKeyboard: rows},
	}
	if _, err := c.bot.EditMessageText(ctx, params); err != nil {
		c.logger.Warn("telegram: edit browser failed", "error", err)
	}
}
