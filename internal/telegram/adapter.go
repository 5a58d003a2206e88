package telegram

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/clawbridge/internal/progress"
)

// botMessage adapts one sent Telegram message to progress.Message, letting
// the Progress Manager edit it without knowing telego exists.
type botMessage struct {
	bot       *telego.Bot
	chatID    int64
	messageID int
}

func (m *botMessage) EditText(ctx context.Context, text string) error {
	params := tu.EditMessageText(tu.ID(m.chatID), m.messageID, text)
	params.ParseMode = telego.ModeHTML
	_, err := m.bot.EditMessageText(ctx, params)
	return err
}

// botChat adapts one Telegram chat to progress.Chat, used when the
// Progress Manager needs to roll over to a fresh message.
type botChat struct {
	bot    *telego.Bot
	chatID int64
}

func (c *botChat) SendMessage(ctx context.Context, text string) (progress.Message, error) {
	params := tu.Message(tu.ID(c.chatID), text)
	params.ParseMode = telego.ModeHTML
	msg, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return nil, err
	}
	return &botMessage{bot: c.bot, chatID: c.chatID, messageID: msg.MessageID}, nil
}
