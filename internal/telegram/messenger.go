package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/question-forum/internal/core/ports"
	"github.com/lueurxax/question-forum/internal/platform/textutil"
)

const (
	topicNameMaxRunes = 128

	paramChatID    = "chat_id"
	paramThreadID  = "message_thread_id"
	paramMessageID = "message_id"
)

// Messenger implements ports.Messenger over Bot API forum topics.
type Messenger struct {
	*caller
	textLimit int
}

var _ ports.Messenger = (*Messenger)(nil)

// NewMessenger wraps api. Outgoing text longer than textLimit UTF-16 units is cut.
func NewMessenger(api *tgbotapi.BotAPI, rps float64, textLimit int, logger *zerolog.Logger) *Messenger {
	return &Messenger{caller: newCaller(api, rps, logger), textLimit: textLimit}
}

type forumTopic struct {
	MessageThreadID int64 `json:"message_thread_id"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

func keyboard(buttons [][]ports.Button) inlineKeyboard {
	kb := inlineKeyboard{InlineKeyboard: make([][]inlineButton, 0, len(buttons))}

	for _, row := range buttons {
		out := make([]inlineButton, 0, len(row))
		for _, b := range row {
			out = append(out, inlineButton(b))
		}

		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}

	return kb
}

func topicParams(topic ports.TopicRef) tgbotapi.Params {
	params := tgbotapi.Params{}
	params.AddNonZero64(paramChatID, topic.ChatID)
	params.AddNonZero64(paramThreadID, topic.ThreadID)

	return params
}

// OpenTopic creates a forum topic. icon is a custom emoji id and may be empty.
func (m *Messenger) OpenTopic(ctx context.Context, chatID int64, title, icon string) (ports.TopicRef, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64(paramChatID, chatID)
	params["name"] = textutil.Truncate(title, topicNameMaxRunes)
	params.AddNonEmpty("icon_custom_emoji_id", icon)

	raw, err := m.call(ctx, "createForumTopic", params)
	if err != nil {
		return ports.TopicRef{}, err
	}

	var topic forumTopic
	if err := json.Unmarshal(raw, &topic); err != nil {
		return ports.TopicRef{}, fmt.Errorf("decode forum topic: %w", err)
	}

	return ports.TopicRef{ChatID: chatID, ThreadID: topic.MessageThreadID}, nil
}

// SendMessage posts into a topic, or the general chat when ThreadID is zero.
func (m *Messenger) SendMessage(ctx context.Context, topic ports.TopicRef, msg ports.OutgoingMessage) (int64, error) {
	params := topicParams(topic)
	params["text"] = textutil.TruncateUTF16(msg.Text, m.textLimit)
	params.AddNonEmpty("parse_mode", msg.ParseMode)

	if len(msg.Buttons) > 0 {
		if err := params.AddInterface("reply_markup", keyboard(msg.Buttons)); err != nil {
			return 0, fmt.Errorf("encode keyboard: %w", err)
		}
	}

	raw, err := m.call(ctx, "sendMessage", params)
	if err != nil {
		return 0, err
	}

	var sent sentMessage
	if err := json.Unmarshal(raw, &sent); err != nil {
		return 0, fmt.Errorf("decode sent message: %w", err)
	}

	return sent.MessageID, nil
}

func (m *Messenger) CloseTopic(ctx context.Context, topic ports.TopicRef) error {
	_, err := m.call(ctx, "closeForumTopic", topicParams(topic))

	return err
}

func (m *Messenger) ReopenTopic(ctx context.Context, topic ports.TopicRef) error {
	_, err := m.call(ctx, "reopenForumTopic", topicParams(topic))

	return err
}

func (m *Messenger) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	params := tgbotapi.Params{}
	params.AddNonZero64(paramChatID, chatID)
	params[paramMessageID] = strconv.FormatInt(messageID, 10)
	params["text"] = textutil.TruncateUTF16(text, m.textLimit)

	_, err := m.call(ctx, "editMessageText", params)

	return err
}

// EditMessageButtons replaces the inline keyboard; nil buttons clear it.
func (m *Messenger) EditMessageButtons(ctx context.Context, chatID, messageID int64, buttons [][]ports.Button) error {
	params := tgbotapi.Params{}
	params.AddNonZero64(paramChatID, chatID)
	params[paramMessageID] = strconv.FormatInt(messageID, 10)

	if err := params.AddInterface("reply_markup", keyboard(buttons)); err != nil {
		return fmt.Errorf("encode keyboard: %w", err)
	}

	_, err := m.call(ctx, "editMessageReplyMarkup", params)

	return err
}
