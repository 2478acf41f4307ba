package telegram

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/lueurxax/question-forum/internal/core/domain"
)

// Update kinds requested from getUpdates.
var allowedUpdates = []string{"message", "edited_message", "message_reaction", "message_reaction_count"}

type rawUpdate struct {
	UpdateID             int               `json:"update_id"`
	Message              *rawMessage       `json:"message"`
	EditedMessage        *rawMessage       `json:"edited_message"`
	MessageReaction      *rawReaction      `json:"message_reaction"`
	MessageReactionCount *rawReactionCount `json:"message_reaction_count"`
}

type rawUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type rawChat struct {
	ID int64 `json:"id"`
}

type rawMessage struct {
	MessageID       int64       `json:"message_id"`
	MessageThreadID int64       `json:"message_thread_id"`
	IsTopicMessage  bool        `json:"is_topic_message"`
	From            *rawUser    `json:"from"`
	Chat            rawChat     `json:"chat"`
	Date            int64       `json:"date"`
	EditDate        int64       `json:"edit_date"`
	Text            string      `json:"text"`
	Caption         string      `json:"caption"`
	ReplyToMessage  *rawMessage `json:"reply_to_message"`
}

type rawReaction struct {
	Chat        rawChat           `json:"chat"`
	MessageID   int64             `json:"message_id"`
	OldReaction []json.RawMessage `json:"old_reaction"`
	NewReaction []json.RawMessage `json:"new_reaction"`
}

type rawReactionCount struct {
	Chat      rawChat `json:"chat"`
	MessageID int64   `json:"message_id"`
	Reactions []struct {
		TotalCount int `json:"total_count"`
	} `json:"reactions"`
}

func (u *rawUser) displayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}

	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (m *rawMessage) body() string {
	if m.Text != "" {
		return m.Text
	}

	return m.Caption
}

// threadID is zero for messages outside forum topics.
func (m *rawMessage) threadID() int64 {
	if !m.IsTopicMessage {
		return 0
	}

	return m.MessageThreadID
}

// replyTo ignores the implicit reply to the topic's root message.
func (m *rawMessage) replyTo() int64 {
	if m.ReplyToMessage == nil || m.ReplyToMessage.MessageID == m.MessageThreadID {
		return 0
	}

	return m.ReplyToMessage.MessageID
}

func toNewMessage(m *rawMessage) domain.NewMessageEvent {
	ev := domain.NewMessageEvent{
		ChatID:           m.Chat.ID,
		MessageID:        m.MessageID,
		ThreadID:         m.threadID(),
		Text:             m.body(),
		ReplyToMessageID: m.replyTo(),
		Date:             time.Unix(m.Date, 0).UTC(),
	}

	if m.From != nil {
		ev.SenderID = m.From.ID
		ev.SenderName = m.From.displayName()
		ev.SenderIsBot = m.From.IsBot
	}

	return ev
}

func toEditedMessage(m *rawMessage) domain.EditedMessageEvent {
	edited := m.EditDate
	if edited == 0 {
		edited = m.Date
	}

	ev := domain.EditedMessageEvent{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		ThreadID:  m.threadID(),
		Text:      m.body(),
		EditDate:  time.Unix(edited, 0).UTC(),
	}

	if m.From != nil {
		ev.SenderID = m.From.ID
		ev.SenderIsBot = m.From.IsBot
	}

	return ev
}

func toReactionDelta(r *rawReaction) domain.ReactionDeltaEvent {
	return domain.ReactionDeltaEvent{
		ChatID:    r.Chat.ID,
		MessageID: r.MessageID,
		OldCount:  len(r.OldReaction),
		NewCount:  len(r.NewReaction),
	}
}

func toReactionTotal(r *rawReactionCount) domain.ReactionTotalEvent {
	total := 0
	for _, rc := range r.Reactions {
		total += rc.TotalCount
	}

	return domain.ReactionTotalEvent{ChatID: r.Chat.ID, MessageID: r.MessageID, Total: total}
}
