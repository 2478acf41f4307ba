package domain

import "time"

// Inbound discussion events, parsed from the messaging transport at the ingestion boundary.

// NewMessageEvent is a message posted into a forum thread.
type NewMessageEvent struct {
	ChatID           int64
	MessageID        int64
	ThreadID         int64
	SenderID         int64
	SenderName       string
	SenderIsBot      bool
	Text             string
	ReplyToMessageID int64
	Date             time.Time
}

// EditedMessageEvent carries the latest text of a message.
type EditedMessageEvent struct {
	ChatID      int64
	MessageID   int64
	ThreadID    int64
	SenderID    int64
	SenderIsBot bool
	Text        string
	EditDate    time.Time
}

// ReactionDeltaEvent reports one user's reactions before and after a change.
type ReactionDeltaEvent struct {
	ChatID    int64
	MessageID int64
	OldCount  int
	NewCount  int
}

// Delta is the signed change in reactions.
func (e ReactionDeltaEvent) Delta() int {
	return e.NewCount - e.OldCount
}

// ReactionTotalEvent reports the absolute reaction total of a message.
type ReactionTotalEvent struct {
	ChatID    int64
	MessageID int64
	Total     int
}
