package ports

import "context"

// TopicRef identifies a forum thread.
type TopicRef struct {
	ChatID   int64
	ThreadID int64
}

// OutgoingMessage is a message sent into a forum thread.
type OutgoingMessage struct {
	Text      string
	ParseMode string
	Buttons   [][]Button
}

// Button is an inline URL or callback button.
type Button struct {
	Text         string
	URL          string
	CallbackData string
}

// Messenger is the outbound messaging transport.
type Messenger interface {
	OpenTopic(ctx context.Context, chatID int64, title, icon string) (TopicRef, error)
	SendMessage(ctx context.Context, topic TopicRef, msg OutgoingMessage) (int64, error)
	CloseTopic(ctx context.Context, topic TopicRef) error
	ReopenTopic(ctx context.Context, topic TopicRef) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	EditMessageButtons(ctx context.Context, chatID, messageID int64, buttons [][]Button) error
}

// Embedder turns text into a fixed-dimension vector. It returns
// coreerrors.ErrUnavailable when no provider is configured or all providers failed.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Summarizer derives short titles and answer summaries. Implementations fall back
// to deterministic text heuristics and never fail.
type Summarizer interface {
	Title(ctx context.Context, body string) string
	Summary(ctx context.Context, answer string) string
}
