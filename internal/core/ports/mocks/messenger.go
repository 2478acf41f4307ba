package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/lueurxax/question-forum/internal/core/ports"
)

// Call is a single recorded Messenger invocation.
type Call struct {
	Method string
	Topic  ports.TopicRef
	Text   string
}

// Messenger records calls in order and returns configurable failures.
type Messenger struct {
	mu sync.Mutex

	calls      []Call
	nextThread int64
	nextMsg    int64

	// FailOn maps a method name to the error it should return.
	FailOn map[string]error
}

var _ ports.Messenger = (*Messenger)(nil)

// NewMessenger creates a recording messenger.
func NewMessenger() *Messenger {
	return &Messenger{FailOn: make(map[string]error), nextThread: 100, nextMsg: 1000}
}

// Fail makes the given method return err.
func (m *Messenger) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailOn[method] = err
}

// Calls returns a copy of the recorded calls.
func (m *Messenger) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}

// Methods returns the recorded method names in order.
func (m *Messenger) Methods() []string {
	calls := m.Calls()

	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}

	return out
}

// Reset clears recorded calls.
func (m *Messenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
}

func (m *Messenger) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, c)

	if err := m.FailOn[c.Method]; err != nil {
		return fmt.Errorf("%s: %w", c.Method, err)
	}

	return nil
}

// OpenTopic implements ports.Messenger.
func (m *Messenger) OpenTopic(_ context.Context, chatID int64, title, _ string) (ports.TopicRef, error) {
	if err := m.record(Call{Method: "OpenTopic", Topic: ports.TopicRef{ChatID: chatID}, Text: title}); err != nil {
		return ports.TopicRef{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextThread++

	return ports.TopicRef{ChatID: chatID, ThreadID: m.nextThread}, nil
}

// SendMessage implements ports.Messenger.
func (m *Messenger) SendMessage(_ context.Context, topic ports.TopicRef, msg ports.OutgoingMessage) (int64, error) {
	if err := m.record(Call{Method: "SendMessage", Topic: topic, Text: msg.Text}); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextMsg++

	return m.nextMsg, nil
}

// CloseTopic implements ports.Messenger.
func (m *Messenger) CloseTopic(_ context.Context, topic ports.TopicRef) error {
	return m.record(Call{Method: "CloseTopic", Topic: topic})
}

// ReopenTopic implements ports.Messenger.
func (m *Messenger) ReopenTopic(_ context.Context, topic ports.TopicRef) error {
	return m.record(Call{Method: "ReopenTopic", Topic: topic})
}

// EditMessageText implements ports.Messenger.
func (m *Messenger) EditMessageText(_ context.Context, chatID, _ int64, text string) error {
	return m.record(Call{Method: "EditMessageText", Topic: ports.TopicRef{ChatID: chatID}, Text: text})
}

// EditMessageButtons implements ports.Messenger.
func (m *Messenger) EditMessageButtons(_ context.Context, chatID, _ int64, _ [][]ports.Button) error {
	return m.record(Call{Method: "EditMessageButtons", Topic: ports.TopicRef{ChatID: chatID}})
}
