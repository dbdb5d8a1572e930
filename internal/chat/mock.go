package chat

import (
	"context"
	"sync"
)

// RecordedMessage captures one outbound operation for assertions.
type RecordedMessage struct {
	Op        string
	OwnerID   int64
	MessageID int64
	Text      string
	Opts      SendOptions
}

// RecorderMessenger is an in-memory Messenger used by tests.
type RecorderMessenger struct {
	mu       sync.Mutex
	nextID   int64
	Messages []RecordedMessage
	SendErr  error
	EditErr  error
}

func NewRecorderMessenger() *RecorderMessenger {
	return &RecorderMessenger{}
}

func (m *RecorderMessenger) SendText(_ context.Context, ownerID int64, text string, opts SendOptions) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return 0, m.SendErr
	}
	m.nextID++
	m.Messages = append(m.Messages, RecordedMessage{
		Op:        "send",
		OwnerID:   ownerID,
		MessageID: m.nextID,
		Text:      text,
		Opts:      opts,
	})
	return m.nextID, nil
}

func (m *RecorderMessenger) EditText(_ context.Context, ownerID, messageID int64, text string, opts SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		return m.EditErr
	}
	m.Messages = append(m.Messages, RecordedMessage{
		Op:        "edit",
		OwnerID:   ownerID,
		MessageID: messageID,
		Text:      text,
		Opts:      opts,
	})
	return nil
}

func (m *RecorderMessenger) AnswerCallback(_ context.Context, callbackID, text string, showAlert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, RecordedMessage{
		Op:   "answer_callback",
		Text: callbackID + ":" + text,
	})
	_ = showAlert
	return nil
}

// Sent returns a snapshot of recorded operations.
func (m *RecorderMessenger) Sent() []RecordedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedMessage, len(m.Messages))
	copy(out, m.Messages)
	return out
}

// ByOp filters recorded operations by type.
func (m *RecorderMessenger) ByOp(op string) []RecordedMessage {
	var out []RecordedMessage
	for _, msg := range m.Sent() {
		if msg.Op == op {
			out = append(out, msg)
		}
	}
	return out
}
