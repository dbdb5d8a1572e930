package chat

import "context"

// Button is one inline control shown under a message.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboard is a grid of inline controls.
type InlineKeyboard struct {
	Rows [][]Button `json:"rows"`
}

// SendOptions carry the optional knobs of an outbound operation.
type SendOptions struct {
	ParseMode            string
	ReplyToMessageID     int64
	Keyboard             *InlineKeyboard
	BusinessConnectionID string
}

// Messenger is the outbound boundary to the chat platform. All operations
// are fallible I/O; failures are logged and retried by SafeSender, never
// propagated as job failures by themselves.
type Messenger interface {
	SendText(ctx context.Context, ownerID int64, text string, opts SendOptions) (int64, error)
	EditText(ctx context.Context, ownerID int64, messageID int64, text string, opts SendOptions) error
	AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error
}

// VoiceEvent is the inbound voice-message event from the chat collaborator.
type VoiceEvent struct {
	OwnerID              int64
	MessageID            string
	Audio                []byte
	BusinessConnectionID string
}

// CommandEvent is an inbound slash command.
type CommandEvent struct {
	OwnerID int64
	Command string
}

// CallbackEvent is an inbound inline-button press.
type CallbackEvent struct {
	OwnerID    int64
	CallbackID string
	MessageID  int64
	Data       string
}
