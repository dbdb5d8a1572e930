package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RelayMessenger forwards outbound operations to a chat relay bridge over
// HTTP. The bridge owns the platform credentials and the real client;
// this daemon only speaks the neutral operation contract.
type RelayMessenger struct {
	url    string
	client *http.Client
}

func NewRelayMessenger(url string, timeout time.Duration) *RelayMessenger {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RelayMessenger{
		url: strings.TrimRight(strings.TrimSpace(url), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type relaySendRequest struct {
	OwnerID              int64           `json:"owner_id"`
	Text                 string          `json:"text"`
	ParseMode            string          `json:"parse_mode,omitempty"`
	ReplyToMessageID     int64           `json:"reply_to_message_id,omitempty"`
	Keyboard             *InlineKeyboard `json:"keyboard,omitempty"`
	BusinessConnectionID string          `json:"business_connection_id,omitempty"`
}

type relayEditRequest struct {
	relaySendRequest
	MessageID int64 `json:"message_id"`
}

type relayCallbackRequest struct {
	CallbackID string `json:"callback_id"`
	Text       string `json:"text,omitempty"`
	ShowAlert  bool   `json:"show_alert,omitempty"`
}

func (m *RelayMessenger) SendText(ctx context.Context, ownerID int64, text string, opts SendOptions) (int64, error) {
	req := relaySendRequest{
		OwnerID:              ownerID,
		Text:                 text,
		ParseMode:            opts.ParseMode,
		ReplyToMessageID:     opts.ReplyToMessageID,
		Keyboard:             opts.Keyboard,
		BusinessConnectionID: opts.BusinessConnectionID,
	}
	var resp struct {
		MessageID int64 `json:"message_id"`
	}
	if err := m.post(ctx, "/send", req, &resp); err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

func (m *RelayMessenger) EditText(ctx context.Context, ownerID, messageID int64, text string, opts SendOptions) error {
	req := relayEditRequest{
		relaySendRequest: relaySendRequest{
			OwnerID:              ownerID,
			Text:                 text,
			ParseMode:            opts.ParseMode,
			Keyboard:             opts.Keyboard,
			BusinessConnectionID: opts.BusinessConnectionID,
		},
		MessageID: messageID,
	}
	return m.post(ctx, "/edit", req, nil)
}

func (m *RelayMessenger) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	return m.post(ctx, "/answer_callback", relayCallbackRequest{
		CallbackID: callbackID,
		Text:       text,
		ShowAlert:  showAlert,
	}, nil)
}

func (m *RelayMessenger) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("relay http status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
