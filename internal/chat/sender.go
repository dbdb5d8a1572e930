package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/antoniostano/innervoice/internal/reliability"
)

// MaxMessageLength is the platform's hard message size limit.
const MaxMessageLength = 4096

const sendAttempts = 3

// SafeSender wraps a Messenger with bounded retries, a per-operation
// timeout and length-bounded chunked delivery.
type SafeSender struct {
	messenger Messenger
	timeout   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	onError   func(op string)
}

func NewSafeSender(m Messenger, timeout time.Duration) *SafeSender {
	if timeout <= 0 {
		timeout = 200 * time.Second
	}
	return &SafeSender{
		messenger: m,
		timeout:   timeout,
		sleep:     reliability.SleepContext,
	}
}

// SetSleep replaces the backoff sleep; tests inject a no-op.
func (s *SafeSender) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	s.sleep = sleep
}

// SetErrorHook installs a callback invoked once per failed operation,
// used to feed delivery-error metrics.
func (s *SafeSender) SetErrorHook(hook func(op string)) {
	s.onError = hook
}

// Send delivers one message, retrying transient failures. Returns the
// platform message ID, or 0 when every attempt failed (the caller treats
// that as "no progress message to edit", never as a job failure).
func (s *SafeSender) Send(ctx context.Context, ownerID int64, text string, opts SendOptions) int64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	for attempt := 0; attempt < sendAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		id, err := s.messenger.SendText(opCtx, ownerID, text, opts)
		cancel()
		if err == nil {
			return id
		}
		log.Printf("send message failed (attempt %d/%d): %v", attempt+1, sendAttempts, err)
		if attempt < sendAttempts-1 {
			if err := s.sleep(ctx, reliability.ExponentialBackoff(attempt, time.Second, 8*time.Second)); err != nil {
				break
			}
		}
	}
	s.reportError("send")
	return 0
}

// Edit updates a previously sent message. Best effort: failures are
// logged only.
func (s *SafeSender) Edit(ctx context.Context, ownerID, messageID int64, text string, opts SendOptions) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.messenger.EditText(opCtx, ownerID, messageID, text, opts); err != nil {
		log.Printf("edit message %d failed: %v", messageID, err)
		s.reportError("edit")
	}
}

// AnswerCallback acknowledges an inline-button press.
func (s *SafeSender) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.messenger.AnswerCallback(opCtx, callbackID, text, showAlert); err != nil {
		log.Printf("answer callback failed: %v", err)
		s.reportError("answer_callback")
	}
}

// partLabelHeadroom reserves room in each chunk for the "Part i/n"
// prefix added to multi-chunk sends.
const partLabelHeadroom = 32

// SendChunks splits text into platform-sized messages and sends them in
// order. Copyable chunks are wrapped in <pre> so tap-to-copy works; the
// escaped length is what counts against the limit. Multi-chunk sends
// label each message with its position.
func (s *SafeSender) SendChunks(ctx context.Context, ownerID int64, text string, copyable bool) bool {
	budget := MaxMessageLength - partLabelHeadroom
	var chunks []string
	if copyable {
		chunks = chunkThenEscape(text, budget-len("<pre></pre>"))
	} else {
		chunks = SplitChunks(text, budget)
	}
	if len(chunks) == 0 {
		return false
	}
	for i, chunk := range chunks {
		label := ""
		if len(chunks) > 1 {
			label = fmt.Sprintf("📄 %d/%d\n", i+1, len(chunks))
		}
		if copyable {
			s.Send(ctx, ownerID, label+"<pre>"+chunk+"</pre>", SendOptions{ParseMode: "HTML"})
		} else {
			s.Send(ctx, ownerID, label+chunk, SendOptions{})
		}
		// Pace consecutive parts to stay under platform rate limits.
		_ = s.sleep(ctx, 200*time.Millisecond)
	}
	return true
}

func (s *SafeSender) reportError(op string) {
	if s.onError != nil {
		s.onError(op)
	}
}

// SplitChunks splits text into pieces of at most maxLength, breaking at
// newlines when possible.
func SplitChunks(text string, maxLength int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= maxLength {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	current := ""
	for _, line := range strings.Split(text, "\n") {
		withNewline := line + "\n"
		if len(current)+len(withNewline) <= maxLength {
			current += withNewline
			continue
		}
		if current != "" {
			chunks = append(chunks, strings.TrimRight(current, "\n "))
		}
		if len(line) <= maxLength {
			current = withNewline
			continue
		}
		// Single line longer than the limit: split by character.
		current = ""
		for start := 0; start < len(line); {
			end := start + maxLength
			if end > len(line) {
				end = len(line)
			}
			chunks = append(chunks, line[start:end])
			start = end
		}
	}
	if current != "" {
		chunks = append(chunks, strings.TrimRight(current, "\n "))
	}
	return chunks
}

// EscapeHTML escapes text so <pre> content is safe.
func EscapeHTML(text string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(text)
}

// chunkThenEscape splits text into chunks that after HTML escaping fit
// maxEscaped each; it never splits inside an entity because escaping
// happens after splitting.
func chunkThenEscape(text string, maxEscaped int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	rawMax := maxEscaped - 100
	if rawMax < 1 {
		rawMax = 1
	}
	var out []string
	for _, raw := range SplitChunks(text, rawMax) {
		escaped := EscapeHTML(raw)
		if len(escaped) <= maxEscaped {
			out = append(out, escaped)
			continue
		}
		// Escaping grew the chunk past the limit. The widest escape is
		// five characters, so fifth-sized raw chunks always fit.
		for _, small := range SplitChunks(raw, maxEscaped/5) {
			out = append(out, EscapeHTML(small))
		}
	}
	return out
}
