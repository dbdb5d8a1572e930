package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/antoniostano/innervoice/internal/chat"
	"github.com/antoniostano/innervoice/internal/i18n"
	"github.com/antoniostano/innervoice/internal/observability"
	"github.com/antoniostano/innervoice/internal/pipeline"
	"github.com/antoniostano/innervoice/internal/prefs"
	"github.com/antoniostano/innervoice/internal/queue"
)

// Gateway turns inbound chat events into queue submissions and
// preference changes. It never blocks on job processing; the worker
// drains the queue independently.
type Gateway struct {
	audioDir string
	queue    *queue.Queue
	guard    *queue.DuplicateGuard
	pending  *queue.PendingRetryStore
	prefs    prefs.Store
	sender   *chat.SafeSender
	bus      *pipeline.EventBus
	metrics  *observability.Metrics
}

type GatewayDeps struct {
	AudioDir string
	Queue    *queue.Queue
	Guard    *queue.DuplicateGuard
	Pending  *queue.PendingRetryStore
	Prefs    prefs.Store
	Sender   *chat.SafeSender
	Bus      *pipeline.EventBus
	Metrics  *observability.Metrics
}

func NewGateway(d GatewayDeps) *Gateway {
	return &Gateway{
		audioDir: d.AudioDir,
		queue:    d.Queue,
		guard:    d.Guard,
		pending:  d.Pending,
		prefs:    d.Prefs,
		sender:   d.Sender,
		bus:      d.Bus,
		metrics:  d.Metrics,
	}
}

// HandleVoice admits one voice message: duplicate check, persist the
// audio, enqueue. It reports the job ID and whether the job was
// queued; a recent duplicate is skipped without error.
func (g *Gateway) HandleVoice(ctx context.Context, ev chat.VoiceEvent) (string, bool, error) {
	p := g.prefsFor(ctx, ev.OwnerID)

	jobID := strings.TrimSpace(ev.MessageID)
	if jobID == "" {
		jobID = uuid.NewString()
	}

	if g.guard.IsDuplicate(ev.OwnerID, jobID) {
		g.sender.Send(ctx, ev.OwnerID, i18n.T(p.UILanguage, "duplicate_skipped"), chat.SendOptions{ParseMode: "HTML"})
		return jobID, false, nil
	}

	if err := os.MkdirAll(g.audioDir, 0o755); err != nil {
		return jobID, false, fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(g.audioDir, sanitizeJobID(jobID)+".ogg")
	if err := os.WriteFile(path, ev.Audio, 0o644); err != nil {
		return jobID, false, fmt.Errorf("persist audio: %w", err)
	}

	g.submit(queue.Job{
		OwnerID:         ev.OwnerID,
		JobID:           jobID,
		SourcePath:      path,
		BusinessContext: ev.BusinessConnectionID,
	})
	return jobID, true, nil
}

func (g *Gateway) submit(job queue.Job) {
	g.queue.Submit(job)
	if g.metrics != nil {
		g.metrics.QueueDepth.Set(float64(g.queue.Depth()))
	}
	if g.bus != nil {
		g.bus.Publish(pipeline.Event{
			JobID:   job.JobID,
			OwnerID: job.OwnerID,
			Type:    pipeline.EventTypeQueued,
		})
	}
}

// HandleCommand answers the slash commands.
func (g *Gateway) HandleCommand(ctx context.Context, ev chat.CommandEvent) {
	p := g.prefsFor(ctx, ev.OwnerID)
	opts := chat.SendOptions{ParseMode: "HTML"}

	switch strings.TrimPrefix(strings.TrimSpace(ev.Command), "/") {
	case "start":
		g.sender.Send(ctx, ev.OwnerID, welcomeText(p.UILanguage), opts)
	case "help":
		g.sender.Send(ctx, ev.OwnerID, helpText(p.UILanguage), opts)
	case "about":
		g.sender.Send(ctx, ev.OwnerID, aboutText(p.UILanguage), opts)
	case "settings":
		opts.Keyboard = settingsKeyboard(p)
		g.sender.Send(ctx, ev.OwnerID, settingsText(p), opts)
	case "lang":
		opts.Keyboard = languageKeyboard()
		g.sender.Send(ctx, ev.OwnerID, langPromptText(p), opts)
	case "mode":
		opts.Keyboard = modeKeyboard()
		g.sender.Send(ctx, ev.OwnerID, modePromptText(p), opts)
	default:
		g.sender.Send(ctx, ev.OwnerID, helpText(p.UILanguage), opts)
	}
}

// HandleCallback resolves inline-button presses.
func (g *Gateway) HandleCallback(ctx context.Context, ev chat.CallbackEvent) {
	p := g.prefsFor(ctx, ev.OwnerID)
	ui := p.UILanguage
	opts := chat.SendOptions{ParseMode: "HTML"}

	data := ev.Data
	switch {
	case strings.HasPrefix(data, "retry_"):
		g.handleRetry(ctx, ev, ui, opts)

	case strings.HasPrefix(data, "ui_lang_"):
		code := strings.TrimPrefix(data, "ui_lang_")
		if code == "es" || code == "en" {
			p.UILanguage = code
			g.putPrefs(ctx, ev.OwnerID, p)
		}
		msg := "✅ Idioma configurado a Español!"
		if code == "en" {
			msg = "✅ Language set to English!"
		}
		g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, msg, opts)
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)

	case data == "change_ui_lang":
		opts.Keyboard = uiLanguageKeyboard()
		g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, i18n.T(ui, "change_ui_lang"), opts)
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)

	case strings.HasPrefix(data, "lang_"):
		code := strings.TrimPrefix(data, "lang_")
		if info, ok := supportedLanguages[code]; ok {
			p.Language = code
			g.putPrefs(ctx, ev.OwnerID, p)
			g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, fmt.Sprintf("✅ %s %s\n🎙️", info.Flag, info.Name), opts)
		}
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)

	case strings.HasPrefix(data, "mode_"):
		mode := prefs.Mode(strings.TrimPrefix(data, "mode_"))
		if info, ok := processingModes[mode]; ok {
			p.Mode = mode
			g.putPrefs(ctx, ev.OwnerID, p)
			g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, fmt.Sprintf("✅ %s %s\n🎙️", info.Icon, info.Name), opts)
		}
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)

	case data == "change_lang":
		opts.Keyboard = languageKeyboard()
		g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, langPromptText(p), opts)
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)

	case data == "change_mode":
		opts.Keyboard = modeKeyboard()
		g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, modePromptText(p), opts)
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)

	case data == "toggle_stats":
		p.ShowStats = !p.ShowStats
		g.putPrefs(ctx, ev.OwnerID, p)
		opts.Keyboard = settingsKeyboard(p)
		g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, settingsText(p), opts)
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)

	case data == "toggle_timestamps":
		p.Timestamps = !p.Timestamps
		g.putPrefs(ctx, ev.OwnerID, p)
		opts.Keyboard = settingsKeyboard(p)
		g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, settingsText(p), opts)
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)

	default:
		g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)
	}
}

// handleRetry re-enqueues the owner's parked audio. Take consumes the
// entry, so a second press reports nothing pending.
func (g *Gateway) handleRetry(ctx context.Context, ev chat.CallbackEvent, ui string, opts chat.SendOptions) {
	entry, ok := g.pending.Take(ev.OwnerID)
	if !ok {
		g.sender.AnswerCallback(ctx, ev.CallbackID, i18n.T(ui, "nothing_pending"), true)
		return
	}
	if _, err := os.Stat(entry.SourcePath); err != nil {
		g.sender.AnswerCallback(ctx, ev.CallbackID, i18n.T(ui, "audio_gone"), true)
		return
	}

	g.submit(queue.Job{
		OwnerID:    ev.OwnerID,
		JobID:      entry.JobID,
		SourcePath: entry.SourcePath,
	})
	g.sender.Edit(ctx, ev.OwnerID, ev.MessageID, i18n.T(ui, "retrying"), opts)
	g.sender.AnswerCallback(ctx, ev.CallbackID, "", false)
}

func (g *Gateway) prefsFor(ctx context.Context, ownerID int64) prefs.Preferences {
	p, err := g.prefs.Get(ctx, ownerID)
	if err != nil {
		log.Printf("bot: prefs lookup for owner %d failed, using defaults: %v", ownerID, err)
		return prefs.Defaults()
	}
	return p
}

func (g *Gateway) putPrefs(ctx context.Context, ownerID int64, p prefs.Preferences) {
	if err := g.prefs.Put(ctx, ownerID, p); err != nil {
		log.Printf("bot: prefs update for owner %d failed: %v", ownerID, err)
	}
}

// sanitizeJobID keeps the audio filename safe regardless of what the
// chat platform puts in a message ID.
func sanitizeJobID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return uuid.NewString()
	}
	return b.String()
}
