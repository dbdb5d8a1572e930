package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/innervoice/internal/chat"
	"github.com/antoniostano/innervoice/internal/pipeline"
	"github.com/antoniostano/innervoice/internal/prefs"
	"github.com/antoniostano/innervoice/internal/queue"
)

type fixture struct {
	gateway  *Gateway
	recorder *chat.RecorderMessenger
	queue    *queue.Queue
	guard    *queue.DuplicateGuard
	pending  *queue.PendingRetryStore
	prefs    prefs.Store
	bus      *pipeline.EventBus
	audioDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	recorder := chat.NewRecorderMessenger()
	sender := chat.NewSafeSender(recorder, time.Second)
	sender.SetSleep(func(context.Context, time.Duration) error { return nil })

	f := &fixture{
		recorder: recorder,
		queue:    queue.New(),
		guard:    queue.NewDuplicateGuard(time.Minute, 10*time.Minute),
		pending:  queue.NewPendingRetryStore(),
		prefs:    prefs.NewInMemoryStore(),
		bus:      pipeline.NewEventBus(100),
		audioDir: t.TempDir(),
	}
	f.gateway = NewGateway(GatewayDeps{
		AudioDir: f.audioDir,
		Queue:    f.queue,
		Guard:    f.guard,
		Pending:  f.pending,
		Prefs:    f.prefs,
		Sender:   sender,
		Bus:      f.bus,
	})
	return f
}

func TestHandleVoiceEnqueues(t *testing.T) {
	f := newFixture(t)

	jobID, queued, err := f.gateway.HandleVoice(context.Background(), chat.VoiceEvent{
		OwnerID:   7,
		MessageID: "file123",
		Audio:     []byte("oggdata"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !queued || jobID != "file123" {
		t.Fatalf("queued = %v, jobID = %q", queued, jobID)
	}

	if f.queue.Depth() != 1 {
		t.Fatalf("queue depth = %d, want 1", f.queue.Depth())
	}
	job, err := f.queue.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if job.OwnerID != 7 || job.JobID != "file123" {
		t.Errorf("job = %+v", job)
	}
	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		t.Fatalf("persisted audio unreadable: %v", err)
	}
	if string(data) != "oggdata" {
		t.Errorf("persisted audio = %q", data)
	}
	if !strings.HasPrefix(job.SourcePath, f.audioDir) {
		t.Errorf("audio persisted outside audio dir: %s", job.SourcePath)
	}

	events := f.bus.Since(0)
	if len(events) != 1 || events[0].Type != pipeline.EventTypeQueued {
		t.Errorf("events = %+v, want one queued event", events)
	}
}

func TestHandleVoiceSkipsRecentDuplicate(t *testing.T) {
	f := newFixture(t)
	f.guard.MarkProcessed(7, "file123")

	_, queued, err := f.gateway.HandleVoice(context.Background(), chat.VoiceEvent{
		OwnerID:   7,
		MessageID: "file123",
		Audio:     []byte("oggdata"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if queued {
		t.Fatal("recent duplicate must not be queued")
	}

	if f.queue.Depth() != 0 {
		t.Fatalf("duplicate was enqueued, depth = %d", f.queue.Depth())
	}
	sends := f.recorder.ByOp("send")
	if len(sends) != 1 || !strings.Contains(sends[0].Text, "⏭️") {
		t.Errorf("sends = %+v, want one skip notice", sends)
	}
}

func TestHandleVoiceGeneratesJobID(t *testing.T) {
	f := newFixture(t)

	jobID, queued, err := f.gateway.HandleVoice(context.Background(), chat.VoiceEvent{OwnerID: 7, Audio: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	if !queued || jobID == "" {
		t.Fatalf("queued = %v, jobID = %q; a missing message ID should be generated", queued, jobID)
	}
	job, err := f.queue.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if job.JobID != jobID {
		t.Errorf("job ID = %q, want %q", job.JobID, jobID)
	}
}

func TestRetryCallbackIsIdempotent(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.audioDir, "parked.ogg")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.pending.Set(7, queue.PendingRetry{JobID: "file123", SourcePath: path})

	ev := chat.CallbackEvent{OwnerID: 7, CallbackID: "cb1", MessageID: 10, Data: "retry_audio"}
	f.gateway.HandleCallback(context.Background(), ev)

	if f.queue.Depth() != 1 {
		t.Fatalf("queue depth = %d, want 1", f.queue.Depth())
	}
	job, _ := f.queue.Next(context.Background())
	if job.JobID != "file123" || job.SourcePath != path {
		t.Errorf("requeued job = %+v", job)
	}

	// Second press: the entry was consumed, nothing is requeued.
	ev.CallbackID = "cb2"
	f.gateway.HandleCallback(context.Background(), ev)
	if f.queue.Depth() != 0 {
		t.Fatalf("second retry enqueued a job, depth = %d", f.queue.Depth())
	}

	answers := f.recorder.ByOp("answer_callback")
	var alerted bool
	for _, a := range answers {
		if strings.HasPrefix(a.Text, "cb2:") && strings.Contains(a.Text, "pendiente") {
			alerted = true
		}
	}
	if !alerted {
		t.Errorf("second press should alert nothing pending, answers = %+v", answers)
	}
}

func TestRetryCallbackWithMissingFile(t *testing.T) {
	f := newFixture(t)
	f.pending.Set(7, queue.PendingRetry{JobID: "file123", SourcePath: filepath.Join(f.audioDir, "gone.ogg")})

	f.gateway.HandleCallback(context.Background(), chat.CallbackEvent{OwnerID: 7, CallbackID: "cb1", Data: "retry_audio"})

	if f.queue.Depth() != 0 {
		t.Fatal("missing file must not be requeued")
	}
	if _, ok := f.pending.Take(7); ok {
		t.Error("stale pending entry should be dropped")
	}
}

func TestCallbackUpdatesPreferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.HandleCallback(ctx, chat.CallbackEvent{OwnerID: 7, CallbackID: "cb1", MessageID: 5, Data: "lang_it"})
	f.gateway.HandleCallback(ctx, chat.CallbackEvent{OwnerID: 7, CallbackID: "cb2", MessageID: 5, Data: "mode_fast"})
	f.gateway.HandleCallback(ctx, chat.CallbackEvent{OwnerID: 7, CallbackID: "cb3", MessageID: 5, Data: "toggle_stats"})
	f.gateway.HandleCallback(ctx, chat.CallbackEvent{OwnerID: 7, CallbackID: "cb4", MessageID: 5, Data: "ui_lang_en"})

	p, err := f.prefs.Get(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if p.Language != "it" {
		t.Errorf("language = %q, want it", p.Language)
	}
	if p.Mode != prefs.ModeFast {
		t.Errorf("mode = %q, want fast", p.Mode)
	}
	if p.ShowStats {
		t.Error("stats should be toggled off")
	}
	if p.UILanguage != "en" {
		t.Errorf("ui language = %q, want en", p.UILanguage)
	}
}

func TestCallbackRejectsUnknownLanguage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.HandleCallback(ctx, chat.CallbackEvent{OwnerID: 7, CallbackID: "cb1", MessageID: 5, Data: "lang_xx"})

	p, _ := f.prefs.Get(ctx, 7)
	if p.Language != prefs.Defaults().Language {
		t.Errorf("unknown language was stored: %q", p.Language)
	}
}

func TestCommandsReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, cmd := range []string{"/start", "/help", "/about", "/settings", "/lang", "/mode"} {
		f.gateway.HandleCommand(ctx, chat.CommandEvent{OwnerID: 7, Command: cmd})
	}

	sends := f.recorder.ByOp("send")
	if len(sends) != 6 {
		t.Fatalf("recorded %d replies, want 6", len(sends))
	}
	if sends[3].Opts.Keyboard == nil {
		t.Error("/settings reply should carry a keyboard")
	}
	if sends[4].Opts.Keyboard == nil || len(sends[4].Opts.Keyboard.Rows) != 4 {
		t.Error("/lang reply should carry the language keyboard in pairs")
	}
	if sends[5].Opts.Keyboard == nil || len(sends[5].Opts.Keyboard.Rows) != 2 {
		t.Error("/mode reply should carry the mode keyboard")
	}
}

func TestLanguageKeyboardOrder(t *testing.T) {
	kb := languageKeyboard()
	if len(kb.Rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(kb.Rows))
	}
	if kb.Rows[0][0].CallbackData != "lang_es" || kb.Rows[0][1].CallbackData != "lang_en" {
		t.Errorf("first row = %+v", kb.Rows[0])
	}
	if kb.Rows[3][1].CallbackData != "lang_zh" {
		t.Errorf("last button = %+v", kb.Rows[3][1])
	}
}
