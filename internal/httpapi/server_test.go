package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/innervoice/internal/bot"
	"github.com/antoniostano/innervoice/internal/chat"
	"github.com/antoniostano/innervoice/internal/config"
	"github.com/antoniostano/innervoice/internal/observability"
	"github.com/antoniostano/innervoice/internal/pipeline"
	"github.com/antoniostano/innervoice/internal/prefs"
	"github.com/antoniostano/innervoice/internal/queue"
)

type serverFixture struct {
	server   *Server
	recorder *chat.RecorderMessenger
	queue    *queue.Queue
	bus      *pipeline.EventBus
	guard    *queue.DuplicateGuard
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	recorder := chat.NewRecorderMessenger()
	sender := chat.NewSafeSender(recorder, time.Second)
	sender.SetSleep(func(context.Context, time.Duration) error { return nil })

	q := queue.New()
	bus := pipeline.NewEventBus(100)
	guard := queue.NewDuplicateGuard(time.Minute, 10*time.Minute)
	gateway := bot.NewGateway(bot.GatewayDeps{
		AudioDir: t.TempDir(),
		Queue:    q,
		Guard:    guard,
		Pending:  queue.NewPendingRetryStore(),
		Prefs:    prefs.NewInMemoryStore(),
		Sender:   sender,
		Bus:      bus,
	})

	return &serverFixture{
		server:   New(config.Config{}, gateway, q, bus, observability.NewStageWindow(16)),
		recorder: recorder,
		queue:    q,
		bus:      bus,
		guard:    guard,
	}
}

func multipartVoice(t *testing.T, fields map[string]string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if audio != nil {
		part, err := mw.CreateFormFile("audio", "voice.ogg")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandleVoiceQueuesJob(t *testing.T) {
	f := newServerFixture(t)
	body, contentType := multipartVoice(t, map[string]string{
		"owner_id":   "7",
		"message_id": "file123",
	}, []byte("oggdata"))

	req := httptest.NewRequest(http.MethodPost, "/v1/voice", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "queued" || resp["job_id"] != "file123" {
		t.Errorf("response = %v", resp)
	}
	if f.queue.Depth() != 1 {
		t.Errorf("queue depth = %d, want 1", f.queue.Depth())
	}
}

func TestHandleVoiceDuplicate(t *testing.T) {
	f := newServerFixture(t)
	f.guard.MarkProcessed(7, "file123")

	body, contentType := multipartVoice(t, map[string]string{
		"owner_id":   "7",
		"message_id": "file123",
	}, []byte("oggdata"))
	req := httptest.NewRequest(http.MethodPost, "/v1/voice", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "duplicate_skipped") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if f.queue.Depth() != 0 {
		t.Errorf("duplicate was enqueued")
	}
}

func TestHandleVoiceRejectsBadRequests(t *testing.T) {
	f := newServerFixture(t)
	router := f.server.Router()

	cases := []struct {
		name   string
		fields map[string]string
		audio  []byte
	}{
		{"missing owner", map[string]string{"message_id": "x"}, []byte("a")},
		{"bad owner", map[string]string{"owner_id": "abc"}, []byte("a")},
		{"missing audio", map[string]string{"owner_id": "7"}, nil},
		{"empty audio", map[string]string{"owner_id": "7"}, []byte{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := multipartVoice(t, tc.fields, tc.audio)
			req := httptest.NewRequest(http.MethodPost, "/v1/voice", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleCommand(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/command", strings.NewReader(`{"owner_id":7,"command":"/start"}`))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(f.recorder.ByOp("send")) != 1 {
		t.Error("command should produce one chat reply")
	}
}

func TestHandleCallbackValidation(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/callback", strings.NewReader(`{"owner_id":7}`))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthReportsQueueDepth(t *testing.T) {
	f := newServerFixture(t)
	f.queue.Submit(queue.Job{OwnerID: 7, JobID: "a", SourcePath: "/tmp/a.ogg"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["queue_depth"] != float64(1) {
		t.Errorf("queue_depth = %v, want 1", resp["queue_depth"])
	}
}

func TestEventsPolling(t *testing.T) {
	f := newServerFixture(t)
	f.bus.Publish(pipeline.Event{JobID: "a", Type: pipeline.EventTypeQueued})
	f.bus.Publish(pipeline.Event{JobID: "a", Type: pipeline.EventTypeDelivered})

	req := httptest.NewRequest(http.MethodGet, "/v1/events?since=1", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Events []pipeline.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Type != pipeline.EventTypeDelivered {
		t.Errorf("events = %+v", resp.Events)
	}
}

func TestEventsRejectsBadSince(t *testing.T) {
	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/events?since=abc", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEventsWebsocketStreamsBacklogAndLive(t *testing.T) {
	f := newServerFixture(t)
	f.bus.Publish(pipeline.Event{JobID: "a", Type: pipeline.EventTypeQueued})

	srv := httptest.NewServer(f.server.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var first pipeline.Event
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != pipeline.EventTypeQueued || first.Seq != 1 {
		t.Fatalf("backlog event = %+v", first)
	}

	f.bus.Publish(pipeline.Event{JobID: "a", Type: pipeline.EventTypeDelivered})

	var second pipeline.Event
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if second.Type != pipeline.EventTypeDelivered || second.Seq != 2 {
		t.Fatalf("live event = %+v", second)
	}
}

func TestPerfStagesSnapshot(t *testing.T) {
	f := newServerFixture(t)
	f.server.stages.Observe(observability.StageConvert, 120*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/v1/perf/stages", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap observability.StageSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != observability.StageConvert {
		t.Errorf("snapshot = %+v", snap)
	}
}
