package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/innervoice/internal/bot"
	"github.com/antoniostano/innervoice/internal/chat"
	"github.com/antoniostano/innervoice/internal/config"
	"github.com/antoniostano/innervoice/internal/observability"
	"github.com/antoniostano/innervoice/internal/pipeline"
	"github.com/antoniostano/innervoice/internal/queue"
)

const maxVoiceUploadBytes = 64 << 20

// Server exposes the ingest API of the pipeline daemon. The chat
// collaborator posts inbound events here; operators read health, perf
// and the live event feed.
type Server struct {
	cfg      config.Config
	gateway  *bot.Gateway
	queue    *queue.Queue
	bus      *pipeline.EventBus
	stages   *observability.StageWindow
	upgrader websocket.Upgrader
}

func New(cfg config.Config, gateway *bot.Gateway, q *queue.Queue, bus *pipeline.EventBus, stages *observability.StageWindow) *Server {
	return &Server{
		cfg:     cfg,
		gateway: gateway,
		queue:   q,
		bus:     bus,
		stages:  stages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/voice", s.handleVoice)
	r.Post("/v1/command", s.handleCommand)
	r.Post("/v1/callback", s.handleCallback)
	r.Get("/v1/events", s.handleEvents)
	r.Get("/v1/events/ws", s.handleEventsWS)
	r.Get("/v1/perf/stages", s.handlePerfStages)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.queue.Depth(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleVoice accepts a multipart upload: an "audio" file plus owner_id
// and optional message_id / business_connection_id fields.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxVoiceUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected multipart form: "+err.Error())
		return
	}

	ownerID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("owner_id")), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be an integer")
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_audio", "audio file part is required")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_audio", err.Error())
		return
	}
	if len(audio) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_audio", "audio file part is empty")
		return
	}

	jobID, queued, err := s.gateway.HandleVoice(r.Context(), chat.VoiceEvent{
		OwnerID:              ownerID,
		MessageID:            r.FormValue("message_id"),
		Audio:                audio,
		BusinessConnectionID: r.FormValue("business_connection_id"),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ingest_failed", err.Error())
		return
	}
	if !queued {
		respondJSON(w, http.StatusOK, map[string]any{"status": "duplicate_skipped", "job_id": jobID})
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "job_id": jobID})
}

type commandRequest struct {
	OwnerID int64  `json:"owner_id"`
	Command string `json:"command"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.OwnerID == 0 || strings.TrimSpace(req.Command) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "owner_id and command are required")
		return
	}
	s.gateway.HandleCommand(r.Context(), chat.CommandEvent{OwnerID: req.OwnerID, Command: req.Command})
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "handled"})
}

type callbackRequest struct {
	OwnerID    int64  `json:"owner_id"`
	CallbackID string `json:"callback_id"`
	MessageID  int64  `json:"message_id"`
	Data       string `json:"data"`
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.OwnerID == 0 || strings.TrimSpace(req.Data) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "owner_id and data are required")
		return
	}
	s.gateway.HandleCallback(r.Context(), chat.CallbackEvent{
		OwnerID:    req.OwnerID,
		CallbackID: req.CallbackID,
		MessageID:  req.MessageID,
		Data:       req.Data,
	})
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "handled"})
}

// handleEvents is the polling variant of the event feed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, err := sinceParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_since", err.Error())
		return
	}
	events := s.bus.Since(since)
	if events == nil {
		events = []pipeline.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleEventsWS streams the backlog past ?since= and then live events
// until the client goes away.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	since, err := sinceParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_since", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before replaying the backlog so no event falls in the
	// gap; duplicates across the boundary are filtered by sequence.
	live, cancel := s.bus.Subscribe()
	defer cancel()

	lastSeq := since
	for _, ev := range s.bus.Since(since) {
		if err := writeEvent(conn, ev); err != nil {
			return
		}
		lastSeq = ev.Seq
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1 << 10)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			if ev.Seq <= lastSeq {
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
			lastSeq = ev.Seq
		}
	}
}

func sinceParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("since"))
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("since must be an integer sequence number")
	}
	return parsed, nil
}

func writeEvent(conn *websocket.Conn, ev pipeline.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(ev)
}

func (s *Server) handlePerfStages(w http.ResponseWriter, _ *http.Request) {
	if s.stages == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.stages.Snapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
