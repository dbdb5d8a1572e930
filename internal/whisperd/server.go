package whisperd

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/innervoice/internal/config"
	"github.com/antoniostano/innervoice/internal/inference"
	"github.com/antoniostano/innervoice/internal/observability"
)

const maxAudioUploadBytes = 64 << 20

// Server is the inference service HTTP surface.
type Server struct {
	cfg     config.ServerConfig
	manager *Manager
	probe   *Probe
	metrics *observability.ServerMetrics
}

func NewServer(cfg config.ServerConfig, manager *Manager, probe *Probe, metrics *observability.ServerMetrics) *Server {
	return &Server{cfg: cfg, manager: manager, probe: probe, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/transcribe", s.handleTranscribe)
	r.Get("/health", s.handleHealth)
	r.Get("/gpu-check", s.handleGPUCheck)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	return r
}

// handleTranscribe runs one task over one uploaded audio file. The
// free-VRAM admission check runs before any model work so a saturated
// accelerator turns into an immediate busy signal, never a hang.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No audio file"})
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No audio file"})
		return
	}
	defer file.Close()

	if !s.probe.FreeAtLeast(r.Context(), s.cfg.VRAMThresholdFreeMB) {
		if s.metrics != nil {
			s.metrics.AdmissionRejected.Inc()
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   inference.CodeGPUBusy,
			"message": "GPU/VRAM is busy (e.g. Ollama in use). Try again when free.",
		})
		return
	}

	task := inference.Task(r.FormValue("task"))
	if task != inference.TaskTranscribe && task != inference.TaskTranslate {
		task = inference.TaskTranscribe
	}
	language := r.FormValue("language")
	wantSegments := parseBool(r.FormValue("return_segments"))

	engine, err := s.manager.Engine(r.Context())
	if err != nil {
		s.countRequest(task, "load_error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	tmp, err := os.CreateTemp("", "transcribe-*.wav")
	if err != nil {
		s.countRequest(task, "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		s.countRequest(task, "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	tmp.Close()

	started := time.Now()
	result, err := engine.Infer(r.Context(), tmp.Name(), task, language, wantSegments)
	s.manager.Touch()
	if err != nil {
		s.countRequest(task, "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if s.metrics != nil {
		s.metrics.InferenceDuration.Observe(time.Since(started).Seconds())
	}
	s.countRequest(task, "ok")

	out := map[string]any{"text": result.Text}
	if wantSegments && len(result.Segments) > 0 {
		out["segments"] = result.Segments
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHealth reports VRAM stats only while the model is resident, so
// a health poll never initializes the accelerator.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "healthy",
		"model":  s.cfg.Model,
	}
	if s.manager.Loaded() {
		if stats, ok := s.probe.Stats(r.Context()); ok {
			resp["vram_used_mb"] = stats.UsedMB
			resp["vram_total_mb"] = stats.TotalMB
			resp["vram_free_mb"] = stats.FreeMB()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGPUCheck is a diagnostic probe that never loads the model.
func (s *Server) handleGPUCheck(w http.ResponseWriter, r *http.Request) {
	gpu := map[string]any{"available": false}
	if stats, ok := s.probe.Stats(r.Context()); ok {
		gpu["available"] = true
		gpu["vram_used_mb"] = stats.UsedMB
		gpu["vram_total_mb"] = stats.TotalMB
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gpu":          gpu,
		"model_loaded": s.manager.Loaded(),
	})
}

func (s *Server) countRequest(task inference.Task, code string) {
	if s.metrics != nil {
		s.metrics.TranscribeRequests.WithLabelValues(string(task), code).Inc()
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
