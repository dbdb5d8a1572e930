package inference

import (
	"errors"
	"fmt"
)

// Task selects what the speech model does with a segment.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// Busy reason codes returned by whisperd.
const (
	CodeGPUBusy = "gpu_busy"
	CodeGPUOOM  = "gpu_oom"
)

// SegmentMark is a timestamped slice of recognized text.
type SegmentMark struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is one successful inference response.
type Result struct {
	Text     string        `json:"text"`
	Segments []SegmentMark `json:"segments,omitempty"`
}

// Health mirrors whisperd's /health payload. VRAM stats are present only
// while the model is loaded.
type Health struct {
	Status      string `json:"status"`
	Model       string `json:"model"`
	VRAMUsedMB  *int   `json:"vram_used_mb,omitempty"`
	VRAMTotalMB *int   `json:"vram_total_mb,omitempty"`
	VRAMFreeMB  *int   `json:"vram_free_mb,omitempty"`
}

// BusyError means the accelerator is unavailable right now. Callers must
// not treat it as a fatal failure: the job aborts and the owner gets a
// retry affordance instead.
type BusyError struct {
	Code    string
	Message string
}

func (e *BusyError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference busy: %s", e.Code)
	}
	return fmt.Sprintf("inference busy: %s: %s", e.Code, e.Message)
}

// IsBusy reports whether err is a busy signal from the inference service.
func IsBusy(err error) bool {
	var busy *BusyError
	return errors.As(err, &busy)
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("inference HTTP %d", e.status)
	}
	return fmt.Sprintf("inference HTTP %d: %s", e.status, e.body)
}
