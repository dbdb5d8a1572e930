package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/innervoice/internal/inference"
	"github.com/antoniostano/innervoice/internal/prefs"
)

// SegmentResult holds the inference output for one audio segment.
// Offset is the segment's start within the whole recording, in
// seconds, used to rebase per-segment timestamps.
type SegmentResult struct {
	Index       int
	Offset      float64
	Transcript  inference.Result
	Translation inference.Result
	Err         error
}

// Assembly is the merged text of all successful segments.
type Assembly struct {
	Transcript  string
	Translation string
	Skipped     int
}

// Assemble merges per-segment results in order. Failed segments are
// counted and omitted. In fast mode only the translation is present.
func Assemble(results []SegmentResult, mode prefs.Mode, timestamps bool) Assembly {
	var out Assembly
	var transcript, translation []string

	for _, res := range results {
		if res.Err != nil {
			out.Skipped++
			continue
		}
		if mode == prefs.ModeFull {
			if text := renderResult(res.Transcript, res.Offset, timestamps); text != "" {
				transcript = append(transcript, text)
			}
		}
		if text := renderResult(res.Translation, res.Offset, timestamps); text != "" {
			translation = append(translation, text)
		}
	}

	out.Transcript = strings.Join(transcript, "\n")
	out.Translation = strings.Join(translation, "\n")
	return out
}

// renderResult flattens one inference result, optionally prefixing
// each line with its absolute position in the recording.
func renderResult(res inference.Result, offset float64, timestamps bool) string {
	text := strings.TrimSpace(res.Text)
	if !timestamps {
		return text
	}
	if len(res.Segments) == 0 {
		if text == "" {
			return ""
		}
		return fmt.Sprintf("[%s] %s", formatTimestamp(offset), text)
	}

	lines := make([]string, 0, len(res.Segments))
	for _, mark := range res.Segments {
		t := strings.TrimSpace(mark.Text)
		if t == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", formatTimestamp(offset+mark.Start), t))
	}
	return strings.Join(lines, "\n")
}

// formatTimestamp renders seconds as MM:SS, or H:MM:SS past an hour.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Stats summarizes one completed job for the optional footer.
type Stats struct {
	Elapsed       time.Duration
	AudioSeconds  float64
	Segments      int
	Skipped       int
	Words         int
	VRAMFreeMB    *int
	VRAMTotalMB   *int
	ModelSnapshot string
}

// renderStats builds the footer block. Labels come from the caller so
// the block follows the owner's UI language.
func renderStats(st Stats, timeLabel, durationLabel, segmentsLabel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %.1fs", timeLabel, st.Elapsed.Seconds())
	if st.AudioSeconds > 0 {
		fmt.Fprintf(&b, " | %s: %s", durationLabel, formatTimestamp(st.AudioSeconds))
	}
	if st.Segments > 1 {
		fmt.Fprintf(&b, " | %s: %d", segmentsLabel, st.Segments)
	}
	if st.Words > 0 {
		fmt.Fprintf(&b, " | ~%d palabras/words", st.Words)
	}
	if st.VRAMFreeMB != nil && st.VRAMTotalMB != nil {
		fmt.Fprintf(&b, " | VRAM %d/%d MB", *st.VRAMFreeMB, *st.VRAMTotalMB)
	}
	if st.ModelSnapshot != "" {
		fmt.Fprintf(&b, " | %s", st.ModelSnapshot)
	}
	return b.String()
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
