package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/innervoice/internal/inference"
	"github.com/antoniostano/innervoice/internal/prefs"
)

func TestAssembleFullMode(t *testing.T) {
	results := []SegmentResult{
		{
			Index:       0,
			Transcript:  inference.Result{Text: "hola mundo"},
			Translation: inference.Result{Text: "hello world"},
		},
		{
			Index:       1,
			Offset:      30,
			Transcript:  inference.Result{Text: "adiós"},
			Translation: inference.Result{Text: "goodbye"},
		},
	}

	a := Assemble(results, prefs.ModeFull, false)
	if a.Transcript != "hola mundo\nadiós" {
		t.Errorf("transcript = %q", a.Transcript)
	}
	if a.Translation != "hello world\ngoodbye" {
		t.Errorf("translation = %q", a.Translation)
	}
	if a.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", a.Skipped)
	}
}

func TestAssembleFastModeDropsTranscript(t *testing.T) {
	results := []SegmentResult{
		{Transcript: inference.Result{Text: "hola"}, Translation: inference.Result{Text: "hello"}},
	}
	a := Assemble(results, prefs.ModeFast, false)
	if a.Transcript != "" {
		t.Errorf("fast mode transcript = %q, want empty", a.Transcript)
	}
	if a.Translation != "hello" {
		t.Errorf("translation = %q", a.Translation)
	}
}

func TestAssembleCountsFailedSegments(t *testing.T) {
	results := []SegmentResult{
		{Translation: inference.Result{Text: "one"}},
		{Err: errors.New("decode error")},
		{Translation: inference.Result{Text: "three"}},
	}
	a := Assemble(results, prefs.ModeFast, false)
	if a.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", a.Skipped)
	}
	if a.Translation != "one\nthree" {
		t.Errorf("translation = %q", a.Translation)
	}
}

func TestAssembleTimestampsRebaseOnOffset(t *testing.T) {
	results := []SegmentResult{
		{
			Offset: 30,
			Translation: inference.Result{
				Text: "hello there",
				Segments: []inference.SegmentMark{
					{Start: 0.4, End: 2.0, Text: "hello"},
					{Start: 2.5, End: 4.0, Text: "there"},
				},
			},
		},
	}

	a := Assemble(results, prefs.ModeFast, true)
	want := "[00:30] hello\n[00:32] there"
	if a.Translation != want {
		t.Errorf("translation = %q, want %q", a.Translation, want)
	}
}

func TestAssembleTimestampsWithoutMarksUsesSegmentOffset(t *testing.T) {
	results := []SegmentResult{
		{Offset: 90, Translation: inference.Result{Text: "late words"}},
	}
	a := Assemble(results, prefs.ModeFast, true)
	if a.Translation != "[01:30] late words" {
		t.Errorf("translation = %q", a.Translation)
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{59.9, "00:59"},
		{61, "01:01"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{-5, "00:00"},
	}
	for _, tc := range cases {
		if got := formatTimestamp(tc.seconds); got != tc.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestRenderStats(t *testing.T) {
	free, total := 1500, 8192
	st := Stats{
		Elapsed:       12500 * time.Millisecond,
		AudioSeconds:  95,
		Segments:      4,
		Words:         120,
		VRAMFreeMB:    &free,
		VRAMTotalMB:   &total,
		ModelSnapshot: "medium",
	}
	got := renderStats(st, "Time", "Duration", "Segments")
	for _, want := range []string{"Time: 12.5s", "Duration: 01:35", "Segments: 4", "~120", "VRAM 1500/8192 MB", "medium"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats %q missing %q", got, want)
		}
	}
}
