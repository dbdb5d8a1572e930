package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes an external tool. Tests substitute a fake so no ffmpeg
// binary is needed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

// NewRunner returns the real process runner.
func NewRunner() Runner { return execRunner{} }

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Tool wraps the external media tool used for conversion and segmenting.
type Tool struct {
	ffmpeg  string
	ffprobe string
	runner  Runner
}

func NewTool() *Tool {
	return &Tool{ffmpeg: "ffmpeg", ffprobe: "ffprobe", runner: execRunner{}}
}

// NewToolWithRunner is used by tests to inject a fake process runner.
func NewToolWithRunner(r Runner) *Tool {
	return &Tool{ffmpeg: "ffmpeg", ffprobe: "ffprobe", runner: r}
}

// Normalize converts src to 16 kHz mono s16 WAV next to the source file
// and returns the output path.
func (t *Tool) Normalize(ctx context.Context, src string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("source audio: %w", err)
	}
	out := strings.TrimSuffix(src, filepath.Ext(src)) + ".wav"
	if out == src {
		// ffmpeg cannot read and write the same file.
		out = strings.TrimSuffix(src, filepath.Ext(src)) + "_norm.wav"
	}
	err := t.runner.Run(ctx, t.ffmpeg,
		"-i", src,
		"-ac", "1",
		"-ar", "16000",
		"-sample_fmt", "s16",
		out, "-y",
	)
	if err != nil {
		return "", fmt.Errorf("normalize audio: %w", err)
	}
	return out, nil
}

// Duration probes the container duration in seconds. A probe failure is
// not fatal to the caller; zero is returned with the error.
func (t *Tool) Duration(ctx context.Context, path string) (float64, error) {
	out, err := t.runner.Output(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return d, nil
}

// Split cuts a WAV file into fixed-duration, non-overlapping segments and
// returns their paths in order. The tool's segmenting is authoritative:
// output files are enumerated by scanning sequential indices until one is
// missing, never computed from duration/chunkSeconds.
func (t *Tool) Split(ctx context.Context, path string, chunkSeconds int) ([]string, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("chunkSeconds must be positive")
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	template := stem + "_part%d" + ext

	err := t.runner.Run(ctx, t.ffmpeg,
		"-i", path,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-c", "copy",
		template,
	)
	if err != nil {
		return nil, fmt.Errorf("split audio: %w", err)
	}

	var segments []string
	for index := 0; ; index++ {
		segment := fmt.Sprintf(template, index)
		if _, err := os.Stat(segment); err != nil {
			break
		}
		segments = append(segments, segment)
	}
	return segments, nil
}
