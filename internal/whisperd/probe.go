package whisperd

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/antoniostano/innervoice/internal/media"
)

// VRAMStats is a point-in-time accelerator memory reading in MiB.
type VRAMStats struct {
	UsedMB  int
	TotalMB int
}

func (s VRAMStats) FreeMB() int { return s.TotalMB - s.UsedMB }

// Probe reads accelerator memory via the vendor CLI tools. nvidia-smi
// is tried first, then rocm-smi.
type Probe struct {
	runner media.Runner
}

func NewProbe() *Probe {
	return NewProbeWithRunner(media.NewRunner())
}

func NewProbeWithRunner(r media.Runner) *Probe {
	return &Probe{runner: r}
}

var rocmMemPattern = regexp.MustCompile(`(?i)(\d+)\s*MiB\s*/\s*(\d+)\s*MiB`)

// Stats returns the current VRAM reading, or ok=false when no tool can
// produce one.
func (p *Probe) Stats(ctx context.Context) (VRAMStats, bool) {
	if stats, ok := p.nvidiaStats(ctx); ok {
		return stats, true
	}
	if stats, ok := p.rocmStats(ctx); ok {
		return stats, true
	}
	return VRAMStats{}, false
}

func (p *Probe) nvidiaStats(ctx context.Context) (VRAMStats, bool) {
	out, err := p.runner.Output(ctx, "nvidia-smi",
		"--query-gpu=memory.used,memory.total",
		"--format=csv,noheader,nounits")
	if err != nil {
		return VRAMStats{}, false
	}
	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return VRAMStats{}, false
	}
	used, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	total, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || total <= 0 {
		return VRAMStats{}, false
	}
	return VRAMStats{UsedMB: used, TotalMB: total}, true
}

func (p *Probe) rocmStats(ctx context.Context) (VRAMStats, bool) {
	out, err := p.runner.Output(ctx, "rocm-smi", "--showmemuse")
	if err != nil {
		return VRAMStats{}, false
	}
	for _, line := range strings.Split(string(out), "\n") {
		m := rocmMemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		used, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil || total <= 0 {
			continue
		}
		return VRAMStats{UsedMB: used, TotalMB: total}, true
	}
	return VRAMStats{}, false
}

// FreeAtLeast reports whether at least thresholdMB of VRAM is free.
// When no reading is available the request is admitted; an unknown GPU
// state must not wedge the service.
func (p *Probe) FreeAtLeast(ctx context.Context, thresholdMB int) bool {
	stats, ok := p.Stats(ctx)
	if !ok {
		return true
	}
	return stats.FreeMB() >= thresholdMB
}
