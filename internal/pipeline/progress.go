package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/innervoice/internal/chat"
)

const progressBarWidth = 10

// ProgressReporter edits a single status message as segments complete
// and mirrors each step onto the event bus.
type ProgressReporter struct {
	sender *chat.SafeSender
	bus    *EventBus
	now    func() time.Time
}

func NewProgressReporter(sender *chat.SafeSender, bus *EventBus) *ProgressReporter {
	return &ProgressReporter{sender: sender, bus: bus, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (r *ProgressReporter) SetClock(now func() time.Time) { r.now = now }

// Progress tracks one job's status message.
type Progress struct {
	reporter             *ProgressReporter
	ownerID              int64
	jobID                string
	messageID            int64
	total                int
	started              time.Time
	businessConnectionID string
}

// Begin starts tracking progress against an already-sent status
// message. messageID may be zero when the initial send failed, in
// which case edits are skipped but events still flow.
func (r *ProgressReporter) Begin(ownerID int64, jobID string, messageID int64, total int, businessConnectionID string) *Progress {
	return &Progress{
		reporter:             r,
		ownerID:              ownerID,
		jobID:                jobID,
		messageID:            messageID,
		total:                total,
		started:              r.now(),
		businessConnectionID: businessConnectionID,
	}
}

// Step records completion of segment done (1-based). Message edits are
// throttled for longer jobs; events are published on every step.
func (p *Progress) Step(ctx context.Context, done int) {
	r := p.reporter
	if r.bus != nil {
		r.bus.Publish(Event{
			JobID:         p.jobID,
			OwnerID:       p.ownerID,
			Type:          EventTypeProgress,
			SegmentsDone:  done,
			SegmentsTotal: p.total,
		})
	}

	if p.messageID == 0 || r.sender == nil {
		return
	}
	if !ShouldReport(done, p.total) {
		return
	}

	elapsed := r.now().Sub(p.started)
	r.sender.Edit(ctx, p.ownerID, p.messageID, renderProgress(done, p.total, elapsed), chat.SendOptions{
		ParseMode:            "HTML",
		BusinessConnectionID: p.businessConnectionID,
	})
}

// ShouldReport decides whether a segment completion warrants a message
// edit. Short jobs report every segment, longer ones every second
// segment, and the final segment always reports.
func ShouldReport(done, total int) bool {
	if done >= total {
		return true
	}
	if total <= 5 {
		return true
	}
	return done%2 == 0
}

func renderProgress(done, total int, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ %d/%d\n", done, total)
	b.WriteString(renderBar(done, total))
	if done > 0 && done < total {
		remaining := time.Duration(float64(elapsed) / float64(done) * float64(total-done))
		fmt.Fprintf(&b, "\nETA: ~%ds", int(remaining.Round(time.Second).Seconds()))
	}
	return b.String()
}

func renderBar(done, total int) string {
	if total <= 0 {
		total = 1
	}
	filled := done * progressBarWidth / total
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	pct := done * 100 / total
	return strings.Repeat("▓", filled) + strings.Repeat("░", progressBarWidth-filled) + fmt.Sprintf(" %d%%", pct)
}
