package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/antoniostano/innervoice/internal/chat"
	"github.com/antoniostano/innervoice/internal/config"
	"github.com/antoniostano/innervoice/internal/i18n"
	"github.com/antoniostano/innervoice/internal/inference"
	"github.com/antoniostano/innervoice/internal/observability"
	"github.com/antoniostano/innervoice/internal/prefs"
	"github.com/antoniostano/innervoice/internal/queue"
)

// Terminal job outcomes, used as metric labels and event types.
const (
	OutcomeDelivered = "delivered"
	OutcomeBusy      = "busy"
	OutcomeFailed    = "failed"
)

// InferenceClient is the outbound boundary to whisperd.
type InferenceClient interface {
	Infer(ctx context.Context, segmentPath string, task inference.Task, language string, wantSegments bool) (inference.Result, error)
	Health(ctx context.Context) (*inference.Health, error)
}

// MediaTool prepares audio for inference.
type MediaTool interface {
	Normalize(ctx context.Context, src string) (string, error)
	Duration(ctx context.Context, path string) (float64, error)
	Split(ctx context.Context, path string, chunkSeconds int) ([]string, error)
}

// Deps are the collaborators a Worker drives.
type Deps struct {
	Queue    *queue.Queue
	Guard    *queue.DuplicateGuard
	Pending  *queue.PendingRetryStore
	Prefs    prefs.Store
	Infer    InferenceClient
	Media    MediaTool
	Sender   *chat.SafeSender
	Metrics  *observability.Metrics
	Stages   *observability.StageWindow
	Bus      *EventBus
	Progress *ProgressReporter
}

// Worker drains the job queue one job at a time. Single-flight by
// construction: there is exactly one Worker goroutine, so segment
// inference never overlaps across jobs.
type Worker struct {
	cfg config.Config
	d   Deps
	now func() time.Time
}

func NewWorker(cfg config.Config, d Deps) *Worker {
	return &Worker{cfg: cfg, d: d, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (w *Worker) SetClock(now func() time.Time) { w.now = now }

// Run consumes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.d.Queue.Next(ctx)
		if err != nil {
			return
		}
		if w.d.Metrics != nil {
			w.d.Metrics.QueueDepth.Set(float64(w.d.Queue.Depth()))
		}

		outcome := w.Process(ctx, job)
		log.Printf("pipeline: job %s owner=%d outcome=%s", job.JobID, job.OwnerID, outcome)
		if w.d.Metrics != nil {
			w.d.Metrics.JobsProcessed.WithLabelValues(outcome).Inc()
		}
	}
}

// Process runs one job end to end and returns its terminal outcome.
func (w *Worker) Process(ctx context.Context, job queue.Job) string {
	started := w.now()

	p, err := w.d.Prefs.Get(ctx, job.OwnerID)
	if err != nil {
		log.Printf("pipeline: prefs lookup for owner %d failed, using defaults: %v", job.OwnerID, err)
		p = prefs.Defaults()
	}
	ui := p.UILanguage

	opts := chat.SendOptions{ParseMode: "HTML", BusinessConnectionID: job.BusinessContext}

	if _, err := os.Stat(job.SourcePath); err != nil {
		w.d.Sender.Send(ctx, job.OwnerID, i18n.T(ui, "audio_not_found"), opts)
		w.publishTerminal(job, EventTypeFailed, "source missing")
		return OutcomeFailed
	}

	// Intermediate artifacts are always removed. The source survives
	// only when a busy rejection parks it for a manual retry.
	var artifacts []string
	keepSource := false
	defer func() {
		if !keepSource {
			removeQuiet(job.SourcePath)
		}
		for _, path := range artifacts {
			removeQuiet(path)
		}
	}()

	convertStart := w.now()
	normalized, err := w.d.Media.Normalize(ctx, job.SourcePath)
	if err != nil {
		log.Printf("pipeline: normalize %s failed: %v", job.SourcePath, err)
		w.d.Sender.Send(ctx, job.OwnerID, i18n.T(ui, "transcription_failed"), opts)
		w.publishTerminal(job, EventTypeFailed, "normalize failed")
		return OutcomeFailed
	}
	if normalized != job.SourcePath {
		artifacts = append(artifacts, normalized)
	}
	w.observeStage(observability.StageConvert, w.now().Sub(convertStart))

	audioSeconds, err := w.d.Media.Duration(ctx, normalized)
	if err != nil {
		audioSeconds = 0
	}

	segments, err := w.splitIfLarge(ctx, job, normalized)
	if err != nil {
		log.Printf("pipeline: split %s failed: %v", normalized, err)
		w.d.Sender.Send(ctx, job.OwnerID, i18n.T(ui, "transcription_failed"), opts)
		w.publishTerminal(job, EventTypeFailed, "split failed")
		return OutcomeFailed
	}
	for _, seg := range segments {
		if seg != normalized {
			artifacts = append(artifacts, seg)
		}
	}

	intro := renderIntro(ui, p, audioSeconds, len(segments))
	statusMsgID := w.d.Sender.Send(ctx, job.OwnerID, intro, opts)
	prog := w.d.Progress.Begin(job.OwnerID, job.JobID, statusMsgID, len(segments), job.BusinessContext)
	w.publish(Event{JobID: job.JobID, OwnerID: job.OwnerID, Type: EventTypeStage, Stage: "processing", SegmentsTotal: len(segments)})

	results := make([]SegmentResult, 0, len(segments))
	for i, seg := range segments {
		res, err := w.processSegment(ctx, seg, p)
		if inference.IsBusy(err) {
			keepSource = true
			w.d.Pending.Set(job.OwnerID, queue.PendingRetry{JobID: job.JobID, SourcePath: job.SourcePath})
			w.deliverBusy(ctx, job, statusMsgID, ui)
			w.publishTerminal(job, EventTypeBusy, fmt.Sprintf("busy at segment %d/%d", i+1, len(segments)))
			return OutcomeBusy
		}
		if err != nil {
			log.Printf("pipeline: job %s segment %d/%d failed: %v", job.JobID, i+1, len(segments), err)
			w.countSegment("failed")
			results = append(results, SegmentResult{Index: i, Err: err})
		} else {
			w.countSegment("ok")
			res.Index = i
			res.Offset = float64(i * w.cfg.ChunkSeconds)
			results = append(results, res)
		}
		prog.Step(ctx, i+1)
	}

	assembly := Assemble(results, p.Mode, p.Timestamps)
	if assembly.Skipped == len(segments) {
		w.d.Sender.Send(ctx, job.OwnerID, i18n.T(ui, "segments_failed_short"), opts)
		w.publishTerminal(job, EventTypeFailed, "all segments failed")
		return OutcomeFailed
	}

	deliverStart := w.now()
	w.deliver(ctx, job, p, assembly, opts)
	w.observeStage(observability.StageDeliver, w.now().Sub(deliverStart))

	if assembly.Skipped > 0 && w.cfg.WarnOnSkippedSegments {
		warn := fmt.Sprintf(i18n.T(ui, "segments_failed"), assembly.Skipped, len(segments))
		w.d.Sender.Send(ctx, job.OwnerID, warn, opts)
	}

	elapsed := w.now().Sub(started)
	if p.ShowStats {
		w.sendStats(ctx, job, p, assembly, Stats{
			Elapsed:      elapsed,
			AudioSeconds: audioSeconds,
			Segments:     len(segments),
			Skipped:      assembly.Skipped,
		}, opts)
	}
	if statusMsgID != 0 {
		w.d.Sender.Edit(ctx, job.OwnerID, statusMsgID, i18n.T(ui, "done"), opts)
	}

	w.d.Guard.MarkProcessed(job.OwnerID, job.JobID)
	w.observeStage(observability.StageJobTotal, elapsed)
	if w.d.Metrics != nil {
		w.d.Metrics.ObserveJobDuration(elapsed)
	}
	w.publishTerminal(job, EventTypeDelivered, "")
	return OutcomeDelivered
}

// splitIfLarge chunks the normalized file only when it exceeds the size
// threshold; small audio goes through as a single segment.
func (w *Worker) splitIfLarge(ctx context.Context, job queue.Job, normalized string) ([]string, error) {
	info, err := os.Stat(normalized)
	if err != nil {
		return nil, fmt.Errorf("stat normalized audio: %w", err)
	}
	if info.Size() <= w.cfg.SegmentThresholdBytes {
		return []string{normalized}, nil
	}

	splitStart := w.now()
	segments, err := w.d.Media.Split(ctx, normalized, w.cfg.ChunkSeconds)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("split %s produced no segments", normalized)
	}
	w.observeStage(observability.StageSplit, w.now().Sub(splitStart))
	return segments, nil
}

// processSegment runs the owner's mode against one segment. Full mode
// performs transcription and translation; fast mode translation only.
func (w *Worker) processSegment(ctx context.Context, path string, p prefs.Preferences) (SegmentResult, error) {
	var res SegmentResult

	segStart := w.now()
	defer func() { w.observeStage(observability.StageInference, w.now().Sub(segStart)) }()

	if p.Mode == prefs.ModeFull {
		transcript, err := w.d.Infer.Infer(ctx, path, inference.TaskTranscribe, p.Language, p.Timestamps)
		w.countInference(inference.TaskTranscribe, err)
		if err != nil {
			return res, err
		}
		res.Transcript = transcript
	}

	translation, err := w.d.Infer.Infer(ctx, path, inference.TaskTranslate, p.Language, p.Timestamps)
	w.countInference(inference.TaskTranslate, err)
	if err != nil {
		return res, err
	}
	res.Translation = translation
	return res, nil
}

func (w *Worker) deliver(ctx context.Context, job queue.Job, p prefs.Preferences, a Assembly, opts chat.SendOptions) {
	ui := p.UILanguage
	if p.Mode == prefs.ModeFull && a.Transcript != "" {
		header := fmt.Sprintf("%s\n%s: %s", i18n.T(ui, "transcription_header"), i18n.T(ui, "original_language"), p.Language)
		w.d.Sender.Send(ctx, job.OwnerID, header, opts)
		w.d.Sender.SendChunks(ctx, job.OwnerID, a.Transcript, true)
	}
	if a.Translation != "" {
		header := fmt.Sprintf("%s\n%s: %s", i18n.T(ui, "translation_header"), i18n.T(ui, "language"), i18n.T(ui, "english"))
		w.d.Sender.Send(ctx, job.OwnerID, header, opts)
		w.d.Sender.SendChunks(ctx, job.OwnerID, a.Translation, true)
	}
}

func (w *Worker) deliverBusy(ctx context.Context, job queue.Job, statusMsgID int64, ui string) {
	opts := chat.SendOptions{
		ParseMode:            "HTML",
		BusinessConnectionID: job.BusinessContext,
		Keyboard: &chat.InlineKeyboard{Rows: [][]chat.Button{{
			{Text: "🔄 Retry / Reintentar", CallbackData: "retry_audio"},
		}}},
	}
	text := i18n.T(ui, "busy")
	if statusMsgID != 0 {
		w.d.Sender.Edit(ctx, job.OwnerID, statusMsgID, text, opts)
		return
	}
	w.d.Sender.Send(ctx, job.OwnerID, text, opts)
}

func (w *Worker) sendStats(ctx context.Context, job queue.Job, p prefs.Preferences, a Assembly, st Stats, opts chat.SendOptions) {
	st.Words = countWords(a.Translation)
	if p.Mode == prefs.ModeFull {
		st.Words += countWords(a.Transcript)
	}
	if health, err := w.d.Infer.Health(ctx); err == nil {
		st.VRAMFreeMB = health.VRAMFreeMB
		st.VRAMTotalMB = health.VRAMTotalMB
		st.ModelSnapshot = health.Model
	}

	ui := p.UILanguage
	body := renderStats(st, i18n.T(ui, "time"), i18n.T(ui, "duration"), i18n.T(ui, "segments"))
	w.d.Sender.Send(ctx, job.OwnerID, i18n.T(ui, "processing_complete")+"\n"+body, opts)
}

func renderIntro(ui string, p prefs.Preferences, audioSeconds float64, segments int) string {
	intro := i18n.T(ui, "audio_received") + "\n"
	if audioSeconds > 0 {
		intro += fmt.Sprintf("%s: %s\n", i18n.T(ui, "duration"), formatTimestamp(audioSeconds))
	}
	intro += fmt.Sprintf("%s: %s | %s: %s\n", i18n.T(ui, "language"), p.Language, i18n.T(ui, "mode"), p.Mode)
	if segments > 1 {
		intro += fmt.Sprintf("%s: %d\n", i18n.T(ui, "segments"), segments)
	}
	intro += i18n.T(ui, "processing")
	return intro
}

func (w *Worker) observeStage(stage string, d time.Duration) {
	if w.d.Stages != nil {
		w.d.Stages.Observe(stage, d)
	}
}

func (w *Worker) countSegment(status string) {
	if w.d.Metrics != nil {
		w.d.Metrics.SegmentsProcessed.WithLabelValues(status).Inc()
	}
}

func (w *Worker) countInference(task inference.Task, err error) {
	if w.d.Metrics == nil {
		return
	}
	code := "ok"
	switch {
	case inference.IsBusy(err):
		code = "busy"
	case err != nil:
		code = "error"
	}
	w.d.Metrics.InferenceRequests.WithLabelValues(string(task), code).Inc()
}

func (w *Worker) publish(event Event) {
	if w.d.Bus != nil {
		w.d.Bus.Publish(event)
	}
}

func (w *Worker) publishTerminal(job queue.Job, t EventType, message string) {
	w.publish(Event{JobID: job.JobID, OwnerID: job.OwnerID, Type: t, Message: message})
}

func removeQuiet(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("pipeline: cleanup %s: %v", path, err)
	}
}
