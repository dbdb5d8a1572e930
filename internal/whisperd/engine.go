package whisperd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/innervoice/internal/inference"
)

// Engine performs speech inference on a prepared WAV file. The
// subprocess implementation holds the model in accelerator memory for
// its whole lifetime, so Close is the unload operation.
type Engine interface {
	Infer(ctx context.Context, wavPath string, task inference.Task, language string, wantSegments bool) (inference.Result, error)
	Close() error
}

// EngineFactory loads a model and returns the engine holding it.
type EngineFactory func(ctx context.Context) (Engine, error)

// serverEngine drives a whisper-server subprocess bound to a loopback
// port. Requests are serialized; the server runs a single processor.
type serverEngine struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	baseURL  string
	client   *http.Client
	logTail  *tailBuffer
	language string
	closed   bool
}

// StartServerEngine launches the inference subprocess and waits for it
// to become reachable. The model is resident once this returns.
func StartServerEngine(bin, modelPath, language string) (Engine, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	port, err := pickFreePort()
	if err != nil {
		return nil, err
	}

	args := []string{
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-m", modelPath,
	}
	if language != "" {
		args = append(args, "-l", language)
	}

	tail := newTailBuffer(24 << 10)
	cmd := exec.Command(path, args...)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	client := &http.Client{}

	// Wait until the server is reachable.
	deadline := time.Now().Add(25 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/", nil)
		resp, err := client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return &serverEngine{
					cmd:      cmd,
					baseURL:  baseURL,
					client:   client,
					logTail:  tail,
					language: language,
				}, nil
			}
		}
		time.Sleep(80 * time.Millisecond)
	}

	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	msg := tail.String()
	if msg == "" {
		msg = "inference server did not become ready"
	}
	return nil, fmt.Errorf("%s", msg)
}

func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok || addr == nil || addr.Port == 0 {
		return 0, fmt.Errorf("failed to allocate port")
	}
	return addr.Port, nil
}

func (e *serverEngine) Infer(ctx context.Context, wavPath string, task inference.Task, language string, wantSegments bool) (inference.Result, error) {
	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return inference.Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return inference.Result{}, fmt.Errorf("inference server closed")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		_ = mw.Close()
		return inference.Result{}, err
	}
	if _, err := fw.Write(audio); err != nil {
		_ = mw.Close()
		return inference.Result{}, err
	}
	_ = mw.WriteField("temperature", "0.0")
	_ = mw.WriteField("response_format", "verbose_json")
	if task == inference.TaskTranslate {
		_ = mw.WriteField("translate", "true")
	}
	if lang := strings.TrimSpace(language); lang != "" {
		_ = mw.WriteField("language", lang)
	} else if e.language != "" {
		_ = mw.WriteField("language", e.language)
	}
	if err := mw.Close(); err != nil {
		return inference.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/inference", &body)
	if err != nil {
		return inference.Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return inference.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return inference.Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return inference.Result{}, fmt.Errorf("inference server HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Text     string `json:"text"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return inference.Result{}, fmt.Errorf("decode inference response: %w", err)
	}

	result := inference.Result{Text: strings.TrimSpace(out.Text)}
	if wantSegments {
		for _, seg := range out.Segments {
			result.Segments = append(result.Segments, inference.SegmentMark{
				Start: seg.Start,
				End:   seg.End,
				Text:  strings.TrimSpace(seg.Text),
			})
		}
	}
	return result, nil
}

func (e *serverEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cmd := e.cmd
	e.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Best-effort graceful shutdown.
	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(1200 * time.Millisecond):
		_ = cmd.Process.Kill()
		<-done
	case <-done:
	}
	return nil
}

// tailBuffer keeps only the last max bytes written, for error reports.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
