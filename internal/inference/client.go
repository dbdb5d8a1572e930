package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/innervoice/internal/reliability"
)

// Client talks to whisperd's HTTP contract. Connection failures and
// retryable 5xx responses are retried with linear backoff; Busy is
// surfaced immediately so the worker can abort the whole job instead of
// grinding segment-by-segment against an occupied GPU.
type Client struct {
	baseURL string
	http    *http.Client

	// Retry is exported so tests can inject a no-op sleep.
	Retry reliability.Policy
}

func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		Retry: reliability.Policy{
			MaxAttempts: retries + 1,
			BaseDelay:   3 * time.Second,
			Classify:    isRetryable,
		},
	}
}

func isRetryable(err error) bool {
	if IsBusy(err) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return reliability.IsRetryableHTTPStatus(statusErr.status)
	}
	// Anything else at this level is a transport failure (connection
	// refused, timeout) and worth another attempt.
	return true
}

// Infer sends one audio segment for transcription or translation.
func (c *Client) Infer(ctx context.Context, segmentPath string, task Task, language string, wantSegments bool) (Result, error) {
	audio, err := os.ReadFile(segmentPath)
	if err != nil {
		return Result{}, fmt.Errorf("read segment: %w", err)
	}

	var result Result
	err = c.Retry.Do(ctx, func() error {
		r, callErr := c.infer(ctx, audio, filepath.Base(segmentPath), task, language, wantSegments)
		if callErr != nil {
			return callErr
		}
		result = r
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (c *Client) infer(ctx context.Context, audio []byte, filename string, task Task, language string, wantSegments bool) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("task", string(task))
	_ = mw.WriteField("return_segments", strconv.FormatBool(wantSegments))
	if language != "" {
		_ = mw.WriteField("language", language)
	}
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return Result{}, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &body)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return Result{}, busyFromBody(raw)
	}
	if resp.StatusCode >= 500 {
		// An OOM reported through a generic 5xx is "temporarily
		// saturated", not "permanently broken"; reclassify as Busy so
		// the owner gets the retry affordance.
		if busy := oomFromBody(raw); busy != nil {
			return Result{}, busy
		}
		return Result{}, &httpStatusError{status: resp.StatusCode, body: truncate(raw, 256)}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, &httpStatusError{status: resp.StatusCode, body: truncate(raw, 256)}
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	return out, nil
}

func busyFromBody(raw []byte) *BusyError {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error == CodeGPUBusy || body.Error == CodeGPUOOM {
			return &BusyError{Code: body.Error, Message: body.Message}
		}
	}
	return &BusyError{Code: CodeGPUBusy, Message: "service unavailable"}
}

func oomFromBody(raw []byte) *BusyError {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	if body.Error == CodeGPUOOM {
		return &BusyError{Code: CodeGPUOOM, Message: body.Message}
	}
	errMsg := strings.ToLower(body.Error)
	if strings.Contains(errMsg, "out of memory") || strings.Contains(errMsg, "outofmemoryerror") {
		msg := body.Message
		if msg == "" {
			msg = "GPU ran out of memory. Try again in a moment."
		}
		return &BusyError{Code: CodeGPUOOM, Message: msg}
	}
	return nil
}

// Health fetches whisperd's health payload, used for the post-job stats
// summary. Failures are non-fatal for callers.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.StatusCode}
	}
	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &out, nil
}

func truncate(raw []byte, n int) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > n {
		return s[:n]
	}
	return s
}
