// Package analyze submits captured media to the remote analysis service and
// normalizes its responses.
package analyze

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	uploadPath = "/upload_and_analyze"
	framePath  = "/analyze_live_frame"

	// networkErrorText is the fixed message for transport-level and
	// malformed-response failures, distinct from service-reported rejections.
	networkErrorText = "network"
)

// Simulated progress pacing. The estimate is UI feedback only; it carries no
// correctness contract.
const (
	progressTick    = 150 * time.Millisecond
	progressStep    = 4
	progressStart   = 5
	progressCeiling = 96
	progressDone    = 100
)

// Result is the normalized analysis outcome delivered to the session.
type Result struct {
	Success        bool
	ReportText     string
	AnnotatedImage []byte
	ErrMessage     string
}

// Progress receives monotonically increasing percentage estimates, bounded
// at 100.
type Progress func(percent int)

// serviceResponse is the remote wire shape for both endpoints.
type serviceResponse struct {
	Success        bool    `json:"success"`
	Feedback       string  `json:"feedback"`
	AnnotatedImage *string `json:"annotated_image_b64"`
	Error          string  `json:"error"`
}

// Client talks to the remote analysis service.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient constructs an analysis client for one service base URL. A
// non-positive timeout selects the default upload bound.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SubmitVideo posts an assembled recording plus drill selection.
func (c *Client) SubmitVideo(ctx context.Context, data []byte, mimeType string, drillSelection []string, onProgress Progress) Result {
	return c.submit(ctx, uploadPath, "video", uuid.NewString()+".mjpeg", mimeType, data, drillSelection, onProgress)
}

// SubmitFrame posts a single still frame plus drill selection.
func (c *Client) SubmitFrame(ctx context.Context, data []byte, drillSelection []string, onProgress Progress) Result {
	return c.submit(ctx, framePath, "image", uuid.NewString()+".jpg", "image/jpeg", data, drillSelection, onProgress)
}

func (c *Client) submit(ctx context.Context, path string, field string, filename string, contentType string, data []byte, drillSelection []string, onProgress Progress) Result {
	stopProgress := startProgress(onProgress)
	defer stopProgress()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return c.networkFailure("create multipart payload", err)
	}
	if _, err := part.Write(data); err != nil {
		return c.networkFailure("write multipart payload", err)
	}

	drillsJSON, err := json.Marshal(drillSelection)
	if err != nil {
		return c.networkFailure("encode drill selection", err)
	}
	if err := writer.WriteField("drills", string(drillsJSON)); err != nil {
		return c.networkFailure("write drill selection", err)
	}
	if err := writer.Close(); err != nil {
		return c.networkFailure("finalize multipart payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return c.networkFailure("build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return c.networkFailure("post "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return c.networkFailure("read response", err)
	}

	var decoded serviceResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return c.networkFailure(fmt.Sprintf("malformed response (HTTP %d)", resp.StatusCode), err)
	}

	if !decoded.Success {
		message := strings.TrimSpace(decoded.Error)
		if message == "" {
			return c.networkFailure(fmt.Sprintf("response without error detail (HTTP %d)", resp.StatusCode), nil)
		}
		return Result{Success: false, ErrMessage: message}
	}

	result := Result{Success: true, ReportText: decoded.Feedback}
	if decoded.AnnotatedImage != nil && *decoded.AnnotatedImage != "" {
		image, decodeErr := base64.StdEncoding.DecodeString(*decoded.AnnotatedImage)
		if decodeErr != nil {
			return c.networkFailure("decode annotated image", decodeErr)
		}
		result.AnnotatedImage = image
	}
	return result
}

// networkFailure logs the underlying cause and returns the fixed transport
// failure result.
func (c *Client) networkFailure(message string, err error) Result {
	if c.logger != nil {
		if err != nil {
			c.logger.Warn("analysis submission failed", "detail", message, "error", err.Error())
		} else {
			c.logger.Warn("analysis submission failed", "detail", message)
		}
	}
	return Result{Success: false, ErrMessage: networkErrorText}
}

// startProgress runs the simulated progress estimate until the returned stop
// function is called; stop emits the final 100.
func startProgress(onProgress Progress) func() {
	if onProgress == nil {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		percent := progressStart
		onProgress(percent)

		ticker := time.NewTicker(progressTick)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if percent < progressCeiling {
					percent += progressStep
					if percent > progressCeiling {
						percent = progressCeiling
					}
					onProgress(percent)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
		onProgress(progressDone)
	}
}
