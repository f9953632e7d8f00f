// Package voice requests and plays a spoken rendition of an analysis report,
// serializing a single in-flight request process-wide.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const voicePath = "/generate_polly_voice"

// ServiceError reports a transport, synthesis, or playback failure. It never
// affects an already-displayed analysis result.
type ServiceError struct {
	Stage string
	Err   error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("voice service %s failed: %v", e.Stage, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Player renders one synthesized audio payload to completion.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Speaker owns the process-wide voice playback guard.
type Speaker struct {
	baseURL string
	httpc   *http.Client
	player  Player
	logger  *slog.Logger
	onError func(error)

	inflight atomic.Bool
	wg       sync.WaitGroup
}

// NewSpeaker constructs a speaker for one synthesis service base URL. A
// non-positive timeout selects the default synthesis bound. onError, when
// set, receives playback failures asynchronously.
func NewSpeaker(baseURL string, timeout time.Duration, player Player, logger *slog.Logger, onError func(error)) *Speaker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Speaker{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: timeout},
		player:  player,
		logger:  logger,
		onError: onError,
	}
}

// Speak requests and plays a spoken rendition of text. A call while a request
// is in flight is a no-op. The guard is released exactly once, on playback
// completion or error, never on request dispatch.
func (s *Speaker) Speak(ctx context.Context, text string) {
	if !s.inflight.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Store(false)

		if err := s.speakOnce(ctx, text); err != nil {
			if s.logger != nil {
				s.logger.Warn("voice playback failed", "error", err.Error())
			}
			if s.onError != nil {
				s.onError(err)
			}
		}
	}()
}

// Busy reports whether a voice request is currently in flight.
func (s *Speaker) Busy() bool {
	return s.inflight.Load()
}

// Wait blocks until any in-flight playback finishes. Used on shutdown so a
// spoken report is not cut off mid-sentence.
func (s *Speaker) Wait() {
	s.wg.Wait()
}

func (s *Speaker) speakOnce(ctx context.Context, text string) error {
	sanitized := Sanitize(text)
	if sanitized == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"report_text": sanitized})
	if err != nil {
		return &ServiceError{Stage: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+voicePath, bytes.NewReader(payload))
	if err != nil {
		return &ServiceError{Stage: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return &ServiceError{Stage: "transport", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &ServiceError{Stage: "synthesis", Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return &ServiceError{Stage: "download", Err: err}
	}
	if len(audio) == 0 {
		return &ServiceError{Stage: "synthesis", Err: fmt.Errorf("empty audio response")}
	}

	if err := s.player.Play(ctx, audio); err != nil {
		return &ServiceError{Stage: "playback", Err: err}
	}
	return nil
}

// Sanitize constrains report text to a character set the synthesis service
// accepts: report borders and status glyphs are dropped, whitespace collapsed.
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(" .,:;!?'()%/-", r), r == '°':
			b.WriteRune(r)
		case r == '\n', r == '\t':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
