package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultConfirmTimeout bounds the wait for the first renderable frame after
// a device opens. Open success does not guarantee renderable frames; virtual
// and forwarded cameras commonly accept the open and then deliver nothing.
const DefaultConfirmTimeout = 8 * time.Second

// Opener opens a live stream constrained to exactly one device id.
type Opener func(ctx context.Context, deviceID string) (Stream, error)

// ExhaustedError reports that every candidate device failed acquisition.
type ExhaustedError struct {
	Tried      int
	LastReason error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("stream acquisition exhausted after %d device(s): %v", e.Tried, e.LastReason)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastReason
}

// PlaybackError reports a device that opened but never became renderable.
type PlaybackError struct {
	DeviceID string
	Reason   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("stream from %s not renderable: %v", e.DeviceID, e.Reason)
}

func (e *PlaybackError) Unwrap() error {
	return e.Reason
}

// Engine turns a prioritized candidate list into one confirmed-renderable
// live stream.
type Engine struct {
	logger         *slog.Logger
	open           Opener
	confirmTimeout time.Duration
}

// NewEngine constructs an acquisition engine backed by the platform opener.
// A non-positive confirmTimeout selects DefaultConfirmTimeout.
func NewEngine(logger *slog.Logger, confirmTimeout time.Duration) *Engine {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &Engine{
		logger:         logger,
		open:           OpenDevice,
		confirmTimeout: confirmTimeout,
	}
}

// Acquire iterates candidates in order and returns the first stream that both
// opens and delivers a renderable frame within the confirm timeout. Nothing
// is retained from failed attempts. Timer expiry is a hard failure for that
// device; the only retry is advancing to the next candidate.
func (e *Engine) Acquire(ctx context.Context, candidates []string) (Stream, string, error) {
	var lastReason error
	tried := 0

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		tried++

		stream, err := e.open(ctx, id)
		if err != nil {
			lastReason = err
			e.logDebug("device open failed", id, err)
			continue
		}

		if err := e.confirmRenderable(ctx, stream); err != nil {
			_ = stream.Release()
			lastReason = &PlaybackError{DeviceID: id, Reason: err}
			e.logDebug("playability confirmation failed", id, err)
			continue
		}

		return stream, id, nil
	}

	return nil, "", &ExhaustedError{Tried: tried, LastReason: lastReason}
}

// confirmRenderable waits, with one bounded timer, for the stream's first
// decodable frame.
func (e *Engine) confirmRenderable(ctx context.Context, stream Stream) error {
	timeout := e.confirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := stream.Grab(waitCtx)
		done <- err
	}()

	select {
	case <-waitCtx.Done():
		return fmt.Errorf("no renderable frame within %s", timeout)
	case err := <-done:
		if err != nil {
			return fmt.Errorf("first frame: %w", err)
		}
		return nil
	}
}

func (e *Engine) logDebug(message string, deviceID string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Debug(message, "device", deviceID, "error", err.Error())
}
