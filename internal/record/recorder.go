// Package record accumulates encoded frame segments from a live stream into
// one submittable video payload.
package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PayloadMIME is the fixed container type for assembled recordings. Segments
// are complete JPEG frames, so their concatenation is a motion-JPEG stream.
const PayloadMIME = "video/x-motion-jpeg"

// DefaultFrameInterval paces frame pulls at roughly 15 fps.
const DefaultFrameInterval = 66 * time.Millisecond

// ErrEmptyRecording indicates stop found zero buffered segments; a zero-length
// payload is never submitted.
var ErrEmptyRecording = errors.New("recording produced no data; check that the stream is delivering frames")

// FrameSource is the stream subset a recorder pulls segments from.
type FrameSource interface {
	Grab(ctx context.Context) ([]byte, error)
}

// Payload is one assembled recording artifact.
type Payload struct {
	Data []byte
	MIME string
}

// Recorder buffers frame segments in arrival order between Start and Stop.
type Recorder struct {
	logger   *slog.Logger
	source   FrameSource
	interval time.Duration
	onChunk  func(size int)

	mu      sync.Mutex
	chunks  [][]byte
	started bool
	stopped bool
	payload Payload
	stopErr error

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a recorder over one frame source. onChunk, when set, is
// invoked for every buffered segment.
func New(logger *slog.Logger, source FrameSource, interval time.Duration, onChunk func(size int)) *Recorder {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Recorder{
		logger:   logger,
		source:   source,
		interval: interval,
		onChunk:  onChunk,
	}
}

// Start clears any buffered segments and begins pulling frames.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("recorder already started")
	}
	r.started = true
	r.chunks = nil

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx)
	return nil
}

// loop pulls one segment per interval until cancellation. Transient grab
// failures are logged and skipped; the next tick retries.
func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			segment, err := r.source.Grab(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logDebug("frame grab failed", err)
				continue
			}
			if len(segment) == 0 {
				continue
			}
			r.append(segment)
		}
	}
}

func (r *Recorder) append(segment []byte) {
	r.mu.Lock()
	r.chunks = append(r.chunks, segment)
	r.mu.Unlock()

	if r.onChunk != nil {
		r.onChunk(len(segment))
	}
}

// Stop halts frame pulls and assembles buffered segments, in arrival order,
// into one payload. The recorder is released regardless of whether any data
// arrived; calling Stop again returns the first result.
func (r *Recorder) Stop() (Payload, error) {
	r.mu.Lock()
	if r.stopped {
		payload, err := r.payload, r.stopErr
		r.mu.Unlock()
		return payload, err
	}
	r.stopped = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, chunk := range r.chunks {
		total += len(chunk)
	}
	if total == 0 {
		r.stopErr = ErrEmptyRecording
		return Payload{}, r.stopErr
	}

	data := make([]byte, 0, total)
	for _, chunk := range r.chunks {
		data = append(data, chunk...)
	}
	r.chunks = nil
	r.payload = Payload{Data: data, MIME: PayloadMIME}
	return r.payload, nil
}

// BufferedChunks reports the number of segments currently held.
func (r *Recorder) BufferedChunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func (r *Recorder) logDebug(message string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Debug(message, "error", err.Error())
}
