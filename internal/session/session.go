// Package session coordinates the capture/record/analyze lifecycle, owning
// the single authoritative state and the stream/recorder handles.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkurien/drillcoach/internal/analyze"
	"github.com/mkurien/drillcoach/internal/camera"
	"github.com/mkurien/drillcoach/internal/fsm"
	"github.com/mkurien/drillcoach/internal/ipc"
	"github.com/mkurien/drillcoach/internal/record"
)

type action int

const (
	actionRecord action = iota + 1
	actionStop
	actionFrame
	actionCancel
)

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State       fsm.State
	DeviceID    string
	Submissions int
	Cancelled   bool
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Deps bundles the collaborators a controller drives. Nil entries get safe
// fallbacks where flow permits it.
type Deps struct {
	Catalog     Catalog
	Acquirer    Acquirer
	Submitter   Submitter
	Speaker     Speaker
	Indicator   Indicator
	NewRecorder RecorderFactory
	OnResult    func(analyze.Result)
}

// Controller orchestrates session state transitions and resource ownership.
// It is the single writer of session state; command intake is serialized
// through one buffered action channel so a request arriving during a pending
// transition is rejected against current state, never applied to a stale
// snapshot.
type Controller struct {
	logger *slog.Logger
	deps   Deps

	mu       sync.RWMutex
	state    fsm.State
	stream   camera.Stream
	recorder Recorder
	deviceID string
	lastErr  error

	drillSelection []string
	submissions    int

	actions chan action
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(logger *slog.Logger, deps Deps) *Controller {
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}
	if deps.Speaker == nil {
		deps.Speaker = SpeakerFunc(func(context.Context, string) {})
	}
	if deps.OnResult == nil {
		deps.OnResult = func(analyze.Result) {}
	}
	if deps.NewRecorder == nil {
		deps.NewRecorder = func(source record.FrameSource, onChunk func(int)) Recorder {
			return record.New(logger, source, 0, onChunk)
		}
	}

	return &Controller{
		logger:  logger,
		deps:    deps,
		state:   fsm.StateIdle,
		actions: make(chan action, 1),
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the most recent attempt-terminating error.
func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// DeviceID returns the device backing the held stream, when live.
func (c *Controller) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run executes one session lifecycle: acquire a stream, then serve
// record/stop/frame/cancel actions until teardown. Every exit path releases
// the recorder first and the stream second.
func (c *Controller) Run(ctx context.Context, drillSelection []string) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.transition(fsm.EventStart); err != nil {
		return c.finish(result, err, false)
	}

	c.mu.Lock()
	c.lastErr = nil
	c.submissions = 0
	c.drillSelection = append([]string(nil), drillSelection...)
	c.mu.Unlock()

	c.deps.Indicator.ShowAcquiring(ctx)

	if err := c.goLive(ctx); err != nil {
		c.deps.Indicator.ShowError(ctx, "Unable to start camera")
		c.setLastError(err)
		c.toErrorAndReset()
		return c.finish(result, err, false)
	}
	result.DeviceID = c.DeviceID()
	c.deps.Indicator.ShowLive(ctx)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		c.deps.Indicator.Hide(cleanupCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			c.teardown(ctx)
			result.Err = ctx.Err()
			return c.finish(result, result.Err, false)
		case a := <-c.actions:
			switch a {
			case actionCancel:
				c.deps.Indicator.CueStop(ctx)
				c.teardown(ctx)
				return c.finish(result, nil, true)
			case actionRecord:
				if err := c.startRecording(ctx); err != nil {
					c.setLastError(err)
					c.deps.Indicator.ShowError(ctx, err.Error())
					continue
				}
				c.deps.Indicator.CueRecord(ctx)
				c.deps.Indicator.ShowRecording(ctx)
			case actionStop:
				c.deps.Indicator.CueStop(ctx)
				c.stopAndAnalyze(ctx, &result)
			case actionFrame:
				c.frameAndAnalyze(ctx, &result)
			default:
				c.teardown(ctx)
				return c.finish(result, fmt.Errorf("unknown action %d", a), false)
			}
		}
	}
}

// RunUpload executes one one-shot submission of an already-captured clip.
// No camera is acquired; the lifecycle is idle -> analyzing -> idle and the
// result is delivered and spoken exactly as in the live flow.
func (c *Controller) RunUpload(ctx context.Context, payload record.Payload, drillSelection []string) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.transition(fsm.EventUpload); err != nil {
		return c.finish(result, err, false)
	}

	c.mu.Lock()
	c.lastErr = nil
	c.submissions = 0
	c.drillSelection = append([]string(nil), drillSelection...)
	c.mu.Unlock()

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		c.deps.Indicator.Hide(cleanupCtx)
	}()

	c.log("uploading clip", "bytes", len(payload.Data), "mime", payload.MIME)
	c.deps.Indicator.ShowAnalyzing(ctx, 0)

	outcome := c.deps.Submitter.SubmitVideo(ctx, payload.Data, payload.MIME, drillSelection, func(percent int) {
		c.deps.Indicator.ShowAnalyzing(ctx, percent)
	})
	c.deliver(ctx, outcome, &result)

	if err := c.transition(fsm.EventFinish); err != nil {
		return c.finish(result, err, false)
	}
	if !outcome.Success {
		return c.finish(result, fmt.Errorf("analysis failed: %s", outcome.ErrMessage), false)
	}
	return c.finish(result, nil, false)
}

// goLive resolves candidates and acquires one confirmed-renderable stream.
func (c *Controller) goLive(ctx context.Context) error {
	candidates, err := c.deps.Catalog.Candidates(ctx)
	if err != nil {
		return err
	}

	stream, deviceID, err := c.deps.Acquirer.Acquire(ctx, candidates)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.stream = stream
	c.deviceID = deviceID
	c.mu.Unlock()

	if err := c.transition(fsm.EventAcquired); err != nil {
		_ = stream.Release()
		c.mu.Lock()
		c.stream = nil
		c.deviceID = ""
		c.mu.Unlock()
		return err
	}

	c.log("stream acquired", "device", deviceID)
	return nil
}

// startRecording moves live -> recording, clearing buffered chunks by
// handing a fresh recorder to the stream.
func (c *Controller) startRecording(ctx context.Context) error {
	c.mu.RLock()
	stream := c.stream
	hasDrills := len(c.drillSelection) > 0
	c.mu.RUnlock()

	if !hasDrills {
		return errors.New("cannot record without a drill selection")
	}
	if stream == nil {
		return errors.New("cannot record without a live stream")
	}

	if err := c.transition(fsm.EventRecord); err != nil {
		return err
	}

	recorder := c.deps.NewRecorder(stream, func(size int) {
		// dataAvailable self-loop; buffered chunk arrival keeps state recording.
		_ = c.transition(fsm.EventChunk)
	})
	if err := recorder.Start(ctx); err != nil {
		_ = c.transition(fsm.EventStop)
		_ = c.transition(fsm.EventResult)
		return fmt.Errorf("start recorder: %w", err)
	}

	c.mu.Lock()
	c.recorder = recorder
	c.mu.Unlock()
	return nil
}

// stopAndAnalyze assembles the recording and submits it, then returns the
// session to live.
func (c *Controller) stopAndAnalyze(ctx context.Context, result *Result) {
	if err := c.transition(fsm.EventStop); err != nil {
		c.setLastError(err)
		return
	}

	c.mu.Lock()
	recorder := c.recorder
	c.recorder = nil
	c.mu.Unlock()

	payload, err := recorder.Stop()
	if err != nil {
		c.setLastError(err)
		c.deps.Indicator.CueError(ctx)
		c.deps.Indicator.ShowError(ctx, err.Error())
		c.backToLive(ctx)
		return
	}

	c.log("recording assembled", "bytes", len(payload.Data))
	c.deps.Indicator.ShowAnalyzing(ctx, 0)

	c.mu.RLock()
	selection := c.drillSelection
	c.mu.RUnlock()

	outcome := c.deps.Submitter.SubmitVideo(ctx, payload.Data, payload.MIME, selection, func(percent int) {
		c.deps.Indicator.ShowAnalyzing(ctx, percent)
	})
	c.deliver(ctx, outcome, result)
	c.backToLive(ctx)
}

// frameAndAnalyze snapshots the current frame and submits it directly.
func (c *Controller) frameAndAnalyze(ctx context.Context, result *Result) {
	c.mu.RLock()
	stream := c.stream
	selection := c.drillSelection
	c.mu.RUnlock()

	if stream == nil {
		c.setLastError(errors.New("cannot capture a frame without a live stream"))
		return
	}

	frame, err := stream.Snapshot()
	if err != nil {
		if errors.Is(err, camera.ErrFrameBlocked) {
			err = fmt.Errorf("%w; switch to another capture device", err)
		}
		c.setLastError(err)
		c.deps.Indicator.CueError(ctx)
		c.deps.Indicator.ShowError(ctx, err.Error())
		return
	}

	if err := c.transition(fsm.EventFrame); err != nil {
		c.setLastError(err)
		return
	}

	c.deps.Indicator.ShowAnalyzing(ctx, 0)
	outcome := c.deps.Submitter.SubmitFrame(ctx, frame, selection, func(percent int) {
		c.deps.Indicator.ShowAnalyzing(ctx, percent)
	})
	c.deliver(ctx, outcome, result)
	c.backToLive(ctx)
}

// deliver hands one analysis outcome to the result sink and, on success,
// schedules exactly one spoken rendition. Submission failures leave prior
// results untouched except for the shown message.
func (c *Controller) deliver(ctx context.Context, outcome analyze.Result, result *Result) {
	c.mu.Lock()
	c.submissions++
	result.Submissions = c.submissions
	c.mu.Unlock()

	c.deps.OnResult(outcome)

	if !outcome.Success {
		c.setLastError(fmt.Errorf("analysis failed: %s", outcome.ErrMessage))
		c.deps.Indicator.CueError(ctx)
		c.deps.Indicator.ShowError(ctx, outcome.ErrMessage)
		return
	}

	c.setLastError(nil)
	c.deps.Indicator.CueComplete(ctx)
	c.deps.Speaker.Speak(ctx, outcome.ReportText)
}

// backToLive applies the analyzing -> live result transition.
func (c *Controller) backToLive(ctx context.Context) {
	if err := c.transition(fsm.EventResult); err != nil {
		c.setLastError(err)
		return
	}
	c.deps.Indicator.ShowLive(ctx)
}

// teardown releases the recorder (if recording) then the stream (if held),
// resets session fields, and lands in idle. Safe to invoke redundantly from
// any state.
func (c *Controller) teardown(ctx context.Context) {
	c.mu.Lock()
	recorder := c.recorder
	stream := c.stream
	c.recorder = nil
	c.stream = nil
	c.deviceID = ""
	c.mu.Unlock()

	if recorder != nil {
		_, _ = recorder.Stop()
	}
	if stream != nil {
		if err := stream.Release(); err != nil {
			c.log("stream release failed", "error", err.Error())
		}
	}
	c.deps.Indicator.Hide(ctx)
	_ = c.transition(fsm.EventTeardown)
}

// Handle serves IPC commands for the active session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		resp := ipc.Response{OK: true, State: string(c.State()), Device: c.DeviceID(), Message: "status"}
		if err := c.LastError(); err != nil {
			resp.Message = err.Error()
		}
		return resp
	case "record":
		return c.request(actionRecord, "record", fsm.StateLive)
	case "stop":
		return c.request(actionStop, "stop", fsm.StateRecording)
	case "frame":
		return c.request(actionFrame, "frame", fsm.StateLive)
	case "cancel":
		return c.requestCancel()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Code: ipc.CodeUnsupported, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// request enqueues one action when current state permits it.
func (c *Controller) request(a action, source string, allowed fsm.State) ipc.Response {
	state := c.State()
	if state == fsm.StateAnalyzing {
		return ipc.Response{OK: false, State: string(state), Code: ipc.CodeBusy, Error: "analysis in progress"}
	}
	if state != allowed {
		return ipc.Response{OK: false, State: string(state), Code: ipc.CodeBadState, Error: fmt.Sprintf("cannot %s from state %s", source, state)}
	}

	select {
	case c.actions <- a:
		return ipc.Response{OK: true, State: string(state), Message: source + " requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: source + " already requested"}
	}
}

// requestCancel enqueues teardown; legal from every non-idle state.
func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	if state == fsm.StateIdle {
		return ipc.Response{OK: false, State: string(state), Code: ipc.CodeBadState, Error: "no active session"}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "cancel already requested"}
	}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
}

func (c *Controller) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Controller) finish(result Result, err error, cancelled bool) Result {
	result.State = c.State()
	if id := c.DeviceID(); id != "" {
		result.DeviceID = id
	}
	result.Err = err
	result.Cancelled = cancelled
	result.FinishedAt = time.Now()

	c.mu.RLock()
	result.Submissions = c.submissions
	c.mu.RUnlock()
	return result
}

func (c *Controller) log(message string, fields ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Info(message, fields...)
}
