package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mkurien/drillcoach/internal/analyze"
	"github.com/mkurien/drillcoach/internal/camera"
	"github.com/mkurien/drillcoach/internal/fsm"
	"github.com/mkurien/drillcoach/internal/ipc"
	"github.com/mkurien/drillcoach/internal/record"
)

type fakeStream struct {
	id       string
	snapshot []byte
	snapErr  error
	releases atomic.Int32
}

func (f *fakeStream) DeviceID() string { return f.id }

func (f *fakeStream) Grab(context.Context) ([]byte, error) {
	return []byte("segment"), nil
}

func (f *fakeStream) Snapshot() ([]byte, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	return f.snapshot, nil
}

func (f *fakeStream) Release() error {
	f.releases.Add(1)
	return nil
}

type fakeAcquirer struct {
	stream camera.Stream
	id     string
	err    error
}

func (f *fakeAcquirer) Acquire(context.Context, []string) (camera.Stream, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.stream, f.id, nil
}

type fakeSubmitter struct {
	mu         sync.Mutex
	videoCalls int
	frameCalls int
	lastVideo  []byte
	lastMIME   string
	lastFrame  []byte
	lastDrills []string
	result     analyze.Result
	block      chan struct{}
}

func (f *fakeSubmitter) SubmitVideo(_ context.Context, data []byte, mimeType string, drillSelection []string, _ analyze.Progress) analyze.Result {
	f.mu.Lock()
	f.videoCalls++
	f.lastVideo = data
	f.lastMIME = mimeType
	f.lastDrills = drillSelection
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.result
}

func (f *fakeSubmitter) SubmitFrame(_ context.Context, data []byte, drillSelection []string, _ analyze.Progress) analyze.Result {
	f.mu.Lock()
	f.frameCalls++
	f.lastFrame = data
	f.lastDrills = drillSelection
	f.mu.Unlock()
	return f.result
}

type fakeRecorder struct {
	payload record.Payload
	stopErr error
	stops   atomic.Int32
}

func (f *fakeRecorder) Start(context.Context) error { return nil }

func (f *fakeRecorder) Stop() (record.Payload, error) {
	f.stops.Add(1)
	if f.stopErr != nil {
		return record.Payload{}, f.stopErr
	}
	return f.payload, nil
}

func (f *fakeRecorder) BufferedChunks() int { return 0 }

func candidates(ids ...string) Catalog {
	return CatalogFunc(func(context.Context) ([]string, error) {
		return ids, nil
	})
}

func waitForState(t *testing.T, ctrl *Controller, want fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ctrl.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state %s, still %s", want, ctrl.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestControllerAcquireFailureReturnsIdle(t *testing.T) {
	acquireErr := errors.New("all candidates failed")
	ctrl := NewController(nil, Deps{
		Catalog:  candidates("/dev/video0"),
		Acquirer: &fakeAcquirer{err: acquireErr},
	})

	result := ctrl.Run(context.Background(), []string{"salute"})
	if !errors.Is(result.Err, acquireErr) {
		t.Fatalf("expected acquire error, got %v", result.Err)
	}
	if state := ctrl.State(); state != fsm.StateIdle {
		t.Fatalf("expected idle after acquire failure, got %s", state)
	}
	if !errors.Is(ctrl.LastError(), acquireErr) {
		t.Fatalf("expected lastError set, got %v", ctrl.LastError())
	}
}

func TestControllerRecordStopSubmitsAndSpeaksOnce(t *testing.T) {
	stream := &fakeStream{id: "/dev/video2"}
	recorder := &fakeRecorder{payload: record.Payload{Data: []byte("mjpeg"), MIME: record.PayloadMIME}}
	submitter := &fakeSubmitter{result: analyze.Result{Success: true, ReportText: "report"}}

	var speaks atomic.Int32
	var delivered []analyze.Result
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video2"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video2"},
		Submitter: submitter,
		Speaker:   SpeakerFunc(func(context.Context, string) { speaks.Add(1) }),
		NewRecorder: func(record.FrameSource, func(int)) Recorder {
			return recorder
		},
		OnResult: func(r analyze.Result) { delivered = append(delivered, r) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, []string{"high_leg_march"})
	}()

	waitForState(t, ctrl, fsm.StateLive)
	if resp := ctrl.Handle(ctx, ipc.Request{Command: "record"}); !resp.OK {
		t.Fatalf("record response not OK: %+v", resp)
	}
	waitForState(t, ctrl, fsm.StateRecording)
	if resp := ctrl.Handle(ctx, ipc.Request{Command: "stop"}); !resp.OK {
		t.Fatalf("stop response not OK: %+v", resp)
	}
	waitForState(t, ctrl, fsm.StateLive)

	if got := submitter.videoCalls; got != 1 {
		t.Fatalf("expected one video submission, got %d", got)
	}
	if string(submitter.lastVideo) != "mjpeg" || submitter.lastMIME != record.PayloadMIME {
		t.Fatalf("unexpected payload: %q %q", submitter.lastVideo, submitter.lastMIME)
	}
	if len(submitter.lastDrills) != 1 || submitter.lastDrills[0] != "high_leg_march" {
		t.Fatalf("unexpected drill selection: %v", submitter.lastDrills)
	}
	if speaks.Load() != 1 {
		t.Fatalf("expected exactly one speak invocation, got %d", speaks.Load())
	}
	if len(delivered) != 1 || !delivered[0].Success {
		t.Fatalf("unexpected delivered results: %+v", delivered)
	}

	if resp := ctrl.Handle(ctx, ipc.Request{Command: "cancel"}); !resp.OK {
		t.Fatalf("cancel response not OK: %+v", resp)
	}
	result := <-resultCh
	if !result.Cancelled {
		t.Fatalf("expected cancelled result, got %+v", result)
	}
	if result.DeviceID != "/dev/video2" {
		t.Fatalf("unexpected device id: %q", result.DeviceID)
	}
	if result.Submissions != 1 {
		t.Fatalf("expected one submission in result, got %d", result.Submissions)
	}
	if stream.releases.Load() != 1 {
		t.Fatalf("expected stream released exactly once, got %d", stream.releases.Load())
	}
}

func TestRunUploadSubmitsAndFinishesIdle(t *testing.T) {
	submitter := &fakeSubmitter{result: analyze.Result{Success: true, ReportText: "report"}}

	var speaks atomic.Int32
	var delivered []analyze.Result
	ctrl := NewController(nil, Deps{
		Submitter: submitter,
		Speaker:   SpeakerFunc(func(context.Context, string) { speaks.Add(1) }),
		OnResult:  func(r analyze.Result) { delivered = append(delivered, r) },
	})

	payload := record.Payload{Data: []byte("clip"), MIME: "video/mp4"}
	result := ctrl.RunUpload(context.Background(), payload, []string{"salute"})

	if result.Err != nil {
		t.Fatalf("unexpected upload error: %v", result.Err)
	}
	if result.State != fsm.StateIdle {
		t.Fatalf("expected idle result state, got %s", result.State)
	}
	if state := ctrl.State(); state != fsm.StateIdle {
		t.Fatalf("expected controller idle after upload, got %s", state)
	}
	if result.Submissions != 1 {
		t.Fatalf("expected one submission, got %d", result.Submissions)
	}
	if string(submitter.lastVideo) != "clip" || submitter.lastMIME != "video/mp4" {
		t.Fatalf("unexpected payload: %q %q", submitter.lastVideo, submitter.lastMIME)
	}
	if len(submitter.lastDrills) != 1 || submitter.lastDrills[0] != "salute" {
		t.Fatalf("unexpected drill selection: %v", submitter.lastDrills)
	}
	if speaks.Load() != 1 {
		t.Fatalf("expected exactly one speak invocation, got %d", speaks.Load())
	}
	if len(delivered) != 1 || !delivered[0].Success {
		t.Fatalf("unexpected delivered results: %+v", delivered)
	}
}

func TestRunUploadFailureStillFinishesIdle(t *testing.T) {
	submitter := &fakeSubmitter{result: analyze.Result{Success: false, ErrMessage: "bad clip"}}

	var speaks atomic.Int32
	ctrl := NewController(nil, Deps{
		Submitter: submitter,
		Speaker:   SpeakerFunc(func(context.Context, string) { speaks.Add(1) }),
	})

	payload := record.Payload{Data: []byte("clip"), MIME: "video/webm"}
	result := ctrl.RunUpload(context.Background(), payload, []string{"turns"})

	if result.Err == nil || !strings.Contains(result.Err.Error(), "bad clip") {
		t.Fatalf("expected analysis failure error, got %v", result.Err)
	}
	if state := ctrl.State(); state != fsm.StateIdle {
		t.Fatalf("expected controller idle after failed upload, got %s", state)
	}
	if result.Submissions != 1 {
		t.Fatalf("expected one submission, got %d", result.Submissions)
	}
	if speaks.Load() != 0 {
		t.Fatalf("expected no speak invocation on failure, got %d", speaks.Load())
	}
}

func TestControllerFramePathSubmitsSnapshot(t *testing.T) {
	stream := &fakeStream{id: "/dev/video0", snapshot: []byte("jpeg")}
	submitter := &fakeSubmitter{result: analyze.Result{Success: true, ReportText: "frame report"}}
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video0"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video0"},
		Submitter: submitter,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, []string{"salute"})
	}()

	waitForState(t, ctrl, fsm.StateLive)
	if resp := ctrl.Handle(ctx, ipc.Request{Command: "frame"}); !resp.OK {
		t.Fatalf("frame response not OK: %+v", resp)
	}
	waitForState(t, ctrl, fsm.StateLive)

	if submitter.frameCalls != 1 {
		t.Fatalf("expected one frame submission, got %d", submitter.frameCalls)
	}
	if string(submitter.lastFrame) != "jpeg" {
		t.Fatalf("unexpected frame payload: %q", submitter.lastFrame)
	}

	ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	<-resultCh
}

func TestControllerBlockedFrameStaysLiveWithDistinctError(t *testing.T) {
	stream := &fakeStream{id: "/dev/video0", snapErr: camera.ErrFrameBlocked}
	submitter := &fakeSubmitter{}
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video0"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video0"},
		Submitter: submitter,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, []string{"salute"})
	}()

	waitForState(t, ctrl, fsm.StateLive)
	ctrl.Handle(ctx, ipc.Request{Command: "frame"})

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.LastError() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for frame error")
		}
		time.Sleep(time.Millisecond)
	}

	if !errors.Is(ctrl.LastError(), camera.ErrFrameBlocked) {
		t.Fatalf("expected frame-blocked error, got %v", ctrl.LastError())
	}
	if submitter.frameCalls != 0 {
		t.Fatalf("blocked frame must not be submitted")
	}
	if state := ctrl.State(); state != fsm.StateLive {
		t.Fatalf("expected live after blocked frame, got %s", state)
	}

	ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	<-resultCh
}

func TestControllerEmptyRecordingDoesNotSubmit(t *testing.T) {
	stream := &fakeStream{id: "/dev/video0"}
	recorder := &fakeRecorder{stopErr: record.ErrEmptyRecording}
	submitter := &fakeSubmitter{}
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video0"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video0"},
		Submitter: submitter,
		NewRecorder: func(record.FrameSource, func(int)) Recorder {
			return recorder
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, []string{"turns"})
	}()

	waitForState(t, ctrl, fsm.StateLive)
	ctrl.Handle(ctx, ipc.Request{Command: "record"})
	waitForState(t, ctrl, fsm.StateRecording)
	ctrl.Handle(ctx, ipc.Request{Command: "stop"})
	waitForState(t, ctrl, fsm.StateLive)

	if submitter.videoCalls != 0 {
		t.Fatalf("empty recording must not be submitted")
	}
	if !errors.Is(ctrl.LastError(), record.ErrEmptyRecording) {
		t.Fatalf("expected empty-recording error, got %v", ctrl.LastError())
	}

	ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	<-resultCh
}

func TestControllerRejectsCommandsWhileAnalyzing(t *testing.T) {
	stream := &fakeStream{id: "/dev/video0"}
	recorder := &fakeRecorder{payload: record.Payload{Data: []byte("x"), MIME: record.PayloadMIME}}
	submitter := &fakeSubmitter{result: analyze.Result{Success: true}, block: make(chan struct{})}
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video0"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video0"},
		Submitter: submitter,
		NewRecorder: func(record.FrameSource, func(int)) Recorder {
			return recorder
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, []string{"turns"})
	}()

	waitForState(t, ctrl, fsm.StateLive)
	ctrl.Handle(ctx, ipc.Request{Command: "record"})
	waitForState(t, ctrl, fsm.StateRecording)
	ctrl.Handle(ctx, ipc.Request{Command: "stop"})
	waitForState(t, ctrl, fsm.StateAnalyzing)

	if resp := ctrl.Handle(ctx, ipc.Request{Command: "record"}); resp.OK || resp.Error != "analysis in progress" || resp.Code != ipc.CodeBusy {
		t.Fatalf("expected record rejection while analyzing, got %+v", resp)
	}
	if resp := ctrl.Handle(ctx, ipc.Request{Command: "frame"}); resp.OK {
		t.Fatalf("expected frame rejection while analyzing, got %+v", resp)
	}

	close(submitter.block)
	waitForState(t, ctrl, fsm.StateLive)
	ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	<-resultCh
}

func TestControllerSubmissionFailureKeepsCameraLive(t *testing.T) {
	stream := &fakeStream{id: "/dev/video0"}
	recorder := &fakeRecorder{payload: record.Payload{Data: []byte("x"), MIME: record.PayloadMIME}}
	submitter := &fakeSubmitter{result: analyze.Result{Success: false, ErrMessage: "network"}}

	var speaks atomic.Int32
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video0"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video0"},
		Submitter: submitter,
		Speaker:   SpeakerFunc(func(context.Context, string) { speaks.Add(1) }),
		NewRecorder: func(record.FrameSource, func(int)) Recorder {
			return recorder
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, []string{"turns"})
	}()

	waitForState(t, ctrl, fsm.StateLive)
	ctrl.Handle(ctx, ipc.Request{Command: "record"})
	waitForState(t, ctrl, fsm.StateRecording)
	ctrl.Handle(ctx, ipc.Request{Command: "stop"})
	waitForState(t, ctrl, fsm.StateLive)

	if stream.releases.Load() != 0 {
		t.Fatalf("camera must stay active after submission failure")
	}
	if speaks.Load() != 0 {
		t.Fatalf("failed submission must not schedule voice playback")
	}

	ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	<-resultCh
}

func TestControllerRecordWithoutDrillSelectionRejected(t *testing.T) {
	stream := &fakeStream{id: "/dev/video0"}
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video0"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video0"},
		Submitter: &fakeSubmitter{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, nil)
	}()

	waitForState(t, ctrl, fsm.StateLive)
	ctrl.Handle(ctx, ipc.Request{Command: "record"})

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.LastError() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for rejection")
		}
		time.Sleep(time.Millisecond)
	}
	if state := ctrl.State(); state != fsm.StateLive {
		t.Fatalf("expected live after rejected record, got %s", state)
	}

	ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	<-resultCh
}

func TestControllerTeardownIsIdempotent(t *testing.T) {
	stream := &fakeStream{id: "/dev/video0"}
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video0"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video0"},
		Submitter: &fakeSubmitter{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, []string{"salute"})
	}()

	waitForState(t, ctrl, fsm.StateLive)
	ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	<-resultCh

	if state := ctrl.State(); state != fsm.StateIdle {
		t.Fatalf("expected idle after cancel, got %s", state)
	}
	if stream.releases.Load() != 1 {
		t.Fatalf("expected one release, got %d", stream.releases.Load())
	}

	ctrl.teardown(ctx)

	if state := ctrl.State(); state != fsm.StateIdle {
		t.Fatalf("expected idle after redundant teardown, got %s", state)
	}
	if stream.releases.Load() != 1 {
		t.Fatalf("redundant teardown must not touch released resources, got %d releases", stream.releases.Load())
	}
	if ctrl.DeviceID() != "" {
		t.Fatalf("expected cleared device id")
	}
}

func TestControllerContextCancellationTearsDown(t *testing.T) {
	stream := &fakeStream{id: "/dev/video0"}
	recorder := &fakeRecorder{payload: record.Payload{Data: []byte("x"), MIME: record.PayloadMIME}}
	ctrl := NewController(nil, Deps{
		Catalog:   candidates("/dev/video0"),
		Acquirer:  &fakeAcquirer{stream: stream, id: "/dev/video0"},
		Submitter: &fakeSubmitter{},
		NewRecorder: func(record.FrameSource, func(int)) Recorder {
			return recorder
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, []string{"salute"})
	}()

	waitForState(t, ctrl, fsm.StateLive)
	ctrl.Handle(ctx, ipc.Request{Command: "record"})
	waitForState(t, ctrl, fsm.StateRecording)

	cancel()
	result := <-resultCh

	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("expected context cancellation error, got %v", result.Err)
	}
	if recorder.stops.Load() == 0 {
		t.Fatalf("expected recorder stopped during teardown")
	}
	if stream.releases.Load() != 1 {
		t.Fatalf("expected stream released during teardown, got %d", stream.releases.Load())
	}
	if state := ctrl.State(); state != fsm.StateIdle {
		t.Fatalf("expected idle after teardown, got %s", state)
	}
}

func TestControllerHandleUnknownCommand(t *testing.T) {
	ctrl := NewController(nil, Deps{})
	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "warp"})
	if resp.OK || resp.Code != ipc.CodeUnsupported {
		t.Fatalf("expected rejection, got %+v", resp)
	}
}
