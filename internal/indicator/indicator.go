// Package indicator handles visual state notifications and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mkurien/drillcoach/internal/config"
)

// DesktopNotify is the concrete indicator implementation used by runtime
// sessions. Visual state is routed as replaceable freedesktop notifications;
// cues are short audio tones played between state changes.
type DesktopNotify struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
}

// New creates an indicator controller from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *DesktopNotify {
	return &DesktopNotify{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

// ShowAcquiring signals the camera search phase.
func (d *DesktopNotify) ShowAcquiring(ctx context.Context) {
	d.show(ctx, 300000, d.messages.acquiring)
}

// ShowLive signals that a confirmed camera stream is up.
func (d *DesktopNotify) ShowLive(ctx context.Context) {
	d.show(ctx, 300000, d.messages.live)
}

// ShowRecording signals capture in progress.
func (d *DesktopNotify) ShowRecording(ctx context.Context) {
	d.show(ctx, 300000, d.messages.recording)
}

// ShowAnalyzing signals submission progress as a bounded percentage.
func (d *DesktopNotify) ShowAnalyzing(ctx context.Context, percent int) {
	d.show(ctx, 300000, d.messages.analyzing(percent))
}

// ShowError displays an error-state indicator message with a short timeout.
func (d *DesktopNotify) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = d.messages.errorText
	}
	timeout := d.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	d.show(ctx, timeout, text)
}

// CueRecord emits the recording-started cue.
func (d *DesktopNotify) CueRecord(context.Context) {
	d.playCue(cueRecord)
}

// CueStop emits the recording-stopped cue.
func (d *DesktopNotify) CueStop(context.Context) {
	d.playCue(cueStop)
}

// CueComplete emits the analysis-delivered cue.
func (d *DesktopNotify) CueComplete(context.Context) {
	d.playCue(cueComplete)
}

// CueError emits the failure cue.
func (d *DesktopNotify) CueError(context.Context) {
	d.playCue(cueError)
}

// Hide dismisses the active indicator surface.
func (d *DesktopNotify) Hide(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, d.dismiss)
}

// show sends one replaceable desktop notification when indicators are enabled.
func (d *DesktopNotify) show(ctx context.Context, timeoutMS int, text string) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, timeoutMS, text)
	})
}

// notify sends a replaceable desktop notification and stores its ID.
func (d *DesktopNotify) notify(ctx context.Context, timeoutMS int, text string) error {
	d.mu.Lock()
	replaceID := d.notificationID
	d.mu.Unlock()

	appName := strings.TrimSpace(d.cfg.DesktopAppName)
	if appName == "" {
		appName = "drillcoach"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.notificationID = id
	d.mu.Unlock()
	return nil
}

// dismiss closes the current desktop notification ID when present.
func (d *DesktopNotify) dismiss(ctx context.Context) error {
	d.mu.Lock()
	id := d.notificationID
	d.notificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (d *DesktopNotify) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (d *DesktopNotify) playCue(kind cueKind) {
	if !d.cfg.SoundEnable {
		return
	}
	go func() {
		d.soundMu.Lock()
		defer d.soundMu.Unlock()
		if err := emitCue(kind, d.cfg); err != nil {
			d.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (d *DesktopNotify) log(message string, err error) {
	if d.logger == nil || err == nil {
		return
	}
	d.logger.Debug(message, "error", err.Error())
}
