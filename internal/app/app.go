// Package app wires configuration, IPC, and the capture session into the
// drillcoach command surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mkurien/drillcoach/internal/analyze"
	"github.com/mkurien/drillcoach/internal/camera"
	"github.com/mkurien/drillcoach/internal/cli"
	"github.com/mkurien/drillcoach/internal/config"
	"github.com/mkurien/drillcoach/internal/doctor"
	"github.com/mkurien/drillcoach/internal/drills"
	"github.com/mkurien/drillcoach/internal/indicator"
	"github.com/mkurien/drillcoach/internal/ipc"
	"github.com/mkurien/drillcoach/internal/logging"
	"github.com/mkurien/drillcoach/internal/record"
	"github.com/mkurien/drillcoach/internal/session"
	"github.com/mkurien/drillcoach/internal/version"
	"github.com/mkurien/drillcoach/internal/voice"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("drillcoach"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("drillcoach"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandRecord:
		return r.forwardOrFail(ctx, "record")
	case cli.CommandStop:
		return r.forwardOrFail(ctx, "stop")
	case cli.CommandFrame:
		return r.forwardOrFail(ctx, "frame")
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, "cancel")
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, parsed.Drills, logger)
	case cli.CommandUpload:
		return r.commandUpload(ctx, cfgLoaded.Config, parsed, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := camera.Enumerate(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no capture devices found")
		return 1
	}

	for _, device := range devices {
		priorityMark := " "
		if device.Class == camera.ClassExternal {
			priorityMark = "*"
		}
		label := device.Label
		if label == "" {
			label = "(unnamed)"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | label=%q | class=%s\n",
			priorityMark,
			device.ID,
			label,
			device.Class,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		if resp.Device != "" {
			fmt.Fprintf(r.Stdout, "%s (%s)\n", resp.State, resp.Device)
			return 0
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active drillcoach session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandRun(ctx context.Context, cfg config.Config, selection []string, logger *slog.Logger) int {
	resolved, err := resolveDrillSelection(selection, cfg.Drills.Default)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a drillcoach session is already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	controller := session.NewController(logger, r.sessionDeps(cfg, logger))

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Run(ctx, resolved)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)

	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}

	return 0
}

// commandUpload submits an already-captured clip for analysis. No camera is
// acquired and no IPC surface is exposed; the run is one submission long.
func (r Runner) commandUpload(ctx context.Context, cfg config.Config, parsed cli.Parsed, logger *slog.Logger) int {
	resolved, err := resolveDrillSelection(parsed.Drills, cfg.Drills.Default)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	data, err := os.ReadFile(parsed.UploadPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: read video: %v\n", err)
		return 1
	}
	if len(data) == 0 {
		fmt.Fprintf(r.Stderr, "error: video file is empty: %s\n", parsed.UploadPath)
		return 1
	}

	controller := session.NewController(logger, r.sessionDeps(cfg, logger))
	result := controller.RunUpload(ctx, record.Payload{
		Data: data,
		MIME: uploadMIME(parsed.UploadPath),
	}, resolved)

	logSessionResult(logger, result)

	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	return 0
}

// uploadMIME maps a clip's file extension to its upload content type.
func uploadMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

// sessionDeps assembles the live collaborators behind a capture session.
func (r Runner) sessionDeps(cfg config.Config, logger *slog.Logger) session.Deps {
	client := analyze.NewClient(
		cfg.Service.URL,
		time.Duration(cfg.Service.UploadTimeoutMS)*time.Millisecond,
		logger,
	)

	var speaker session.Speaker
	if cfg.Voice.Enable {
		speaker = voice.NewSpeaker(
			cfg.Service.URL,
			time.Duration(cfg.Service.VoiceTimeoutMS)*time.Millisecond,
			voice.PulsePlayer{},
			logger,
			nil,
		)
	}

	frameInterval := time.Duration(cfg.Recording.FrameIntervalMS) * time.Millisecond

	return session.Deps{
		Catalog:   candidateCatalog(cfg.Camera),
		Acquirer:  camera.NewEngine(logger, time.Duration(cfg.Camera.ConfirmTimeoutMS)*time.Millisecond),
		Submitter: client,
		Speaker:   speaker,
		Indicator: indicator.New(cfg.Indicator, logger),
		NewRecorder: func(source record.FrameSource, onChunk func(int)) session.Recorder {
			return record.New(logger, source, frameInterval, onChunk)
		},
		OnResult: func(outcome analyze.Result) {
			if outcome.Success {
				fmt.Fprintln(r.Stdout, outcome.ReportText)
				return
			}
			fmt.Fprintf(r.Stderr, "analysis failed: %s\n", outcome.ErrMessage)
		},
	}
}

// candidateCatalog enumerates capture devices on every acquisition attempt so
// a camera plugged in after startup is still found.
func candidateCatalog(cfg config.CameraConfig) session.CatalogFunc {
	return func(ctx context.Context) ([]string, error) {
		devices, err := camera.Enumerate(ctx)
		if err != nil {
			return nil, err
		}
		if cfg.PreferExternal {
			return camera.BuildCandidateList(devices)
		}

		seen := make(map[string]struct{}, len(devices))
		ids := make([]string, 0, len(devices))
		for _, device := range devices {
			if device.Kind != camera.KindVideo {
				continue
			}
			if _, dup := seen[device.ID]; dup {
				continue
			}
			seen[device.ID] = struct{}{}
			ids = append(ids, device.ID)
		}
		if len(ids) == 0 {
			return nil, camera.ErrNoDevices
		}
		return ids, nil
	}
}

// resolveDrillSelection prefers the CLI selection over the configured default
// and rejects unknown drill ids up front.
func resolveDrillSelection(fromCLI []string, fromConfig []string) ([]string, error) {
	selection := fromCLI
	if len(selection) == 0 {
		selection = fromConfig
	}
	if len(selection) == 0 {
		return nil, errors.New("no drills selected; pass --drills or set drills.default")
	}

	parsed, err := drills.ParseSelection(strings.Join(selection, ","))
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"device", result.DeviceID,
		"submissions", result.Submissions,
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
