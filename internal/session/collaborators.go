package session

import (
	"context"

	"github.com/mkurien/drillcoach/internal/analyze"
	"github.com/mkurien/drillcoach/internal/camera"
	"github.com/mkurien/drillcoach/internal/record"
)

// Catalog resolves the prioritized capture-device candidate list.
type Catalog interface {
	Candidates(ctx context.Context) ([]string, error)
}

// CatalogFunc adapts a function to the Catalog interface.
type CatalogFunc func(ctx context.Context) ([]string, error)

func (f CatalogFunc) Candidates(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// Acquirer turns a candidate list into one confirmed-renderable live stream.
type Acquirer interface {
	Acquire(ctx context.Context, candidates []string) (camera.Stream, string, error)
}

// Submitter posts captured media to the analysis service.
type Submitter interface {
	SubmitVideo(ctx context.Context, data []byte, mimeType string, drillSelection []string, onProgress analyze.Progress) analyze.Result
	SubmitFrame(ctx context.Context, data []byte, drillSelection []string, onProgress analyze.Progress) analyze.Result
}

// Speaker schedules a spoken rendition of a report.
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// SpeakerFunc adapts a function to the Speaker interface.
type SpeakerFunc func(ctx context.Context, text string)

func (f SpeakerFunc) Speak(ctx context.Context, text string) {
	f(ctx, text)
}

// Recorder is the session-facing subset of recorder behavior.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (record.Payload, error)
	BufferedChunks() int
}

// RecorderFactory builds a fresh recorder over one frame source per
// recording round.
type RecorderFactory func(source record.FrameSource, onChunk func(size int)) Recorder

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowAcquiring(context.Context)
	ShowLive(context.Context)
	ShowRecording(context.Context)
	ShowAnalyzing(context.Context, int)
	ShowError(context.Context, string)
	CueRecord(context.Context)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueError(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowAcquiring(context.Context)      {}
func (noopIndicator) ShowLive(context.Context)           {}
func (noopIndicator) ShowRecording(context.Context)      {}
func (noopIndicator) ShowAnalyzing(context.Context, int) {}
func (noopIndicator) ShowError(context.Context, string)  {}
func (noopIndicator) CueRecord(context.Context)          {}
func (noopIndicator) CueStop(context.Context)            {}
func (noopIndicator) CueComplete(context.Context)        {}
func (noopIndicator) CueError(context.Context)           {}
func (noopIndicator) Hide(context.Context)               {}
