// Package config resolves, parses, validates, and defaults drillcoach configuration.
package config

// Config is the fully materialized runtime configuration used by drillcoach.
type Config struct {
	Service   ServiceConfig
	Camera    CameraConfig
	Recording RecordingConfig
	Drills    DrillsConfig
	Voice     VoiceConfig
	Indicator IndicatorConfig
}

// ServiceConfig locates the analysis backend and bounds its request times.
type ServiceConfig struct {
	URL             string
	UploadTimeoutMS int
	VoiceTimeoutMS  int
}

// CameraConfig controls device candidate ordering and acquisition bounds.
type CameraConfig struct {
	ConfirmTimeoutMS int
	PreferExternal   bool
}

// RecordingConfig controls frame capture cadence while recording.
type RecordingConfig struct {
	FrameIntervalMS int
}

// DrillsConfig holds the drill selection used when none is given on the CLI.
type DrillsConfig struct {
	Default []string
}

// VoiceConfig controls spoken report playback.
type VoiceConfig struct {
	Enable bool
}

// IndicatorConfig controls desktop notification and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	DesktopAppName    string
	SoundEnable       bool
	SoundRecordFile   string
	SoundStopFile     string
	SoundCompleteFile string
	SoundErrorFile    string
	SoundPlayCmd      CommandConfig
	ErrorTimeoutMS    int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
