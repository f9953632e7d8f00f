package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mkurien/drillcoach/internal/drills"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	serviceURL := strings.TrimSpace(cfg.Service.URL)
	if serviceURL == "" {
		return nil, fmt.Errorf("service.url must not be empty")
	}
	parsed, err := url.Parse(serviceURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("service.url must be an http(s) URL, got %q", serviceURL)
	}
	if cfg.Service.UploadTimeoutMS <= 0 {
		return nil, fmt.Errorf("service.upload_timeout_ms must be > 0")
	}
	if cfg.Service.VoiceTimeoutMS <= 0 {
		return nil, fmt.Errorf("service.voice_timeout_ms must be > 0")
	}

	if cfg.Camera.ConfirmTimeoutMS <= 0 {
		return nil, fmt.Errorf("camera.confirm_timeout_ms must be > 0")
	}
	if cfg.Recording.FrameIntervalMS <= 0 {
		return nil, fmt.Errorf("recording.frame_interval_ms must be > 0")
	}

	for _, id := range cfg.Drills.Default {
		if !drills.Valid(id) {
			return nil, fmt.Errorf("drills.default references unknown drill %q", id)
		}
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Indicator.SoundEnable && hasCueFile(cfg.Indicator) && len(cfg.Indicator.SoundPlayCmd.Argv) == 0 {
		return nil, fmt.Errorf("indicator.sound_play_cmd must not be empty when cue files are configured")
	}

	return warnings, nil
}

func hasCueFile(cfg IndicatorConfig) bool {
	for _, path := range []string{cfg.SoundRecordFile, cfg.SoundStopFile, cfg.SoundCompleteFile, cfg.SoundErrorFile} {
		if strings.TrimSpace(path) != "" {
			return true
		}
	}
	return false
}
