package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads key=value configuration content on top of the provided base.
//
// Lines are `section.key=value`; '#' starts a comment. Unknown keys produce
// warnings rather than errors so newer config files keep loading on older
// binaries.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base
	warnings := make([]Warning, 0)

	for index, raw := range strings.Split(content, "\n") {
		lineNo := index + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return Config{}, nil, fmt.Errorf("line %d: expected key=value, got %q", lineNo, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		known, err := applyKey(&cfg, key, value)
		if err != nil {
			return Config{}, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !known {
			warnings = append(warnings, Warning{Line: lineNo, Message: fmt.Sprintf("unknown key %q ignored", key)})
		}
	}

	return cfg, warnings, nil
}

// applyKey assigns one parsed value. The bool result reports key recognition.
func applyKey(cfg *Config, key, value string) (bool, error) {
	switch key {
	case "service.url":
		cfg.Service.URL = value
	case "service.upload_timeout_ms":
		return true, assignInt(&cfg.Service.UploadTimeoutMS, key, value)
	case "service.voice_timeout_ms":
		return true, assignInt(&cfg.Service.VoiceTimeoutMS, key, value)
	case "camera.confirm_timeout_ms":
		return true, assignInt(&cfg.Camera.ConfirmTimeoutMS, key, value)
	case "camera.prefer_external":
		return true, assignBool(&cfg.Camera.PreferExternal, key, value)
	case "recording.frame_interval_ms":
		return true, assignInt(&cfg.Recording.FrameIntervalMS, key, value)
	case "drills.default":
		cfg.Drills.Default = splitList(value)
	case "voice.enable":
		return true, assignBool(&cfg.Voice.Enable, key, value)
	case "indicator.enable":
		return true, assignBool(&cfg.Indicator.Enable, key, value)
	case "indicator.desktop_app_name":
		cfg.Indicator.DesktopAppName = value
	case "indicator.sound_enable":
		return true, assignBool(&cfg.Indicator.SoundEnable, key, value)
	case "indicator.sound_record_file":
		cfg.Indicator.SoundRecordFile = value
	case "indicator.sound_stop_file":
		cfg.Indicator.SoundStopFile = value
	case "indicator.sound_complete_file":
		cfg.Indicator.SoundCompleteFile = value
	case "indicator.sound_error_file":
		cfg.Indicator.SoundErrorFile = value
	case "indicator.sound_play_cmd":
		argv, err := parseArgv(value)
		if err != nil {
			return true, fmt.Errorf("%s: %w", key, err)
		}
		cfg.Indicator.SoundPlayCmd = CommandConfig{Raw: value, Argv: argv}
	case "indicator.error_timeout_ms":
		return true, assignInt(&cfg.Indicator.ErrorTimeoutMS, key, value)
	default:
		return false, nil
	}
	return true, nil
}

func assignInt(dst *int, key, value string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: expected integer, got %q", key, value)
	}
	*dst = parsed
	return nil
}

func assignBool(dst *bool, key, value string) error {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s: expected boolean, got %q", key, value)
	}
	*dst = parsed
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
