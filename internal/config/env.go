package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envPrefix scopes environment overrides so unrelated variables never leak in.
const envPrefix = "DRILLCOACH_"

// applyEnv overlays environment variables on top of file-derived values.
// Environment wins over the config file; malformed values surface as
// warnings and leave the file value in place.
func applyEnv(cfg Config) (Config, []Warning) {
	warnings := make([]Warning, 0)

	if value, ok := lookup("SERVICE_URL"); ok {
		cfg.Service.URL = value
	}
	if value, ok := lookup("DRILLS"); ok {
		cfg.Drills.Default = splitList(value)
	}
	if value, ok := lookup("VOICE"); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			cfg.Voice.Enable = parsed
		} else {
			warnings = append(warnings, envWarning("VOICE", value))
		}
	}
	if value, ok := lookup("CONFIRM_TIMEOUT_MS"); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Camera.ConfirmTimeoutMS = parsed
		} else {
			warnings = append(warnings, envWarning("CONFIRM_TIMEOUT_MS", value))
		}
	}
	if value, ok := lookup("FRAME_INTERVAL_MS"); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Recording.FrameIntervalMS = parsed
		} else {
			warnings = append(warnings, envWarning("FRAME_INTERVAL_MS", value))
		}
	}

	return cfg, warnings
}

func lookup(suffix string) (string, bool) {
	value, ok := os.LookupEnv(envPrefix + suffix)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

func envWarning(suffix, value string) Warning {
	return Warning{Message: fmt.Sprintf("ignoring malformed %s%s=%q", envPrefix, suffix, value)}
}
