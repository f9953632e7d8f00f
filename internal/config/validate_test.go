package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaultsPass(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		errText string
	}{
		{
			name:    "empty service url",
			mutate:  func(c *Config) { c.Service.URL = "  " },
			errText: "service.url must not be empty",
		},
		{
			name:    "non-http service url",
			mutate:  func(c *Config) { c.Service.URL = "ftp://host/upload" },
			errText: "http(s)",
		},
		{
			name:    "zero upload timeout",
			mutate:  func(c *Config) { c.Service.UploadTimeoutMS = 0 },
			errText: "upload_timeout_ms",
		},
		{
			name:    "zero confirm timeout",
			mutate:  func(c *Config) { c.Camera.ConfirmTimeoutMS = 0 },
			errText: "confirm_timeout_ms",
		},
		{
			name:    "zero frame interval",
			mutate:  func(c *Config) { c.Recording.FrameIntervalMS = 0 },
			errText: "frame_interval_ms",
		},
		{
			name:    "unknown default drill",
			mutate:  func(c *Config) { c.Drills.Default = []string{"moonwalk"} },
			errText: `unknown drill "moonwalk"`,
		},
		{
			name: "indicator enabled without app name",
			mutate: func(c *Config) {
				c.Indicator.Enable = true
				c.Indicator.DesktopAppName = ""
			},
			errText: "desktop_app_name",
		},
		{
			name: "cue file without play command",
			mutate: func(c *Config) {
				c.Indicator.SoundRecordFile = "~/cues/record.wav"
				c.Indicator.SoundPlayCmd = CommandConfig{}
			},
			errText: "sound_play_cmd",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errText)
		})
	}
}

func TestValidateAcceptsKnownDrillSelection(t *testing.T) {
	cfg := Default()
	cfg.Drills.Default = []string{"high_leg_march", "attention"}
	_, err := Validate(cfg)
	require.NoError(t, err)
}
