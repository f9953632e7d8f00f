package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	soundPlay := "pw-play --media-role Notification"

	return Config{
		Service: ServiceConfig{
			URL:             "http://127.0.0.1:5000",
			UploadTimeoutMS: 120000,
			VoiceTimeoutMS:  60000,
		},
		Camera: CameraConfig{
			ConfirmTimeoutMS: 8000,
			PreferExternal:   true,
		},
		Recording: RecordingConfig{
			FrameIntervalMS: 66,
		},
		Drills: DrillsConfig{},
		Voice:  VoiceConfig{Enable: true},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "drillcoach",
			SoundEnable:    true,
			SoundPlayCmd:   CommandConfig{Raw: soundPlay, Argv: mustParseArgv(soundPlay)},
			ErrorTimeoutMS: 1600,
		},
	}
}
