package config

// Default returns the baseline configuration used before a config file is applied.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: "~/.local/share/vignette/staging",
			LibraryDir: "~/videos/vignette",
			LogDir:     "~/.local/share/vignette/logs",
		},
		Upload: Upload{
			MaxFileSizeMiB:    200,
			AllowedExtensions: []string{"mp3", "wav", "m4a", "flac", "ogg"},
		},
		Transcriber: Transcriber{
			Model:                  "whisper-1",
			TimeoutSeconds:         120,
			SegmentDurationSeconds: 600,
			Workers:                4,
			RetryAttempts:          3,
		},
		Analyzer: Analyzer{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			MaxQueries:     15,
			WindowSeconds:  45,
		},
		ImageSearch: ImageSearch{
			MaxResults:     3,
			TimeoutSeconds: 30,
		},
		ImageGen: ImageGen{
			TimeoutSeconds: 120,
		},
		Generation: Generation{
			Workers:       4,
			RetryAttempts: 2,
		},
		Encoder: Encoder{
			VideoWidth:     1920,
			VideoHeight:    1080,
			FPS:            30,
			TimeoutSeconds: 1800,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  30,
			HeartbeatTimeout:   300,
			MaxConcurrentJobs:  2,
		},
		Notifications: Notifications{
			TimeoutSeconds: 10,
		},
		Logging: Logging{
			Format: "text",
			Level:  "info",
		},
	}
}
