package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, overlays, and validates the runtime
// configuration. Precedence is environment > config file > defaults.
func Load(explicitPath string) (Loaded, error) {
	// A .env next to the working directory is a convenience for development
	// setups; a missing file is the normal case.
	_ = godotenv.Load()

	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	exists := true
	warnings := make([]Warning, 0)

	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
		}
		exists = false
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	}

	cfg := base
	if exists {
		parsed, parseWarnings, err := Parse(string(content), base)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
		cfg = parsed
		warnings = append(warnings, parseWarnings...)
	}

	overlaid, envWarnings := applyEnv(cfg)
	warnings = append(warnings, envWarnings...)

	validateWarnings, err := Validate(overlaid)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}
	warnings = append(warnings, validateWarnings...)

	return Loaded{
		Path:     resolvedPath,
		Config:   overlaid,
		Warnings: warnings,
		Exists:   exists,
	}, nil
}
