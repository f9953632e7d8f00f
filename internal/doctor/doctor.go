// Package doctor runs runtime readiness diagnostics for config, cameras,
// audio output, and the analysis service.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/mkurien/drillcoach/internal/camera"
	"github.com/mkurien/drillcoach/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	configMessage := fmt.Sprintf("loaded %q", cfg.Path)
	if len(cfg.Warnings) > 0 {
		configMessage = fmt.Sprintf("loaded %q with %d warning(s)", cfg.Path, len(cfg.Warnings))
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMessage})

	checks = append(checks, checkCameras(ctx))
	checks = append(checks, checkService(cfg.Config.Service))

	if cfg.Config.Voice.Enable {
		checks = append(checks, checkPulseServer())
	}
	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications require busctl"))
	}
	if cfg.Config.Indicator.SoundEnable {
		checks = append(checks, checkCommand(cfg.Config.Indicator.SoundPlayCmd.Argv, "indicator.sound_play_cmd"))
	}

	return Report{Checks: checks}
}

// checkCameras enumerates capture devices and builds the candidate list.
func checkCameras(ctx context.Context) Check {
	devices, err := camera.Enumerate(ctx)
	if err != nil {
		return Check{Name: "camera.devices", Pass: false, Message: err.Error()}
	}

	candidates, err := camera.BuildCandidateList(devices)
	if err != nil {
		return Check{Name: "camera.devices", Pass: false, Message: err.Error()}
	}

	return Check{
		Name:    "camera.devices",
		Pass:    true,
		Message: fmt.Sprintf("%d candidate(s), first %s", len(candidates), candidates[0]),
	}
}

// checkService probes the analysis backend. Any HTTP response counts as
// reachable; only connection-level failures fail the check.
func checkService(cfg config.ServiceConfig) Check {
	base := strings.TrimSpace(cfg.URL)
	if base == "" {
		return Check{Name: "service.reachable", Pass: false, Message: "service.url is empty"}
	}

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return Check{Name: "service.reachable", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	return Check{
		Name:    "service.reachable",
		Pass:    true,
		Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base),
	}
}

// checkPulseServer verifies that an audio server accepts clients, since the
// spoken report path depends on it.
func checkPulseServer() Check {
	client, err := pulse.NewClient(pulse.ClientApplicationName("drillcoach-doctor"))
	if err != nil {
		return Check{Name: "voice.audio", Pass: false, Message: fmt.Sprintf("pulse server unavailable: %v", err)}
	}
	client.Close()
	return Check{Name: "voice.audio", Pass: true, Message: "pulse server accepts clients"}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
