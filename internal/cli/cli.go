// Package cli parses drillcoach command-line invocations.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandUpload  Command = "upload"
	CommandRecord  Command = "record"
	CommandStop    Command = "stop"
	CommandFrame   Command = "frame"
	CommandCancel  Command = "cancel"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandUpload:  {},
	CommandRecord:  {},
	CommandStop:    {},
	CommandFrame:   {},
	CommandCancel:  {},
	CommandStatus:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Drills     []string
	UploadPath string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--drills":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--drills requires a comma-separated list")
			}
			parsed.Drills = splitDrills(args[i])
			if len(parsed.Drills) == 0 {
				return Parsed{}, errors.New("--drills requires at least one drill")
			}
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			if cmd == CommandUpload {
				i++
				if i >= len(args) {
					return Parsed{}, errors.New("upload requires a video file path")
				}
				parsed.UploadPath = args[i]
			}
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	if len(parsed.Drills) > 0 && parsed.Command != CommandRun && parsed.Command != CommandUpload {
		return Parsed{}, fmt.Errorf("--drills only applies to the run and upload commands")
	}

	return parsed, nil
}

func splitDrills(raw string) []string {
	parts := strings.Split(raw, ",")
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

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--drills LIST] <command>

Commands:
  run       Start a capture session against the configured camera
  upload    Submit an existing video file for analysis (upload PATH)
  record    Begin recording the live stream
  stop      Stop recording and submit the clip for analysis
  frame     Capture the current frame and submit it for analysis
  cancel    Tear down the active session
  status    Print current session state
  devices   List available capture devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/drillcoach/config.conf)
  --drills LIST   Comma-separated drill selection for run/upload (e.g. salute,turns)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
