package indicator

import (
	"fmt"
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	acquiring      string
	live           string
	recording      string
	analyzingLabel string
	errorText      string
}

// analyzing renders the progress label, clamping the percentage to [0, 100].
func (m messages) analyzing(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return fmt.Sprintf("%s %d%%", m.analyzingLabel, percent)
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			acquiring:      "Starting camera…",
			live:           "Camera live",
			recording:      "Recording drill…",
			analyzingLabel: "Analyzing…",
			errorText:      "Drill analysis error",
		}
	}
}
