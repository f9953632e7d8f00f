package indicator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLocaleDefaultsToEnglish(t *testing.T) {
	require.Equal(t, localeEnglish, resolveLocale("en_US.UTF-8"))
	require.Equal(t, localeEnglish, resolveLocale("fr_FR.UTF-8"))
}

func TestIndicatorMessagesEnglish(t *testing.T) {
	msg := indicatorMessages(localeEnglish)
	require.Equal(t, "Starting camera…", msg.acquiring)
	require.Equal(t, "Camera live", msg.live)
	require.Equal(t, "Recording drill…", msg.recording)
	require.Equal(t, "Drill analysis error", msg.errorText)
}

func TestAnalyzingMessageClampsPercent(t *testing.T) {
	msg := indicatorMessages(localeEnglish)
	require.Equal(t, "Analyzing… 0%", msg.analyzing(-5))
	require.Equal(t, "Analyzing… 42%", msg.analyzing(42))
	require.Equal(t, "Analyzing… 100%", msg.analyzing(250))
}
