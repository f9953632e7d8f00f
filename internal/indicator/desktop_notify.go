package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// busctlNotifications invokes one method on the freedesktop notification
// service. drillcoach keeps a single replaceable notification per session, so
// state changes swap the bubble text in place instead of stacking.
func busctlNotifications(ctx context.Context, member string, signature string, args ...string) ([]byte, error) {
	callArgs := []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		member,
		signature,
	}
	callArgs = append(callArgs, args...)

	out, err := exec.CommandContext(ctx, "busctl", callArgs...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w (%s)", err, trimmed)
	}
	return out, nil
}

// desktopNotify posts or replaces a notification and returns the server-side
// ID that later calls pass back as replaceID.
func desktopNotify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	out, err := busctlNotifications(ctx, "Notify", "susssasa{sv}i",
		appName,
		strconv.FormatUint(uint64(replaceID), 10),
		"", // icon
		summary,
		"", // body
		"0", // actions array length
		"0", // hints map length
		strconv.Itoa(timeoutMS),
	)
	if err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}

	// busctl prints the reply as "u <id>".
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", strings.TrimSpace(string(out)))
	}
	value, parseErr := strconv.ParseUint(fields[1], 10, 32)
	if parseErr != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], parseErr)
	}
	return uint32(value), nil
}

// desktopDismiss closes the drillcoach notification by ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	if _, err := busctlNotifications(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", err)
	}
	return nil
}
