package telegram

import (
	"strings"
	"testing"
	"time"

	"alertkit/internal/alert"
	"alertkit/internal/presenter"
)

func TestFormatNotification(t *testing.T) {
	t.Parallel()

	n := presenter.Notification{
		ID:        "pump.occlusion",
		Title:     "Pump <Occlusion>",
		Body:      "Insulin delivery & flow stopped",
		Level:     alert.LevelCritical,
		Timestamp: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}

	got := formatNotification(n)

	if !strings.HasPrefix(got, "🚨 ") {
		t.Errorf("critical prefix missing: %q", got)
	}
	if !strings.Contains(got, "<b>Pump &lt;Occlusion&gt;</b>") {
		t.Errorf("title not escaped/bolded: %q", got)
	}
	if !strings.Contains(got, "Insulin delivery &amp; flow stopped") {
		t.Errorf("body not escaped: %q", got)
	}
	if !strings.Contains(got, "<code>pump.occlusion</code>") {
		t.Errorf("identifier footer missing: %q", got)
	}
	if strings.Contains(got, "<Occlusion>") {
		t.Errorf("raw angle brackets leaked: %q", got)
	}
}

func TestFormatNotificationOmitsEmptyBody(t *testing.T) {
	t.Parallel()

	n := presenter.Notification{
		ID:        "cgm.low",
		Title:     "Low glucose",
		Level:     alert.LevelTimeSensitive,
		Timestamp: time.Unix(0, 0).UTC(),
	}

	got := formatNotification(n)
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("empty body left a gap: %q", got)
	}
	if !strings.HasPrefix(got, "⚠️ ") {
		t.Errorf("time-sensitive prefix missing: %q", got)
	}
}

func TestFormatNotificationTruncatesLongBody(t *testing.T) {
	t.Parallel()

	n := presenter.Notification{
		ID:        "pump.log",
		Title:     "t",
		Body:      strings.Repeat("x", MaxBodyRunes+100),
		Level:     alert.LevelActive,
		Timestamp: time.Unix(0, 0).UTC(),
	}

	got := formatNotification(n)
	if len([]rune(got)) > 4096 {
		t.Fatalf("message is %d runes, over Telegram's limit", len([]rune(got)))
	}
	if !strings.Contains(got, "…") {
		t.Error("truncation marker missing")
	}
}

func TestMuteUsageListsMenu(t *testing.T) {
	t.Parallel()

	got := muteUsage()
	for _, d := range alert.AllowedMuteDurations {
		if !strings.Contains(got, "<code>"+d.String()+"</code>") {
			t.Errorf("menu entry %s missing from %q", d, got)
		}
	}
}
