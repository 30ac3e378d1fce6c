package alert

import (
	"sync"
	"time"
)

// AllowedMuteDurations is the menu offered by configuration UIs. The policy
// itself accepts arbitrary durations.
var AllowedMuteDurations = []time.Duration{
	30 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
	4 * time.Hour,
}

// MuterConfiguration is the single global mute window.
//
// A zero StartTime means muting is off. The window is half-open:
// [StartTime, StartTime+Duration).
type MuterConfiguration struct {
	StartTime time.Time
	Duration  time.Duration
}

// MutingEndTime returns the end of the window and whether one is active.
func (c MuterConfiguration) MutingEndTime() (time.Time, bool) {
	if c.StartTime.IsZero() {
		return time.Time{}, false
	}
	return c.StartTime.Add(c.Duration), true
}

// ShouldMute reports whether now falls inside the mute window.
func (c MuterConfiguration) ShouldMute(now time.Time) bool {
	return c.shouldMuteAt(now)
}

func (c MuterConfiguration) shouldMuteAt(instant time.Time) bool {
	end, ok := c.MutingEndTime()
	if !ok {
		return false
	}
	// Upper bound exclusive.
	return !instant.Before(c.StartTime) && instant.Before(end)
}

// Muter computes whether a delivery should be desensitized. It is a pure
// function of wall-clock time plus one mutable configuration slot; no timer
// is required for correctness (expiry falls out of the window arithmetic).
type Muter struct {
	mu  sync.Mutex
	cfg MuterConfiguration
}

func NewMuter(cfg MuterConfiguration) *Muter {
	return &Muter{cfg: cfg}
}

func (m *Muter) Configuration() MuterConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Muter) SetConfiguration(cfg MuterConfiguration) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Mute opens a window of the given duration starting at now.
func (m *Muter) Mute(duration time.Duration, now time.Time) {
	m.mu.Lock()
	m.cfg = MuterConfiguration{StartTime: now, Duration: duration}
	m.mu.Unlock()
}

// Unmute closes the window immediately.
func (m *Muter) Unmute() {
	m.mu.Lock()
	m.cfg.StartTime = time.Time{}
	m.mu.Unlock()
}

// ShouldMuteAlert evaluates the alert's next sounding instant against the
// window. Mute is evaluated once per presentation attempt; later repeats of
// a repeating trigger are not separately checked.
func (m *Muter) ShouldMuteAlert(a Alert, issuedDate, now time.Time) bool {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	if issuedDate.IsZero() {
		issuedDate = now
	}
	return cfg.shouldMuteAt(a.Trigger.NextDeliveryDate(issuedDate))
}
