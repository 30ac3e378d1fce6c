package alert

import (
	"fmt"
	"time"
)

// Identifier uniquely names an alert across all sources.
//
// SourceID is the identifier of the issuing subsystem (a device manager,
// the dosing engine, ...), AlertID names the condition within that source.
// The pair is treated as an opaque compound key everywhere.
type Identifier struct {
	SourceID string
	AlertID  string
}

func NewIdentifier(sourceID, alertID string) Identifier {
	return Identifier{SourceID: sourceID, AlertID: alertID}
}

// String renders the compound key in its canonical "source.alert" form.
// This is the value used for platform notification identifiers.
func (i Identifier) String() string {
	return fmt.Sprintf("%s.%s", i.SourceID, i.AlertID)
}

// Content is what a channel shows for an alert.
type Content struct {
	Title            string `json:"title"`
	Body             string `json:"body"`
	AcknowledgeLabel string `json:"acknowledgeLabel"`
	IsCritical       bool   `json:"isCritical,omitempty"`
}

// TriggerType tags the trigger variant. The numeric values are part of the
// persisted representation; do not renumber.
type TriggerType int

const (
	TriggerImmediate TriggerType = 0
	TriggerDelayed   TriggerType = 1
	TriggerRepeating TriggerType = 2
)

func (t TriggerType) String() string {
	switch t {
	case TriggerImmediate:
		return "immediate"
	case TriggerDelayed:
		return "delayed"
	case TriggerRepeating:
		return "repeating"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// Trigger is the timing rule for an alert's delivery.
//
// Interval is meaningful for TriggerDelayed (one-shot delay) and
// TriggerRepeating (repeat period) and must be zero for TriggerImmediate.
type Trigger struct {
	Type     TriggerType
	Interval time.Duration
}

func Immediate() Trigger              { return Trigger{Type: TriggerImmediate} }
func Delayed(d time.Duration) Trigger { return Trigger{Type: TriggerDelayed, Interval: d} }
func Repeating(r time.Duration) Trigger {
	return Trigger{Type: TriggerRepeating, Interval: r}
}

// NextDeliveryDate is the instant the alert will first sound, given when it
// was issued. For repeating triggers this is the first repeat; later repeats
// are owned by the presenter's timer.
func (t Trigger) NextDeliveryDate(issued time.Time) time.Time {
	switch t.Type {
	case TriggerImmediate:
		return issued
	case TriggerDelayed, TriggerRepeating:
		return issued.Add(t.Interval)
	default:
		return issued
	}
}

func (t Trigger) String() string {
	switch t.Type {
	case TriggerImmediate:
		return "immediate"
	case TriggerDelayed:
		return fmt.Sprintf("delayed(%s)", t.Interval)
	case TriggerRepeating:
		return fmt.Sprintf("repeating(%s)", t.Interval)
	default:
		return t.Type.String()
	}
}

// InterruptionLevel is the urgency tier of an alert. It is serialized as a
// string in the store and maps onto the platform notification urgency.
type InterruptionLevel string

const (
	LevelActive        InterruptionLevel = "active"
	LevelTimeSensitive InterruptionLevel = "timeSensitive"
	LevelCritical      InterruptionLevel = "critical"
)

// SoundType tags the sound variant.
type SoundType string

const (
	SoundDefault SoundType = "default"
	SoundNamed   SoundType = "named"
	SoundVibrate SoundType = "vibrate"
	SoundSilence SoundType = "silence"
)

// Sound describes the audio for an alert. Name is set for SoundNamed only
// and refers to a file shipped by the source's sound vendor.
type Sound struct {
	Type SoundType `json:"type"`
	Name string    `json:"name,omitempty"`
}

// Filename returns the vendor file backing this sound, if any.
func (s Sound) Filename() (string, bool) {
	if s.Type == SoundNamed && s.Name != "" {
		return s.Name, true
	}
	return "", false
}

// Alert is a single user-facing notice.
//
// At least one of ForegroundContent/BackgroundContent should be set; an
// alert with no foreground content is never shown by the in-process
// presenter and exists purely for background notification.
type Alert struct {
	Identifier        Identifier
	ForegroundContent *Content
	BackgroundContent *Content
	Trigger           Trigger
	InterruptionLevel InterruptionLevel
	Sound             *Sound
}
