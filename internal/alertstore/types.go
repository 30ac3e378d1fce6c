package alertstore

import (
	"encoding/json"
	"errors"
	"time"

	"alertkit/internal/alert"
)

// ErrNotFound is returned when an acknowledgment or retraction finds no
// open row for the identifier.
var ErrNotFound = errors.New("alertstore: alert not found")

// Config configures the store.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "memory": in-process store, nothing persisted
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// StoredAlert is one issuance event. Field names follow the persisted
// representation (managerIdentifier is the source ID); keep them
// schema-stable for interoperability and audit.
type StoredAlert struct {
	AlertIdentifier   string
	ManagerIdentifier string
	IssuedDate        time.Time
	AcknowledgedDate  *time.Time
	RetractedDate     *time.Time
	TriggerType       alert.TriggerType
	TriggerInterval   *time.Duration // absent for immediate triggers
	InterruptionLevel alert.InterruptionLevel

	// Serialized descriptors, empty when the alert carried none.
	Sound             string
	ForegroundContent string
	BackgroundContent string

	// ModificationCounter is assigned by the store on every insert or
	// update. Strictly increasing across the entire store, never reused.
	ModificationCounter int64
}

// Identifier reassembles the compound key.
func (s StoredAlert) Identifier() alert.Identifier {
	return alert.Identifier{SourceID: s.ManagerIdentifier, AlertID: s.AlertIdentifier}
}

// IsOpen reports whether the row is still awaiting acknowledgment or
// retraction.
func (s StoredAlert) IsOpen() bool {
	return s.AcknowledgedDate == nil && s.RetractedDate == nil
}

// Trigger reassembles the original trigger from its persisted tag.
func (s StoredAlert) Trigger() alert.Trigger {
	var interval time.Duration
	if s.TriggerInterval != nil {
		interval = *s.TriggerInterval
	}
	switch s.TriggerType {
	case alert.TriggerDelayed:
		return alert.Delayed(interval)
	case alert.TriggerRepeating:
		return alert.Repeating(interval)
	default:
		return alert.Immediate()
	}
}

// Alert decodes the row back into a transient Alert (original trigger,
// not adjusted for elapsed storage time; replay handles that).
func (s StoredAlert) Alert() (alert.Alert, error) {
	a := alert.Alert{
		Identifier:        s.Identifier(),
		Trigger:           s.Trigger(),
		InterruptionLevel: s.InterruptionLevel,
	}
	var err error
	if a.ForegroundContent, err = decodeContent(s.ForegroundContent); err != nil {
		return alert.Alert{}, err
	}
	if a.BackgroundContent, err = decodeContent(s.BackgroundContent); err != nil {
		return alert.Alert{}, err
	}
	if s.Sound != "" {
		var snd alert.Sound
		if err := json.Unmarshal([]byte(s.Sound), &snd); err != nil {
			return alert.Alert{}, err
		}
		a.Sound = &snd
	}
	return a, nil
}

// NewStoredAlert snapshots a transient alert at its issuance date. The
// counter is left for the store to assign.
func NewStoredAlert(a alert.Alert, issued time.Time) (StoredAlert, error) {
	s := StoredAlert{
		AlertIdentifier:   a.Identifier.AlertID,
		ManagerIdentifier: a.Identifier.SourceID,
		IssuedDate:        issued,
		TriggerType:       a.Trigger.Type,
		InterruptionLevel: a.InterruptionLevel,
	}
	if a.Trigger.Type != alert.TriggerImmediate {
		interval := a.Trigger.Interval
		s.TriggerInterval = &interval
	}
	var err error
	if s.ForegroundContent, err = encodeContent(a.ForegroundContent); err != nil {
		return StoredAlert{}, err
	}
	if s.BackgroundContent, err = encodeContent(a.BackgroundContent); err != nil {
		return StoredAlert{}, err
	}
	if a.Sound != nil {
		b, err := json.Marshal(a.Sound)
		if err != nil {
			return StoredAlert{}, err
		}
		s.Sound = string(b)
	}
	return s, nil
}

func encodeContent(c *alert.Content) (string, error) {
	if c == nil {
		return "", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeContent(blob string) (*alert.Content, error) {
	if blob == "" {
		return nil, nil
	}
	var c alert.Content
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// QueryAnchor is the resumable cursor over the event log. It carries the
// counter of the last row touched plus the issued-date filter of the
// originating query so pagination stays consistent across pages.
type QueryAnchor struct {
	ModificationCounter int64
	Since               time.Time // zero means unfiltered
}

// Stats is a cheap operational summary used by the daemon's daily report.
type Stats struct {
	TotalRows int64
	OpenRows  int64
}
