package presenter

import (
	"context"
	"sync"
	"time"

	"alertkit/internal/alert"
	logx "alertkit/pkg/logx"
)

// Notification is the platform-notification request built from an alert.
type Notification struct {
	// ID is the alert identifier in canonical "source.alert" form. The
	// sink uses it to match delivered entries for later removal.
	ID        string
	SourceID  string
	AlertID   string
	Title     string
	Body      string
	Level     alert.InterruptionLevel
	Sound     NotificationSound
	Timestamp time.Time
}

// NotificationSound is the resolved audio for one delivery.
//
// Silent carries the "desensitize, never suppress" policy: the
// notification still fires and is still recorded, only its audio is
// replaced by the silent variant of the same criticality.
type NotificationSound struct {
	Name     string // custom sound file, empty for the default sound
	Critical bool
	Silent   bool
}

// NotificationSink is the platform notification center boundary. Deliver
// must be a total function over its input; failures are logged by the
// presenter and never propagate to the issuing source.
type NotificationSink interface {
	Deliver(ctx context.Context, n Notification) error
	RemoveDelivered(id string)
}

// SoundResolver maps an alert's named sound onto a file in the shared
// sounds directory. Typically sounds.Manager.SoundPath.
type SoundResolver func(a alert.Alert) (string, bool)

// NotificationPresenter is the background-capable channel. It owns the
// Delayed/Repeating scheduling (one timer per identifier) and hands each
// due delivery to the sink.
type NotificationPresenter struct {
	sink     NotificationSink
	resolve  SoundResolver
	newTimer TimerFactory
	clock    func() time.Time
	log      logx.Logger

	mu      sync.Mutex
	pending map[alert.Identifier]Timer
}

func NewNotificationPresenter(sink NotificationSink, resolve SoundResolver, newTimer TimerFactory, log logx.Logger) *NotificationPresenter {
	if newTimer == nil {
		newTimer = NewTimer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &NotificationPresenter{
		sink:     sink,
		resolve:  resolve,
		newTimer: newTimer,
		clock:    time.Now,
		log:      log,
		pending:  map[alert.Identifier]Timer{},
	}
}

func (p *NotificationPresenter) IssueAlert(a alert.Alert, muted bool) {
	if a.BackgroundContent == nil {
		return
	}
	n := p.build(a, muted)

	switch a.Trigger.Type {
	case alert.TriggerImmediate:
		// Off the caller path; issuing must never wait on the sink's
		// rate limiting or I/O.
		go p.deliver(n)
	case alert.TriggerDelayed:
		p.schedule(a, n, false)
	case alert.TriggerRepeating:
		p.schedule(a, n, true)
	}
}

func (p *NotificationPresenter) RetractAlert(id alert.Identifier) {
	p.cancelPending(id)
	p.sink.RemoveDelivered(id.String())
}

// AcknowledgeAlert clears the delivered entry once the user has responded
// through another channel.
func (p *NotificationPresenter) AcknowledgeAlert(id alert.Identifier) {
	p.cancelPending(id)
	p.sink.RemoveDelivered(id.String())
}

func (p *NotificationPresenter) cancelPending(id alert.Identifier) {
	p.mu.Lock()
	t := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// schedule arms the platform-style interval trigger. Re-scheduling an
// identifier replaces its previous request, matching notification-center
// semantics.
func (p *NotificationPresenter) schedule(a alert.Alert, n Notification, repeats bool) {
	id := a.Identifier

	p.mu.Lock()
	if prev, ok := p.pending[id]; ok {
		prev.Stop()
	}
	timer := p.newTimer(a.Trigger.Interval, repeats, func() {
		if !repeats {
			p.mu.Lock()
			delete(p.pending, id)
			p.mu.Unlock()
		}
		p.deliver(n)
	})
	p.pending[id] = timer
	p.mu.Unlock()
}

func (p *NotificationPresenter) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.sink.Deliver(ctx, n); err != nil {
		p.log.Error("notification delivery failed", logx.String("alert", n.ID), logx.Err(err))
	}
}

func (p *NotificationPresenter) build(a alert.Alert, muted bool) Notification {
	content := a.BackgroundContent
	return Notification{
		ID:        a.Identifier.String(),
		SourceID:  a.Identifier.SourceID,
		AlertID:   a.Identifier.AlertID,
		Title:     content.Title,
		Body:      content.Body,
		Level:     a.InterruptionLevel,
		Sound:     p.sound(a, muted),
		Timestamp: p.clock(),
	}
}

// sound derives the audio from the interruption level: critical alerts get
// the critical sound, everything else the default. Muting swaps in the
// silent variant of the same criticality instead of removing the sound.
func (p *NotificationPresenter) sound(a alert.Alert, muted bool) NotificationSound {
	critical := a.InterruptionLevel == alert.LevelCritical

	if muted {
		return NotificationSound{Critical: critical, Silent: true}
	}
	if a.Sound != nil {
		switch a.Sound.Type {
		case alert.SoundVibrate, alert.SoundSilence:
			return NotificationSound{Critical: critical, Silent: true}
		case alert.SoundNamed:
			if p.resolve != nil {
				if path, ok := p.resolve(a); ok {
					return NotificationSound{Name: path, Critical: critical}
				}
			}
		}
	}
	return NotificationSound{Critical: critical}
}
