package presenter

import (
	"sync"

	"alertkit/internal/alert"
	logx "alertkit/pkg/logx"
)

// ModalHost renders a modal alert in the foreground UI. Implemented by the
// embedding application; acknowledge must be called exactly once when the
// user taps the acknowledge button.
type ModalHost interface {
	Present(a alert.Alert, muted bool, acknowledge func())
	Dismiss(id alert.Identifier)
}

// InProcessPresenter is the foreground, modal channel.
//
// Alerts without foreground content are ignored; they exist purely for
// background notification. Per identifier there is at most one visible or
// pending presentation at a time.
type InProcessPresenter struct {
	host      ModalHost
	responder Acknowledger
	newTimer  TimerFactory
	log       logx.Logger

	mu        sync.Mutex
	pending   map[alert.Identifier]Timer
	presented map[alert.Identifier]struct{}
}

func NewInProcessPresenter(host ModalHost, responder Acknowledger, newTimer TimerFactory, log logx.Logger) *InProcessPresenter {
	if newTimer == nil {
		newTimer = NewTimer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &InProcessPresenter{
		host:      host,
		responder: responder,
		newTimer:  newTimer,
		log:       log,
		pending:   map[alert.Identifier]Timer{},
		presented: map[alert.Identifier]struct{}{},
	}
}

func (p *InProcessPresenter) IssueAlert(a alert.Alert, muted bool) {
	if a.ForegroundContent == nil {
		return
	}
	switch a.Trigger.Type {
	case alert.TriggerImmediate:
		p.show(a, muted, false)
	case alert.TriggerDelayed:
		p.schedule(a, muted, false)
	case alert.TriggerRepeating:
		p.schedule(a, muted, true)
	}
}

func (p *InProcessPresenter) RetractAlert(id alert.Identifier) {
	p.mu.Lock()
	t := p.pending[id]
	delete(p.pending, id)
	_, visible := p.presented[id]
	delete(p.presented, id)
	p.mu.Unlock()

	// Cancel before the timer can fire; a retracted identifier must not
	// surface afterwards.
	if t != nil {
		t.Stop()
	}
	if visible {
		p.host.Dismiss(id)
	}
}

func (p *InProcessPresenter) schedule(a alert.Alert, muted bool, repeats bool) {
	id := a.Identifier

	p.mu.Lock()
	if _, ok := p.pending[id]; ok {
		p.mu.Unlock()
		return
	}
	timer := p.newTimer(a.Trigger.Interval, repeats, func() {
		if !repeats {
			p.mu.Lock()
			delete(p.pending, id)
			p.mu.Unlock()
		}
		// A repeating firing replaces whatever is still on screen.
		p.show(a, muted, repeats)
	})
	p.pending[id] = timer
	p.mu.Unlock()
}

func (p *InProcessPresenter) show(a alert.Alert, muted bool, replace bool) {
	id := a.Identifier

	p.mu.Lock()
	if _, ok := p.pending[id]; ok && a.Trigger.Type == alert.TriggerImmediate {
		// A presentation is already scheduled; issuing again is a no-op.
		p.mu.Unlock()
		return
	}
	_, visible := p.presented[id]
	if visible && !replace {
		p.mu.Unlock()
		return
	}
	p.presented[id] = struct{}{}
	p.mu.Unlock()

	if visible && replace {
		p.host.Dismiss(id)
	}

	p.log.Debug("presenting modal alert", logx.String("alert", id.String()), logx.Bool("muted", muted))
	p.host.Present(a, muted, func() { p.acknowledged(id) })
}

func (p *InProcessPresenter) acknowledged(id alert.Identifier) {
	p.mu.Lock()
	delete(p.presented, id)
	// Acknowledging also ends a repeating schedule.
	t := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	if p.responder != nil {
		p.responder.AcknowledgeAlert(id)
	}
}
