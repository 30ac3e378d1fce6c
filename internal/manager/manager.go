package manager

import (
	"context"
	"sync"
	"time"

	"alertkit/internal/alert"
	"alertkit/internal/alertstore"
	"alertkit/internal/eventbus"
	"alertkit/internal/presenter"
	"alertkit/internal/sounds"
	logx "alertkit/pkg/logx"
)

// Responder is implemented by a source that owns alerts and wants
// acknowledgment callbacks. The alert ID is the source-local half of the
// identifier.
type Responder interface {
	AcknowledgeAlert(alertID string)
}

// AlertEvent is the bus payload for alert lifecycle events.
type AlertEvent struct {
	SourceID string
	AlertID  string
	At       time.Time
	Muted    bool
}

// Manager coordinates recording, muting, and fan-out to every registered
// delivery channel.
//
// Issue/Retract/Acknowledge are expected to be invoked from one serialized
// caller context. Store writes are queued onto an internal recording
// goroutine; once submitted, a write always completes and reports its
// outcome in the log. Nothing here retries a failed write — that policy
// belongs to the issuing source.
type Manager struct {
	log        logx.Logger
	store      alertstore.Store
	muter      *alert.Muter
	presenters []presenter.Presenter
	sounds     *sounds.Manager
	bus        eventbus.Bus
	clock      func() time.Time

	mu         sync.Mutex
	responders map[string]Responder
	vendors    map[string]sounds.Vendor

	records chan recordOp
	done    chan struct{}
	wg      sync.WaitGroup
	// syncWg tracks vendor sync goroutines separately from the record
	// loop: registrations gate on stopping under mu, so no Add can slip
	// in once Stop has begun waiting.
	syncWg   sync.WaitGroup
	started  bool
	stopping bool
}

type recordOp struct {
	what string
	id   alert.Identifier
	run  func(ctx context.Context) error
}

// Option tweaks manager construction.
type Option func(*Manager)

// WithClock injects the time source used for issuance dates and replay
// arithmetic. Tests use this to avoid wall-clock dependence.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

func New(store alertstore.Store, muter *alert.Muter, presenters []presenter.Presenter,
	soundMgr *sounds.Manager, bus eventbus.Bus, log logx.Logger, opts ...Option) *Manager {

	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		log:        log,
		store:      store,
		muter:      muter,
		presenters: presenters,
		sounds:     soundMgr,
		bus:        bus,
		clock:      time.Now,
		responders: map[string]Responder{},
		vendors:    map[string]sounds.Vendor{},
		records:    make(chan recordOp, 256),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start launches the recording worker and replays still-open alerts from
// the store. Idempotent.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.recordLoop()
	}()

	return m.replay(ctx)
}

// Stop drains pending store writes.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.stopping = true
	m.mu.Unlock()

	close(m.done)

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.syncWg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
	}
}

// IssueAlert records the issuance (best-effort), consults the mute window
// for this delivery, and dispatches to every registered channel.
func (m *Manager) IssueAlert(a alert.Alert) {
	now := m.clock()

	m.record(recordOp{
		what: "issue",
		id:   a.Identifier,
		run: func(ctx context.Context) error {
			return m.store.RecordIssued(ctx, a, now)
		},
	})

	muted := false
	if m.muter != nil {
		muted = m.muter.ShouldMuteAlert(a, now, now)
	}
	for _, p := range m.presenters {
		p.IssueAlert(a, muted)
	}

	m.publish(eventbus.TypeAlertIssued, a.Identifier, now, muted)
}

// RetractAlert records the retraction and withdraws the alert from every
// channel.
func (m *Manager) RetractAlert(id alert.Identifier) {
	now := m.clock()

	m.record(recordOp{
		what: "retract",
		id:   id,
		run: func(ctx context.Context) error {
			return m.store.RecordRetraction(ctx, id, now)
		},
	})

	for _, p := range m.presenters {
		p.RetractAlert(id)
	}

	m.publish(eventbus.TypeAlertRetracted, id, now, false)
}

// AcknowledgeAlert records the acknowledgment and routes it to the owning
// source's responder. Sources attach and detach dynamically, so a missing
// responder is a log line, not an error.
func (m *Manager) AcknowledgeAlert(id alert.Identifier) {
	now := m.clock()

	m.record(recordOp{
		what: "acknowledge",
		id:   id,
		run: func(ctx context.Context) error {
			return m.store.RecordAcknowledgement(ctx, id, now)
		},
	})

	m.mu.Lock()
	responder := m.responders[id.SourceID]
	m.mu.Unlock()

	if responder != nil {
		responder.AcknowledgeAlert(id.AlertID)
	} else {
		m.log.Debug("no responder for acknowledged alert", logx.String("alert", id.String()))
	}

	// Channels that track delivered entries get to clear them.
	for _, p := range m.presenters {
		if a, ok := p.(presenter.Acknowledger); ok {
			a.AcknowledgeAlert(id)
		}
	}

	m.publish(eventbus.TypeAlertAcknowledged, id, now, false)
}

// AddAlertResponder registers the acknowledgment callback for a source.
// Last registration wins.
func (m *Manager) AddAlertResponder(sourceID string, r Responder) {
	m.mu.Lock()
	m.responders[sourceID] = r
	m.mu.Unlock()
}

func (m *Manager) RemoveAlertResponder(sourceID string) {
	m.mu.Lock()
	delete(m.responders, sourceID)
	m.mu.Unlock()
}

// AddAlertSoundVendor registers the vendor and syncs its catalog into the
// shared sounds directory. Sync blocks on file I/O, so it runs off the
// caller path. Registrations arriving after Stop has begun are dropped.
func (m *Manager) AddAlertSoundVendor(sourceID string, v sounds.Vendor) {
	if m.sounds == nil {
		return
	}
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		m.log.Debug("ignoring sound vendor registered during shutdown",
			logx.String("source", sourceID))
		return
	}
	m.vendors[sourceID] = v
	m.syncWg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.syncWg.Done()
		m.syncVendor(sourceID, v)
	}()
}

func (m *Manager) RemoveAlertSoundVendor(sourceID string) {
	m.mu.Lock()
	delete(m.vendors, sourceID)
	m.mu.Unlock()
}

// ResyncSoundVendors re-runs the catalog diff for every registered vendor.
// Sync is idempotent, so this is safe to run on a maintenance schedule.
func (m *Manager) ResyncSoundVendors() {
	m.mu.Lock()
	vendors := make(map[string]sounds.Vendor, len(m.vendors))
	for id, v := range m.vendors {
		vendors[id] = v
	}
	m.mu.Unlock()

	for id, v := range vendors {
		m.syncVendor(id, v)
	}
}

func (m *Manager) syncVendor(sourceID string, v sounds.Vendor) {
	if err := m.sounds.SyncVendor(sourceID, v); err != nil {
		m.log.Error("sound vendor sync failed", logx.String("source", sourceID), logx.Err(err))
	}
}

// MuteAlerts opens a global mute window starting now.
func (m *Manager) MuteAlerts(duration time.Duration) {
	if m.muter == nil {
		return
	}
	m.muter.Mute(duration, m.clock())
	m.log.Info("alerts muted", logx.Duration("duration", duration))
}

func (m *Manager) UnmuteAlerts() {
	if m.muter == nil {
		return
	}
	m.muter.Unmute()
	m.log.Info("alerts unmuted")
}

// MuteStatus reports when the active mute window ends, if one is open.
func (m *Manager) MuteStatus() (time.Time, bool) {
	if m.muter == nil {
		return time.Time{}, false
	}
	end, ok := m.muter.Configuration().MutingEndTime()
	if !ok || !end.After(m.clock()) {
		return time.Time{}, false
	}
	return end, true
}

// ---- recording pipeline ----

// record hands a store write to the recording goroutine. The queue is
// bounded; when it is full the write is abandoned with an error log so the
// presentation path never blocks on storage.
func (m *Manager) record(op recordOp) {
	select {
	case m.records <- op:
	default:
		m.log.Error("record queue full, dropping store write",
			logx.String("op", op.what), logx.String("alert", op.id.String()))
	}
}

func (m *Manager) recordLoop() {
	for {
		select {
		case op := <-m.records:
			m.runRecord(op)
		case <-m.done:
			// Drain what is already queued.
			for {
				select {
				case op := <-m.records:
					m.runRecord(op)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) runRecord(op recordOp) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := op.run(ctx); err != nil {
		m.log.Error("store write failed",
			logx.String("op", op.what), logx.String("alert", op.id.String()), logx.Err(err))
	}
}

func (m *Manager) publish(eventType string, id alert.Identifier, at time.Time, muted bool) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Type: eventType,
		Time: at,
		Data: AlertEvent{SourceID: id.SourceID, AlertID: id.AlertID, At: at, Muted: muted},
	})
}
