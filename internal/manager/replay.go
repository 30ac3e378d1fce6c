package manager

import (
	"context"
	"time"

	"alertkit/internal/alert"
	"alertkit/internal/alertstore"
	"alertkit/internal/eventbus"
	logx "alertkit/pkg/logx"
)

// replay re-arms the open rows left over from the previous run. The
// dispatch goes straight to the presenters — it is a re-presentation of an
// existing event, so nothing is recorded again.
func (m *Manager) replay(ctx context.Context) error {
	rows, err := m.store.LookupAllUnacknowledged(ctx)
	if err != nil {
		// Replay is best-effort like the rest of persistence: a broken
		// store must not prevent the engine from serving new alerts.
		m.log.Error("could not fetch unacknowledged alerts for replay", logx.Err(err))
		return nil
	}

	now := m.clock()
	for _, row := range rows {
		a, err := row.Alert()
		if err != nil {
			m.log.Error("could not decode stored alert for replay",
				logx.String("alert", row.Identifier().String()), logx.Err(err))
			continue
		}

		a.Trigger = replayTrigger(row, now)

		muted := false
		if m.muter != nil {
			muted = m.muter.ShouldMuteAlert(a, now, now)
		}
		for _, p := range m.presenters {
			p.IssueAlert(a, muted)
		}

		m.log.Info("replayed alert",
			logx.String("alert", row.Identifier().String()),
			logx.String("trigger", a.Trigger.String()),
			logx.Time("issued", row.IssuedDate))
		m.publish(eventbus.TypeAlertReplayed, row.Identifier(), now, muted)
	}
	return nil
}

// replayTrigger recomputes a stored trigger relative to now.
//
// Immediate stays immediate (still pending). A delayed alert whose due
// time passed while the process was down fires immediately; otherwise the
// remaining delay is kept. Repeating alerts are always considered due on
// relaunch; the presenter's own repeat timer takes over afterward.
func replayTrigger(row alertstore.StoredAlert, now time.Time) alert.Trigger {
	trigger := row.Trigger()
	switch trigger.Type {
	case alert.TriggerDelayed:
		due := trigger.NextDeliveryDate(row.IssuedDate)
		if !due.After(now) {
			return alert.Immediate()
		}
		return alert.Delayed(due.Sub(now))
	case alert.TriggerRepeating:
		return alert.Immediate()
	default:
		return alert.Immediate()
	}
}
