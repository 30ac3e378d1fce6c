// Package presenter holds the delivery channels an alert can reach the
// user through.
//
// Two concrete channels exist: the in-process modal presenter (foreground
// only, timer driven) and the notification presenter (background capable,
// scheduled). Both are fire-and-forget from the caller's perspective;
// acknowledgment flows back out through the narrow Acknowledger interface,
// never through the coordinator itself.
package presenter

import (
	"alertkit/internal/alert"
)

// Presenter is the common channel contract. muted asks the channel to
// desensitize this delivery (silence audio), never to suppress it.
type Presenter interface {
	IssueAlert(a alert.Alert, muted bool)
	RetractAlert(id alert.Identifier)
}

// Acknowledger routes a user acknowledgment back to the coordinator.
// Presenters hold this instead of the full manager to keep the dependency
// one-way.
type Acknowledger interface {
	AcknowledgeAlert(id alert.Identifier)
}
