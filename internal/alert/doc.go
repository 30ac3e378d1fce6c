// Package alert defines the alert data model shared by the store, the
// presenters, and the manager.
//
// An Alert is transient: it is constructed fresh on every issuance and
// carries everything a delivery channel needs (content, trigger timing,
// interruption level, sound). The durable record lives in alertstore.
package alert
