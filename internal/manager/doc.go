// Package manager wires the alert engine together: it owns the store, the
// muter, the delivery channels, and the dynamic registries of per-source
// responders and sound vendors, and it replays still-open alerts after a
// restart.
//
// Recording is best-effort and runs off the caller path; a storage fault
// is logged and must never hold back a safety-relevant presentation.
package manager
