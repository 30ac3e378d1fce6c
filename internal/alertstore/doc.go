// Package alertstore is the durable, append/update log of alert lifecycle
// events.
//
// Every issuance inserts a row; acknowledgment and retraction mutate the
// latest open row for the identifier in place. Each insert or update bumps
// a store-wide modification counter, which incremental consumers use as a
// resumable cursor (ExecuteQuery / ContinueQuery).
//
// Backends:
//   - "sqlite": SQLite database file (production)
//   - "memory": in-process store (tests, constrained deployments)
package alertstore
