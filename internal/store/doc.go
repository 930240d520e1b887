// Package store provides the durable storage behind the sync core.
//
// Two backends share one code path: SQLite (default, single connection in
// WAL mode) and PostgreSQL through the pgx stdlib driver. Queries are
// written with "?" placeholders and rebound for Postgres.
//
// # Patterns
//
// Explicit tenant: every repository method takes the tenant id as an
// argument. Nothing reads it from ambient state.
//
// Shared counters: quota usage, invoice counters and change cursors are
// rows of the counters table advanced by a single
// INSERT ... ON CONFLICT DO UPDATE ... RETURNING statement. Inside a
// transaction the row stays locked until commit, so values become visible
// in the order they were handed out.
//
// Deterministic reads: the change feed and the journal are always read in
// cursor order (ORDER BY cursor ASC).
//
// Repository methods live on an unexported conn type embedded in both Store
// and Tx, so the same call works inside or outside a transaction. With the
// SQLite backend a Tx owns the only connection: never call Store methods
// while a Tx is open on the same goroutine.
package store
