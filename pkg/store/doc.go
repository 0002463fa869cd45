/*
Package store persists tasks, findings, worker snapshots and scan
configurations in an embedded sqlite database.

The store is the system's ground truth. Completion state, findings
counts and export data all come from here, never from broker state or
in-memory accounting. Finding inserts ignore duplicate ids, which is
half of what makes result replay idempotent (the other half is the
classifier's content-addressed ids).

SQLiteStore serializes all access through a single connection in WAL
mode. Write volume is one row per finding; this is nowhere near
sqlite's limits.
*/
package store
