/*
Package registry reads and writes worker membership via the broker's
two hashes: static descriptors under workers:active, heartbeats under
workers:health.

Liveness is purely heartbeat freshness. A worker whose last heartbeat
is older than the staleness threshold (three missed 30-second
intervals) is reported offline but never evicted; workers own their
entries and remove them on graceful shutdown. A crashed worker's stale
entry simply keeps it out of new task assignments.
*/
package registry
