/*
Package metrics defines the Prometheus collectors exposed by the
coordinator: task and result counters, finding counts by severity, the
active worker gauge, and fuzzer run outcomes and durations on the
worker side.

Call Register once at startup, then serve Handler on the metrics
address.
*/
package metrics
