/*
Package types defines the core data structures used throughout FuzzFleet.

It holds the persisted entities (Task, Finding, WorkerInfo, ScanConfig),
the broker wire messages (TaskMessage, ControlMessage, ResultMessage,
Heartbeat), and the enums and bounds shared by the coordinator and the
worker agent.

Wire messages are plain JSON; the field tags here are the wire format.
Both processes must agree on them, which is why they live in one
package with no dependencies of its own.

ScanOptions carries the user-tunable fuzzer knobs. Unset values fall
back via EffectiveThreads and EffectiveTimeout rather than being
materialized at creation time, so a stored task shows what the user
actually asked for.
*/
package types
