/*
Package manager implements the coordinator core of FuzzFleet.

The Manager owns the full lifecycle of a scan task: it validates and
persists the task, fans it out to the assigned workers over the broker,
collects their results from the shared results queue, classifies raw
fuzzer records into findings, and serves the read API (tasks, findings,
exports, summaries) off the store.

# Architecture

The manager runs two background loops next to the synchronous API:

  - Result loop: blocks on the shared "results" queue, decodes each
    worker result and feeds it through classification and fan-in
    accounting.
  - Snapshot loop: periodically copies the live registry view into the
    workers table so worker history survives restarts.

Fan-in accounting is held in memory, keyed by task id. A task created
with N worker assignments is expected to produce exactly N result
messages; each one advances progress by 1/N, and the Nth completes the
task with the store's authoritative findings count. Tasks no longer in
the accounting map (completed, or created by a previous coordinator
process) still have their findings saved, but never move progress:
result replay after completion is a no-op.

# Failure Policy

By default a failed worker result is logged and ignored, matching the
view that a scan is only as good as its successful workers. With
Config.CountFailures enabled, failures count toward progress, and a
task whose workers all failed is marked failed instead of waiting
forever.

# Delivery Semantics

Task messages are delivered at-least-once per worker queue. The broker
is trusted for per-queue FIFO ordering but not for durability; the
sqlite store is the ground truth for tasks and findings, and finding
ids are content-addressed so redelivered results cannot duplicate rows.
*/
package manager
