/*
Package worker implements the FuzzFleet worker agent.

A worker registers itself with the broker, consumes task assignments
from its private queue, runs the external fuzzer binary (ffuf) for each
assignment, and pushes exactly one result message per assignment onto
the shared results queue.

# Loops

The agent runs three cooperative loops until stopped:

  - Task loop: blocking-pops the worker's task queue, invokes the
    fuzzer through the TaskProcessor and delivers the result. While
    paused it stops consuming; queued assignments wait.
  - Control loop: polls the worker's control queue once per second and
    applies coordinator commands (update_threads, pause, resume,
    shutdown).
  - Health loop: writes a heartbeat every 30 seconds, carrying the
    current thread count and processor status.

Shutdown is graceful from any trigger (signal, shutdown command, or
context cancellation): in-flight fuzzer runs finish, the result is
delivered, and the worker removes itself from both membership hashes.

# Configuration

Config values merge in precedence order flags > environment > YAML
file > defaults. A worker id is generated when none is configured, so
workers can be started with no configuration at all against a local
broker.

The fuzzer binary is an external dependency. A worker without one still
starts and heartbeats (reporting fuzzer_available=false) but fails
every task it is assigned.
*/
package worker
