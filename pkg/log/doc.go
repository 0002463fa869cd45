/*
Package log provides structured logging for FuzzFleet on top of
zerolog.

Init configures the global logger once at process start (level, JSON or
console output, destination). The With* helpers attach the standard
correlation fields: component, worker_id, task_id. Everything else goes
through the returned zerolog.Logger as usual.
*/
package log
