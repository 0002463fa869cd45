/*
Package broker wraps the redis primitives FuzzFleet uses for worker
coordination: FIFO queues (RPUSH/BLPOP/LPOP) for task, control and
result delivery, and hashes (HSET/HGETALL/HDEL) for worker membership.

The keyspace is fixed: each worker owns "tasks:<id>" and
"control:<id>", all workers share the "results" queue, and membership
lives in the "workers:active" and "workers:health" hashes.

The broker is trusted for per-queue ordering but not for durability.
Ground truth for tasks and findings is the store; losing broker state
loses at most in-flight messages.
*/
package broker
