// Package worker implements the single background worker that executes
// transfer jobs.
//
// The core abstraction is [Engine], which runs one claimed job end to end:
// authenticate both platform clients, list source activities, then fetch and
// push each item sequentially with per-client rate limiting. [Worker] wraps
// the engine in a polling loop that claims pending jobs from the store and
// sweeps interrupted jobs at startup. Progress is emitted over channels for
// non-blocking status reporting to CLI/UI layers.
package worker
