// Package queuelib implements the queuedl download scheduler: a durable
// job store, an in-memory FIFO fed by a bounded pool of workers, a pause
// gate, per-job cooperative cancellation, automatic retries with a fixed
// delay and an exponentially smoothed speed tracker.
//
// The Manager never talks to the network itself. Transfers are delegated
// to a Fetcher; see the backend package for the available implementations.
package queuelib
