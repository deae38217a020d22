// Package scheduler runs cron driven housekeeping for the daemon. A single
// goroutine keeps a min-heap of tasks ordered by trigger time and sleeps at
// most 60 seconds at a time so wall clock jumps (NTP steps, DST, suspend)
// are noticed promptly.
package scheduler
