// Package schedule drives the host's periodic addon rescans.
//
// ParseRescan validates a cron expression once; the resulting Rescan reports
// upcoming run times and repeats a rescan until its context is cancelled.
package schedule
