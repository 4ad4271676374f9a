// Package poller runs named probes on a schedule.
//
// A [Probe] is any function returning a value or an error. The [Scheduler]
// runs every probe once on start, then ticks at the GCD of the probe
// intervals and runs whichever probes are due, using a bounded worker pool.
// Each run produces a [Result] on [Scheduler.Results].
//
// The remote backend uses it to watch the news service for configuration,
// publisher, channel and feed changes.
package poller
