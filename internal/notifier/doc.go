// Package notifier queues outgoing chat messages and delivers them from a
// small worker pool under a shared rate limit, retrying failed sends with
// jittered exponential backoff.
//
// Alert rules and client notices call Notify, which never blocks: a full
// queue fails fast with ErrQueueFull. Stop drains what is already queued
// until its context expires.
package notifier
