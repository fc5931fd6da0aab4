// Package scheduler runs periodic background jobs (cron expressions or fixed
// intervals) with per-run timeouts and overlap protection.
package scheduler
