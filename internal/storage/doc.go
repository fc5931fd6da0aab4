// Package storage persists client chat links, the dedup ledger and the
// operator audit trail in SQLite.
package storage
