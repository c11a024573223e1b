// Package store owns the shared SQLite database: connection setup,
// embedded schema migrations, busy-retry helpers, and the scan/format
// conventions every domain store builds on.
package store
