// Package daemon hosts the long-running paddock process: it enforces
// single-instance execution, recovers jobs orphaned by a crash, keeps the
// job plan in sync with the race calendar, and serves the HTTP API.
package daemon
