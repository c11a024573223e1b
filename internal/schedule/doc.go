// Package schedule turns the race calendar into trigger jobs and runs the
// claim/retry loop that feeds them to the episode pipeline. Idempotency is
// enforced in the database: partial unique indexes guarantee at most one
// active job per race and trigger.
package schedule
