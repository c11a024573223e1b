// Package gags tracks recurring jokes across episodes: their lifecycle,
// per-episode usage records, and the eligibility ranking that keeps a bit
// from being run into the ground two weekends in a row.
package gags
