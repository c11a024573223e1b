// Package pipeline coordinates episode production end to end: continuity
// selection, script generation, concurrent scene rendering with per-scene
// retries, stitching, publishing, and cleanup. Every stage checkpoints to
// the episode store so an interrupted run resumes instead of restarting.
package pipeline
