// Package services holds cross-cutting error categories and context keys
// shared by the scheduler, pipeline, and API layers.
package services
