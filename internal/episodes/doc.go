// Package episodes persists generated episodes and their per-scene render
// state. Stage checkpoints let an interrupted pipeline resume instead of
// regenerating finished assets.
package episodes
