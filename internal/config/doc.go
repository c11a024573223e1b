// Package config loads, normalizes, and validates Paddock configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ANTHROPIC_API_KEY. The Config type centralizes every knob the daemon and CLI
// need: scheduling delays, retry budgets, pipeline fan-out, and external
// generation service credentials.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
