// Package api defines the transport-friendly DTOs shared by the daemon's
// HTTP surface and the CLI, together with thin services that translate
// store records into them.
package api
