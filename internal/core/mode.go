// Package core is the orchestration layer.  It composes the network
// transport into complete operational modes and provides a builder
// that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	buffer / executor  →  network  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of asyncnet (listen or
// connect).  Each mode owns its network manager and its full lifecycle
// from the first socket to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
