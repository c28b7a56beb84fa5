// Package api provides an HTTP API server for querying and inspecting the
// retrieval system.
package api

import "github.com/mnemohq/mnemo/pkg/memory"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// SemanticWeight and TemporalDecay are the deployment-wide search
	// fusion weights. Zero values fall back to the engine defaults.
	SemanticWeight float64
	TemporalDecay  float64

	// Memory holds the deployment-wide context-assembly options. Request
	// parameters fill the per-call fields; zero numeric limits fall back
	// to the builder defaults.
	Memory memory.Options
}
