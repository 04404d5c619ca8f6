// Package config holds the typed, read-only-after-construction
// configuration record shared across sharesrv's components (spec §9
// "Duck-typed configuration… a typed configuration record passed by
// shared read-only reference").
package config

import "time"

// Config is the full process configuration, built once at startup from
// CLI flags in cmd/sharesrv, which reads its fields directly. *Config also
// implements the narrow interfaces below; no component in this repository
// takes one of them as a parameter.
type Config struct {
	// ListenAddrs are the TCP addresses the accept loop in cmd/sharesrv
	// listens on; accepted sockets go straight to the transaction engine.
	ListenAddrs []string

	// MetricsAddr is the management surface's listen address; empty
	// disables it.
	MetricsAddr string

	// Workers is the number of worker processes the controller spawns.
	Workers int

	// AssetsDir names a real directory for static assets. Nothing reads
	// it: the `.cpr/` surface (spec §4.5.2 step 1) is served from the
	// assets embedded in internal/web.
	AssetsDir string

	// ReadTimeout/WriteTimeout bound per-connection socket I/O.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Quiet suppresses non-error log output; Verbose enables debug-level
	// logging. Mutually exclusive; Verbose wins if both are set.
	Quiet   bool
	Verbose bool
}

// WorkerCount is the narrow view the broker's controller needs.
type WorkerCount interface {
	WorkerCount() int
}

// WorkerCount implements WorkerCount.
func (c *Config) WorkerCount() int { return c.Workers }

// AssetsSource is the narrow view the static/template surface needs.
type AssetsSource interface {
	AssetsPath() string
}

// AssetsPath implements AssetsSource.
func (c *Config) AssetsPath() string { return c.AssetsDir }

// ListenAddresses is the narrow view the controller's accept loop needs.
type ListenAddresses interface {
	Addrs() []string
}

// Addrs implements ListenAddresses.
func (c *Config) Addrs() []string { return c.ListenAddrs }
