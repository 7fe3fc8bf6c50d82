// Package unit provides the processing-unit architecture for the import pipeline.
//
// A unit is a named, independently configurable component (the tree parser,
// the suggestion engine, test doubles) that implements one capability
// contract: Configure, Execute, Describe. Units are registered by name into an
// explicitly constructed Registry, which owns them for the lifetime of the
// service and dispatches executions to them.
//
// Architecture:
//   - Every unit implements the same Unit interface
//   - The set of units is declared at bootstrap; there is no discovery
//   - Units are isolated: a failing or panicking unit only fails its own run
package unit

import (
	"context"
	"time"
)

// Unit defines the interface that all processing units must implement.
type Unit interface {
	// Configure applies options. On failure nothing is applied and the
	// returned error wraps errors.ErrInvalidConfig.
	Configure(opts Options) error

	// Execute performs the unit's work. Failures are reported as
	// *ExecutionError; partial output produced before the failure travels
	// in ExecutionError.Partial.
	Execute(ctx context.Context, args Args) (any, error)

	// Describe returns the unit's descriptor. Pure, never fails.
	Describe() Descriptor
}

// Descriptor describes a unit
type Descriptor struct {
	// Name is the unit identifier (e.g., "parser", "analyzer")
	Name string `json:"name"`

	// Version is the unit version (semver)
	Version string `json:"version"`

	// Requires is an optional semver constraint on the host version
	Requires string `json:"requires,omitempty"`

	// Author is the unit author/maintainer
	Author string `json:"author"`

	// Description is a human-readable description
	Description string `json:"description"`

	// RegisteredAt is stamped by the Registry; zero until registered
	RegisteredAt time.Time `json:"registeredAt"`
}

// Args are the inputs of one execution: ordered string flags
// (e.g. "--no-path") plus a single structured input document.
type Args struct {
	Flags []string
	Input any
}

// HasFlag reports whether flag was passed.
func (a Args) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Reentrant is an optional interface for units that are safe to execute
// concurrently. Units that do not implement it, or return false, must not be
// run concurrently under the same name; serializing them is the caller's job.
type Reentrant interface {
	Reentrant() bool
}

// IsReentrant reports whether u declares itself safe for concurrent Execute calls.
func IsReentrant(u Unit) bool {
	r, ok := u.(Reentrant)
	return ok && r.Reentrant()
}

// Configurable is an optional interface for units that expose their
// configuration schema, so the CLI and HTTP API can describe accepted options.
type Configurable interface {
	Unit

	// ConfigSchema returns the configuration schema for this unit.
	// The returned map keys are option names (e.g., "max_depth").
	ConfigSchema() map[string]ConfigField
}

// ConfigField describes a single configuration option.
type ConfigField struct {
	Type         string `json:"type"` // "string", "number", "integer", "boolean", "array"
	Description  string `json:"description"`
	DefaultValue string `json:"default,omitempty"`
	Required     bool   `json:"required,omitempty"`
	MinValue     string `json:"min,omitempty"`
	MaxValue     string `json:"max,omitempty"`
}

// Status is a Descriptor plus the registry's execution counters for the unit.
type Status struct {
	Descriptor
	Reentrant bool   `json:"reentrant"`
	InFlight  int    `json:"inFlight"`
	Runs      uint64 `json:"runs"`
	Failures  uint64 `json:"failures"`
	LastError string `json:"lastError,omitempty"`
}
