package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// CliOptions abstracts configuration options for reading parameters from the
// command line.
type CliOptions interface {
	// Flags returns the flag sets grouped by section for help output.
	Flags() cliflag.NamedFlagSets

	// Complete fills in fields derived from other fields.
	Complete() error

	// Validate checks the options and returns an aggregate error.
	Validate() error
}

// NamedFlagSetOptions is the name command packages assert their options against.
type NamedFlagSetOptions = CliOptions
