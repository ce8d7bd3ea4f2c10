package main

import (
	"errors"

	"github.com/martinjaros/nanotalk2/pkg/lib"
)

const (
	exitFailure       = 1
	exitConfiguration = 2
)

// exitCode maps a harness error to the process exit status. Peer exit
// statuses never reach here; a run whose peers both launched exits 0.
func exitCode(err error) int {
	var cfgErr *lib.ConfigurationError
	if errors.As(err, &cfgErr) {
		return exitConfiguration
	}
	return exitFailure
}
