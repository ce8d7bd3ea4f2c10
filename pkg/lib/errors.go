package lib

import "fmt"

// ConfigurationError reports a peer setup that must not be launched, such as
// two peers sharing one identity.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// LaunchError reports that the OS refused to start a peer.
type LaunchError struct {
	Peer       string
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch peer %s (%s): %v", e.Peer, e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ArtifactConversionError reports a failed graph rendering. Intermediate files
// listed in Files are left on disk.
type ArtifactConversionError struct {
	Files []string
	Err   error
}

func (e *ArtifactConversionError) Error() string {
	return fmt.Sprintf("render %d graph file(s): %v", len(e.Files), e.Err)
}

func (e *ArtifactConversionError) Unwrap() error { return e.Err }
