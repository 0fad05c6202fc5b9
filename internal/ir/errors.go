package ir

import "fmt"

// ConfigurationError reports a local configuration problem such as a missing
// file or a malformed property value. It is always raised before any call to
// a provisioning backend.
type ConfigurationError struct {
	Resource string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Resource != "" {
		msg += fmt.Sprintf(" in %s", e.Resource)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ResolutionError reports a reference that cannot be resolved to a declared
// resource or a lookup that resolved to nothing.
type ResolutionError struct {
	Resource string
	Ref      string
	Reason   string
	Err      error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolution error in %s", e.Resource)
	if e.Ref != "" {
		msg += fmt.Sprintf(" (reference %s)", e.Ref)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// NoMatchError is returned by an image query that matched zero images.
type NoMatchError struct {
	Filters []Filter
	Owners  []string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no image matches filters %v (owners %v)", e.Filters, e.Owners)
}

