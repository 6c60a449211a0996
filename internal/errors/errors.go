// Package errors provides the discovery error taxonomy shared by the loader,
// collector, validator and orchestrator.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies why a unit or candidate failed discovery.
type Kind string

const (
	// Validation-time, per candidate.
	MissingReturnType           Kind = "MissingReturnType"
	VariadicParameterNotAllowed Kind = "VariadicParameterNotAllowed"
	MissingParameterType        Kind = "MissingParameterType"
	ExcludeOnRequiredParameter  Kind = "ExcludeOnRequiredParameter"

	// ValidationFailure wraps one of the validation kinds above when it is
	// reported against a unit.
	ValidationFailure Kind = "ValidationFailure"

	// Unit-load-time.
	ModuleLoadFailure Kind = "ModuleLoadFailure"
	UnitTimeout       Kind = "UnitTimeout"

	// Collection-time.
	InvalidExport          Kind = "InvalidExport"
	ConflictingAttribution Kind = "ConflictingAttribution"

	// Registration-time.
	DuplicateToolName Kind = "DuplicateToolName"
)

// SignatureError is a rejection produced by the signature validator.
type SignatureError struct {
	Rule      Kind   // one of the four validation kinds
	Parameter string // offending parameter, if any
	Message   string
}

func (e *SignatureError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("%s: parameter %q: %s", e.Rule, e.Parameter, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// NewSignatureError creates a SignatureError.
func NewSignatureError(rule Kind, parameter, message string) *SignatureError {
	return &SignatureError{
		Rule:      rule,
		Parameter: parameter,
		Message:   message,
	}
}

// DuplicateToolError reports a name that is already taken in the catalog
// being built.
type DuplicateToolError struct {
	Name         string
	ExistingUnit string
	IncomingUnit string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("duplicate tool name %q: already registered by %s, rejected from %s",
		e.Name, e.ExistingUnit, e.IncomingUnit)
}

// DiscoveryError records one unit's or candidate's failure during a pass.
// Discovery errors are collected, never returned as the pass error.
type DiscoveryError struct {
	Unit      string // unit identifier, e.g. "greet.go"
	Kind      Kind
	Candidate string // offending candidate name, when known
	Err       error
}

func (e *DiscoveryError) Error() string {
	var msg string
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Candidate != "" {
		return fmt.Sprintf("%s: %s [%s]: %s", e.Unit, e.Candidate, e.Kind, msg)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Unit, e.Kind, msg)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Rule returns the specific validation rule behind a ValidationFailure, or the
// error's own kind otherwise.
func (e *DiscoveryError) Rule() Kind {
	var se *SignatureError
	if errors.As(e.Err, &se) {
		return se.Rule
	}
	return e.Kind
}

// New creates a DiscoveryError.
func New(unit string, kind Kind, candidate string, err error) *DiscoveryError {
	return &DiscoveryError{
		Unit:      unit,
		Kind:      kind,
		Candidate: candidate,
		Err:       err,
	}
}

// Newf creates a DiscoveryError with a formatted cause.
func Newf(unit string, kind Kind, candidate, format string, args ...any) *DiscoveryError {
	return New(unit, kind, candidate, fmt.Errorf(format, args...))
}

// KindOf returns the kind of a discovery error, or "" for other errors.
func KindOf(err error) Kind {
	var de *DiscoveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsDuplicate returns true if the error is a DuplicateToolError.
func IsDuplicate(err error) bool {
	var de *DuplicateToolError
	return errors.As(err, &de)
}

// IsSignature returns true if the error is a SignatureError.
func IsSignature(err error) bool {
	var se *SignatureError
	return errors.As(err, &se)
}

// IsTimeout returns true if the error is a UnitTimeout discovery error.
func IsTimeout(err error) bool {
	return KindOf(err) == UnitTimeout
}

// IsLoadFailure returns true if the error is a ModuleLoadFailure discovery error.
func IsLoadFailure(err error) bool {
	return KindOf(err) == ModuleLoadFailure
}
