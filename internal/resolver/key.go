package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// Key identifies a completion candidate whose detail is resolved.
// Keys are comparable; two keys are the same candidate iff all fields match.
type Key struct {
	FullName   string // dotted name, e.g. numpy.linalg.norm
	ModulePath string // file defining the symbol, empty if unknown
	Line       int
	Column     int
}

// Namespace returns the first segment of the dotted full name.
func (k Key) Namespace() string {
	ns, _, _ := strings.Cut(k.FullName, ".")
	return ns
}

func (k Key) String() string {
	return fmt.Sprintf("%s (%s:%d:%d)", k.FullName, k.ModulePath, k.Line, k.Column)
}

// Kind tells callers whether a Result carries a resolved value.
type Kind int

const (
	// Resolved results carry the computed detail.
	Resolved Kind = iota
	// Failed results carry the empty sentinel value and the failure.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is the outcome of a resolution.
type Result struct {
	Value string
	Kind  Kind
	Err   error // *ResolutionError when Kind is Failed
}

// OK reports whether the result was resolved.
func (r Result) OK() bool {
	return r.Kind == Resolved
}

// ErrResolution is wrapped by every *ResolutionError.
var ErrResolution = errors.New("resolver: resolution failed")

// ResolutionError records a failed resolve call for a key.
type ResolutionError struct {
	Key Key
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Key, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Err}
}
