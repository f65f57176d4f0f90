// Package flowerr defines the error kinds shared across the topology,
// flow compiler, and RIB layers.
package flowerr

import "errors"

// Kind identifies the category of a compiler or catalog error.
type Kind int

const (
	// InvalidPrefix marks a malformed address literal or out-of-range mask.
	InvalidPrefix Kind = iota
	// AddressFamilyMismatch marks a NATed prefix of a different family than
	// the original prefix.
	AddressFamilyMismatch
	// UnknownUserVRF marks a start VRF name with no RD in the topology.
	UnknownUserVRF
	// UnknownFunction marks a chain entry with no matching Function.
	UnknownFunction
	// MissingInterFPRd marks a pair of Functions in different pools with no
	// inter-FP RD on the required slice.
	MissingInterFPRd
	// LoopInChain marks a chain containing a repeated Function name.
	LoopInChain
	// DuplicatePrefix marks a flow whose prefix or NATed prefix is already
	// installed in the RIB.
	DuplicatePrefix
	// DuplicateCatalogEntry marks a duplicate Function or inter-FP RD
	// encountered while loading the catalog.
	DuplicateCatalogEntry
)

func (k Kind) String() string {
	switch k {
	case InvalidPrefix:
		return "invalid prefix"
	case AddressFamilyMismatch:
		return "address family mismatch"
	case UnknownUserVRF:
		return "unknown user vrf"
	case UnknownFunction:
		return "unknown function"
	case MissingInterFPRd:
		return "missing inter-fp rd"
	case LoopInChain:
		return "loop in chain"
	case DuplicatePrefix:
		return "duplicate prefix"
	case DuplicateCatalogEntry:
		return "duplicate catalog entry"
	default:
		return "unknown error"
	}
}

// Error is a kinded error: callers that need to distinguish validation
// failures from compiler bugs switch on Kind() rather than string-matching
// the message.
type Error struct {
	kind Kind
	msg  string
}

// New creates an Error of the given kind with the given message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// Kind reports the error's category.
func (e *Error) Kind() Kind {
	return e.kind
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind == kind
	}
	return false
}
