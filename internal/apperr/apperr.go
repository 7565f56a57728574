// Package apperr defines the error kinds shared across the session,
// object-store, and operator layers (spec §7) so a protocol handler can
// type-switch to a wire-level Error reply without string matching.
package apperr

import "errors"

// Kind classifies an error for translation into a protocol-level
// response. The zero value, KindInternal, is the safe default for an
// error nobody has classified yet.
type Kind int

const (
	KindInternal Kind = iota
	KindTransport
	KindProtocol
	KindAuth
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind, so callers can recover the
// kind with As without parsing messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind, defaulting to
// KindInternal for unclassified errors (matching a bare fmt.Errorf chain
// that never opted into a kind).
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return kind == KindInternal
}

var (
	// ErrNotFound is a convenience sentinel for the common not-found case;
	// wrap with New(KindNotFound, op, ErrNotFound) to attach an op name.
	ErrNotFound = errors.New("not found")
	// ErrConflict is the sentinel for optimistic-concurrency clashes
	// (e.g. saving an object against a stale version).
	ErrConflict = errors.New("conflict")
)
