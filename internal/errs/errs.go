// Package errs defines the error kinds shared across the directory, fleet
// registry, placement/backfill engines, and the matchmaking API.
package errs

import "errors"

// Kind classifies a failure the way the fleet registry and engines need to
// react to it: NotFound/Timeout/Corrupt are recoverable (treated as "no
// result"), BackendUnavailable surfaces as a 5xx, Capacity/AuthInvalid are
// rejected without retry.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindTimeout
	KindCorrupt
	KindBackendUnavailable
	KindCapacity
	KindAuthInvalid
)

// Error wraps an underlying cause with a Kind so callers can branch with
// errors.Is against the sentinels below while still keeping %w-wrapped
// context, matching the teacher's fmt.Errorf("...: %w", err) idiom.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel matching e.Kind, so
// errors.Is(err, ErrCorrupt) holds for any KindCorrupt error whatever its
// wrapped cause.
func (e *Error) Is(target error) bool {
	sentinels := [...]error{KindNotFound: ErrNotFound, KindTimeout: ErrTimeout, KindCorrupt: ErrCorrupt,
		KindBackendUnavailable: ErrBackendUnavailable, KindCapacity: ErrCapacity, KindAuthInvalid: ErrAuthInvalid}
	if e.Kind < 0 || int(e.Kind) >= len(sentinels) || sentinels[e.Kind] == nil {
		return false
	}
	return target == sentinels[e.Kind]
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

var (
	ErrNotFound           = errors.New("record not found")
	ErrTimeout            = errors.New("wait-for-event timeout")
	ErrCorrupt            = errors.New("record decode failed")
	ErrBackendUnavailable = errors.New("directory backend unavailable")
	ErrCapacity           = errors.New("session at capacity")
	ErrAuthInvalid        = errors.New("bearer token invalid")
)

// KindOf extracts the Kind from err, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err represents a missing-or-expired record,
// treating Corrupt the same as NotFound per spec.
func IsNotFound(err error) bool {
	k := KindOf(err)
	return k == KindNotFound || k == KindCorrupt
}
