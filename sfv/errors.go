package sfv

import (
	"errors"
	"fmt"
)

var (
	// ErrUnserializable is returned by SerializeList when a member contains
	// a byte outside printable ASCII (0x20-0x7E).
	ErrUnserializable = errors.New("sfv: string is not serializable")

	// ErrMalformedList is returned by ParseList when the header value is not
	// a list of sf-strings.
	ErrMalformedList = errors.New("sfv: malformed list")
)

// ParseError describes why a header value was rejected.
type ParseError struct {
	// Member is the index of the offending list member. It is meaningful
	// only when Err is nil; syntax errors carry the parser's error in Err.
	Member int
	// Reason is a short description of the problem.
	Reason string
	// Err is the underlying syntax error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sfv: malformed list: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("sfv: malformed list: member %d: %s", e.Member, e.Reason)
}

// Unwrap returns the underlying syntax error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches ErrMalformedList.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedList
}
