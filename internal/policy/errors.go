package policy

import (
	"errors"
	"fmt"
)

// ErrorKind is a machine-readable error classification. Collaborators switch
// on the kind, never on the message text.
type ErrorKind string

const (
	// KindInvalidAction marks an action whose type is not one of the three
	// governed operations.
	KindInvalidAction ErrorKind = "INVALID_ACTION"

	// KindInvalidPolicy marks a structurally broken policy document.
	KindInvalidPolicy ErrorKind = "INVALID_POLICY"

	// KindInvalidRecommendation marks a malformed recommendation record.
	KindInvalidRecommendation ErrorKind = "INVALID_RECOMMENDATION"

	// KindEmptyInput marks an aggregation called with no data. An empty input
	// signals misconfiguration, not a valid steady state, and is distinct from
	// an analysis that succeeded and found a critical risk.
	KindEmptyInput ErrorKind = "EMPTY_INPUT"
)

// Error is a governance error with a machine-readable kind.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}
