package authz

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrNoAllowedRoles is returned when an authorizer is built without any allowed role.
// It is a programming mistake and must stop the server from starting.
var ErrNoAllowedRoles = errors.New("authz: department role authorizer requires at least one allowed role")

// Kind classifies authorization failures.
type Kind int

const (
	// KindUnauthenticated means no principal was attached to the request.
	KindUnauthenticated Kind = iota + 1
	// KindMissingContext means no department context was attached to the request:
	// the membership resolver did not run before the authorizer.
	KindMissingContext
	// KindForbidden means the principal holds none of the required roles in the department.
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindMissingContext:
		return "missing_context"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

const (
	msgUnauthenticated = "authentication required"
	msgForbidden       = "insufficient permissions"
)

// Error is a per-request authorization failure.
// MissingContext and Forbidden share the same user facing message.
type Error struct {
	Kind     Kind
	Required []string
}

func (err *Error) Error() string {
	msg := err.Message()
	if err.Kind != KindUnauthenticated && len(err.Required) > 0 {
		msg += ": requires one of [" + strings.Join(err.Required, ", ") + "]"
	}
	return msg
}

// Message is the user facing message of the error.
func (err *Error) Message() string {
	if err.Kind == KindUnauthenticated {
		return msgUnauthenticated
	}
	return msgForbidden
}

// IsKind reports whether the cause of err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	aErr, ok := errors.Cause(err).(*Error)
	return ok && aErr.Kind == kind
}
