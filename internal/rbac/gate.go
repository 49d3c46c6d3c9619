package rbac

import (
	"net/http"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// DenyKind classifies a refused authorization.
type DenyKind int

const (
	// DenyNone marks an allowed decision.
	DenyNone DenyKind = iota
	// DenyUnauthenticated is returned when no logged-in session exists.
	DenyUnauthenticated
	// DenyForbidden is returned when the session lacks the permission.
	DenyForbidden
)

func (k DenyKind) String() string {
	switch k {
	case DenyUnauthenticated:
		return "unauthenticated"
	case DenyForbidden:
		return "forbidden"
	default:
		return "allow"
	}
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Kind    DenyKind
	Reason  string
}

// Err returns nil for allowed decisions and the matching shared error otherwise.
func (d Decision) Err() error {
	switch d.Kind {
	case DenyUnauthenticated:
		return shared.ErrUnauthenticated
	case DenyForbidden:
		return shared.ErrForbidden
	default:
		return nil
	}
}

// Status returns the HTTP status for the decision.
func (d Decision) Status() int {
	switch d.Kind {
	case DenyUnauthenticated:
		return http.StatusUnauthorized
	case DenyForbidden:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

// Authorize decides whether p may perform an action guarded by perm. It has
// no side effects and never consults the store; permissions come from the
// login-time snapshot carried by p.
func Authorize(p Principal, perm Permission) Decision {
	if p == nil || !p.IsAuthenticated() {
		return Decision{Kind: DenyUnauthenticated, Reason: "Authentication required"}
	}
	if !p.HasPermission(string(perm)) {
		return Decision{Kind: DenyForbidden, Reason: "You do not have permission to perform this action"}
	}
	return Decision{Allowed: true}
}
