package domain

import "context"

// Role is the verified role of the caller as supplied by the
// authentication layer.
type Role string

const (
	RolePassenger  Role = "PASSENGER"
	RoleClerk      Role = "CLERK"
	RoleDriver     Role = "DRIVER"
	RoleDispatcher Role = "DISPATCHER"
	RoleAdmin      Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePassenger, RoleClerk, RoleDriver, RoleDispatcher, RoleAdmin:
		return true
	}
	return false
}

// RequestContext carries the verified identity of a single call. It is
// passed explicitly; nothing in the engine reads identity from global state.
type RequestContext struct {
	UserID uint64
	Role   Role
}

type requestContextKey struct{}

// WithRequestContext returns a copy of ctx carrying rc.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom extracts the RequestContext stored by
// WithRequestContext. ok is false when none is present.
func RequestContextFrom(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
