// Package auth carries the caller identity issued by the upstream auth
// gateway. Tokens are verified there; this service trusts the forwarded
// identity headers as-is.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Role of an authenticated caller
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleVendor   Role = "vendor"
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Identity headers forwarded by the auth gateway
const (
	HeaderUserID   = "X-User-Id"
	HeaderRole     = "X-User-Role"
	HeaderVendorID = "X-Vendor-Id"
)

// Caller is the verified identity of the party making a request. The zero
// value is an anonymous caller.
type Caller struct {
	UserID   string
	Role     Role
	VendorID string
}

// Anonymous reports whether no identity was forwarded
func (c Caller) Anonymous() bool {
	return c.Role == ""
}

// VendorScoped reports whether the caller acts on behalf of a single vendor
func (c Caller) VendorScoped() bool {
	return (c.Role == RoleVendor || c.Role == RoleStaff) && c.VendorID != ""
}

// ActsFor reports whether the caller holds vendor-scoped authority over vendorID
func (c Caller) ActsFor(vendorID string) bool {
	return c.VendorScoped() && c.VendorID == vendorID
}

// Name identifies the caller in status logs
func (c Caller) Name() string {
	if c.UserID != "" {
		return c.UserID
	}
	if c.VendorID != "" {
		return string(c.Role) + ":" + c.VendorID
	}
	return string(c.Role)
}

type ctxKey struct{}

// WithCaller stores c in ctx
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the caller stored in ctx, or an anonymous caller
func FromContext(ctx context.Context) Caller {
	c, _ := ctx.Value(ctxKey{}).(Caller)
	return c
}

// FromRequest reads the identity headers of r. Unknown roles are treated
// as anonymous.
func FromRequest(r *http.Request) Caller {
	role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))))
	switch role {
	case RoleAdmin, RoleVendor, RoleCustomer, RoleStaff:
	default:
		return Caller{}
	}

	return Caller{
		UserID:   strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:     role,
		VendorID: strings.TrimSpace(r.Header.Get(HeaderVendorID)),
	}
}

// Middleware attaches the forwarded caller identity to the request context
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithCaller(r.Context(), FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
