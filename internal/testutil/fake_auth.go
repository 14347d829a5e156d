package testutil

import (
	"context"
	"net/http"

	gateway "github.com/eugener/aigateway/internal"
)

// FakeAuth always authenticates successfully as a superadmin user, unless an
// Identity override is set.
type FakeAuth struct {
	Identity *gateway.Identity
}

// Authenticate returns the configured identity, or a default superadmin
// identity if none was set.
func (f FakeAuth) Authenticate(_ context.Context, _ *http.Request) (*gateway.Identity, error) {
	if f.Identity != nil {
		return f.Identity, nil
	}
	return &gateway.Identity{
		Method: gateway.AuthJWT,
		UserID: "test-user",
		Role:   gateway.RoleSuperadmin,
	}, nil
}

// RejectAuth always rejects authentication.
type RejectAuth struct{}

// Authenticate always returns ErrUnauthorized.
func (RejectAuth) Authenticate(context.Context, *http.Request) (*gateway.Identity, error) {
	return nil, gateway.ErrUnauthorized
}
