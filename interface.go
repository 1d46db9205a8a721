package walletauth

import (
	"context"

	"github.com/layer-3/walletauth/client"
	"github.com/layer-3/walletauth/core"
)

// Session is the public surface of a wallet authenticated client
type Session interface {
	// Login signs a fresh challenge with the connected wallet and stores the issued credentials
	Login(ctx context.Context) (core.User, error)

	// Logout forgets the local credentials; it never fails
	Logout(ctx context.Context)

	// Do executes a backend request, refreshing an expired access token once
	Do(ctx context.Context, req client.Request) (*client.Response, error)

	// State returns the current authentication state
	State() core.State

	// User returns the cached user while authenticated
	User() (core.User, bool)

	// Subscribe registers a state listener and returns its unsubscribe function
	Subscribe(listener client.Listener) func()
}
