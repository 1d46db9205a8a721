// Package walletauth is a client that signs in with an Ethereum wallet and
// keeps the resulting access/refresh credentials alive across requests.
//
//	c, err := walletauth.New(walletauth.Options{BaseURL: "https://api.example.com", Wallet: w})
//	if err != nil { ... }
//	if _, err := c.Login(ctx); err != nil { ... }
//	resp, err := c.Do(ctx, walletauth.Request{Method: http.MethodGet, Path: "/api/me"})
package walletauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/client"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

type (
	Request  = client.Request
	Response = client.Response
	Snapshot = client.Snapshot
	User     = core.User
	State    = core.State
)

// Options configures New. Only BaseURL is required.
type Options struct {
	BaseURL string
	// Wallet signs login challenges; it can also be connected later with UseWallet.
	Wallet ports.Wallet
	// Store persists the session; defaults to an in-memory store.
	Store ports.Store
	// Namespace scopes the stored session, defaults to "default".
	Namespace  string
	HTTPClient *http.Client
	// RefreshTimeout bounds the shared refresh call; zero means no bound.
	RefreshTimeout time.Duration
	RevokeOnLogout bool
	Logger         *zap.Logger
	// Registerer receives the client counters when set.
	Registerer prometheus.Registerer
	// StatePublisher receives every state transition when set.
	StatePublisher ports.StatePublisher
}

// Client is the default Session implementation
type Client struct {
	creds      *client.CredentialStore
	projection *client.Projection
	auth       *client.Authenticator
	exec       *client.Executor
	logger     *zap.Logger
}

var _ Session = (*Client)(nil)

// New wires a client. A readable stored session is restored as authenticated.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.New("base url must be http or https")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	kv := opts.Store
	if kv == nil {
		kv = store.NewMemoryStore()
	}

	var metrics *client.Metrics
	if opts.Registerer != nil {
		metrics = client.NewMetrics(opts.Registerer)
	}

	cfg := client.Config{
		BaseURL:        opts.BaseURL,
		HTTPClient:     opts.HTTPClient,
		RefreshTimeout: opts.RefreshTimeout,
		RevokeOnLogout: opts.RevokeOnLogout,
		Logger:         logger,
		Metrics:        metrics,
	}

	creds := client.NewCredentialStore(kv, opts.Namespace, logger)
	projection := client.NewProjection(opts.StatePublisher, logger)
	auth := client.NewAuthenticator(cfg, opts.Wallet, creds, projection)

	c := &Client{
		creds:      creds,
		projection: projection,
		auth:       auth,
		exec:       client.NewExecutor(cfg, creds, projection, auth),
		logger:     logger,
	}
	c.restore(context.Background())

	return c, nil
}

func (c *Client) restore(ctx context.Context) {
	if user, ok := client.Restore(ctx, c.creds, c.projection); ok {
		c.logger.Info("restored session", zap.String("address", user.Address))
	}
}

// UseWallet connects or replaces the signing wallet
func (c *Client) UseWallet(wallet ports.Wallet) {
	c.auth.UseWallet(wallet)
}

func (c *Client) Login(ctx context.Context) (core.User, error) {
	return c.auth.Login(ctx)
}

func (c *Client) Logout(ctx context.Context) {
	c.auth.Logout(ctx)
}

func (c *Client) Do(ctx context.Context, req client.Request) (*client.Response, error) {
	return c.exec.Do(ctx, req)
}

// Get is a shorthand for an authorized GET
func (c *Client) Get(ctx context.Context, path string) (*client.Response, error) {
	return c.exec.Do(ctx, client.Request{Method: http.MethodGet, Path: path})
}

func (c *Client) State() core.State {
	return c.projection.State()
}

func (c *Client) User() (core.User, bool) {
	snap := c.projection.Snapshot()
	if snap.User == nil || !snap.Authenticated() {
		return core.User{}, false
	}
	return *snap.User, true
}

// Snapshot returns the state together with the cached user
func (c *Client) Snapshot() client.Snapshot {
	return c.projection.Snapshot()
}

func (c *Client) Subscribe(listener client.Listener) func() {
	return c.projection.Subscribe(listener)
}

// Close waits for background logout revocations
func (c *Client) Close() error {
	c.auth.Wait()
	return nil
}
