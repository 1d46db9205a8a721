// Package client implements the wallet authenticated HTTP client: the
// credential store, the observable auth state, the login/logout/refresh
// flows and the request executor with single-flight 401 recovery.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const revokeTimeout = 10 * time.Second

// Config holds the settings shared by the authenticator and the executor
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	// RefreshTimeout bounds the shared refresh call; zero means no bound.
	RefreshTimeout time.Duration
	// RevokeOnLogout also tells the identity provider to revoke the refresh token.
	RevokeOnLogout bool
	Logger         *zap.Logger
	Metrics        *Metrics
	// Now is used for challenge timestamps, defaults to time.Now.
	Now func() time.Time
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Authenticator runs the login, logout and refresh flows
type Authenticator struct {
	transport  *transport
	creds      *CredentialStore
	projection *Projection
	clock      *core.ChallengeClock
	revoke     bool
	logger     *zap.Logger

	walletMu sync.RWMutex
	wallet   ports.Wallet

	revocations sync.WaitGroup
}

// NewAuthenticator creates an authenticator. wallet may be nil until UseWallet is called.
func NewAuthenticator(cfg Config, wallet ports.Wallet, creds *CredentialStore, projection *Projection) *Authenticator {
	return &Authenticator{
		transport:  newTransport(cfg.HTTPClient, cfg.BaseURL),
		creds:      creds,
		projection: projection,
		clock:      core.NewChallengeClock(cfg.Now),
		revoke:     cfg.RevokeOnLogout,
		logger:     cfg.logger().Named("authenticator"),
		wallet:     wallet,
	}
}

// UseWallet connects or replaces the signing wallet
func (a *Authenticator) UseWallet(wallet ports.Wallet) {
	a.walletMu.Lock()
	defer a.walletMu.Unlock()

	a.wallet = wallet
}

func (a *Authenticator) connectedWallet() ports.Wallet {
	a.walletMu.RLock()
	defer a.walletMu.RUnlock()

	return a.wallet
}

// Login signs a fresh challenge with the connected wallet and exchanges it
// for credentials. Only one login may run at a time.
func (a *Authenticator) Login(ctx context.Context) (core.User, error) {
	wallet := a.connectedWallet()
	if wallet == nil {
		return core.User{}, fmt.Errorf("%w: no wallet connected", core.ErrSigning)
	}

	seq, ok := a.projection.beginLogin()
	if !ok {
		return core.User{}, core.ErrAlreadyInProgress
	}

	epoch := a.creds.Epoch()
	user, err := a.login(ctx, wallet, seq, epoch)
	if err != nil {
		rec, ok := a.creds.Read(context.WithoutCancel(ctx))
		a.projection.abortLogin(seq, rec, ok)
		a.logger.Info("login failed", zap.String("address", wallet.Address()), zap.Error(err))
		return core.User{}, err
	}

	a.logger.Info("logged in", zap.String("address", user.Address), zap.String("user_id", user.ID))
	return user, nil
}

func (a *Authenticator) login(ctx context.Context, wallet ports.Wallet, seq, epoch uint64) (core.User, error) {
	address := wallet.Address()
	message := core.NewChallenge(address, a.clock.Next()).Message()

	signature, err := wallet.SignMessage(ctx, message)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: %w", core.ErrSigning, err)
	}
	if signature == "" {
		return core.User{}, fmt.Errorf("%w: wallet returned an empty signature", core.ErrSigning)
	}

	var resp loginResponse
	err = a.transport.postJSON(ctx, walletLoginPath, loginRequest{
		WalletAddress: address,
		Signature:     signature,
		Message:       message,
	}, &resp)
	if err != nil {
		var httpErr *core.HTTPError
		if errors.As(err, &httpErr) {
			return core.User{}, fmt.Errorf("%w: %w", core.ErrAuthRejected, err)
		}
		return core.User{}, fmt.Errorf("login request: %w", err)
	}

	rec := core.Record{
		Credentials: core.Credentials{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken},
		User:        resp.User,
	}
	if !rec.Credentials.Complete() {
		return core.User{}, fmt.Errorf("%w: login response is missing tokens", core.ErrAuthRejected)
	}

	written, err := a.creds.WriteIfCurrent(ctx, epoch, rec)
	if err != nil {
		return core.User{}, err
	}
	if !written || !a.projection.finishLogin(seq, rec.User) {
		return core.User{}, fmt.Errorf("%w: logged out while signing in", core.ErrAuthenticationRequired)
	}

	return rec.User, nil
}

// Logout clears local credentials and moves to unauthenticated.
// It never fails; with RevokeOnLogout the refresh token is also revoked
// on the identity provider in the background.
func (a *Authenticator) Logout(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	rec, had := a.creds.Read(ctx)
	if err := a.creds.Clear(ctx); err != nil {
		a.logger.Error("failed to clear credentials", zap.Error(err))
	}
	a.projection.reset()

	if had {
		a.logger.Info("logged out", zap.String("address", rec.User.Address))
		if a.revoke {
			a.revocations.Add(1)
			go a.revokeRefreshToken(ctx, rec.Credentials.RefreshToken)
		}
	}
}

func (a *Authenticator) revokeRefreshToken(ctx context.Context, refreshToken string) {
	defer a.revocations.Done()

	ctx, cancel := context.WithTimeout(ctx, revokeTimeout)
	defer cancel()

	var resp struct{}
	if err := a.transport.postJSON(ctx, logoutPath, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		a.logger.Warn("failed to revoke refresh token", zap.Error(err))
	}
}

// Wait blocks until background revocations started by Logout are done
func (a *Authenticator) Wait() {
	a.revocations.Wait()
}

// Refresh exchanges refreshToken for a new credential pair and persists it.
// When the identity provider does not rotate, the old refresh token is kept.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (core.Credentials, error) {
	epoch := a.creds.Epoch()

	var resp refreshResponse
	if err := a.transport.postJSON(ctx, refreshPath, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return core.Credentials{}, fmt.Errorf("%w: %w", core.ErrRefreshFailed, err)
	}
	if resp.AccessToken == "" {
		return core.Credentials{}, fmt.Errorf("%w: response carries no access token", core.ErrRefreshFailed)
	}

	creds := core.Credentials{AccessToken: resp.AccessToken, RefreshToken: refreshToken}
	if resp.RefreshToken != "" {
		creds.RefreshToken = resp.RefreshToken
	}

	updated, err := a.creds.UpdateCredentials(ctx, epoch, refreshToken, creds)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("%w: %w", core.ErrRefreshFailed, err)
	}
	if !updated {
		return core.Credentials{}, fmt.Errorf("%w: session changed during refresh", core.ErrRefreshFailed)
	}

	return creds, nil
}
