package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/layer-3/walletauth/core"
)

// Refresher exchanges a refresh token for a new credential pair
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (core.Credentials, error)
}

// Request describes one backend call
type Request struct {
	Method string
	// Path is resolved against the base URL
	Path   string
	Query  url.Values
	Header http.Header
	// Body is sent as is for []byte and string, JSON encoded otherwise
	Body any
	// Public requests are sent without authorization and never refreshed
	Public bool
}

// Executor sends requests with the stored access token and recovers from
// an expired token by refreshing once and retrying once.
type Executor struct {
	transport      *transport
	creds          *CredentialStore
	projection     *Projection
	refresher      Refresher
	refreshTimeout time.Duration
	metrics        *Metrics
	logger         *zap.Logger

	// refreshes coalesces concurrent recoveries keyed by refresh token
	refreshes singleflight.Group
}

// NewExecutor creates an executor
func NewExecutor(cfg Config, creds *CredentialStore, projection *Projection, refresher Refresher) *Executor {
	return &Executor{
		transport:      newTransport(cfg.HTTPClient, cfg.BaseURL),
		creds:          creds,
		projection:     projection,
		refresher:      refresher,
		refreshTimeout: cfg.RefreshTimeout,
		metrics:        cfg.Metrics,
		logger:         cfg.logger().Named("executor"),
	}
}

// Do executes req. A 401 on an authorized request triggers one shared
// refresh and one retry with the new token. Every other non-success
// status is returned as *core.HTTPError.
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	out := outbound{
		method:      req.Method,
		path:        req.Path,
		query:       req.Query,
		header:      req.Header,
		body:        body,
		contentType: contentType,
		requestID:   uuid.NewString(),
	}
	logger := e.logger.With(
		zap.String("request_id", out.requestID),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
	)

	if req.Public {
		return e.finish(e.transport.send(ctx, out))
	}

	creds, ok := e.creds.Credentials(ctx)
	if !ok {
		e.metrics.request(outcomeUnauthenticated)
		return nil, core.ErrAuthenticationRequired
	}

	out.bearer = creds.AccessToken
	resp, err := e.transport.send(ctx, out)
	if err != nil || resp.Status != http.StatusUnauthorized {
		return e.finish(resp, err)
	}

	logger.Debug("access token rejected, recovering")
	fresh, err := e.recover(ctx, creds)
	if err != nil {
		e.metrics.request(outcomeUnauthenticated)
		return nil, err
	}

	e.metrics.retry()
	out.bearer = fresh.AccessToken
	return e.finish(e.transport.send(ctx, out))
}

func (e *Executor) finish(resp *Response, err error) (*Response, error) {
	if err != nil {
		e.metrics.request(outcomeTransportError)
		return nil, err
	}
	if !resp.ok() {
		e.metrics.request(outcomeHTTPError)
		return nil, resp.httpError()
	}
	e.metrics.request(outcomeSuccess)
	return resp, nil
}

// recover returns credentials newer than used, refreshing at most once per
// refresh token no matter how many callers hit a 401 together. Cancelling
// ctx abandons the wait, never the shared refresh.
func (e *Executor) recover(ctx context.Context, used core.Credentials) (core.Credentials, error) {
	current, ok := e.creds.Credentials(ctx)
	if !ok {
		return core.Credentials{}, core.ErrAuthenticationRequired
	}
	if current.AccessToken != used.AccessToken {
		return current, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := e.refreshes.DoChan(used.RefreshToken, func() (interface{}, error) {
		return e.refresh(shared, used.RefreshToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return core.Credentials{}, fmt.Errorf("%w: %w", core.ErrAuthenticationRequired, res.Err)
		}
		return res.Val.(core.Credentials), nil
	case <-ctx.Done():
		return core.Credentials{}, ctx.Err()
	}
}

func (e *Executor) refresh(ctx context.Context, refreshToken string) (core.Credentials, error) {
	if e.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.refreshTimeout)
		defer cancel()
	}

	e.projection.beginRefresh()

	creds, err := e.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		e.metrics.refresh(refreshFailed)
		e.terminate(ctx, refreshToken, err)
		return core.Credentials{}, err
	}

	e.metrics.refresh(refreshOK)
	e.projection.endRefresh()
	return creds, nil
}

// terminate ends the session that owned refreshToken. A session created by a
// newer login, or a login still running, is left alone.
func (e *Executor) terminate(ctx context.Context, refreshToken string, cause error) {
	cleared, err := e.creds.ClearIf(context.WithoutCancel(ctx), refreshToken)
	if err != nil {
		e.logger.Error("failed to clear credentials", zap.Error(err))
	}
	if !cleared {
		e.projection.endRefresh()
		return
	}

	e.projection.expire()
	e.logger.Warn("session terminated", zap.Error(cause))
}
