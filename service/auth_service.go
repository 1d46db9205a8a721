package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const (
	revokedPrefix   = "revoked:"
	challengePrefix = "challenge:"

	// minRevocationTTL keeps already expired refresh ids revoked for a while,
	// so clock skew between instances can not revive them.
	minRevocationTTL = time.Hour

	defaultRole = "user"
)

// userNamespace seeds deterministic user ids derived from wallet addresses
var userNamespace = uuid.MustParse("6f1a3c52-8d7e-4b0a-9c3f-2e5d7a1b4c60")

// Config holds the identity provider lifetimes
type Config struct {
	ChallengeWindow time.Duration // How old a signed challenge may be
	ChallengeSkew   time.Duration // How far in the future a challenge may be
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
}

// DefaultConfig returns 5 minute challenges and access tokens and 5 day refresh tokens
func DefaultConfig() Config {
	return Config{
		ChallengeWindow: 5 * time.Minute,
		ChallengeSkew:   30 * time.Second,
		AccessTTL:       5 * time.Minute,
		RefreshTTL:      5 * 24 * time.Hour,
	}
}

// Tokens is an issued credential pair
type Tokens struct {
	AccessToken  string
	RefreshToken string
	AccessExpiry time.Time
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.EventPublisher
	logger    *zap.Logger

	cfg Config
	now func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
	logger *zap.Logger,
	cfg Config,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		tokenizer: tokenizer,
		store:     store,
		eventPub:  eventPub,
		logger:    logger.Named("auth"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Login authenticates a wallet by its signed challenge message
func (s *AuthService) Login(ctx context.Context, address, signature, message string) (core.User, Tokens, error) {
	challenge, err := core.ParseChallenge(message)
	if err != nil {
		return core.User{}, Tokens{}, err
	}

	now := s.now()
	issuedAt := challenge.IssuedAt()
	if issuedAt.Before(now.Add(-s.cfg.ChallengeWindow)) || issuedAt.After(now.Add(s.cfg.ChallengeSkew)) {
		return core.User{}, Tokens{}, core.ErrChallengeExpired
	}

	// Verify the signature
	if err := s.tokenizer.VerifySignature(challenge, signature, address); err != nil {
		return core.User{}, Tokens{}, err
	}

	// A message is accepted once; the marker outlives the acceptance window
	if err := s.consumeChallenge(ctx, message); err != nil {
		return core.User{}, Tokens{}, err
	}

	tokens, err := s.issue(s.newSession(address, now))
	if err != nil {
		return core.User{}, Tokens{}, err
	}

	user := UserFor(address)
	s.logger.Info("wallet logged in", zap.String("address", user.Address), zap.String("user_id", user.ID))

	return user, tokens, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	// Parse and validate the refresh token
	session, err := s.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return Tokens{}, err
	}

	now := s.now()
	if now.After(session.RefreshExpiry) {
		return Tokens{}, core.ErrTokenExpired
	}

	// Single use: claiming the revocation marker is what spends the token,
	// so of two concurrent refreshes only one gets through
	claimed, err := s.store.SetNX(ctx, revokedPrefix+session.RefreshID, "1", revocationTTL(session.RefreshExpiry.Sub(now)))
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to invalidate token: %w", err)
	}
	if !claimed {
		return Tokens{}, core.ErrTokenInvalidated
	}

	return s.issue(s.newSession(session.Address, now))
}

// Logout invalidates a refresh token and every access token minted with it
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return err
	}

	if err := s.revoke(ctx, session.RefreshID, session.RefreshExpiry.Sub(s.now())); err != nil {
		return err
	}

	// The token is already revoked; a lost event only delays other instances
	if err := s.eventPub.PublishLogout(ctx, session.Address, session.RefreshID); err != nil {
		s.logger.Warn("failed to publish logout event", zap.String("address", session.Address), zap.Error(err))
	}

	s.logger.Info("wallet logged out", zap.String("address", session.Address))
	return nil
}

// ValidateAccessToken returns the session of a live access token
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, err
	}

	if s.now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Access tokens die with the refresh token they were minted with
	if session.RefreshID != "" {
		revoked, err := s.isRevoked(ctx, session.RefreshID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

// UserFor returns the deterministic user record of a wallet address
func UserFor(address string) core.User {
	normalized := strings.ToLower(address)
	return core.User{
		ID:       uuid.NewSHA1(userNamespace, []byte(normalized)).String(),
		Username: shortAddress(normalized),
		Address:  normalized,
		Role:     defaultRole,
	}
}

func shortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func (s *AuthService) newSession(address string, now time.Time) *core.Session {
	return &core.Session{
		ID:            uuid.NewString(),
		Address:       strings.ToLower(address),
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.cfg.RefreshTTL),
		AccessExpiry:  now.Add(s.cfg.AccessTTL),
		RefreshID:     uuid.NewString(),
	}
}

func (s *AuthService) issue(session *core.Session) (Tokens, error) {
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return Tokens{AccessToken: accessToken, RefreshToken: refreshToken, AccessExpiry: session.AccessExpiry}, nil
}

func (s *AuthService) consumeChallenge(ctx context.Context, message string) error {
	sum := sha256.Sum256([]byte(message))
	key := challengePrefix + hex.EncodeToString(sum[:])

	recorded, err := s.store.SetNX(ctx, key, "1", s.cfg.ChallengeWindow+s.cfg.ChallengeSkew)
	if err != nil {
		return fmt.Errorf("failed to record challenge: %w", err)
	}
	if !recorded {
		return core.ErrChallengeReused
	}
	return nil
}

func (s *AuthService) isRevoked(ctx context.Context, refreshID string) (bool, error) {
	_, err := s.store.Get(ctx, revokedPrefix+refreshID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
}

func (s *AuthService) revoke(ctx context.Context, refreshID string, ttl time.Duration) error {
	if err := s.store.Set(ctx, revokedPrefix+refreshID, "1", revocationTTL(ttl)); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

func revocationTTL(remaining time.Duration) time.Duration {
	if remaining < minRevocationTTL {
		return minRevocationTTL
	}
	return remaining
}
