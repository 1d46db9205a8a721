package ports

import "github.com/layer-3/walletauth/core"

// Tokenizer converts between domain objects and tokens
type Tokenizer interface {
	// Session tokens operations
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
	SessionToRefreshToken(session *core.Session) (string, error)
	RefreshTokenToSession(token string) (*core.Session, error)

	// Verification helpers
	VerifySignature(challenge core.Challenge, signature string, address string) error
}
