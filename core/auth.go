package core

import "time"

// Credentials is the access/refresh token pair issued by the identity provider
type Credentials struct {
	AccessToken  string `json:"accessToken"`  // Short-lived bearer token
	RefreshToken string `json:"refreshToken"` // Longer-lived token used only to mint new access tokens
}

// Complete reports whether both tokens are present
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// User is the denormalized user snapshot returned at login time
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Address  string `json:"walletAddress"`
	Role     string `json:"role"`
}

// Record is the single value persisted by the credential store.
// It is always replaced as a whole.
type Record struct {
	Credentials Credentials `json:"credentials"`
	User        User        `json:"user"`
}

// Session represents an authenticated session on the identity provider side
type Session struct {
	ID            string    // Unique session identifier
	Address       string    // Ethereum address of the user
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}
