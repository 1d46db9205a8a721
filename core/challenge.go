package core

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	challengePreamble = "Sign this message to authenticate with your wallet."
	walletPrefix      = "Wallet: "
	timestampPrefix   = "Timestamp: "
)

// Challenge binds a wallet address to a unique timestamp (unix milliseconds)
type Challenge struct {
	Address   string
	Timestamp int64
}

// NewChallenge creates a challenge for the address
func NewChallenge(address string, timestamp int64) Challenge {
	return Challenge{Address: address, Timestamp: timestamp}
}

// Message renders the text handed to the wallet for signing
func (c Challenge) Message() string {
	return fmt.Sprintf("%s\n\n%s%s\n%s%d", challengePreamble, walletPrefix, c.Address, timestampPrefix, c.Timestamp)
}

// IssuedAt returns the challenge timestamp as time
func (c Challenge) IssuedAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// ParseChallenge reads a message produced by Challenge.Message
func ParseChallenge(message string) (Challenge, error) {
	lines := strings.Split(message, "\n")
	if len(lines) != 4 || lines[0] != challengePreamble || lines[1] != "" {
		return Challenge{}, ErrInvalidChallenge
	}

	address, ok := strings.CutPrefix(lines[2], walletPrefix)
	if !ok || address == "" {
		return Challenge{}, ErrInvalidChallenge
	}

	raw, ok := strings.CutPrefix(lines[3], timestampPrefix)
	if !ok {
		return Challenge{}, ErrInvalidChallenge
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts <= 0 {
		return Challenge{}, ErrInvalidChallenge
	}

	return Challenge{Address: address, Timestamp: ts}, nil
}

// ChallengeClock hands out strictly increasing millisecond timestamps,
// so two attempts in the same millisecond still produce distinct messages.
type ChallengeClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewChallengeClock creates a clock; a nil now defaults to time.Now
func NewChallengeClock(now func() time.Time) *ChallengeClock {
	if now == nil {
		now = time.Now
	}
	return &ChallengeClock{now: now}
}

// Next returns the next timestamp
func (c *ChallengeClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}
