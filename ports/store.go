package ports

//go:generate mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

import (
	"context"
	"time"
)

// Store is a durable key/value surface.
// Get returns core.ErrNotFound for missing or expired keys.
type Store interface {
	// Set stores a value; a zero ttl means the key never expires
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get retrieves a value by key
	Get(ctx context.Context, key string) (string, error)

	// SetNX stores a value only if the key is missing or expired and reports
	// whether it did. The check and the write are one atomic step.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes a key, missing keys are not an error
	Delete(ctx context.Context, key string) error
}
