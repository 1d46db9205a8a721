package ports

//go:generate mockgen -source=events.go -destination=../mocks/mock_events.go -package=mocks

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// EventPublisher publishes logout events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, address string, tokenID string) error
}

// StatePublisher publishes client authentication state transitions
type StatePublisher interface {
	PublishStateChanged(ctx context.Context, change core.StateChange) error
}
