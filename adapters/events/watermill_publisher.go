package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const (
	// LogoutTopic carries identity provider logout events
	LogoutTopic = "walletauth.logout"

	// StateTopic carries client authentication state transitions
	StateTopic = "walletauth.state"
)

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// StateChangedEvent represents a client authentication state transition
type StateChangedEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Address string `json:"address,omitempty"`
}

// WatermillPublisher implements the EventPublisher and StatePublisher interfaces using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

var (
	_ ports.EventPublisher = (*WatermillPublisher)(nil)
	_ ports.StatePublisher = (*WatermillPublisher)(nil)
)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	return p.publish(ctx, LogoutTopic, tokenID, LogoutEvent{
		Address: address,
		TokenID: tokenID,
	})
}

// PublishStateChanged publishes a state transition
func (p *WatermillPublisher) PublishStateChanged(ctx context.Context, change core.StateChange) error {
	return p.publish(ctx, StateTopic, watermill.NewUUID(), StateChangedEvent{
		From:    change.From.String(),
		To:      change.To.String(),
		Address: change.Address,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
