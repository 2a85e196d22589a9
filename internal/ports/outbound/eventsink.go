package outbound

import (
	"context"
	"time"

	"github.com/keymesh/socialproof/internal/domain/entity"
)

// EventType represents the type of event.
type EventType string

// Event type constants.
const (
	EventTypeBindingCompleted    EventType = "binding_completed"
	EventTypeVerificationChecked EventType = "verification_checked"
)

// Event is the interface that all event types implement.
type Event interface {
	EventType() EventType
	GetNetworkID() entity.NetworkID
	GetPlatform() entity.Platform
}

// BindingEvent is published when a proving attempt completes with a valid proof.
type BindingEvent struct {
	ID          string             `json:"id"`
	NetworkID   entity.NetworkID   `json:"networkId"`
	UserAddress string             `json:"userAddress"`
	Social      entity.BoundSocial `json:"social"`
	CompletedAt time.Time          `json:"completedAt"`
}

func (e BindingEvent) EventType() EventType           { return EventTypeBindingCompleted }
func (e BindingEvent) GetNetworkID() entity.NetworkID { return e.NetworkID }
func (e BindingEvent) GetPlatform() entity.Platform   { return e.Social.Platform }

// VerificationEvent is published after a bound social has been re-checked.
type VerificationEvent struct {
	ID          string              `json:"id"`
	NetworkID   entity.NetworkID    `json:"networkId"`
	UserAddress string              `json:"userAddress"`
	Platform    entity.Platform     `json:"platform"`
	Status      entity.VerifyStatus `json:"status"`
}

func (e VerificationEvent) EventType() EventType           { return EventTypeVerificationChecked }
func (e VerificationEvent) GetNetworkID() entity.NetworkID { return e.NetworkID }
func (e VerificationEvent) GetPlatform() entity.Platform   { return e.Platform }

// EventSink publishes domain events to downstream consumers.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
