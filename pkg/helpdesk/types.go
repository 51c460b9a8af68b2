package helpdesk

import (
	"context"

	"deskbridge/internal/models"
)

// ConversationRef addresses one helpdesk-side conversation for outbound
// calls. UserID is the platform's id for the end user on whose behalf the
// bridge writes.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
}

// EventKind separates the webhook events the bridge acts on.
type EventKind string

const (
	EventMessage    EventKind = "message"
	EventResolution EventKind = "resolution"
)

// Event is a parsed helpdesk webhook event. Message is set for EventMessage;
// ConversationID identifies the helpdesk conversation in both cases.
type Event struct {
	Kind           EventKind
	ConversationID string
	Message        *models.CanonicalMessage
}

// Client is the capability surface every helpdesk platform adapter provides.
// Implementations are per-tenant: credentials are bound at construction time
// by the adapter factory.
type Client interface {
	// SendText delivers a plain text message into an existing conversation.
	SendText(ctx context.Context, conv ConversationRef, text string) (*models.DeliveryResult, error)

	// SendAttachment delivers one attachment. Failures carry a typed kind so
	// the router can decide between retry, abort, and tenant deactivation.
	SendAttachment(ctx context.Context, conv ConversationRef, att *models.AttachmentRef) (*models.DeliveryResult, error)

	// ResolveAgentInfo looks up agent display metadata. Callers go through
	// the agent directory cache, never directly.
	ResolveAgentInfo(ctx context.Context, agentID string) (*models.AgentInfo, error)

	// AcknowledgeInbound marks an inbound platform event as consumed where
	// the platform supports it. A no-op implementation is valid.
	AcknowledgeInbound(ctx context.Context, eventID string) error

	// CreateConversation opens a new helpdesk conversation for an end user's
	// first contact and seeds it with their opening message.
	CreateConversation(ctx context.Context, user models.EndUser, initialText string) (*ConversationRef, error)
}
