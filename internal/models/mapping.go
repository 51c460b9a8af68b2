package models

import "time"

// ConversationMapping is the durable association between a chat-side and a
// helpdesk-side conversation for one tenant. For a given tenant each side's
// id maps to exactly one id on the other side.
type ConversationMapping struct {
	ID              int64     `json:"id"`
	TenantID        string    `json:"tenant_id"`
	ChatConvID      string    `json:"chat_conversation_id"`
	HelpdeskConvID  string    `json:"helpdesk_conversation_id"`
	HelpdeskUserID  string    `json:"helpdesk_user_id,omitempty"`
	ConversationRef string    `json:"conversation_ref,omitempty"` // serialized proactive-send reference
	Resolved        bool      `json:"resolved"`
	GreetingSent    bool      `json:"greeting_sent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
