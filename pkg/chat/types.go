package chat

import "encoding/json"

// ConversationReference is the serializable address of a chat conversation
// for proactive sends. It is stored on the conversation mapping and replayed
// whenever the helpdesk side speaks first.
type ConversationReference struct {
	ConversationID string `json:"conversation_id"`
	ServiceURL     string `json:"service_url"`
	UserID         string `json:"user_id,omitempty"`
	UserName       string `json:"user_name,omitempty"`
}

// Encode serializes the reference for storage on a mapping row.
func (r ConversationReference) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeReference restores a stored conversation reference.
func DecodeReference(s string) (ConversationReference, error) {
	var r ConversationReference
	if s == "" {
		return r, nil
	}
	err := json.Unmarshal([]byte(s), &r)
	return r, err
}

// OutboundAttachment is one media element of a combined proactive message.
type OutboundAttachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// OutboundMessage is the combined payload delivered to the chat platform in
// a single proactive send. Text and attachments keep their assembly order.
type OutboundMessage struct {
	Text        string               `json:"text,omitempty"`
	Attachments []OutboundAttachment `json:"attachments,omitempty"`
}
