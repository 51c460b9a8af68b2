package models

import "time"

// SenderRole identifies which side of the conversation produced a message.
type SenderRole string

const (
	RoleEndUser SenderRole = "end_user"
	RoleAgent   SenderRole = "agent"
	RoleSystem  SenderRole = "system"
)

// BlockKind is the closed set of content block types a canonical message may carry.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockRichText BlockKind = "rich_text"
	BlockImage    BlockKind = "image"
	BlockVideo    BlockKind = "video"
	BlockFile     BlockKind = "file"
)

// ContentBlock is one ordered element of a canonical message. Text and
// rich-text blocks carry Text; media blocks carry an attachment reference.
type ContentBlock struct {
	Kind       BlockKind      `json:"kind"`
	Text       string         `json:"text,omitempty"`
	Attachment *AttachmentRef `json:"attachment,omitempty"`
}

// Origin identifies which platform an inbound event came from.
type Origin string

const (
	OriginChat     Origin = "chat"
	OriginHelpdesk Origin = "helpdesk"
)

// CanonicalMessage is the platform-neutral representation of one chat turn.
// It is immutable once constructed and lives only for one routing operation.
type CanonicalMessage struct {
	EventID        string         `json:"event_id"`
	TenantID       string         `json:"tenant_id"`
	Origin         Origin         `json:"origin"`
	ConversationID string         `json:"conversation_id"`
	Role           SenderRole     `json:"role"`
	AgentID        string         `json:"agent_id,omitempty"`
	User           *EndUser       `json:"user,omitempty"`
	Blocks         []ContentBlock `json:"blocks"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Text joins the message's plain-text blocks in declared order.
func (m *CanonicalMessage) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Kind == BlockText || b.Kind == BlockRichText {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

// HasAttachments reports whether any block references media.
func (m *CanonicalMessage) HasAttachments() bool {
	for _, b := range m.Blocks {
		if b.Attachment != nil {
			return true
		}
	}
	return false
}

// EndUser carries the chat-side identity of the person talking to the bridge.
type EndUser struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// AgentInfo is the slowly-changing helpdesk agent metadata resolved through
// the agent directory cache.
type AgentInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// MediaCategory is the inferred MIME category of an attachment.
type MediaCategory string

const (
	MediaImage MediaCategory = "image"
	MediaVideo MediaCategory = "video"
	MediaFile  MediaCategory = "file"
)

// UploadState tracks the outcome of one attachment's delivery.
type UploadState string

const (
	UploadPending   UploadState = "pending"
	UploadSucceeded UploadState = "succeeded"
	UploadFailed    UploadState = "failed"
)

// AttachmentRef is one normalized attachment, created by the pipeline and
// consumed by the router for payload assembly. Not persisted.
type AttachmentRef struct {
	ContentID string        `json:"content_id"`
	SourceURL string        `json:"source_url,omitempty"`
	Inline    []byte        `json:"-"`
	FileName  string        `json:"file_name"`
	MimeType  string        `json:"mime_type"`
	Category  MediaCategory `json:"category"`
}

// AttachmentOutcome is the settled result of processing one attachment.
type AttachmentOutcome struct {
	Ref      *AttachmentRef `json:"ref"`
	State    UploadState    `json:"state"`
	RelayURL string         `json:"relay_url,omitempty"`
	Err      error          `json:"-"`
	Reason   string         `json:"reason,omitempty"`
}

// DeliveryResult is the typed response from one outbound platform call.
type DeliveryResult struct {
	MessageID string    `json:"message_id"`
	Delivered bool      `json:"delivered"`
	SentAt    time.Time `json:"sent_at"`
}

// BlockResult records delivery success per content block, in declared order.
type BlockResult struct {
	Kind      BlockKind `json:"kind"`
	Delivered bool      `json:"delivered"`
	Reason    string    `json:"reason,omitempty"`
}

// RouteResult summarizes one routing operation. Webhook handlers use it to
// decide between acknowledging the inbound event and allowing redelivery.
type RouteResult struct {
	RouteID          string        `json:"route_id"`
	EventID          string        `json:"event_id"`
	TenantID         string        `json:"tenant_id"`
	Blocks           []BlockResult `json:"blocks"`
	TextDelivered    bool          `json:"text_delivered"`
	Acknowledged     bool          `json:"acknowledged"`
	Replayed         bool          `json:"replayed"`
	DeactivateTenant bool          `json:"deactivate_tenant,omitempty"`
}

// Delivered reports whether every block of the combined message went out.
func (r *RouteResult) Delivered() bool {
	for _, b := range r.Blocks {
		if !b.Delivered {
			return false
		}
	}
	return len(r.Blocks) > 0
}
