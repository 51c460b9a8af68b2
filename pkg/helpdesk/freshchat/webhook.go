package freshchat

import (
	"encoding/json"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/media"
	"deskbridge/internal/models"
	"deskbridge/pkg/helpdesk"

	"github.com/google/uuid"
)

type webhookPayload struct {
	Action string       `json:"action"`
	Actor  webhookActor `json:"actor"`
	Data   webhookData  `json:"data"`
}

type webhookActor struct {
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
}

type webhookData struct {
	Message *webhookMessage `json:"message,omitempty"`
	Resolve *webhookResolve `json:"resolve,omitempty"`
}

type webhookMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	ActorType      string        `json:"actor_type"`
	ActorID        string        `json:"actor_id"`
	CreatedTime    time.Time     `json:"created_time"`
	MessageParts   []messagePart `json:"message_parts"`
}

type webhookResolve struct {
	Conversation struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation"`
}

// ParseWebhook turns a Freshchat webhook body into a bridge event. Returns
// nil for payloads the bridge ignores: user-authored messages echo back what
// the bridge itself wrote, so only agent and system activity passes.
func ParseWebhook(tenantID string, body []byte) (*helpdesk.Event, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to parse freshchat webhook")
	}

	switch payload.Action {
	case "message_create":
		return parseMessageCreate(tenantID, &payload)
	case "conversation_resolution":
		if payload.Data.Resolve == nil {
			return nil, nil
		}
		return &helpdesk.Event{
			Kind:           helpdesk.EventResolution,
			ConversationID: payload.Data.Resolve.Conversation.ConversationID,
		}, nil
	default:
		return nil, nil
	}
}

func parseMessageCreate(tenantID string, payload *webhookPayload) (*helpdesk.Event, error) {
	msg := payload.Data.Message
	if msg == nil {
		return nil, nil
	}
	if msg.ActorType == "user" {
		// Echo prevention: the bridge wrote this on the user's behalf.
		return nil, nil
	}

	var blocks []models.ContentBlock
	for _, part := range msg.MessageParts {
		switch {
		case part.Text != nil:
			blocks = append(blocks, models.ContentBlock{Kind: models.BlockText, Text: part.Text.Content})
		case part.Image != nil:
			blocks = append(blocks, models.ContentBlock{
				Kind: models.BlockImage,
				Attachment: &models.AttachmentRef{
					ContentID: uuid.NewString(),
					SourceURL: part.Image.URL,
					FileName:  "image.jpg",
					MimeType:  "image/jpeg",
					Category:  models.MediaImage,
				},
			})
		case part.File != nil:
			name := media.SanitizeFilename(part.File.Name)
			mime := part.File.ContentType
			if mime == "" {
				mime = media.MimeFromFilename(name)
			}
			blocks = append(blocks, models.ContentBlock{
				Kind: models.BlockFile,
				Attachment: &models.AttachmentRef{
					ContentID: uuid.NewString(),
					SourceURL: part.File.URL,
					FileName:  media.EnsureExtension(name, mime),
					MimeType:  mime,
					Category:  media.Classify(mime, name),
				},
			})
		}
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	role := models.RoleAgent
	if msg.ActorType == "system" {
		role = models.RoleSystem
	}

	ts := msg.CreatedTime
	if ts.IsZero() {
		ts = time.Now()
	}

	return &helpdesk.Event{
		Kind:           helpdesk.EventMessage,
		ConversationID: msg.ConversationID,
		Message: &models.CanonicalMessage{
			EventID:        msg.ID,
			TenantID:       tenantID,
			Origin:         models.OriginHelpdesk,
			ConversationID: msg.ConversationID,
			Role:           role,
			AgentID:        msg.ActorID,
			Blocks:         blocks,
			Timestamp:      ts,
		},
	}, nil
}
