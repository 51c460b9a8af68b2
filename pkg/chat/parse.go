package chat

import (
	"encoding/json"
	"strings"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/media"
	"deskbridge/internal/models"

	"github.com/google/uuid"
)

type inboundActivity struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Text         string    `json:"text"`
	ServiceURL   string    `json:"serviceUrl"`
	Timestamp    time.Time `json:"timestamp"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	From struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
	Attachments []struct {
		ContentType string `json:"contentType"`
		ContentURL  string `json:"contentUrl"`
		Name        string `json:"name"`
	} `json:"attachments"`
}

// ParseActivity normalizes an inbound chat activity into a canonical message
// plus the conversation reference needed for later proactive replies. Returns
// a nil message for non-message activity types.
func ParseActivity(tenantID string, body []byte) (*models.CanonicalMessage, ConversationReference, error) {
	var act inboundActivity
	if err := json.Unmarshal(body, &act); err != nil {
		return nil, ConversationReference{}, errors.Wrap(err, errors.KindInternal, "failed to parse chat activity")
	}

	ref := ConversationReference{
		ConversationID: act.Conversation.ID,
		ServiceURL:     act.ServiceURL,
		UserID:         act.From.ID,
		UserName:       act.From.Name,
	}

	if act.Type != "message" {
		return nil, ref, nil
	}

	var blocks []models.ContentBlock
	if text := strings.TrimSpace(act.Text); text != "" {
		blocks = append(blocks, models.ContentBlock{Kind: models.BlockText, Text: text})
	}
	for _, att := range act.Attachments {
		// Platforms attach HTML card payloads with no content URL; skip them.
		if att.ContentURL == "" {
			continue
		}
		name := media.SanitizeFilename(att.Name)
		mime := att.ContentType
		if mime == "" {
			mime = media.MimeFromFilename(name)
		}
		category := media.Classify(mime, name)
		kind := models.BlockFile
		switch category {
		case models.MediaImage:
			kind = models.BlockImage
		case models.MediaVideo:
			kind = models.BlockVideo
		}
		blocks = append(blocks, models.ContentBlock{
			Kind: kind,
			Attachment: &models.AttachmentRef{
				ContentID: uuid.NewString(),
				SourceURL: att.ContentURL,
				FileName:  media.EnsureExtension(name, mime),
				MimeType:  mime,
				Category:  category,
			},
		})
	}
	if len(blocks) == 0 {
		return nil, ref, nil
	}

	eventID := act.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	ts := act.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &models.CanonicalMessage{
		EventID:        eventID,
		TenantID:       tenantID,
		Origin:         models.OriginChat,
		ConversationID: act.Conversation.ID,
		Role:           models.RoleEndUser,
		User: &models.EndUser{
			ID:   act.From.ID,
			Name: act.From.Name,
		},
		Blocks:    blocks,
		Timestamp: ts,
	}, ref, nil
}
