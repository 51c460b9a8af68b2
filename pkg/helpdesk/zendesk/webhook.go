package zendesk

import (
	"encoding/json"
	"fmt"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/media"
	"deskbridge/internal/models"
	"deskbridge/pkg/helpdesk"

	"github.com/google/uuid"
)

type webhookPayload struct {
	Ticket  *webhookTicket  `json:"ticket"`
	Comment *webhookComment `json:"comment"`
	Data    struct {
		Ticket *webhookTicket `json:"ticket"`
	} `json:"data"`
}

type webhookTicket struct {
	ID          json.Number      `json:"id"`
	Status      string           `json:"status"`
	RequesterID json.Number      `json:"requester_id"`
	Comments    []webhookComment `json:"comments"`
}

type webhookComment struct {
	ID          json.Number         `json:"id"`
	Body        string              `json:"body"`
	HTMLBody    string              `json:"html_body"`
	PlainBody   string              `json:"plain_body"`
	Public      bool                `json:"public"`
	AuthorID    json.Number         `json:"author_id"`
	CreatedAt   time.Time           `json:"created_at"`
	Attachments []webhookAttachment `json:"attachments"`
}

type webhookAttachment struct {
	ContentURL  string `json:"content_url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// ParseWebhook turns a Zendesk webhook body into a bridge event. Solved and
// closed tickets produce a resolution event; the latest public agent comment
// produces a message event; requester comments are dropped to prevent echo.
func ParseWebhook(tenantID string, body []byte) (*helpdesk.Event, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to parse zendesk webhook")
	}

	ticket := payload.Ticket
	if ticket == nil {
		ticket = payload.Data.Ticket
	}
	if ticket == nil {
		return nil, nil
	}
	ticketID := ticket.ID.String()

	if ticket.Status == "solved" || ticket.Status == "closed" {
		return &helpdesk.Event{
			Kind:           helpdesk.EventResolution,
			ConversationID: ticketID,
		}, nil
	}

	comment := latestComment(ticket, payload.Comment)
	if comment == nil {
		return nil, nil
	}
	if comment.AuthorID.String() == ticket.RequesterID.String() {
		// Echo prevention: the requester's comments originate from the bridge.
		return nil, nil
	}
	if !comment.Public {
		return nil, nil
	}

	blocks := commentBlocks(comment)
	if len(blocks) == 0 {
		return nil, nil
	}

	ts := comment.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return &helpdesk.Event{
		Kind:           helpdesk.EventMessage,
		ConversationID: ticketID,
		Message: &models.CanonicalMessage{
			EventID:        fmt.Sprintf("zendesk-%s-%s", ticketID, comment.ID.String()),
			TenantID:       tenantID,
			Origin:         models.OriginHelpdesk,
			ConversationID: ticketID,
			Role:           models.RoleAgent,
			AgentID:        comment.AuthorID.String(),
			Blocks:         blocks,
			Timestamp:      ts,
		},
	}, nil
}

func latestComment(ticket *webhookTicket, direct *webhookComment) *webhookComment {
	if len(ticket.Comments) > 0 {
		return &ticket.Comments[len(ticket.Comments)-1]
	}
	return direct
}

func commentBlocks(comment *webhookComment) []models.ContentBlock {
	var blocks []models.ContentBlock

	text := comment.Body
	if text == "" {
		text = comment.PlainBody
	}
	if comment.HTMLBody != "" && comment.HTMLBody != text {
		blocks = append(blocks, models.ContentBlock{Kind: models.BlockRichText, Text: comment.HTMLBody})
	} else if text != "" {
		blocks = append(blocks, models.ContentBlock{Kind: models.BlockText, Text: text})
	}

	for _, att := range comment.Attachments {
		name := media.SanitizeFilename(att.FileName)
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
	return blocks
}
