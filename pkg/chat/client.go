package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/models"
)

const platformName = "chat"

// Client delivers proactive messages into chat conversations.
type Client interface {
	SendMessage(ctx context.Context, ref ConversationReference, msg *OutboundMessage) (*models.DeliveryResult, error)
}

// HTTPClient talks to the chat platform's activity API. One instance serves
// all tenants; the conversation reference carries the per-conversation
// routing information.
type HTTPClient struct {
	serviceURL string
	appID      string
	appSecret  string
	http       *http.Client
}

func NewClient(serviceURL, appID, appSecret string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		appID:      appID,
		appSecret:  appSecret,
		http:       &http.Client{Timeout: timeout},
	}
}

var _ Client = (*HTTPClient)(nil)

type activityAttachment struct {
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl"`
	Name        string `json:"name,omitempty"`
}

type activityPayload struct {
	Type        string               `json:"type"`
	Text        string               `json:"text,omitempty"`
	Attachments []activityAttachment `json:"attachments,omitempty"`
	From        struct {
		ID string `json:"id"`
	} `json:"from"`
}

type activityResponse struct {
	ID string `json:"id"`
}

// SendMessage posts one combined activity to the conversation. The platform
// accepts text and attachments in the same activity, so a mixed message costs
// a single call.
func (c *HTTPClient) SendMessage(ctx context.Context, ref ConversationReference, msg *OutboundMessage) (*models.DeliveryResult, error) {
	if ref.ConversationID == "" {
		return nil, errors.New(errors.KindPermanent, "conversation reference has no conversation id")
	}

	payload := activityPayload{Type: "message", Text: msg.Text}
	payload.From.ID = c.appID
	for _, att := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, activityAttachment{
			ContentType: att.MimeType,
			ContentURL:  att.URL,
			Name:        att.Name,
		})
	}

	base := ref.ServiceURL
	if base == "" {
		base = c.serviceURL
	}
	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities", strings.TrimRight(base, "/"), ref.ConversationID)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to marshal activity")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.appSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewTimeoutError(platformName, err)
		}
		return nil, errors.NewTransportError(platformName, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, errors.NewDeliveryError(platformName, endpoint, resp.StatusCode,
			fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	var result activityResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Some platforms return an empty body on success.
		result.ID = ""
	}
	return &models.DeliveryResult{MessageID: result.ID, Delivered: true, SentAt: time.Now()}, nil
}
