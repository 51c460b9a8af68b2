package freshchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/models"
	"deskbridge/pkg/helpdesk"
)

const platformName = "freshchat"

// Client talks to the Freshchat v2 API for one tenant.
type Client struct {
	apiURL  string
	apiKey  string
	inboxID string
	http    *http.Client
}

func NewClient(creds models.CredentialBundle, timeout time.Duration) (*Client, error) {
	if creds.APIKey == "" || creds.APIURL == "" {
		return nil, errors.New(errors.KindConfig, "freshchat credentials missing api key or url")
	}
	return &Client{
		apiURL:  strings.TrimRight(creds.APIURL, "/"),
		apiKey:  creds.APIKey,
		inboxID: creds.InboxID,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

var _ helpdesk.Client = (*Client)(nil)

type messagePart struct {
	Text  *textPart  `json:"text,omitempty"`
	Image *imagePart `json:"image,omitempty"`
	File  *filePart  `json:"file,omitempty"`
}

type textPart struct {
	Content string `json:"content"`
}

type imagePart struct {
	URL string `json:"url"`
}

type filePart struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type sendMessageRequest struct {
	ActorType    string        `json:"actor_type"`
	ActorID      string        `json:"actor_id"`
	MessageParts []messagePart `json:"message_parts"`
}

type sendMessageResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_time"`
}

func (c *Client) SendText(ctx context.Context, conv helpdesk.ConversationRef, text string) (*models.DeliveryResult, error) {
	req := sendMessageRequest{
		ActorType:    "user",
		ActorID:      conv.UserID,
		MessageParts: []messagePart{{Text: &textPart{Content: text}}},
	}
	var resp sendMessageResponse
	endpoint := fmt.Sprintf("/v2/conversations/%s/messages", conv.ConversationID)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &models.DeliveryResult{MessageID: resp.ID, Delivered: true, SentAt: time.Now()}, nil
}

func (c *Client) SendAttachment(ctx context.Context, conv helpdesk.ConversationRef, att *models.AttachmentRef) (*models.DeliveryResult, error) {
	url := att.SourceURL
	if url == "" && len(att.Inline) > 0 {
		uploaded, err := c.uploadInline(ctx, att)
		if err != nil {
			return nil, err
		}
		url = uploaded
	}
	if url == "" {
		return nil, errors.New(errors.KindPermanent, "attachment has neither source url nor inline payload")
	}

	part := messagePart{}
	if att.Category == models.MediaImage {
		part.Image = &imagePart{URL: url}
	} else {
		part.File = &filePart{URL: url, Name: att.FileName, ContentType: att.MimeType}
	}

	req := sendMessageRequest{
		ActorType:    "user",
		ActorID:      conv.UserID,
		MessageParts: []messagePart{part},
	}
	var resp sendMessageResponse
	endpoint := fmt.Sprintf("/v2/conversations/%s/messages", conv.ConversationID)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &models.DeliveryResult{MessageID: resp.ID, Delivered: true, SentAt: time.Now()}, nil
}

type agentResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (c *Client) ResolveAgentInfo(ctx context.Context, agentID string) (*models.AgentInfo, error) {
	var resp agentResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v2/agents/"+agentID, nil, &resp); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(resp.FirstName + " " + resp.LastName)
	if name == "" {
		name = "Agent"
	}
	return &models.AgentInfo{ID: resp.ID, Name: name, Email: resp.Email}, nil
}

// AcknowledgeInbound is a no-op: Freshchat webhooks have no consume API, the
// bridge's own idempotency cache covers redelivery.
func (c *Client) AcknowledgeInbound(ctx context.Context, eventID string) error {
	return nil
}

type createUserRequest struct {
	FirstName  string         `json:"first_name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Properties []userProperty `json:"properties,omitempty"`
}

type userProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

type createConversationRequest struct {
	InboxID      string        `json:"channel_id,omitempty"`
	Users        []actorRef    `json:"users"`
	MessageParts []messagePart `json:"messages,omitempty"`
}

type actorRef struct {
	ID string `json:"id"`
}

type createConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	ID             string `json:"id"`
}

func (c *Client) CreateConversation(ctx context.Context, user models.EndUser, initialText string) (*helpdesk.ConversationRef, error) {
	userReq := createUserRequest{
		FirstName: user.Name,
		Email:     user.Email,
		Properties: []userProperty{
			{Name: "external_id", Value: user.ID},
		},
	}
	var userResp createUserResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/users", userReq, &userResp); err != nil {
		return nil, err
	}

	convReq := createConversationRequest{
		InboxID: c.inboxID,
		Users:   []actorRef{{ID: userResp.ID}},
	}
	if initialText != "" {
		convReq.MessageParts = []messagePart{{Text: &textPart{Content: initialText}}}
	}
	var convResp createConversationResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/conversations", convReq, &convResp); err != nil {
		return nil, err
	}

	convID := convResp.ConversationID
	if convID == "" {
		convID = convResp.ID
	}
	return &helpdesk.ConversationRef{ConversationID: convID, UserID: userResp.ID}, nil
}

func (c *Client) uploadInline(ctx context.Context, att *models.AttachmentRef) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", att.FileName)
	if err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to create form file")
	}
	if _, err := part.Write(att.Inline); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to write file content")
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v2/files", body)
	if err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.NewTransportError(platformName, "/v2/files", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewDeliveryError(platformName, "/v2/files", resp.StatusCode, readAPIError(resp.Body))
	}

	var uploaded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to decode upload response")
	}
	return uploaded.URL, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, errors.KindInternal, "failed to marshal payload")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+endpoint, body)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewTimeoutError(platformName, err)
		}
		return errors.NewTransportError(platformName, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewDeliveryError(platformName, endpoint, resp.StatusCode, readAPIError(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, errors.KindInternal, "failed to decode response")
		}
	}
	return nil
}

func readAPIError(r io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(r, 2048))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = "no response body"
	}
	return fmt.Errorf("%s", msg)
}
