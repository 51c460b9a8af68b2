package zendesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/models"
	"deskbridge/pkg/helpdesk"
)

const platformName = "zendesk"

// Client talks to the Zendesk Support API for one tenant. Authentication is
// email/token basic auth; attachments go through the two-step upload flow.
type Client struct {
	baseURL  string
	email    string
	apiToken string
	http     *http.Client
}

func NewClient(creds models.CredentialBundle, timeout time.Duration) (*Client, error) {
	if creds.Subdomain == "" || creds.Email == "" || creds.APIToken == "" {
		return nil, errors.New(errors.KindConfig, "zendesk credentials missing subdomain, email, or api token")
	}
	base := creds.APIURL
	if base == "" {
		base = fmt.Sprintf("https://%s.zendesk.com", creds.Subdomain)
	}
	return &Client{
		baseURL:  strings.TrimRight(base, "/"),
		email:    creds.Email,
		apiToken: creds.APIToken,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

var _ helpdesk.Client = (*Client)(nil)

type ticketComment struct {
	Body     string   `json:"body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
	Public   bool     `json:"public"`
	AuthorID string   `json:"author_id,omitempty"`
	Uploads  []string `json:"uploads,omitempty"`
}

type ticketUpdate struct {
	Ticket struct {
		Comment ticketComment `json:"comment"`
	} `json:"ticket"`
}

type ticketResponse struct {
	Ticket struct {
		ID          int64 `json:"id"`
		RequesterID int64 `json:"requester_id"`
	} `json:"ticket"`
	Audit struct {
		ID int64 `json:"id"`
	} `json:"audit"`
}

func (c *Client) SendText(ctx context.Context, conv helpdesk.ConversationRef, text string) (*models.DeliveryResult, error) {
	var req ticketUpdate
	req.Ticket.Comment = ticketComment{Body: text, Public: true, AuthorID: conv.UserID}

	var resp ticketResponse
	endpoint := fmt.Sprintf("/api/v2/tickets/%s.json", conv.ConversationID)
	if err := c.doJSON(ctx, http.MethodPut, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &models.DeliveryResult{
		MessageID: fmt.Sprintf("%d", resp.Audit.ID),
		Delivered: true,
		SentAt:    time.Now(),
	}, nil
}

func (c *Client) SendAttachment(ctx context.Context, conv helpdesk.ConversationRef, att *models.AttachmentRef) (*models.DeliveryResult, error) {
	data := att.Inline
	if data == nil && att.SourceURL != "" {
		fetched, err := c.fetchSource(ctx, att.SourceURL)
		if err != nil {
			return nil, err
		}
		data = fetched
	}
	if data == nil {
		return nil, errors.New(errors.KindPermanent, "attachment has neither inline payload nor source url")
	}

	token, err := c.upload(ctx, att.FileName, att.MimeType, data)
	if err != nil {
		return nil, err
	}

	var req ticketUpdate
	req.Ticket.Comment = ticketComment{
		Body:     fmt.Sprintf("Attachment: %s", att.FileName),
		Public:   true,
		AuthorID: conv.UserID,
		Uploads:  []string{token},
	}
	var resp ticketResponse
	endpoint := fmt.Sprintf("/api/v2/tickets/%s.json", conv.ConversationID)
	if err := c.doJSON(ctx, http.MethodPut, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &models.DeliveryResult{
		MessageID: fmt.Sprintf("%d", resp.Audit.ID),
		Delivered: true,
		SentAt:    time.Now(),
	}, nil
}

type userResponse struct {
	User struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

func (c *Client) ResolveAgentInfo(ctx context.Context, agentID string) (*models.AgentInfo, error) {
	var resp userResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v2/users/"+agentID+".json", nil, &resp); err != nil {
		return nil, err
	}
	name := resp.User.Name
	if name == "" {
		name = "Agent"
	}
	return &models.AgentInfo{
		ID:    fmt.Sprintf("%d", resp.User.ID),
		Name:  name,
		Email: resp.User.Email,
	}, nil
}

// AcknowledgeInbound is a no-op: Zendesk webhooks are fire-and-forget and
// redelivery is absorbed by the bridge's idempotency cache.
func (c *Client) AcknowledgeInbound(ctx context.Context, eventID string) error {
	return nil
}

type createTicketRequest struct {
	Ticket struct {
		Subject   string        `json:"subject"`
		Comment   ticketComment `json:"comment"`
		Requester struct {
			Name  string `json:"name"`
			Email string `json:"email,omitempty"`
		} `json:"requester"`
		ExternalID string   `json:"external_id,omitempty"`
		Tags       []string `json:"tags,omitempty"`
	} `json:"ticket"`
}

func (c *Client) CreateConversation(ctx context.Context, user models.EndUser, initialText string) (*helpdesk.ConversationRef, error) {
	subject := initialText
	if len(subject) > 60 {
		subject = subject[:60]
	}
	if subject == "" {
		subject = "Chat conversation"
	}

	var req createTicketRequest
	req.Ticket.Subject = subject
	req.Ticket.Comment = ticketComment{Body: initialText, Public: true}
	req.Ticket.Requester.Name = user.Name
	req.Ticket.Requester.Email = user.Email
	req.Ticket.ExternalID = user.ID
	req.Ticket.Tags = []string{"deskbridge"}

	var resp ticketResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v2/tickets.json", req, &resp); err != nil {
		return nil, err
	}
	return &helpdesk.ConversationRef{
		ConversationID: fmt.Sprintf("%d", resp.Ticket.ID),
		UserID:         fmt.Sprintf("%d", resp.Ticket.RequesterID),
	}, nil
}

func (c *Client) upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	endpoint := "/api/v2/uploads.json?filename=" + url.QueryEscape(fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to create upload request")
	}
	req.SetBasicAuth(c.email+"/token", c.apiToken)
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	} else {
		req.Header.Set("Content-Type", "application/binary")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.NewTimeoutError(platformName, err)
		}
		return "", errors.NewTransportError(platformName, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewDeliveryError(platformName, "/api/v2/uploads.json", resp.StatusCode, readAPIError(resp.Body))
	}

	var uploaded struct {
		Upload struct {
			Token string `json:"token"`
		} `json:"upload"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to decode upload response")
	}
	return uploaded.Upload.Token, nil
}

func (c *Client) fetchSource(ctx context.Context, srcURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to create fetch request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewTimeoutError(platformName, err)
		}
		return nil, errors.NewTransportError(platformName, srcURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewDeliveryError(platformName, srcURL, resp.StatusCode, readAPIError(resp.Body))
	}
	return io.ReadAll(resp.Body)
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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create request")
	}
	req.SetBasicAuth(c.email+"/token", c.apiToken)
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
