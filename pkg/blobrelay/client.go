package blobrelay

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
)

const platformName = "blobrelay"

// Client stores attachment payloads with the relay service and returns a
// stable URL the chat platform can render. The relay owns retention; the
// bridge never stores media itself.
type Client interface {
	RelayBytes(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
	RelayURL(ctx context.Context, att *models.AttachmentRef) (string, error)
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ Client = (*HTTPClient)(nil)

type relayResponse struct {
	URL string `json:"url"`
}

// RelayBytes uploads an inline payload and returns its stable URL.
func (c *HTTPClient) RelayBytes(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to create form file")
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to write file content")
	}
	if mimeType != "" {
		if err := writer.WriteField("content_type", mimeType); err != nil {
			return "", errors.Wrap(err, errors.KindInternal, "failed to write content type field")
		}
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/blobs", body)
	if err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	return c.do(req, "/v1/blobs")
}

// RelayURL asks the relay to fetch the source itself, avoiding a round trip
// through the bridge for platform-hosted media. Falls back to inline bytes
// when the attachment carries them.
func (c *HTTPClient) RelayURL(ctx context.Context, att *models.AttachmentRef) (string, error) {
	if att.SourceURL == "" {
		if len(att.Inline) > 0 {
			return c.RelayBytes(ctx, att.FileName, att.MimeType, att.Inline)
		}
		return "", errors.New(errors.KindPermanent, "attachment has neither source url nor inline payload")
	}

	payload, err := json.Marshal(map[string]string{
		"source_url":   att.SourceURL,
		"file_name":    att.FileName,
		"content_type": att.MimeType,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to marshal relay request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/blobs/fetch", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	return c.do(req, "/v1/blobs/fetch")
}

func (c *HTTPClient) do(req *http.Request, endpoint string) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return "", errors.NewTimeoutError(platformName, err)
		}
		return "", errors.NewTransportError(platformName, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", errors.NewDeliveryError(platformName, endpoint, resp.StatusCode,
			fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	var result relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "failed to decode relay response")
	}
	if result.URL == "" {
		return "", errors.New(errors.KindInternal, "relay returned empty url")
	}
	return result.URL, nil
}
