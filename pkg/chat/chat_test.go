package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskbridge/internal/errors"
	"deskbridge/internal/models"
)

func TestConversationReferenceRoundTrip(t *testing.T) {
	ref := ConversationReference{
		ConversationID: "conv-1",
		ServiceURL:     "https://chat.example",
		UserID:         "user-1",
		UserName:       "Dana",
	}

	encoded, err := ref.Encode()
	require.NoError(t, err)

	decoded, err := DecodeReference(encoded)
	require.NoError(t, err)
	assert.Equal(t, ref, decoded)
}

func TestDecodeReferenceEmpty(t *testing.T) {
	ref, err := DecodeReference("")
	require.NoError(t, err)
	assert.Empty(t, ref.ConversationID)
}

func TestParseActivityMessage(t *testing.T) {
	body := []byte(`{
		"id": "act-1",
		"type": "message",
		"text": "I need help with my order",
		"serviceUrl": "https://chat.example",
		"conversation": {"id": "conv-1"},
		"from": {"id": "user-1", "name": "Dana"},
		"attachments": [
			{"contentType": "image/png", "contentUrl": "https://chat.example/files/1", "name": "receipt.png"}
		]
	}`)

	msg, ref, err := ParseActivity("tenant-a", body)
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, "act-1", msg.EventID)
	assert.Equal(t, models.OriginChat, msg.Origin)
	assert.Equal(t, models.RoleEndUser, msg.Role)
	assert.Equal(t, "conv-1", msg.ConversationID)
	require.NotNil(t, msg.User)
	assert.Equal(t, "Dana", msg.User.Name)

	require.Len(t, msg.Blocks, 2)
	assert.Equal(t, models.BlockText, msg.Blocks[0].Kind)
	assert.Equal(t, models.BlockImage, msg.Blocks[1].Kind)

	assert.Equal(t, "conv-1", ref.ConversationID)
	assert.Equal(t, "https://chat.example", ref.ServiceURL)
}

func TestParseActivityNonMessage(t *testing.T) {
	body := []byte(`{"type": "conversationUpdate", "conversation": {"id": "conv-2"}}`)
	msg, ref, err := ParseActivity("tenant-a", body)
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, "conv-2", ref.ConversationID)
}

func TestParseActivitySkipsCardAttachments(t *testing.T) {
	body := []byte(`{
		"type": "message",
		"text": "hi",
		"conversation": {"id": "conv-1"},
		"from": {"id": "user-1"},
		"attachments": [{"contentType": "text/html"}]
	}`)

	msg, _, err := ParseActivity("tenant-a", body)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Len(t, msg.Blocks, 1)
	assert.Equal(t, models.BlockText, msg.Blocks[0].Kind)
}

func TestParseActivityInvalidJSON(t *testing.T) {
	_, _, err := ParseActivity("tenant-a", []byte(`{bad`))
	assert.Error(t, err)
}

func TestSendMessageCombinedPayload(t *testing.T) {
	var got activityPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/conversations/conv-1/activities", r.URL.Path)
		assert.Equal(t, "Bearer app-secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "sent-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "app-id", "app-secret", 5*time.Second)
	result, err := client.SendMessage(context.Background(), ConversationReference{ConversationID: "conv-1"}, &OutboundMessage{
		Text: "Agent Kim: here is the document",
		Attachments: []OutboundAttachment{
			{URL: "https://relay.example/doc.pdf", Name: "doc.pdf", MimeType: "application/pdf"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", result.MessageID)
	assert.True(t, result.Delivered)

	assert.Equal(t, "message", got.Type)
	assert.Equal(t, "Agent Kim: here is the document", got.Text)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "https://relay.example/doc.pdf", got.Attachments[0].ContentURL)
}

func TestSendMessageUsesReferenceServiceURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Client default points elsewhere; the stored reference wins.
	client := NewClient("https://unreachable.example", "app-id", "secret", 5*time.Second)
	_, err := client.SendMessage(context.Background(), ConversationReference{
		ConversationID: "conv-1",
		ServiceURL:     server.URL,
	}, &OutboundMessage{Text: "hello"})
	require.NoError(t, err)
}

func TestSendMessageErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind errors.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, errors.KindAuth},
		{"rate limited", http.StatusTooManyRequests, errors.KindRateLimit},
		{"server error", http.StatusInternalServerError, errors.KindTransient},
		{"gone", http.StatusGone, errors.KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, "app-id", "secret", 5*time.Second)
			_, err := client.SendMessage(context.Background(), ConversationReference{ConversationID: "conv-1"}, &OutboundMessage{Text: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errors.GetKind(err))
		})
	}
}

func TestSendMessageMissingConversation(t *testing.T) {
	client := NewClient("https://chat.example", "app-id", "secret", time.Second)
	_, err := client.SendMessage(context.Background(), ConversationReference{}, &OutboundMessage{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.KindPermanent, errors.GetKind(err))
}
