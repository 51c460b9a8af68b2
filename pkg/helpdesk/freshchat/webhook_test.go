package freshchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskbridge/internal/models"
	"deskbridge/pkg/helpdesk"
)

func TestParseWebhookAgentMessage(t *testing.T) {
	body := []byte(`{
		"action": "message_create",
		"actor": {"actor_type": "agent", "actor_id": "agent-7"},
		"data": {
			"message": {
				"id": "msg-1",
				"conversation_id": "conv-9",
				"actor_type": "agent",
				"actor_id": "agent-7",
				"message_parts": [
					{"text": {"content": "Hello, how can I help?"}},
					{"image": {"url": "https://cdn.example/img.png"}}
				]
			}
		}
	}`)

	event, err := ParseWebhook("tenant-a", body)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, helpdesk.EventMessage, event.Kind)
	assert.Equal(t, "conv-9", event.ConversationID)

	msg := event.Message
	require.NotNil(t, msg)
	assert.Equal(t, "msg-1", msg.EventID)
	assert.Equal(t, "tenant-a", msg.TenantID)
	assert.Equal(t, models.OriginHelpdesk, msg.Origin)
	assert.Equal(t, models.RoleAgent, msg.Role)
	assert.Equal(t, "agent-7", msg.AgentID)
	require.Len(t, msg.Blocks, 2)
	assert.Equal(t, models.BlockText, msg.Blocks[0].Kind)
	assert.Equal(t, "Hello, how can I help?", msg.Blocks[0].Text)
	assert.Equal(t, models.BlockImage, msg.Blocks[1].Kind)
	require.NotNil(t, msg.Blocks[1].Attachment)
	assert.Equal(t, "https://cdn.example/img.png", msg.Blocks[1].Attachment.SourceURL)
	assert.Equal(t, models.MediaImage, msg.Blocks[1].Attachment.Category)
}

func TestParseWebhookFilePart(t *testing.T) {
	body := []byte(`{
		"action": "message_create",
		"data": {
			"message": {
				"id": "msg-2",
				"conversation_id": "conv-9",
				"actor_type": "agent",
				"message_parts": [
					{"file": {"url": "https://cdn.example/report", "name": "q3 report.pdf", "content_type": "application/pdf"}}
				]
			}
		}
	}`)

	event, err := ParseWebhook("tenant-a", body)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Len(t, event.Message.Blocks, 1)

	att := event.Message.Blocks[0].Attachment
	require.NotNil(t, att)
	assert.Equal(t, "q3_report.pdf", att.FileName)
	assert.Equal(t, "application/pdf", att.MimeType)
	assert.Equal(t, models.MediaFile, att.Category)
}

func TestParseWebhookIgnoresUserEcho(t *testing.T) {
	body := []byte(`{
		"action": "message_create",
		"data": {
			"message": {
				"id": "msg-3",
				"conversation_id": "conv-9",
				"actor_type": "user",
				"message_parts": [{"text": {"content": "echo"}}]
			}
		}
	}`)

	event, err := ParseWebhook("tenant-a", body)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestParseWebhookResolution(t *testing.T) {
	body := []byte(`{
		"action": "conversation_resolution",
		"data": {
			"resolve": {"conversation": {"conversation_id": "conv-9"}}
		}
	}`)

	event, err := ParseWebhook("tenant-a", body)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, helpdesk.EventResolution, event.Kind)
	assert.Equal(t, "conv-9", event.ConversationID)
	assert.Nil(t, event.Message)
}

func TestParseWebhookUnknownAction(t *testing.T) {
	event, err := ParseWebhook("tenant-a", []byte(`{"action": "conversation_assignment"}`))
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestParseWebhookInvalidJSON(t *testing.T) {
	_, err := ParseWebhook("tenant-a", []byte(`{not json`))
	assert.Error(t, err)
}
