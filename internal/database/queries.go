package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"deskbridge/internal/models"
)

// UpsertMapping inserts a conversation mapping or refreshes an existing one.
// Replaying the same inbound event lands on the existing row, so webhook
// redelivery never creates duplicate conversations.
func (d *Database) UpsertMapping(ctx context.Context, m *models.ConversationMapping) error {
	query := `
		INSERT INTO conversation_mappings (
			tenant_id, chat_conv_id, helpdesk_conv_id,
			helpdesk_user_id, conversation_ref, resolved, greeting_sent
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, chat_conv_id) DO UPDATE SET
			helpdesk_conv_id = excluded.helpdesk_conv_id,
			helpdesk_user_id = excluded.helpdesk_user_id,
			conversation_ref = excluded.conversation_ref,
			resolved = excluded.resolved,
			greeting_sent = excluded.greeting_sent
	`
	_, err := d.db.ExecContext(ctx, query,
		m.TenantID, m.ChatConvID, m.HelpdeskConvID,
		m.HelpdeskUserID, m.ConversationRef, m.Resolved, m.GreetingSent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation mapping: %w", err)
	}
	return nil
}

// GetMappingByChatID returns the mapping for a chat-side conversation, or
// nil when none exists.
func (d *Database) GetMappingByChatID(ctx context.Context, tenantID, chatConvID string) (*models.ConversationMapping, error) {
	return d.getMapping(ctx, "chat_conv_id", tenantID, chatConvID)
}

// GetMappingByHelpdeskID returns the mapping for a helpdesk-side conversation,
// or nil when none exists.
func (d *Database) GetMappingByHelpdeskID(ctx context.Context, tenantID, helpdeskConvID string) (*models.ConversationMapping, error) {
	return d.getMapping(ctx, "helpdesk_conv_id", tenantID, helpdeskConvID)
}

func (d *Database) getMapping(ctx context.Context, column, tenantID, convID string) (*models.ConversationMapping, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, chat_conv_id, helpdesk_conv_id,
		       helpdesk_user_id, conversation_ref, resolved, greeting_sent,
		       created_at, updated_at
		FROM conversation_mappings
		WHERE tenant_id = ? AND %s = ?
	`, column)

	var m models.ConversationMapping
	err := d.db.QueryRowContext(ctx, query, tenantID, convID).Scan(
		&m.ID, &m.TenantID, &m.ChatConvID, &m.HelpdeskConvID,
		&m.HelpdeskUserID, &m.ConversationRef, &m.Resolved, &m.GreetingSent,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation mapping: %w", err)
	}
	return &m, nil
}

// MarkResolved flips the resolved flag on a mapping. A later inbound message
// on the same chat conversation starts a fresh helpdesk conversation.
func (d *Database) MarkResolved(ctx context.Context, tenantID, helpdeskConvID string, resolved bool) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE conversation_mappings SET resolved = ?
		WHERE tenant_id = ? AND helpdesk_conv_id = ?
	`, resolved, tenantID, helpdeskConvID)
	if err != nil {
		return fmt.Errorf("failed to mark mapping resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no mapping for tenant %s helpdesk conversation %s", tenantID, helpdeskConvID)
	}
	return nil
}

// MarkGreetingSent records that the one-time greeting went out for a chat
// conversation.
func (d *Database) MarkGreetingSent(ctx context.Context, tenantID, chatConvID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE conversation_mappings SET greeting_sent = 1
		WHERE tenant_id = ? AND chat_conv_id = ?
	`, tenantID, chatConvID)
	if err != nil {
		return fmt.Errorf("failed to mark greeting sent: %w", err)
	}
	return nil
}

// DeleteMapping removes a mapping outright. Used by retention cleanup tests
// and admin tooling.
func (d *Database) DeleteMapping(ctx context.Context, tenantID, chatConvID string) error {
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM conversation_mappings WHERE tenant_id = ? AND chat_conv_id = ?
	`, tenantID, chatConvID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation mapping: %w", err)
	}
	return nil
}

// CleanupOldMappings deletes resolved mappings idle past the retention window.
func (d *Database) CleanupOldMappings(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM conversation_mappings WHERE resolved = 1 AND updated_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old mappings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// SaveTenant stores or replaces a tenant record. Credentials and the webhook
// secret are encrypted when encryption is enabled.
func (d *Database) SaveTenant(ctx context.Context, t *models.TenantContext) error {
	credJSON, err := json.Marshal(t.Credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	encCreds, err := d.encryptor.Encrypt(string(credJSON))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	encSecret, err := d.encryptor.Encrypt(t.WebhookSecret)
	if err != nil {
		return fmt.Errorf("failed to encrypt webhook secret: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO tenants (tenant_id, platform, credentials, webhook_secret, greeting_text, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_id) DO UPDATE SET
			platform = excluded.platform,
			credentials = excluded.credentials,
			webhook_secret = excluded.webhook_secret,
			greeting_text = excluded.greeting_text,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
	`, t.TenantID, string(t.Platform), encCreds, encSecret, t.GreetingText, t.Active)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

// GetTenant loads a tenant record with decrypted credentials, or nil when the
// tenant is unknown.
func (d *Database) GetTenant(ctx context.Context, tenantID string) (*models.TenantContext, error) {
	var (
		t         models.TenantContext
		platform  string
		encCreds  string
		encSecret string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT tenant_id, platform, credentials, webhook_secret, greeting_text, active, updated_at
		FROM tenants WHERE tenant_id = ?
	`, tenantID).Scan(&t.TenantID, &platform, &encCreds, &encSecret, &t.GreetingText, &t.Active, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	credJSON, err := d.encryptor.Decrypt(encCreds)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(credJSON), &t.Credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	t.WebhookSecret, err = d.encryptor.Decrypt(encSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt webhook secret: %w", err)
	}
	t.Platform = models.PlatformKind(platform)
	return &t, nil
}

// ResolveTenant is GetTenant under the name the adapter factory expects.
func (d *Database) ResolveTenant(ctx context.Context, tenantID string) (*models.TenantContext, error) {
	return d.GetTenant(ctx, tenantID)
}

// SetTenantActive toggles a tenant without touching its credentials. Used
// when the platform reports the tenant's credentials are no longer valid.
func (d *Database) SetTenantActive(ctx context.Context, tenantID string, active bool) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE tenants SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = ?
	`, active, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant active flag: %w", err)
	}
	return nil
}
