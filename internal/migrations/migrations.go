package migrations

// Schema is applied on startup. Statements are idempotent so reapplying on
// every boot is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS conversation_mappings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    chat_conv_id TEXT NOT NULL,
    helpdesk_conv_id TEXT NOT NULL,
    helpdesk_user_id TEXT NOT NULL DEFAULT '',
    conversation_ref TEXT NOT NULL DEFAULT '',
    resolved INTEGER NOT NULL DEFAULT 0,
    greeting_sent INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(tenant_id, chat_conv_id),
    UNIQUE(tenant_id, helpdesk_conv_id)
);

CREATE INDEX IF NOT EXISTS idx_mappings_tenant_chat
    ON conversation_mappings(tenant_id, chat_conv_id);
CREATE INDEX IF NOT EXISTS idx_mappings_tenant_helpdesk
    ON conversation_mappings(tenant_id, helpdesk_conv_id);
CREATE INDEX IF NOT EXISTS idx_mappings_updated_at
    ON conversation_mappings(updated_at);

CREATE TABLE IF NOT EXISTS tenants (
    tenant_id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    credentials TEXT NOT NULL,
    webhook_secret TEXT NOT NULL DEFAULT '',
    greeting_text TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TRIGGER IF NOT EXISTS update_mappings_timestamp
AFTER UPDATE ON conversation_mappings
BEGIN
    UPDATE conversation_mappings SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
END;
`
