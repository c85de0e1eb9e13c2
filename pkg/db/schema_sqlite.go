package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
)

// sqliteSchema mirrors the goose migrations for the sqlite dev database and tests.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		phone TEXT,
		birth_details TEXT NOT NULL DEFAULT '{}',
		role TEXT NOT NULL DEFAULT 'customer',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS catalog_items (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		price_amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'INR',
		access_days INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_assets (
		id TEXT PRIMARY KEY,
		catalog_item_id TEXT NOT NULL REFERENCES catalog_items (id),
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		content_type TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		product_kind TEXT NOT NULL,
		product_ref TEXT NOT NULL REFERENCES catalog_items (id),
		buyer_name TEXT NOT NULL,
		buyer_email TEXT NOT NULL,
		buyer_phone TEXT NOT NULL,
		buyer_user_id TEXT REFERENCES users (id),
		domain_details TEXT NOT NULL DEFAULT '{}',
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'INR',
		proof_ref TEXT,
		status TEXT NOT NULL CHECK (status IN ('pending_identity', 'pending_moderation', 'approved', 'rejected')),
		new_account_requested BOOLEAN NOT NULL DEFAULT 0,
		pending_account TEXT,
		decision_note TEXT,
		decided_by TEXT,
		decided_at DATETIME,
		access_expires_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (status = 'pending_identity' OR proof_ref IS NOT NULL),
		CHECK ((status IN ('approved', 'rejected')) = (decided_at IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_status_created ON purchases (status, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS otp_challenges (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		purchase_id TEXT NOT NULL REFERENCES purchases (id),
		code_hash TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		consumed_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_otp_challenges_key ON otp_challenges (email, purchase_id)`,
	`CREATE TABLE IF NOT EXISTS password_reset_challenges (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		code_hash TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		consumed_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_password_reset_challenges_email ON password_reset_challenges (email)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate
		ON outbox_events (event_type, aggregate_type, aggregate_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notification_deliveries (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		purchase_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		audience TEXT NOT NULL,
		recipient TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		link TEXT,
		error TEXT,
		sent_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_notification_deliveries_event_channel
		ON notification_deliveries (event_id, channel, audience)`,
}

// EnsureSQLiteSchema creates the tables on a sqlite connection. It is a no-op on Postgres,
// where goose owns the schema.
func (c *Client) EnsureSQLiteSchema(ctx context.Context) error {
	if c.conn.Dialector.Name() != config.DriverSQLite {
		return nil
	}
	for _, stmt := range sqliteSchema {
		if err := c.conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			head := strings.SplitN(strings.TrimSpace(stmt), "(", 2)[0]
			return fmt.Errorf("sqlite schema %q: %w", head, err)
		}
	}
	return nil
}
