package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool and applies the chat schema.
func Connect(ctx context.Context, dsn string, log *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            type TEXT NOT NULL CHECK (type IN ('Direct', 'GroupApartment')),
            name TEXT,
            apartment_id UUID,
            created_by_user_id UUID NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            last_message_at TIMESTAMPTZ,
            direct_user_low UUID,
            direct_user_high UUID,
            UNIQUE (direct_user_low, direct_user_high),
            CHECK ((type = 'Direct') = (apartment_id IS NULL)),
            CHECK ((type = 'Direct') = (direct_user_low IS NOT NULL AND direct_user_high IS NOT NULL))
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_active_apartment_idx
            ON conversations (apartment_id) WHERE type = 'GroupApartment' AND is_active;`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id UUID NOT NULL REFERENCES conversations(id),
            user_id UUID NOT NULL,
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            PRIMARY KEY (conversation_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS conversation_participants_user_idx ON conversation_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            seq BIGSERIAL UNIQUE,
            sender_id UUID NOT NULL,
            conversation_id UUID NOT NULL REFERENCES conversations(id),
            recipient_id UUID,
            apartment_id UUID,
            content TEXT NOT NULL CHECK (char_length(content) BETWEEN 1 AND 1000),
            type TEXT NOT NULL CHECK (type IN ('Text', 'Announcement')),
            chat_type TEXT NOT NULL CHECK (chat_type IN ('Direct', 'ApartmentGroup')),
            sent_at TIMESTAMPTZ NOT NULL,
            is_delivered BOOLEAN NOT NULL DEFAULT FALSE,
            delivered_at TIMESTAMPTZ,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMPTZ,
            CHECK ((chat_type = 'Direct') = (apartment_id IS NULL))
        );`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_order_idx ON messages (conversation_id, sent_at, seq);`,
	`CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id);`,
	`CREATE INDEX IF NOT EXISTS messages_apartment_idx ON messages (apartment_id) WHERE apartment_id IS NOT NULL;`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
