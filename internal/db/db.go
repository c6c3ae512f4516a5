package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
            visitor_id VARCHAR(128) PRIMARY KEY,
            visitor_name VARCHAR(100) NOT NULL,
            visitor_email VARCHAR(255),
            visitor_whatsapp VARCHAR(32),
            last_message TEXT NOT NULL DEFAULT '',
            last_message_time TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            unread_count INT NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
            status VARCHAR(10) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            conversation_id VARCHAR(128) NOT NULL REFERENCES conversations(visitor_id) ON DELETE CASCADE,
            sender VARCHAR(10) NOT NULL CHECK (sender IN ('visitor', 'admin')),
            sender_name VARCHAR(100) NOT NULL,
            message TEXT NOT NULL,
            sent_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            read BOOLEAN NOT NULL DEFAULT FALSE
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
            ON messages (conversation_id, sent_at, id)`,

		`CREATE TABLE IF NOT EXISTS admins (
            id SERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            email VARCHAR(255) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            role VARCHAR(20) NOT NULL DEFAULT 'admin' CHECK (role IN ('admin', 'super-admin')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
