package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// messageRepo implements the Message repository on sqlite
type messageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a new Message repository
func NewMessageRepo(dbPath string) (repo.MessageRepo, error) {
	// Ensure directory exists
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; the recorder and inbound handlers share this handle
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			row_id INTEGER PRIMARY KEY AUTOINCREMENT,
			msg_id TEXT NOT NULL,
			kind INTEGER NOT NULL,
			target_id TEXT NOT NULL,
			group_name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			sender_id TEXT NOT NULL DEFAULT '',
			sender_name TEXT NOT NULL DEFAULT '',
			is_media INTEGER NOT NULL DEFAULT 0,
			is_bot INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_messages_msg_id ON messages(msg_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_target ON messages(kind, target_id, created_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	return &messageRepo{db: db}, nil
}

// Save stores a message
func (r *messageRepo) Save(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreateTime.IsZero() {
		msg.CreateTime = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (msg_id, kind, target_id, group_name, content, sender_id, sender_name, is_media, is_bot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, int(msg.Kind), msg.TargetID, msg.GroupName, msg.Content, msg.SenderID, msg.SenderName,
		boolToInt(msg.IsMedia), boolToInt(msg.IsBot), msg.CreateTime.Unix())
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// IsBotMessage checks whether msgID was sent by the bot
func (r *messageRepo) IsBotMessage(ctx context.Context, msgID string) (bool, error) {
	if msgID == "" {
		return false, nil
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE msg_id = ? AND is_bot = 1
	`, msgID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query message: %w", err)
	}
	return count > 0, nil
}

// ListRecent gets the latest messages for a target, oldest first
func (r *messageRepo) ListRecent(ctx context.Context, kind domain.SurfaceKind, targetID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT msg_id, kind, target_id, group_name, content, sender_id, sender_name, is_media, is_bot, created_at
		FROM messages
		WHERE kind = ? AND target_id = ?
		ORDER BY created_at DESC, row_id DESC
		LIMIT ?
	`, int(kind), targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var kindVal, isMedia, isBot int
		var createdAt int64
		if err := rows.Scan(&msg.ID, &kindVal, &msg.TargetID, &msg.GroupName, &msg.Content,
			&msg.SenderID, &msg.SenderName, &isMedia, &isBot, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Kind = domain.SurfaceKind(kindVal)
		msg.IsMedia = isMedia == 1
		msg.IsBot = isBot == 1
		msg.CreateTime = time.Unix(createdAt, 0)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// Newest first from the query, callers want oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CleanupOld deletes messages created before the given time
func (r *messageRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup messages: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (r *messageRepo) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
