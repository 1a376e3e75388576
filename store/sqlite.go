package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/internal/util"
	"github.com/parley-ai/parley/logging"
)

// SQLiteStore implements ChatStore using SQLite via modernc.org/sqlite.
// The schema is created automatically; WAL mode is enabled for concurrent
// readers alongside the single writer.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Parent directories
// are created if needed.
func NewSQLiteStore(path string, logger logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("store.sqlite.initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			group_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			tool_calls TEXT,
			tool_call_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			finish_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat_seq ON messages(chat_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateChat implements ChatStore.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *Chat) error {
	now := time.Now().UTC()
	created := chat.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, agent_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.AgentID, chat.Title, created, now,
	)
	if err != nil {
		return fmt.Errorf("inserting chat: %w", err)
	}
	return nil
}

// GetChat implements ChatStore.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	var chat Chat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, agent_id, title, created_at, updated_at
		FROM chats WHERE id = ?`, id,
	).Scan(&chat.ID, &chat.UserID, &chat.AgentID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}
	return &chat, nil
}

// UpdateTitle implements ChatStore.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrWorkflowNotFound
	}
	return nil
}

// CommitTurn implements ChatStore. The user message and the reconciled
// assistant messages are stored atomically under one group id.
func (s *SQLiteStore) CommitTurn(ctx context.Context, chatID string, userMessage core.Message, assistant []core.Message) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM messages WHERE chat_id = ?`, chatID,
	).Scan(&maxSeq); err != nil {
		return "", fmt.Errorf("querying sequence: %w", err)
	}
	seq := maxSeq.Int64 + 1

	groupID := util.NewID()
	now := time.Now().UTC()

	insert := func(msg core.Message) error {
		var toolCalls any
		if len(msg.ToolCalls) > 0 {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("encoding tool calls: %w", err)
			}
			toolCalls = string(encoded)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, group_id, seq, role, content, tool_calls, tool_call_id, name, finish_reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			util.NewID(), chatID, groupID, seq, string(msg.Role), msg.Content,
			toolCalls, msg.ToolCallID, msg.Name, string(msg.FinishReason), now,
		)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		seq++
		return nil
	}

	if err := insert(userMessage); err != nil {
		return "", err
	}
	for _, msg := range assistant {
		if err := insert(msg); err != nil {
			return "", err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE id = ?`, now, chatID,
	); err != nil {
		return "", fmt.Errorf("touching chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing turn: %w", err)
	}

	s.logger.Debug("store.turn.committed", "chat_id", chatID, "group_id", groupID, "messages", len(assistant)+1)
	return groupID, nil
}

// LoadHistory implements ChatStore.
func (s *SQLiteStore) LoadHistory(ctx context.Context, chatID string) ([]core.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_calls, tool_call_id, name, finish_reason
		FROM messages WHERE chat_id = ? ORDER BY seq`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var (
			msg       core.Message
			role      string
			reason    string
			toolCalls sql.NullString
		)
		if err := rows.Scan(&role, &msg.Content, &toolCalls, &msg.ToolCallID, &msg.Name, &reason); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = core.Role(role)
		msg.FinishReason = core.FinishReason(reason)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
