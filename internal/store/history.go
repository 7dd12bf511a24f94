package store

import (
	"context"
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
	"github.com/tmc/langchaingo/llms"
)

// Message roles stored in the history table.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Exchange is one stored message of a conversation.
type Exchange struct {
	Session      string
	Role         string
	Content      string
	Table        string
	QueryID      string
	ResponseType string
}

// HistoryStore keeps conversation history in sqlite.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT,
			role TEXT,
			content TEXT,
			table_name TEXT,
			query_id TEXT,
			response_type TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session, id);`,
	}
	for _, q := range queries {
		if _, err = db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

func (h *HistoryStore) AddExchange(ctx context.Context, e Exchange) error {
	query := `INSERT INTO messages (session, role, content, table_name, query_id, response_type) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := h.DB.ExecContext(ctx, query, e.Session, e.Role, e.Content, e.Table, e.QueryID, e.ResponseType)
	return err
}

// GetHistory returns the last limit messages of a session in chronological order.
func (h *HistoryStore) GetHistory(ctx context.Context, session string, limit int) ([]llms.MessageContent, error) {
	query := `SELECT role, content FROM messages WHERE session = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		msgRole := llms.ChatMessageTypeHuman
		if role == RoleAI {
			msgRole = llms.ChatMessageTypeAI
		}

		history = append(history, llms.MessageContent{
			Role: msgRole,
			Parts: []llms.ContentPart{
				llms.TextPart(content),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

// ClearSession deletes every stored message of a session.
func (h *HistoryStore) ClearSession(ctx context.Context, session string) error {
	_, err := h.DB.ExecContext(ctx, `DELETE FROM messages WHERE session = ?`, session)
	return err
}
