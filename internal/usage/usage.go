// Package usage records the token usage and cost of language-model calls.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type AIUsage struct {
	ID               int       `json:"id"`
	RequestID        string    `json:"request_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Cost             float64   `json:"cost"`
	CreatedAt        time.Time `json:"created_at"`
}

// Recorder stores usage entries.
type Recorder interface {
	Record(ctx context.Context, u *AIUsage) error
	TotalCost(ctx context.Context) (float64, error)
}

// NewRequestID returns a fresh identifier for one generation request.
func NewRequestID() string {
	return uuid.NewString()
}

// Cost computes the price of a call given per-1000-token rates.
func Cost(promptTokens, completionTokens int, inputPer1K, outputPer1K float64) float64 {
	return float64(promptTokens)/1000*inputPer1K + float64(completionTokens)/1000*outputPer1K
}

// Noop discards everything.
type Noop struct{}

func (Noop) Record(context.Context, *AIUsage) error     { return nil }
func (Noop) TotalCost(context.Context) (float64, error) { return 0, nil }

// Memory keeps entries in process, used by tests and when no database is configured.
type Memory struct {
	mu      sync.Mutex
	entries []AIUsage
}

func (m *Memory) Record(_ context.Context, u *AIUsage) error {
	if u == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := *u
	entry.ID = len(m.entries) + 1
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, entry)
	u.ID, u.CreatedAt = entry.ID, entry.CreatedAt
	return nil
}

func (m *Memory) TotalCost(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, e := range m.entries {
		total += e.Cost
	}
	return total, nil
}

// Entries returns a copy of the recorded entries.
func (m *Memory) Entries() []AIUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AIUsage(nil), m.entries...)
}

// NewConnection opens and pings a PostgreSQL database.
func NewConnection(connectStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	log.Println("Database connection established")
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS ai_usage (
	id SERIAL PRIMARY KEY,
	request_id TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store persists usage in the ai_usage table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database and makes sure the table exists.
func Open(ctx context.Context, connectStr string) (*Store, error) {
	db, err := NewConnection(connectStr)
	if err != nil {
		return nil, err
	}
	s := NewStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("创建 ai_usage 表失败: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, u *AIUsage) error {
	query := `
		INSERT INTO ai_usage (request_id, provider, model, prompt_tokens, completion_tokens, total_tokens, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, u.RequestID, u.Provider, u.Model,
		u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.Cost).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("记录 AI 用量失败: %w", err)
	}
	return nil
}

func (s *Store) TotalCost(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(cost), 0) FROM ai_usage").Scan(&total)
	return total, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
