// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlstore implements storage.Store on database/sql. The SQL is
// written once with "?" placeholders and rebound per dialect; timestamps are
// stored as Unix milliseconds and booleans as 0/1 so the same schema runs on
// SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leseb/docchat-gw/pkg/storage"
)

// Dialect selects the placeholder style.
type Dialect int

const (
	// Question uses "?" placeholders (SQLite).
	Question Dialect = iota
	// Dollar uses "$1, $2, ..." placeholders (PostgreSQL).
	Dollar
)

// compile-time check
var _ storage.Store = (*Store)(nil)

// Store is a database/sql backed storage.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db and creates the schema if needed.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		file_key TEXT NOT NULL DEFAULT '',
		size BIGINT NOT NULL DEFAULT 0,
		type TEXT NOT NULL DEFAULT '',
		namespace TEXT NOT NULL DEFAULT '',
		index_name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		is_user INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_chat_position ON messages(chat_id, position)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		plan TEXT NOT NULL DEFAULT 'FREE',
		subscription_status TEXT NOT NULL DEFAULT '',
		current_period_end BIGINT
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// rebind rewrites "?" placeholders for the store's dialect.
func (s *Store) rebind(query string) string {
	if s.dialect != Dollar {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// --- helpers ---

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// expectOne maps a zero-row update or delete to ErrNotFound.
func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s rows affected: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}

// --- documents ---

const documentColumns = `id, user_id, name, file_key, size, type, namespace, index_name, is_active, status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*storage.Document, error) {
	var (
		d        storage.Document
		isActive int64
		created  int64
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Key, &d.Size, &d.Type,
		&d.Namespace, &d.IndexName, &isActive, &d.Status, &created); err != nil {
		return nil, err
	}
	d.IsActive = isActive != 0
	d.CreatedAt = fromMillis(created)
	return &d, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *storage.Document) error {
	_, err := s.exec(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Name, doc.Key, doc.Size, doc.Type,
		doc.Namespace, doc.IndexName, boolInt(doc.IsActive), doc.Status, millis(doc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*storage.Document, error) {
	d, err := scanDocument(s.queryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *storage.Document) error {
	res, err := s.exec(ctx,
		`UPDATE documents SET name = ?, file_key = ?, size = ?, type = ?, namespace = ?,
		 index_name = ?, is_active = ?, status = ? WHERE id = ?`,
		doc.Name, doc.Key, doc.Size, doc.Type, doc.Namespace,
		doc.IndexName, boolInt(doc.IsActive), doc.Status, doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	return expectOne(res, "document", doc.ID)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return expectOne(res, "document", id)
}

func (s *Store) ListDocuments(ctx context.Context, userID string) ([]*storage.Document, error) {
	rows, err := s.query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*storage.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CountActiveDocuments(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM documents WHERE user_id = ? AND is_active = 1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// --- chats ---

const chatColumns = `id, user_id, title, created_at, updated_at`

func scanChat(row scanner) (*storage.Chat, error) {
	var (
		c                storage.Chat
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

func (s *Store) CreateChat(ctx context.Context, chat *storage.Chat) error {
	_, err := s.exec(ctx,
		`INSERT INTO chats (`+chatColumns+`) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, millis(chat.CreatedAt), millis(chat.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert chat %s: %w", chat.ID, err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, id string) (*storage.Chat, error) {
	c, err := scanChat(s.queryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

func (s *Store) ListChats(ctx context.Context, userID string) ([]*storage.Chat, error) {
	rows, err := s.query(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE user_id = ? ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []*storage.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) TouchChat(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, millis(at), id)
	if err != nil {
		return fmt.Errorf("touch chat %s: %w", id, err)
	}
	return expectOne(res, "chat", id)
}

// --- messages ---

// maxPositionAttempts bounds AddMessage retries when a concurrent insert
// takes the same position.
const maxPositionAttempts = 5

// errPositionTaken is returned when every attempt lost the position race.
var errPositionTaken = errors.New("message position taken")

// AddMessage appends msg after the chat's last message. The chat must exist.
// (chat_id, position) is unique; an insert that loses the race for a
// position is retried with a fresh position.
func (s *Store) AddMessage(ctx context.Context, msg *storage.Message) error {
	if _, err := s.GetChat(ctx, msg.ChatID); err != nil {
		return err
	}
	for range maxPositionAttempts {
		res, err := s.exec(ctx,
			`INSERT INTO messages (id, chat_id, user_id, text, is_user, created_at, position)
			 VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM messages WHERE chat_id = ?))
			 ON CONFLICT (chat_id, position) DO NOTHING`,
			msg.ID, msg.ChatID, msg.UserID, msg.Text, boolInt(msg.IsUser), millis(msg.CreatedAt), msg.ChatID,
		)
		if err != nil {
			return fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert message %s rows affected: %w", msg.ID, err)
		}
		if n == 1 {
			return nil
		}
	}
	return fmt.Errorf("insert message %s: %w", msg.ID, errPositionTaken)
}

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]*storage.Message, error) {
	rows, err := s.query(ctx,
		`SELECT id, chat_id, user_id, text, is_user, created_at FROM messages
		 WHERE chat_id = ? ORDER BY position ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*storage.Message
	for rows.Next() {
		var (
			m       storage.Message
			isUser  int64
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Text, &isUser, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.IsUser = isUser != 0
		m.CreatedAt = fromMillis(created)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// --- users ---

func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	var (
		u         storage.User
		periodEnd sql.NullInt64
	)
	err := s.queryRow(ctx,
		`SELECT id, email, name, plan, subscription_status, current_period_end FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Plan, &u.SubscriptionStatus, &periodEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if periodEnd.Valid {
		end := fromMillis(periodEnd.Int64)
		u.CurrentPeriodEnd = &end
	}
	return &u, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *storage.User) error {
	var periodEnd sql.NullInt64
	if user.CurrentPeriodEnd != nil {
		periodEnd = sql.NullInt64{Int64: millis(*user.CurrentPeriodEnd), Valid: true}
	}
	plan := user.Plan
	if plan == "" {
		plan = storage.PlanFree
	}
	_, err := s.exec(ctx,
		`INSERT INTO users (id, email, name, plan, subscription_status, current_period_end)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name, plan = excluded.plan,
		 subscription_status = excluded.subscription_status, current_period_end = excluded.current_period_end`,
		user.ID, user.Email, user.Name, plan, user.SubscriptionStatus, periodEnd,
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	return nil
}
