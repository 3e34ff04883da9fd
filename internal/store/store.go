// Package store persists analysed reports and chat history in SQL.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/medilens/internal/config"
	"github.com/medilens/internal/domain"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// timeLayout is RFC 3339 with a fixed-width fraction so stored timestamps
// sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// QueryTimeout bounds every statement issued by the store.
const QueryTimeout = 10 * time.Second

// Store wraps a database/sql handle opened on sqlite or Postgres.
type Store struct {
	db       *sql.DB
	postgres bool
	logger   *zap.Logger
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*Store, error) {
	var dialect string
	switch cfg.Driver {
	case "sqlite":
		dialect = "sqlite3"
	case "pgx":
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", domain.ErrInvalidConfig, cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// One connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:       db,
		postgres: cfg.Driver == "pgx",
		logger:   logger.Named("store"),
	}

	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if err := s.migrate(dialect); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("store ready", zap.String("driver", cfg.Driver))
	return s, nil
}

func (s *Store) migrate(dialect string) error {
	goose.SetBaseFS(migrationFS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{s.logger.Sugar()})

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// gooseLogger routes migration output through zap.
type gooseLogger struct {
	*zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.Infof(strings.TrimSuffix(format, "\n"), v...)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateReport inserts r, filling in ID and CreatedAt when unset.
func (s *Store) CreateReport(ctx context.Context, r *domain.Report) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Source == "" {
		r.Source = "text"
	}

	analysis, err := json.Marshal(r.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO reports (id, name, content, analysis, source, archive_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.Name, r.Content, string(analysis), r.Source, r.ArchiveKey, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// ListReports returns up to limit reports, newest first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]domain.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, name, content, analysis, source, archive_key, created_at
		FROM reports
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []domain.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// GetReport returns the report with the given id or domain.ErrReportNotFound.
func (s *Store) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, content, analysis, source, archive_key, created_at
		FROM reports
		WHERE id = ?`), id)

	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReportNotFound
	}
	return r, err
}

// DeleteReport removes a report. Unknown ids return domain.ErrReportNotFound.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM reports WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

// AppendChatMessage stores one message of a chat session.
func (s *Store) AppendChatMessage(ctx context.Context, m *domain.ChatMessage) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO chat_messages (id, session_id, role, text, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		m.ID, m.SessionID, string(m.Role), m.Text, m.Failed, formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the latest limit messages of a session in the
// order they were written.
func (s *Store) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, role, text, failed, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		var (
			m       domain.ChatMessage
			role    string
			created string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Text, &m.Failed, &created); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Role = domain.ChatRole(role)
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClearChat deletes every message of a session and returns how many were removed.
func (s *Store) ClearChat(ctx context.Context, sessionID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM chat_messages WHERE session_id = ?`), sessionID)
	if err != nil {
		return 0, fmt.Errorf("clear chat: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*domain.Report, error) {
	var (
		r        domain.Report
		analysis string
		created  string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Content, &analysis, &r.Source, &r.ArchiveKey, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	if err := json.Unmarshal([]byte(analysis), &r.Analysis); err != nil {
		return nil, fmt.Errorf("decode analysis of report %s: %w", r.ID, err)
	}
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &r, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// newID returns a time-ordered UUID so rows written in the same instant keep
// their insertion order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
