package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/config"
	"github.com/markdave123-py/AgroIntelX/internal/core"
	"github.com/markdave123-py/AgroIntelX/internal/logging"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

const uniqueViolation = "23505"

type DatabaseClient struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	logger = logger.Named("database")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	logger.Info("Connected to database", zap.String("dsn", logging.SanitizeConnectionString(dsn)))

	if err := RunMigrations(dsn, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return NewFromDB(db, logger), nil
}

// NewFromDB wraps an open pool whose schema is already migrated.
func NewFromDB(db *sql.DB, logger *zap.Logger) *DatabaseClient {
	return &DatabaseClient{db: db, logger: logger}
}

// buildDSN appends the CA bundle settings when SSL_CERT_PATH is configured.
func buildDSN(cfg *config.Config) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if cfg.SslCertPath == "" {
		return cfg.DatabaseURL, nil
	}
	if _, err := os.Stat(cfg.SslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
	}

	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", cfg.SslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user email %w", apperrors.ErrConflict)
	}
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users WHERE email = $1
	`
	return scanUser(c.db.QueryRowContext(ctx, q, email))
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if uuid.Validate(id) != nil {
		return nil, apperrors.ErrNotFound
	}
	const q = `
		SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`
	return scanUser(c.db.QueryRowContext(ctx, q, id))
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Soil reports

const reportColumns = `id, user_id, source, pdf_url, extracted_input_data, analysis, created_at`

func (c *DatabaseClient) CreateSoilReport(ctx context.Context, report *models.SoilReport) error {
	if report == nil {
		return errors.New("nil soil report")
	}
	snapshot, err := marshalNullable(report.ExtractedInputData)
	if err != nil {
		return fmt.Errorf("encode extracted_input_data: %w", err)
	}
	result, err := marshalNullable(report.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	const q = `
		INSERT INTO soil_reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.ExecContext(ctx, q,
		report.ID, report.UserID, string(report.Source), report.PdfURL, snapshot, result, report.CreatedAt)
	return err
}

func (c *DatabaseClient) ListSoilReportsByUser(ctx context.Context, userID string, limit int) ([]models.SoilReport, error) {
	if uuid.Validate(userID) != nil {
		return []models.SoilReport{}, nil
	}
	q := `SELECT ` + reportColumns + ` FROM soil_reports WHERE user_id = $1 ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SoilReport{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetSoilReportForUser(ctx context.Context, id, userID string) (*models.SoilReport, error) {
	if uuid.Validate(id) != nil || uuid.Validate(userID) != nil {
		return nil, apperrors.ErrNotFound
	}
	const q = `SELECT ` + reportColumns + ` FROM soil_reports WHERE id = $1 AND user_id = $2`
	r, err := scanReport(c.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*models.SoilReport, error) {
	var (
		r        models.SoilReport
		source   string
		pdfURL   sql.NullString
		snapshot []byte
		result   []byte
	)
	if err := row.Scan(&r.ID, &r.UserID, &source, &pdfURL, &snapshot, &result, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Source = models.SourceKind(source)
	if pdfURL.Valid {
		r.PdfURL = &pdfURL.String
	}
	if len(snapshot) > 0 {
		r.ExtractedInputData = &models.NutrientSnapshot{}
		if err := json.Unmarshal(snapshot, r.ExtractedInputData); err != nil {
			return nil, fmt.Errorf("decode extracted_input_data: %w", err)
		}
	}
	if len(result) > 0 {
		r.Analysis = &models.SoilAnalysis{}
		if err := json.Unmarshal(result, r.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}
	return &r, nil
}

// Chat sessions

const sessionColumns = `id, user_id, title, linked_report_id, created_at`

func (c *DatabaseClient) CreateChatSession(ctx context.Context, session *models.ChatSession) error {
	if session == nil {
		return errors.New("nil chat session")
	}
	return insertSession(ctx, c.db, session)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, session *models.ChatSession) error {
	const q = `
		INSERT INTO chat_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.ExecContext(ctx, q,
		session.ID, session.UserID, session.Title, session.LinkedReportID, session.CreatedAt)
	return err
}

func (c *DatabaseClient) GetChatSessionForUser(ctx context.Context, id, userID string) (*models.ChatSession, error) {
	if uuid.Validate(id) != nil || uuid.Validate(userID) != nil {
		return nil, apperrors.ErrNotFound
	}
	const q = `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1 AND user_id = $2`
	s, err := scanSession(c.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return s, err
}

// FindOrCreateReportSession serializes callers on a transaction-scoped advisory
// lock keyed by (user, report), so only the first caller inserts.
func (c *DatabaseClient) FindOrCreateReportSession(ctx context.Context, session *models.ChatSession) (*models.ChatSession, bool, error) {
	if session == nil || session.LinkedReportID == nil {
		return nil, false, errors.New("report session requires a linked report")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	lockKey := session.UserID + ":" + *session.LinkedReportID
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, false, fmt.Errorf("acquire session lock: %w", err)
	}

	const q = `
		SELECT ` + sessionColumns + ` FROM chat_sessions
		WHERE user_id = $1 AND linked_report_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	existing, err := scanSession(tx.QueryRowContext(ctx, q, session.UserID, *session.LinkedReportID))
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit tx: %w", err)
		}
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, err
	}

	if err := insertSession(ctx, tx, session); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}
	created := *session
	return &created, true, nil
}

func (c *DatabaseClient) ListChatSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	if uuid.Validate(userID) != nil {
		return []models.ChatSession{}, nil
	}
	const q = `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE user_id = $1 ORDER BY created_at DESC, id`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSession(row rowScanner) (*models.ChatSession, error) {
	var (
		s      models.ChatSession
		linked sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &linked, &s.CreatedAt); err != nil {
		return nil, err
	}
	if linked.Valid {
		s.LinkedReportID = &linked.String
	}
	return &s, nil
}

// Chat messages

const messageColumns = `id, session_id, sender, message, created_at`

func (c *DatabaseClient) CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil {
		return errors.New("nil chat message")
	}
	const q = `
		INSERT INTO chat_messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.ExecContext(ctx, q, msg.ID, msg.SessionID, msg.Sender, msg.Message, msg.CreatedAt)
	return err
}

func (c *DatabaseClient) GetLastChatMessage(ctx context.Context, sessionID string) (*models.ChatMessage, error) {
	if uuid.Validate(sessionID) != nil {
		return nil, apperrors.ErrNotFound
	}
	const q = `
		SELECT ` + messageColumns + ` FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`
	m, err := scanMessage(c.db.QueryRowContext(ctx, q, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return m, err
}

func (c *DatabaseClient) ListRecentChatMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	const q = `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `, seq FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, seq ASC
	`
	return c.queryMessages(ctx, q, sessionID, limit)
}

func (c *DatabaseClient) ListChatMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	const q = `
		SELECT ` + messageColumns + ` FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	return c.queryMessages(ctx, q, sessionID)
}

func (c *DatabaseClient) queryMessages(ctx context.Context, q string, sessionID string, args ...any) ([]models.ChatMessage, error) {
	if uuid.Validate(sessionID) != nil {
		return []models.ChatMessage{}, nil
	}
	rows, err := c.db.QueryContext(ctx, q, append([]any{sessionID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (*models.ChatMessage, error) {
	var m models.ChatMessage
	if err := row.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Message, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ core.DbClient = (*DatabaseClient)(nil)
