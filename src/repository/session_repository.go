package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whatsapp-session-service/src/db"
	"whatsapp-session-service/src/models"

	"github.com/google/uuid"
)

// SessionRepository handles all database operations for sessions
type SessionRepository struct {
	db *db.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(database *db.DB) *SessionRepository {
	return &SessionRepository{
		db: database,
	}
}

const sessionColumns = `session_id, user_id, status, is_ready, is_authenticated,
	       qr_code, phone_number, last_activity, last_error, last_error_time,
	       created_at, updated_at`

// FindByUser retrieves the most recent non-destroyed session for a user.
// Returns nil, nil when the user has no live session record.
func (r *SessionRepository) FindByUser(ctx context.Context, userID string) (*models.SessionRecord, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM whatsapp_sessions
		WHERE user_id = $1 AND status != $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	rec, err := scanSession(r.db.GetConnection().QueryRowContext(ctx, query, userID, models.StatusDestroyed))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by user: %w", err)
	}
	return rec, nil
}

// FindByID retrieves a session by its id.
func (r *SessionRepository) FindByID(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM whatsapp_sessions
		WHERE session_id = $1
	`

	rec, err := scanSession(r.db.GetConnection().QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return rec, nil
}

// Create inserts a new session record in INITIALIZING for a user.
func (r *SessionRepository) Create(ctx context.Context, userID string) (*models.SessionRecord, error) {
	sessionID := uuid.New().String()
	now := time.Now()

	query := `
		INSERT INTO whatsapp_sessions
		(session_id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING ` + sessionColumns + `
	`

	rec, err := scanSession(r.db.GetConnection().QueryRowContext(
		ctx, query, sessionID, userID, models.StatusInitializing, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("Created new session",
		"user_id", userID,
		"session_id", rec.SessionID)

	return rec, nil
}

// Update applies a partial update. Only fields set on upd are written;
// updated_at always advances. Returns models.ErrSessionNotFound when the
// record no longer exists.
func (r *SessionRepository) Update(ctx context.Context, sessionID string, upd models.SessionUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	idx := 1

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.IsReady != nil {
		add("is_ready", *upd.IsReady)
	}
	if upd.IsAuthenticated != nil {
		add("is_authenticated", *upd.IsAuthenticated)
	}
	if upd.ClearQRCode {
		sets = append(sets, "qr_code = NULL")
	} else if upd.QRCode != nil {
		add("qr_code", *upd.QRCode)
	}
	if upd.PhoneNumber != nil {
		add("phone_number", *upd.PhoneNumber)
	}
	if upd.LastActivity != nil {
		add("last_activity", *upd.LastActivity)
	}
	if upd.ClearError {
		sets = append(sets, "last_error = NULL", "last_error_time = NULL")
	} else if upd.LastError != nil {
		add("last_error", *upd.LastError)
		sets = append(sets, fmt.Sprintf("last_error_time = $%d", idx))
		args = append(args, time.Now())
		idx++
	}

	query := fmt.Sprintf(
		"UPDATE whatsapp_sessions SET %s WHERE session_id = $%d",
		strings.Join(sets, ", "), idx,
	)
	args = append(args, sessionID)

	result, err := r.db.GetConnection().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session record. Deleting an absent record is not an error.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	query := `DELETE FROM whatsapp_sessions WHERE session_id = $1`

	if _, err := r.db.GetConnection().ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List retrieves sessions matching the filter, most recent first.
func (r *SessionRepository) List(ctx context.Context, filter models.ListFilter) ([]models.SessionRecord, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", idx)
			args = append(args, st)
			idx++
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, filter.UserID)
		idx++
	}
	if !filter.ActiveSince.IsZero() && !filter.CreatedSince.IsZero() {
		where = append(where, fmt.Sprintf("(last_activity > $%d OR created_at > $%d)", idx, idx+1))
		args = append(args, filter.ActiveSince, filter.CreatedSince)
		idx += 2
	} else if !filter.ActiveSince.IsZero() {
		where = append(where, fmt.Sprintf("last_activity > $%d", idx))
		args = append(args, filter.ActiveSince)
		idx++
	} else if !filter.CreatedSince.IsZero() {
		where = append(where, fmt.Sprintf("created_at > $%d", idx))
		args = append(args, filter.CreatedSince)
		idx++
	}

	query := `SELECT ` + sessionColumns + ` FROM whatsapp_sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.GetConnection().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanRow interface {
	Scan(dest ...any) error
}

func scanSession(src scanRow) (*models.SessionRecord, error) {
	var (
		rec         models.SessionRecord
		qrCode      sql.NullString
		phoneNumber sql.NullString
		lastErr     sql.NullString
		lastAct     sql.NullTime
		lastErrTime sql.NullTime
	)
	if err := src.Scan(
		&rec.SessionID,
		&rec.UserID,
		&rec.Status,
		&rec.IsReady,
		&rec.IsAuthenticated,
		&qrCode,
		&phoneNumber,
		&lastAct,
		&lastErr,
		&lastErrTime,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if qrCode.Valid {
		rec.QRCode = &qrCode.String
	}
	if phoneNumber.Valid {
		rec.PhoneNumber = &phoneNumber.String
	}
	if lastAct.Valid {
		rec.LastActivity = &lastAct.Time
	}
	if lastErr.Valid {
		rec.LastError = &lastErr.String
	}
	if lastErrTime.Valid {
		rec.LastErrorTime = &lastErrTime.Time
	}
	return &rec, nil
}
