package models

import "time"

// RecoveryOutcome classifies what startup recovery did with one session.
type RecoveryOutcome string

const (
	RecoveryRestored RecoveryOutcome = "restored"
	RecoveryDemoted  RecoveryOutcome = "demoted"
	RecoveryRescan   RecoveryOutcome = "rescan"
	RecoveryFailed   RecoveryOutcome = "failed"
)

// SessionRecoveryResult is the per-session line of a recovery report.
type SessionRecoveryResult struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Outcome   RecoveryOutcome `json:"outcome"`
	Error     string          `json:"error,omitempty"`
}

// RecoveryReport aggregates one recovery run. It is produced, never stored.
type RecoveryReport struct {
	Total             int                     `json:"total"`
	RestoredViaBackup int                     `json:"restored_via_backup"`
	RestoredViaRescan int                     `json:"restored_via_rescan"`
	Demoted           int                     `json:"demoted"`
	Failed            int                     `json:"failed"`
	Results           []SessionRecoveryResult `json:"results"`
	Duration          time.Duration           `json:"duration_ns"`
}

// SyncStatus classifies how well the stores agree about one session.
type SyncStatus string

const (
	SyncStatusSynced      SyncStatus = "SYNCED"
	SyncStatusPartialSync SyncStatus = "PARTIAL_SYNC"
	SyncStatusOutOfSync   SyncStatus = "OUT_OF_SYNC"
	SyncStatusCorrupted   SyncStatus = "CORRUPTED"
)

// SessionDiagnostics is a read-only snapshot comparing the durable record,
// the remote backup, local credentials, and the in-memory handle.
type SessionDiagnostics struct {
	SessionID         string        `json:"session_id"`
	DurableStatus     SessionStatus `json:"durable_status"`
	HandlePresent     bool          `json:"handle_present"`
	HandleStatus      SessionStatus `json:"handle_status,omitempty"`
	BackupExists      bool          `json:"backup_exists"`
	LocalAuthExists   bool          `json:"local_auth_exists"`
	QRCodeAgeSeconds  *float64      `json:"qr_code_age_seconds,omitempty"`
	SyncStatus        SyncStatus    `json:"sync_status"`
	RecommendedAction string        `json:"recommended_action"`
}

// BulkItem is one entry of a bulk send request.
type BulkItem struct {
	To       string `json:"to"`
	Body     string `json:"body"`
	MediaURL string `json:"media_url,omitempty"`
}

// BulkItemResult records the independent outcome of one bulk item.
type BulkItemResult struct {
	Index     int    `json:"index"`
	To        string `json:"to"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BulkResult summarizes a bulk send. Successful+Failed always equals Total.
type BulkResult struct {
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []BulkItemResult `json:"results"`
	Duration   time.Duration    `json:"duration_ns"`
}
