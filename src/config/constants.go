package config

import "time"

// Session lifecycle timing. QRCodeTTL and ScanTimeout cover overlapping ground:
// QRCodeTTL is how long a generated code stays valid on the read path, while
// ScanTimeout is how long the timer waits before demoting an unscanned session.
// They are declared side by side so they cannot drift apart unnoticed.
const (
	// QRCodeTTL is the validity window of a generated QR code, measured from
	// the record's last update. Reads past this window treat the session as
	// disconnected.
	QRCodeTTL = 20 * time.Second

	// ScanTimeout demotes a QR_READY session that was never scanned.
	ScanTimeout = 120 * time.Second

	// GenerationTimeout bounds how long initialization waits for the first
	// QR code from the client.
	GenerationTimeout = 120 * time.Second

	// GenerationProgressInterval is how often initialization logs progress
	// while waiting for a QR code.
	GenerationProgressInterval = 15 * time.Second

	// RestoreReadyTimeout bounds how long a restoration waits for the client
	// to come up ready from saved credentials.
	RestoreReadyTimeout = 5 * time.Minute

	// InitStuckAfter is how old an INITIALIZING record may be before the
	// send path restarts it instead of waiting.
	InitStuckAfter = 5 * time.Minute

	// IdleExpiry is the inactivity window after which a READY/AUTHENTICATED
	// record with no live connection is considered expired.
	IdleExpiry = 60 * time.Minute

	// InitRetryBackoff is the fixed delay between initialization attempts.
	InitRetryBackoff = 5 * time.Second

	// MaxInitRetries is the number of extra initialization attempts after
	// the first one fails.
	MaxInitRetries = 2

	// SweepInterval is how often the cleanup sweep runs.
	SweepInterval = 5 * time.Minute

	// SweepStuckAfter is how long a record may sit in INITIALIZING before
	// the sweep forces it to DISCONNECTED.
	SweepStuckAfter = 10 * time.Minute

	// RecoveryActivityWindow and RecoveryCreationWindow bound which records
	// startup recovery considers recent enough to touch.
	RecoveryActivityWindow = 24 * time.Hour
	RecoveryCreationWindow = 2 * time.Hour

	// BulkMaxItems caps a single bulk send request.
	BulkMaxItems = 50

	// BulkDelayMin/Max bound the randomized pause between bulk items.
	BulkDelayMin = 1 * time.Second
	BulkDelayMax = 2 * time.Second

	// MaxLiveConnectionsSoft is the pre-flight warning threshold for the
	// number of connections already live in this process.
	MaxLiveConnectionsSoft = 20

	// MinHeapHeadroomBytes is the pre-flight warning threshold for process
	// memory usage.
	MinHeapHeadroomBytes = 256 << 20
)

// SessionEventsExchange is the fanout exchange lifecycle events are
// published to.
const SessionEventsExchange = "whatsapp_session_events"

// MessagingHost is the DNS name probed by the pre-flight reachability check.
const MessagingHost = "web.whatsapp.com"
