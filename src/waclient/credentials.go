package waclient

import (
	"fmt"
	"os"
	"path/filepath"
)

// CredentialStore keeps per-session authentication material on local disk,
// one directory per session id. The blob is opaque to this service; it is
// written by the driver and shuttled to/from the remote backup store by the
// recovery paths.
type CredentialStore struct {
	baseDir string
}

const credentialFile = "auth.json"

// NewCredentialStore creates a file-backed credential store rooted at baseDir.
func NewCredentialStore(baseDir string) (*CredentialStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	return &CredentialStore{baseDir: baseDir}, nil
}

// Dir returns the session's credential directory, creating nothing.
func (s *CredentialStore) Dir(sessionID string) string {
	return filepath.Join(s.baseDir, "session-"+sessionID)
}

// Exists reports whether credential material is present for the session.
func (s *CredentialStore) Exists(sessionID string) bool {
	_, err := os.Stat(filepath.Join(s.Dir(sessionID), credentialFile))
	return err == nil
}

// Save writes the credential blob for a session, creating its directory.
func (s *CredentialStore) Save(sessionID string, blob []byte) error {
	dir := s.Dir(sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session credential directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, credentialFile), blob, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Load reads the credential blob. Returns nil, nil when none is stored.
func (s *CredentialStore) Load(sessionID string) ([]byte, error) {
	blob, err := os.ReadFile(filepath.Join(s.Dir(sessionID), credentialFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return blob, nil
}

// Delete removes all credential material for the session. Deleting an absent
// session is not an error.
func (s *CredentialStore) Delete(sessionID string) error {
	if err := os.RemoveAll(s.Dir(sessionID)); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
