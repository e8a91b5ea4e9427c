package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

const (
	sessionFile  = "session.json"
	deviceFile   = "device_id"
	envelopeVers = 1
)

// envelope is the on-disk format for the session file. The checksum covers
// the serialized session payload; a mismatch means the file was truncated or
// hand-edited, and the user is treated as signed out rather than crashing.
type envelope struct {
	Version  int             `json:"version"`
	DeviceID string          `json:"device_id"`
	Checksum string          `json:"checksum"`
	Session  json.RawMessage `json:"session"`
}

// FileStore persists the session on the local filesystem.
type FileStore struct {
	baseDir  string
	deviceID string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed session store.
// If baseDir is empty, uses ~/.studysync/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".studysync")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	store := &FileStore{baseDir: baseDir}

	deviceID, err := store.ensureDeviceID()
	if err != nil {
		return nil, err
	}
	store.deviceID = deviceID

	log.Debug().Str("baseDir", baseDir).Msg("session store initialized")

	return store, nil
}

// DeviceID returns the per-install identifier. It is generated once and
// survives sign-outs, so the backend can correlate payment attempts from
// the same install across sessions.
func (s *FileStore) DeviceID() string {
	return s.deviceID
}

func (s *FileStore) Get(ctx context.Context) (*Session, error) {
	data, err := os.ReadFile(s.sessionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotSignedIn
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("session file unreadable, discarding")
		s.discard()
		return nil, ErrNotSignedIn
	}

	if env.Checksum != checksum(env.Session) {
		log.Warn().Msg("session file checksum mismatch, discarding")
		s.discard()
		return nil, ErrNotSignedIn
	}

	var sess Session
	if err := json.Unmarshal(env.Session, &sess); err != nil {
		log.Warn().Err(err).Msg("session payload unreadable, discarding")
		s.discard()
		return nil, ErrNotSignedIn
	}

	if !sess.IsAuthenticated() {
		// Token without identity (or the reverse) is a broken write from an
		// older client; a partial session must never look signed in.
		s.discard()
		return nil, ErrNotSignedIn
	}

	return &sess, nil
}

func (s *FileStore) Set(ctx context.Context, sess *Session) error {
	if !sess.IsAuthenticated() {
		return fmt.Errorf("refusing to persist partial session: %w", ErrNotSignedIn)
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	env := envelope{
		Version:  envelopeVers,
		DeviceID: s.deviceID,
		Checksum: checksum(payload),
		Session:  payload,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session envelope: %w", err)
	}

	// Write to temp file first, then rename so readers never observe a
	// half-written session.
	path := s.sessionPath()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save session: %w", err)
	}

	log.Debug().Str("userID", sess.UserID).Msg("session saved")

	return nil
}

// Clear removes the whole session file in one operation; token, identity and
// cached profile all go together.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.sessionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	log.Debug().Msg("session cleared")

	return nil
}

func (s *FileStore) sessionPath() string {
	return filepath.Join(s.baseDir, sessionFile)
}

func (s *FileStore) discard() {
	if err := os.Remove(s.sessionPath()); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to remove broken session file")
	}
}

// ensureDeviceID loads the install identifier, generating one on first use.
// The identifier is a Base58-encoded SHA256 of 32 random bytes.
func (s *FileStore) ensureDeviceID() (string, error) {
	path := filepath.Join(s.baseDir, deviceFile)

	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return string(data), nil
	} else if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate device id: %w", err)
	}
	hash := sha256.Sum256(buf[:])
	deviceID := base58.Encode(hash[:])

	if err := os.WriteFile(path, []byte(deviceID), 0600); err != nil {
		return "", fmt.Errorf("failed to write device id: %w", err)
	}

	log.Debug().Str("deviceID", deviceID).Msg("generated device id")

	return deviceID, nil
}

func checksum(payload []byte) string {
	h := crc64nvme.New()
	_, _ = h.Write(payload)
	return strconv.FormatUint(h.Sum64(), 16)
}
