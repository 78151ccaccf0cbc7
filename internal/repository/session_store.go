package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/gofrs/flock"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// SessionSchemaVersion is written into every session file.
	SessionSchemaVersion = "1"
	// SessionFilePermissions applies to session and pointer files.
	SessionFilePermissions = 0o600
	// SessionDirPermissions applies to the session directory.
	SessionDirPermissions = 0o700
	// LockTimeout bounds the wait for a session lock.
	LockTimeout = 30 * time.Second
	// LockRetryInterval is the polling interval while a lock is held elsewhere.
	LockRetryInterval = 100 * time.Millisecond
	// DefaultSessionDir is the session directory inside the git directory.
	DefaultSessionDir = "mlserver/releases"

	latestPointer = "latest"
)

// ErrSessionNotFound is returned when no session file exists.
var ErrSessionNotFound = errors.New("release session not found")

// SessionStore persists release sessions.
type SessionStore interface {
	Save(ctx context.Context, session *domain.ReleaseSession) error
	Load(ctx context.Context, sessionID string) (*domain.ReleaseSession, error)
	LoadLatest(ctx context.Context) (*domain.ReleaseSession, error)
	Delete(ctx context.Context, sessionID string) error
}

type sessionEnvelope struct {
	Schema   string                 `json:"schema"`
	Checksum string                 `json:"checksum"`
	SavedAt  time.Time              `json:"saved_at"`
	Session  *domain.ReleaseSession `json:"session"`
}

type fileSessionStore struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// SessionDir resolves where the release sessions of the repository containing
// projectPath are kept. Relative directories are taken inside the git
// directory so session and lock files never appear in the working tree.
func SessionDir(projectPath, dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	gitDir, err := GitDir(projectPath)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = DefaultSessionDir
	}
	return filepath.Join(gitDir, dir), nil
}

// NewSessionStore stores sessions as checksummed JSON files under dir.
// Lock files are taken on the host filesystem next to the session files.
// Use SessionDir to resolve dir for a repository.
func NewSessionStore(fs afero.Fs, dir string, logger *zap.Logger) SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileSessionStore{fs: fs, dir: dir, logger: logger}
}

func (s *fileSessionStore) sessionPath(id string) string {
	return filepath.Join(s.dir, "session-"+id+".json")
}

func (s *fileSessionStore) lockPath(id string) string {
	return filepath.Join(s.dir, ".session-"+id+".lock")
}

// withLock runs fn while holding the session lock. Shared locks are used for reads.
func (s *fileSessionStore) withLock(ctx context.Context, id string, shared bool, fn func() error) error {
	if err := os.MkdirAll(s.dir, SessionDirPermissions); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock := flock.New(s.lockPath(id))
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	try := lock.TryLock
	if shared {
		try = lock.TryRLock
	}
	err := retry.Do(lockCtx, retry.NewConstant(LockRetryInterval), func(_ context.Context) error {
		locked, err := try()
		if err != nil {
			return err
		}
		if !locked {
			return retry.RetryableError(fmt.Errorf("session %s is locked", id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", id, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release session lock", zap.String("session", id), zap.Error(err))
		}
	}()
	return fn()
}

func checksum(session *domain.ReleaseSession) (string, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Save writes the session atomically and points latest at it.
func (s *fileSessionStore) Save(ctx context.Context, session *domain.ReleaseSession) error {
	if err := s.fs.MkdirAll(s.dir, SessionDirPermissions); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return s.withLock(ctx, session.SessionID, false, func() error {
		sum, err := checksum(session)
		if err != nil {
			return fmt.Errorf("failed to checksum session: %w", err)
		}
		data, err := json.MarshalIndent(sessionEnvelope{
			Schema:   SessionSchemaVersion,
			Checksum: sum,
			SavedAt:  time.Now().UTC(),
			Session:  session,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		if err := s.writeAtomic(s.sessionPath(session.SessionID), data); err != nil {
			return err
		}
		return s.writeAtomic(filepath.Join(s.dir, latestPointer), []byte(session.SessionID))
	})
}

func (s *fileSessionStore) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, SessionFilePermissions); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		if rmErr := s.fs.Remove(tmp); rmErr != nil {
			s.logger.Warn("failed to remove temp file", zap.String("path", tmp), zap.Error(rmErr))
		}
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Load reads a session and verifies its schema and checksum.
func (s *fileSessionStore) Load(ctx context.Context, sessionID string) (*domain.ReleaseSession, error) {
	var session *domain.ReleaseSession
	err := s.withLock(ctx, sessionID, true, func() error {
		data, err := afero.ReadFile(s.fs, s.sessionPath(sessionID))
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		if err != nil {
			return fmt.Errorf("failed to read session %s: %w", sessionID, err)
		}
		var env sessionEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("failed to decode session %s: %w", sessionID, err)
		}
		if env.Schema != SessionSchemaVersion {
			return fmt.Errorf("session %s has schema %q, expected %q", sessionID, env.Schema, SessionSchemaVersion)
		}
		if env.Session == nil {
			return fmt.Errorf("session %s is empty", sessionID)
		}
		sum, err := checksum(env.Session)
		if err != nil {
			return fmt.Errorf("failed to checksum session %s: %w", sessionID, err)
		}
		if sum != env.Checksum {
			return fmt.Errorf("session %s checksum mismatch", sessionID)
		}
		session = env.Session
		return nil
	})
	return session, err
}

// LoadLatest loads the most recently saved session.
func (s *fileSessionStore) LoadLatest(ctx context.Context) (*domain.ReleaseSession, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, latestPointer))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest session pointer: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return nil, ErrSessionNotFound
	}
	return s.Load(ctx, id)
}

// Delete removes a session file.
func (s *fileSessionStore) Delete(ctx context.Context, sessionID string) error {
	err := s.withLock(ctx, sessionID, false, func() error {
		if err := s.fs.Remove(s.sessionPath(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := os.Remove(s.lockPath(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove session lock file", zap.String("session", sessionID), zap.Error(err))
	}
	return nil
}
