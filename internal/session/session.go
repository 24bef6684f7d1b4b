// Package session tracks work sessions for the CLI. Sessions live in a
// JSON registry under the state dir, with an active-session marker file
// and a per-session analysis journal. A file lock guards the registry
// against concurrent CLI invocations.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/logging"
)

var tracer = otel.Tracer("devmind/session")

var (
	// ErrNotFound indicates the session ID is not in the registry.
	ErrNotFound = errors.New("session not found")
	// ErrNoActiveSession indicates no session is currently active.
	ErrNoActiveSession = errors.New("no active session")
	// ErrInvalidStateDir indicates a missing state directory setting.
	ErrInvalidStateDir = errors.New("session state dir not configured")
)

const lockRetryDelay = 50 * time.Millisecond

// Session is one registry entry.
type Session struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Tags      []string          `json:"tags"`
	CreatedAt time.Time         `json:"created_at"`
	LastUsed  time.Time         `json:"last_used"`
	Metadata  map[string]string `json:"metadata"`
}

type registry struct {
	Sessions []Session `json:"sessions"`
}

// Manager owns the session registry and the active-session marker.
type Manager struct {
	dir    string
	lock   *flock.Flock
	logger *logging.Logger
}

// NewManager prepares the state directory and the registry lock.
func NewManager(cfg config.SessionConfig, logger *logging.Logger) (*Manager, error) {
	if cfg.StateDir == "" {
		return nil, ErrInvalidStateDir
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session state dir: %w", err)
	}
	return &Manager{
		dir:    cfg.StateDir,
		lock:   flock.New(filepath.Join(cfg.StateDir, ".lock")),
		logger: logger,
	}, nil
}

func (m *Manager) registryPath() string { return filepath.Join(m.dir, "sessions.json") }
func (m *Manager) activePath() string   { return filepath.Join(m.dir, ".active") }

// withLock runs fn holding the registry file lock, retrying until the
// context is cancelled.
func (m *Manager) withLock(ctx context.Context, fn func() error) error {
	locked, err := m.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquiring session lock: %w", err)
	}
	if !locked {
		return errors.New("session lock unavailable")
	}
	defer m.lock.Unlock()
	return fn()
}

func (m *Manager) readRegistry() (*registry, error) {
	data, err := os.ReadFile(m.registryPath())
	if errors.Is(err, os.ErrNotExist) {
		return &registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session registry: %w", err)
	}
	var reg registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing session registry: %w", err)
	}
	return &reg, nil
}

func (m *Manager) writeRegistry(reg *registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session registry: %w", err)
	}
	if err := os.WriteFile(m.registryPath(), data, 0o600); err != nil {
		return fmt.Errorf("writing session registry: %w", err)
	}
	return nil
}

// Create registers a new session and makes it active. An empty name
// defaults to a timestamped one.
func (m *Manager) Create(ctx context.Context, name string, tags []string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "session.Create")
	defer span.End()

	now := time.Now().UTC()
	if name == "" {
		name = "session-" + now.Format("20060102-150405")
	}
	if tags == nil {
		tags = []string{}
	}
	sess := Session{
		ID:        uuid.NewString()[:8],
		Name:      name,
		Tags:      tags,
		CreatedAt: now,
		LastUsed:  now,
		Metadata:  map[string]string{},
	}

	err := m.withLock(ctx, func() error {
		reg, err := m.readRegistry()
		if err != nil {
			return err
		}
		reg.Sessions = append(reg.Sessions, sess)
		if err := m.writeRegistry(reg); err != nil {
			return err
		}
		return m.writeActive(sess.ID)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info(ctx, "session created",
		zap.String("session_id", sess.ID),
		zap.String("name", sess.Name),
	)
	return &sess, nil
}

// List returns every registered session.
func (m *Manager) List(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := m.withLock(ctx, func() error {
		reg, err := m.readRegistry()
		if err != nil {
			return err
		}
		sessions = reg.Sessions
		return nil
	})
	return sessions, err
}

// Get looks up one session by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	var found *Session
	err := m.withLock(ctx, func() error {
		reg, err := m.readRegistry()
		if err != nil {
			return err
		}
		for i := range reg.Sessions {
			if reg.Sessions[i].ID == id {
				found = &reg.Sessions[i]
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Use marks a session active and bumps its last-used timestamp.
func (m *Manager) Use(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "session.Use")
	defer span.End()

	return m.withLock(ctx, func() error {
		reg, err := m.readRegistry()
		if err != nil {
			return err
		}
		for i := range reg.Sessions {
			if reg.Sessions[i].ID == id {
				reg.Sessions[i].LastUsed = time.Now().UTC()
				if err := m.writeRegistry(reg); err != nil {
					return err
				}
				return m.writeActive(id)
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	})
}

// Active returns the currently active session.
func (m *Manager) Active(ctx context.Context) (*Session, error) {
	var active *Session
	err := m.withLock(ctx, func() error {
		data, err := os.ReadFile(m.activePath())
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoActiveSession
		}
		if err != nil {
			return fmt.Errorf("reading active marker: %w", err)
		}
		id := string(data)
		reg, err := m.readRegistry()
		if err != nil {
			return err
		}
		for i := range reg.Sessions {
			if reg.Sessions[i].ID == id {
				active = &reg.Sessions[i]
				return nil
			}
		}
		return ErrNoActiveSession
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// AddTag attaches a tag to a session. Adding an existing tag is a
// no-op.
func (m *Manager) AddTag(ctx context.Context, id, tag string) error {
	return m.updateSession(ctx, id, func(s *Session) {
		for _, t := range s.Tags {
			if t == tag {
				return
			}
		}
		s.Tags = append(s.Tags, tag)
	})
}

// RemoveTag detaches a tag from a session.
func (m *Manager) RemoveTag(ctx context.Context, id, tag string) error {
	return m.updateSession(ctx, id, func(s *Session) {
		kept := s.Tags[:0]
		for _, t := range s.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		s.Tags = kept
	})
}

// SearchByTag returns the sessions carrying the given tag.
func (m *Manager) SearchByTag(ctx context.Context, tag string) ([]Session, error) {
	sessions, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var matched []Session
	for _, s := range sessions {
		for _, t := range s.Tags {
			if t == tag {
				matched = append(matched, s)
				break
			}
		}
	}
	return matched, nil
}

// SetMetadata stores one key/value pair on a session.
func (m *Manager) SetMetadata(ctx context.Context, id, key, value string) error {
	return m.updateSession(ctx, id, func(s *Session) {
		if s.Metadata == nil {
			s.Metadata = map[string]string{}
		}
		s.Metadata[key] = value
	})
}

// Delete removes a session. If it was active, the marker moves to the
// first remaining session or goes away.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "session.Delete")
	defer span.End()

	return m.withLock(ctx, func() error {
		reg, err := m.readRegistry()
		if err != nil {
			return err
		}
		kept := reg.Sessions[:0]
		removed := false
		for _, s := range reg.Sessions {
			if s.ID == id {
				removed = true
				continue
			}
			kept = append(kept, s)
		}
		if !removed {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		reg.Sessions = kept
		if err := m.writeRegistry(reg); err != nil {
			return err
		}

		if data, err := os.ReadFile(m.activePath()); err == nil && string(data) == id {
			if len(reg.Sessions) > 0 {
				return m.writeActive(reg.Sessions[0].ID)
			}
			if err := os.Remove(m.activePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("removing active marker: %w", err)
			}
		}
		return nil
	})
}

// Journal opens the analysis journal for an existing session.
func (m *Manager) Journal(ctx context.Context, id string) (*Journal, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return OpenJournal(m.dir, id)
}

func (m *Manager) updateSession(ctx context.Context, id string, mutate func(*Session)) error {
	return m.withLock(ctx, func() error {
		reg, err := m.readRegistry()
		if err != nil {
			return err
		}
		for i := range reg.Sessions {
			if reg.Sessions[i].ID == id {
				mutate(&reg.Sessions[i])
				return m.writeRegistry(reg)
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	})
}

func (m *Manager) writeActive(id string) error {
	if err := os.WriteFile(m.activePath(), []byte(id), 0o600); err != nil {
		return fmt.Errorf("writing active marker: %w", err)
	}
	return nil
}
