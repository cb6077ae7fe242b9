// Package store persists survey sessions in a key/value store owned by one browser profile.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/survey"
)

// KV is the persistence of one browser profile.
type KV interface {
	// Get returns the value of key. ok is false when the key has never been set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string) error
}

// Store maps (expert, assignment) pairs to session records.
//
// Keys are {prefix}::{expertID}::{assignmentID} for sessions and {prefix}::client_session_id::{expertID} for the
// client session identifier, which outlives assignments.
type Store struct {
	kv     KV
	prefix string
	logger *slog.Logger
}

func New(kv KV, prefix string, logger *slog.Logger) *Store {
	return &Store{kv: kv, prefix: prefix, logger: logger}
}

func (s *Store) SessionKey(expertID, assignmentID string) string {
	return fmt.Sprintf("%s::%s::%s", s.prefix, expertID, assignmentID)
}

func (s *Store) ClientSessionIDKey(expertID string) string {
	return fmt.Sprintf("%s::client_session_id::%s", s.prefix, expertID)
}

// ClientSessionID returns the identifier of this browser for expertID, generating it on first use.
func (s *Store) ClientSessionID(ctx context.Context, expertID string) (string, error) {
	key := s.ClientSessionIDKey(expertID)
	id, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", errors.Wrap(err, "get client session id", slog.String("key", key))
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err = s.kv.Set(ctx, key, id); err != nil {
		return "", errors.Wrap(err, "set client session id", slog.String("key", key))
	}
	return id, nil
}

// LoadSession restores the session of an assignment or returns first-visit defaults.
//
// A corrupt record is logged and treated as absent.
func (s *Store) LoadSession(ctx context.Context, expertID, assignmentID string) (survey.Session, error) {
	clientSessionID, err := s.ClientSessionID(ctx, expertID)
	if err != nil {
		return survey.Session{}, err //nolint:exhaustruct // error path
	}
	key := s.SessionKey(expertID, assignmentID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return survey.Session{}, errors.Wrap(err, "get session", slog.String("key", key)) //nolint:exhaustruct // error path
	}
	if !ok {
		return survey.NewSession(clientSessionID), nil
	}

	session := survey.NewSession(clientSessionID)
	if err = json.Unmarshal([]byte(raw), &session); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "discarding corrupt session record",
			slog.String("key", key), errors.SlogError(err))
		return survey.NewSession(clientSessionID), nil
	}
	if session.Answers == nil {
		session.Answers = survey.Answers{}
	}
	if session.TaskTimeMs == nil {
		session.TaskTimeMs = map[string]int64{}
	}
	if session.ClientSessionID == "" {
		session.ClientSessionID = clientSessionID
	}
	return session, nil
}

// SaveSession writes the full session record.
func (s *Store) SaveSession(ctx context.Context, expertID, assignmentID string, session survey.Session) error {
	key := s.SessionKey(expertID, assignmentID)
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "marshal session", slog.String("key", key))
	}
	if err = s.kv.Set(ctx, key, string(data)); err != nil {
		return errors.Wrap(err, "set session", slog.String("key", key))
	}
	return nil
}

// MemoryKV is an in-process KV.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{mu: sync.Mutex{}, values: map[string]string{}}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
