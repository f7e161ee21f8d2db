// Package session stores live PR conversation state in redis under a
// sliding idle expiry. Sessions self-destruct when untouched for the
// configured TTL; every read refreshes the clock.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/services"
)

// keyPrefix namespaces session keys in redis.
const keyPrefix = "chat:session:"

// updateRetries bounds optimistic retries when concurrent writers touch
// the same session.
const updateRetries = 5

// Store keeps conversation sessions in redis.
type Store struct {
	rdb *redis.Client
	cfg *config.SessionsConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewStore creates a session store. A nil cfg uses the defaults.
func NewStore(rdb *redis.Client, cfg *config.SessionsConfig) *Store {
	if cfg == nil {
		cfg = config.DefaultSessionsConfig()
	}
	return &Store{rdb: rdb, cfg: cfg, now: time.Now}
}

func sessionKey(id string) string { return keyPrefix + id }

// Create opens a session for a workflow conversation and stores it under
// the configured TTL.
func (s *Store) Create(ctx context.Context, workflowID, user string, contextSnapshot map[string]string) (*models.ChatSession, error) {
	if workflowID == "" {
		return nil, services.NewValidationError("workflow_id", "workflow_id is required")
	}

	now := s.now().UTC()
	session := &models.ChatSession{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		User:         user,
		Context:      contextSnapshot,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.write(ctx, session); err != nil {
		return nil, err
	}

	slog.Debug("Chat session created",
		"session_id", session.ID, "workflow_id", workflowID, "user", user)
	return session, nil
}

// Get returns a session and refreshes its idle expiry in one atomic read.
// The returned record carries LastActivity bumped to now; the bump is
// written back best-effort since the GETEX already extended the TTL.
func (s *Store) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	data, err := s.rdb.GetEx(ctx, sessionKey(id), s.cfg.TTL).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var session models.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}

	session.LastActivity = s.now().UTC()
	if err := s.write(ctx, &session); err != nil {
		slog.Warn("Failed to persist session activity bump", "session_id", id, "error", err)
	}
	return &session, nil
}

// Update applies mutate to a session and writes it back with a fresh TTL.
// The read-modify-write runs under optimistic locking so concurrent
// updates to one session never lose messages. History is bounded to the
// newest MaxMessages after mutation.
func (s *Store) Update(ctx context.Context, id string, mutate func(*models.ChatSession)) (*models.ChatSession, error) {
	key := sessionKey(id)
	var updated *models.ChatSession

	apply := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("session %s: %w", id, services.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load session %s: %w", id, err)
		}
		var session models.ChatSession
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("corrupt session %s: %w", id, err)
		}

		mutate(&session)
		session.LastActivity = s.now().UTC()
		if max := s.cfg.MaxMessages; max > 0 && len(session.Messages) > max {
			session.Messages = append([]models.ChatMessage(nil), session.Messages[len(session.Messages)-max:]...)
		}

		payload, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("failed to marshal session %s: %w", id, err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.cfg.TTL)
			return nil
		}); err != nil {
			return err
		}
		updated = &session
		return nil
	}

	for attempt := 0; attempt < updateRetries; attempt++ {
		err := s.rdb.Watch(ctx, apply, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update of session %s kept losing to concurrent writers", id)
}

// AppendMessage adds one turn to the session history.
func (s *Store) AppendMessage(ctx context.Context, id string, role models.ChatRole, content string) (*models.ChatSession, error) {
	if strings.TrimSpace(content) == "" {
		return nil, services.NewValidationError("content", "content is required")
	}
	if max := s.cfg.MaxContentLength; max > 0 && len(content) > max {
		return nil, services.NewValidationError("content", fmt.Sprintf("content exceeds %d bytes", max))
	}

	return s.Update(ctx, id, func(session *models.ChatSession) {
		session.Messages = append(session.Messages, models.ChatMessage{
			Role:      role,
			Content:   content,
			Timestamp: s.now().UTC(),
		})
	})
}

// Delete removes a session immediately.
func (s *Store) Delete(ctx context.Context, id string) error {
	removed, err := s.rdb.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if removed == 0 {
		return fmt.Errorf("session %s: %w", id, services.ErrNotFound)
	}
	return nil
}

// Keys lists stored session IDs matching pattern (redis glob, "" means
// all). Callers filter by session fields themselves; the store only
// enumerates.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, keyPrefix))
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

func (s *Store) write(ctx context.Context, session *models.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}
	if err := s.rdb.Set(ctx, sessionKey(session.ID), data, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", session.ID, err)
	}
	return nil
}
