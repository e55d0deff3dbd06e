package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/namesmith/authcore/internal"
)

// Memory is the process-local Store implementation. It backs the degraded
// mode used when the shared store is unreachable: sessions do not survive
// process restart and are invisible to other replicas.
type Memory struct {
	mu       sync.RWMutex
	config   Config
	sessions map[string]*Session
	owners   map[string]map[string]struct{}
}

// NewMemory creates an in-process session store.
func NewMemory(cfg Config) *Memory {
	cfg.normalize()
	return &Memory{
		config:   cfg,
		sessions: make(map[string]*Session),
		owners:   make(map[string]map[string]struct{}),
	}
}

// Create allocates a session in process memory, evicting the owner's
// oldest session when over capacity.
func (m *Memory) Create(ctx context.Context, userID, role, plan string, origin Origin) (*Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	csrfSecret, err := internal.NewSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		SessionID:    sid.String(),
		UserID:       userID,
		Role:         role,
		Plan:         plan,
		CSRFSecret:   csrfSecret,
		Origin:       origin,
		Active:       true,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		ExpiresAt:    now.Add(m.config.Lifetime).Unix(),
	}

	m.mu.Lock()
	m.pruneExpiredLocked(now)
	evicted := m.evictLocked(userID)

	m.sessions[sess.SessionID] = sess
	if m.owners[userID] == nil {
		m.owners[userID] = make(map[string]struct{})
	}
	m.owners[userID][sess.SessionID] = struct{}{}
	m.mu.Unlock()

	if evicted > 0 && m.config.OnEvict != nil {
		m.config.OnEvict(userID, evicted)
	}
	return cloneSession(sess), nil
}

// Get returns the session or ErrSessionNotFound if absent or expired.
func (m *Memory) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok || !sess.Active || sess.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// Touch updates last-activity. The stored expiry is never moved.
func (m *Memory) Touch(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok || !sess.Active || sess.Expired(time.Now()) {
		return ErrSessionNotFound
	}
	sess.LastActivity = time.Now().Unix()
	return nil
}

// Revoke removes the session; absent sessions are not an error.
func (m *Memory) Revoke(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeLocked(sessionID), nil
}

// RevokeAll removes every session owned by userID except the excluded one.
func (m *Memory) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	revoked := 0
	for sid := range m.owners[userID] {
		if sid == exceptSessionID {
			continue
		}
		if m.revokeLocked(sid) {
			revoked++
		}
	}
	return revoked, nil
}

// ListForOwner returns the owner's live sessions.
func (m *Memory) ListForOwner(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	sessions := make([]*Session, 0, len(m.owners[userID]))
	for sid := range m.owners[userID] {
		sess, ok := m.sessions[sid]
		if !ok || !sess.Active || sess.Expired(now) {
			continue
		}
		sessions = append(sessions, cloneSession(sess))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt < sessions[j].CreatedAt
	})
	return sessions, nil
}

// CountForOwner returns the number of live sessions for the owner.
func (m *Memory) CountForOwner(ctx context.Context, userID string) (int, error) {
	sessions, err := m.ListForOwner(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

func (m *Memory) revokeLocked(sessionID string) bool {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	delete(m.sessions, sessionID)
	if owned, ok := m.owners[sess.UserID]; ok {
		delete(owned, sessionID)
		if len(owned) == 0 {
			delete(m.owners, sess.UserID)
		}
	}
	return true
}

func (m *Memory) evictLocked(userID string) int {
	evicted := 0
	for len(m.owners[userID]) >= m.config.MaxSessionsPerUser {
		oldestID := ""
		oldestAt := int64(0)
		for sid := range m.owners[userID] {
			sess := m.sessions[sid]
			if sess == nil {
				delete(m.owners[userID], sid)
				continue
			}
			if oldestID == "" || sess.CreatedAt < oldestAt {
				oldestID = sid
				oldestAt = sess.CreatedAt
			}
		}
		if oldestID == "" {
			break
		}
		if m.revokeLocked(oldestID) {
			evicted++
		}
	}
	return evicted
}

func (m *Memory) pruneExpiredLocked(now time.Time) {
	for sid, sess := range m.sessions {
		if sess.Expired(now) {
			m.revokeLocked(sid)
		}
	}
}

func cloneSession(s *Session) *Session {
	out := *s
	if s.Origin.Tags != nil {
		out.Origin.Tags = make(map[string]string, len(s.Origin.Tags))
		for k, v := range s.Origin.Tags {
			out.Origin.Tags[k] = v
		}
	}
	return &out
}
