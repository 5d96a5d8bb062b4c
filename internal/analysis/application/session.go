package application

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"load-analytics/internal/analysis/domain/series"
	"load-analytics/internal/analysis/domain/statistic"
	"load-analytics/internal/observability/metrics"
)

const defaultSessionTTL = 12 * time.Hour

// Session is the per-user analysis state: the current dataset and the
// selected entity with its computed profile.
type Session struct {
	ID        string    `json:"session_id"`
	DatasetID string    `json:"dataset_id,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Entity    string    `json:"entity_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	series  *series.Series
	profile *statistic.Profile
}

// SessionStore holds sessions in memory.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	onExpire func(datasetID string)
	expired  []string
}

// SessionOption configures the store.
type SessionOption func(*SessionStore)

// WithSessionTTL sets how long an idle session survives.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides the store clock.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExpireHook registers a callback for datasets of expired sessions.
// It runs outside the store lock.
func WithExpireHook(fn func(datasetID string)) SessionOption {
	return func(s *SessionStore) {
		s.onExpire = fn
	}
}

// NewSessionStore constructs an empty store.
func NewSessionStore(opts ...SessionOption) *SessionStore {
	store := &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      defaultSessionTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Get returns a copy of the session.
func (s *SessionStore) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.unlock()
	sess, ok := s.lookup(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.snapshot(), nil
}

// Reset binds a session to a freshly uploaded dataset and clears the
// selection. An empty or unknown id starts a new session. The dataset id the
// session held before is returned so the caller can drop it.
func (s *SessionStore) Reset(id, datasetID, filename string) (Session, string) {
	s.mu.Lock()
	defer s.unlock()
	s.prune()

	now := s.now()
	sess, ok := s.lookup(id)
	if !ok {
		sess = &Session{ID: uuid.NewString(), CreatedAt: now}
		s.sessions[sess.ID] = sess
	}
	previous := sess.DatasetID
	sess.DatasetID = datasetID
	sess.Filename = filename
	sess.Entity = ""
	sess.series = nil
	sess.profile = nil
	sess.UpdatedAt = now
	metrics.SetActiveSessions(len(s.sessions))
	return sess.snapshot(), previous
}

// Delete drops a session and returns the dataset id it held.
func (s *SessionStore) Delete(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ""
	}
	delete(s.sessions, id)
	metrics.SetActiveSessions(len(s.sessions))
	return sess.DatasetID
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// cached returns the selection cache when it matches the dataset and entity.
func (s *SessionStore) cached(id, datasetID, entity string) (*series.Series, *statistic.Profile, bool) {
	s.mu.Lock()
	defer s.unlock()
	sess, ok := s.lookup(id)
	if !ok || sess.DatasetID != datasetID || sess.Entity != entity || sess.series == nil {
		return nil, nil, false
	}
	sess.UpdatedAt = s.now()
	return sess.series, sess.profile, true
}

// remember selects an entity and caches its series and profile. A session
// that moved to another dataset in the meantime is left untouched.
func (s *SessionStore) remember(id, datasetID, entity string, ser *series.Series, profile *statistic.Profile) {
	s.mu.Lock()
	defer s.unlock()
	sess, ok := s.lookup(id)
	if !ok || sess.DatasetID != datasetID {
		return
	}
	sess.Entity = entity
	sess.series = ser
	sess.profile = profile
	sess.UpdatedAt = s.now()
}

func (s *SessionStore) lookup(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.now().Sub(sess.UpdatedAt) > s.ttl {
		s.expire(id, sess)
		metrics.SetActiveSessions(len(s.sessions))
		return nil, false
	}
	return sess, true
}

func (s *SessionStore) prune() {
	now := s.now()
	for id, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt) > s.ttl {
			s.expire(id, sess)
		}
	}
}

func (s *SessionStore) expire(id string, sess *Session) {
	delete(s.sessions, id)
	if sess.DatasetID != "" {
		s.expired = append(s.expired, sess.DatasetID)
	}
}

// unlock releases the lock and then reports expired datasets.
func (s *SessionStore) unlock() {
	expired := s.expired
	s.expired = nil
	hook := s.onExpire
	s.mu.Unlock()
	if hook == nil {
		return
	}
	for _, id := range expired {
		hook(id)
	}
}

func (sess *Session) snapshot() Session {
	out := *sess
	out.series = nil
	out.profile = nil
	return out
}
