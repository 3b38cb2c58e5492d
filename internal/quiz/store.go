package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

var ErrSessionNotFound = errors.New("quiz session not found")

// Store keeps sessions in a cache under "session:<id>" plus a
// "user:<username>" pointer to each user's current session.
type Store struct {
	cache cache.Store
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is dropped from Store.locks once nobody holds or waits on it,
// so sessions that expire in the cache leave nothing behind.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore(c cache.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = cache.SessionCacheConfig.TTL
	}
	return &Store{cache: c, ttl: ttl, locks: make(map[string]*sessionLock)}
}

func sessionKey(id string) string    { return "session:" + id }
func userKey(username string) string { return "user:" + username }

// Lock serializes read-modify-write cycles on one session within this
// process. The returned func releases it.
func (st *Store) Lock(id string) func() {
	st.mu.Lock()
	l, ok := st.locks[id]
	if !ok {
		l = &sessionLock{}
		st.locks[id] = l
	}
	l.refs++
	st.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		st.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(st.locks, id)
		}
		st.mu.Unlock()
	}
}

func (st *Store) Get(ctx context.Context, id string) (*models.QuizSession, error) {
	var s models.QuizSession
	if err := st.cache.Get(ctx, sessionKey(id), &s); err != nil {
		if errors.Is(err, cache.ErrCacheNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load quiz session: %w", err)
	}
	return &s, nil
}

// Current returns the session the user is working on.
func (st *Store) Current(ctx context.Context, username string) (*models.QuizSession, error) {
	id, err := st.cache.GetString(ctx, userKey(username))
	if err != nil {
		if errors.Is(err, cache.ErrCacheNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load current session: %w", err)
	}
	return st.Get(ctx, id)
}

// Save writes the session and makes it the owner's current one.
func (st *Store) Save(ctx context.Context, s *models.QuizSession) error {
	if err := st.cache.Set(ctx, sessionKey(s.ID), s, st.ttl); err != nil {
		return fmt.Errorf("failed to save quiz session: %w", err)
	}
	if err := st.cache.SetString(ctx, userKey(s.Owner), s.ID, st.ttl); err != nil {
		return fmt.Errorf("failed to save current session pointer: %w", err)
	}
	return nil
}

func (st *Store) Delete(ctx context.Context, s *models.QuizSession) error {
	keys := []string{sessionKey(s.ID)}
	if current, err := st.cache.GetString(ctx, userKey(s.Owner)); err == nil && current == s.ID {
		keys = append(keys, userKey(s.Owner))
	}
	if err := st.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to delete quiz session: %w", err)
	}
	return nil
}

// DeleteForUser drops the user's current session, if any.
func (st *Store) DeleteForUser(ctx context.Context, username string) error {
	s, err := st.Current(ctx, username)
	if errors.Is(err, ErrSessionNotFound) {
		return st.cache.Delete(ctx, userKey(username))
	}
	if err != nil {
		return err
	}
	return st.Delete(ctx, s)
}
