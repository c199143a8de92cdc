package session

import (
	"context"
	"sync"
	"time"

	"github.com/splax/localpost/internal/domain"
)

const sweepInterval = 5 * time.Minute

// Store holds live sessions keyed by session ID.
type Store interface {
	Put(ctx context.Context, sess domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, bool, error)
	Delete(ctx context.Context, id string) error
	Close()
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	stopCh   chan struct{}
	once     sync.Once
}

// NewMemoryStore returns an in-process store with TTL sweeping. It is the
// default when no Redis address is configured.
func NewMemoryStore() Store {
	st := &memoryStore{
		sessions: make(map[string]domain.Session),
		stopCh:   make(chan struct{}),
	}
	go st.sweepLoop()
	return st
}

func (st *memoryStore) Put(_ context.Context, sess domain.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[sess.ID] = sess
	return nil
}

func (st *memoryStore) Get(_ context.Context, id string) (domain.Session, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	if !ok {
		return domain.Session{}, false, nil
	}
	if sess.Expired(time.Now()) {
		delete(st.sessions, id)
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

func (st *memoryStore) Delete(_ context.Context, id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
	return nil
}

func (st *memoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			st.cleanup(time.Now())
		case <-st.stopCh:
			return
		}
	}
}

func (st *memoryStore) cleanup(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, sess := range st.sessions {
		if sess.Expired(now) {
			delete(st.sessions, id)
		}
	}
}

func (st *memoryStore) Close() {
	st.once.Do(func() {
		close(st.stopCh)
	})
}
