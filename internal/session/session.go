// Package session tracks signed-in sessions and owns the budget sync handle of
// every user with at least one live session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/yelinaung/sharedbudget/internal/auth"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/service"
)

// DefaultSweepInterval is how often expired sessions are dropped.
const DefaultSweepInterval = time.Minute

// Syncer starts the per-user sync that keeps shared copies current.
type Syncer interface {
	StartSync(ctx context.Context, uid string) (*service.SyncHandle, error)
}

type session struct {
	uid     string
	expires time.Time
}

type userSync struct {
	handle *service.SyncHandle
	refs   int
}

// Manager issues session tokens. The first session of a user starts its sync
// handle and the last one to end stops it.
type Manager struct {
	tokens *auth.JWTManager
	syncer Syncer
	now    func() time.Time

	// base outlives the sign-in request; handles run under it.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]session
	syncs    map[string]*userSync
}

// NewManager creates a Manager. syncer may be nil to run without sync.
func NewManager(tokens *auth.JWTManager, syncer Syncer) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		tokens:   tokens,
		syncer:   syncer,
		now:      time.Now,
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]session),
		syncs:    make(map[string]*userSync),
	}
}

// SignIn opens a session for user and returns its bearer token.
func (m *Manager) SignIn(user *models.User) (string, time.Time, error) {
	sessionID := uuid.NewString()
	token, expires, err := m.tokens.Generate(user, sessionID)
	if err != nil {
		return "", time.Time{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.acquire(user.ID); err != nil {
		return "", time.Time{}, err
	}
	m.sessions[sessionID] = session{uid: user.ID, expires: expires}

	logger.Log.Info().Str("user_hash", logger.HashUserID(user.ID)).Msg("Signed in")
	return token, expires, nil
}

// Authenticate validates token and checks that its session is still open.
func (m *Manager) Authenticate(token string) (auth.Identity, error) {
	claims, err := m.tokens.Validate(token)
	if err != nil {
		return auth.Identity{}, err
	}

	m.mu.Lock()
	s, ok := m.sessions[claims.SessionID()]
	m.mu.Unlock()
	if !ok || s.uid != claims.UserID || !m.now().Before(s.expires) {
		return auth.Identity{}, fmt.Errorf("%w: session ended", models.ErrNotAuthenticated)
	}
	return auth.Identity{UserID: claims.UserID, Email: claims.Email, SessionID: claims.SessionID()}, nil
}

// SignOut ends one session. Ending an unknown session is a no-op.
func (m *Manager) SignOut(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)
	m.release(s.uid)
	logger.Log.Info().Str("user_hash", logger.HashUserID(s.uid)).Msg("Signed out")
}

// SignOutUser ends every session of uid and returns how many there were.
func (m *Manager) SignOutUser(uid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.uid == uid {
			delete(m.sessions, id)
			m.release(uid)
			n++
		}
	}
	return n
}

// Sweep drops the sessions that expired by now and returns how many.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if !now.Before(s.expires) {
			delete(m.sessions, id)
			m.release(s.uid)
			n++
		}
	}
	return n
}

// Active returns the number of open sessions of uid.
func (m *Manager) Active(uid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.uid == uid {
			n++
		}
	}
	return n
}

// Syncing reports whether uid has a running sync handle.
func (m *Manager) Syncing(uid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.syncs[uid]
	return ok
}

// RunSweepLoop calls Sweep every interval until ctx is cancelled.
func (m *Manager) RunSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Log.Debug().Int("expired", n).Msg("Expired sessions removed")
			}
		}
	}
}

// Close ends every session and stops every sync handle.
func (m *Manager) Close() {
	m.mu.Lock()
	syncs := m.syncs
	m.syncs = make(map[string]*userSync)
	m.sessions = make(map[string]session)
	m.mu.Unlock()

	m.cancel()
	for _, s := range syncs {
		s.handle.Stop()
	}
}

// acquire must be called with mu held.
func (m *Manager) acquire(uid string) error {
	if m.syncer == nil {
		return nil
	}
	if s, ok := m.syncs[uid]; ok {
		s.refs++
		return nil
	}
	h, err := m.syncer.StartSync(m.base, uid)
	if err != nil {
		return fmt.Errorf("failed to start budget sync: %w", err)
	}
	m.syncs[uid] = &userSync{handle: h, refs: 1}
	return nil
}

// release must be called with mu held.
func (m *Manager) release(uid string) {
	s, ok := m.syncs[uid]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	delete(m.syncs, uid)
	// Stop waits for a running pass, so do it off the lock.
	go s.handle.Stop()
}
