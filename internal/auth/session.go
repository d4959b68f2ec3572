package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gridmarket-go/internal/models"
	"gridmarket-go/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CookieName is the session cookie. HttpOnly always; Secure per config.
const CookieName = "gm_session"

const sessionContextKey = "gridmarket/session"

// Session is a loaded server-side session. Mutations are not persisted until
// Save.
type Session struct {
	sid  string
	Data models.SessionData
}

func (s *Session) ID() string {
	return s.sid
}

// Authenticated reports whether a wallet has been bound to this session.
func (s *Session) Authenticated() bool {
	return s.UserId() != ""
}

func (s *Session) UserId() string {
	if s == nil {
		return ""
	}
	return s.Data.UserId
}

// Manager persists sessions as rows in the market store and moves them in and
// out of request cookies.
type Manager struct {
	store  store.MarketStore
	ttl    time.Duration
	secure bool
}

func NewManager(st store.MarketStore, ttl time.Duration, secure bool) *Manager {
	return &Manager{store: st, ttl: ttl, secure: secure}
}

// Middleware loads the caller's session, if any, into the request context.
// It never creates one; endpoints that need a session call Ensure.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(CookieName)
		if err == nil && sid != "" {
			rec, err := m.store.GetSession(c.Request.Context(), sid)
			if err == nil {
				sess := &Session{sid: rec.Sid}
				if err := json.Unmarshal([]byte(rec.Data), &sess.Data); err != nil {
					zap.L().Warn("Discarding undecodable session", zap.String("sid", sid), zap.Error(err))
				} else {
					c.Set(sessionContextKey, sess)
				}
			} else if !errors.Is(err, store.ErrNotFound) {
				zap.L().Error("Failed to load session", zap.Error(err))
			}
		}
		c.Next()
	}
}

// Current returns the request's session or nil.
func (m *Manager) Current(c *gin.Context) *Session {
	if v, ok := c.Get(sessionContextKey); ok {
		return v.(*Session)
	}
	return nil
}

// Ensure returns the request's session, creating and persisting a fresh
// anonymous one if necessary.
func (m *Manager) Ensure(c *gin.Context) (*Session, error) {
	if sess := m.Current(c); sess != nil {
		return sess, nil
	}

	sess := &Session{sid: uuid.New().String()}
	if err := m.Save(c.Request.Context(), sess); err != nil {
		return nil, err
	}

	c.Set(sessionContextKey, sess)
	m.setCookie(c, sess.sid)
	return sess, nil
}

// Save persists the session's current data with a refreshed expiry.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	return m.store.PutSession(ctx, models.SessionRecord{
		Sid:       sess.sid,
		Data:      string(data),
		ExpiresAt: time.Now().UTC().Add(m.ttl),
	})
}

// Regenerate issues the session a fresh id, invalidating the old one, and
// re-points the cookie. Called before any identity is written so a fixated
// pre-auth session id never gains post-auth privilege.
func (m *Manager) Regenerate(c *gin.Context, sess *Session) error {
	oldSid := sess.sid
	sess.sid = uuid.New().String()

	if err := m.Save(c.Request.Context(), sess); err != nil {
		sess.sid = oldSid
		return err
	}
	if err := m.store.DeleteSession(c.Request.Context(), oldSid); err != nil {
		zap.L().Warn("Failed to delete superseded session", zap.String("sid", oldSid), zap.Error(err))
	}

	m.setCookie(c, sess.sid)
	return nil
}

// Destroy removes the session server-side and clears the cookie.
func (m *Manager) Destroy(c *gin.Context, sess *Session) error {
	if err := m.store.DeleteSession(c.Request.Context(), sess.sid); err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", m.secure, true)
	return nil
}

func (m *Manager) setCookie(c *gin.Context, sid string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, sid, int(m.ttl.Seconds()), "/", "", m.secure, true)
}

// RunCleanup sweeps expired sessions and stale challenges until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration, challenges *ChallengeStore) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.store.DeleteExpiredSessions(ctx)
			if err != nil {
				zap.L().Error("Session cleanup failed", zap.Error(err))
				continue
			}
			stale := challenges.Sweep(m.ttl)
			if removed > 0 || stale > 0 {
				zap.L().Info("Session cleanup completed",
					zap.Int64("sessions_removed", removed),
					zap.Int("challenges_removed", stale))
			}
		}
	}
}
