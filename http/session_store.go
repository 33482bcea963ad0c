package http

import (
	"net/http"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"fraudguard/inference"
)

// SessionStore 表单会话存储. The least recently used session is dropped once
// maxSessions is reached.
type SessionStore struct {
	cookieName string
	sessions   *lru.Cache[string, *inference.Session]
}

// NewSessionStore 创建会话存储
func NewSessionStore(cookieName string, maxSessions int) (*SessionStore, error) {
	cache, err := lru.New[string, *inference.Session](maxSessions)
	if err != nil {
		return nil, err
	}
	return &SessionStore{cookieName: cookieName, sessions: cache}, nil
}

// Get returns the caller's session, starting a new one (and setting the
// cookie) when the cookie is missing or the session was evicted.
func (s *SessionStore) Get(w http.ResponseWriter, r *http.Request) *inference.Session {
	if c, err := r.Cookie(s.cookieName); err == nil {
		if sess, ok := s.sessions.Get(c.Value); ok {
			return sess
		}
	}

	sess := inference.NewSession(uuid.NewString())
	// Add only evicts; a concurrent miss for the same cookie is harmless.
	s.sessions.Add(sess.ID, sess)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// Len 返回活跃会话数
func (s *SessionStore) Len() int {
	return s.sessions.Len()
}
