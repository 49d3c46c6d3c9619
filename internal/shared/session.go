package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionState reports where a session sits in the login lifecycle.
type SessionState int

const (
	// StateAnonymous covers missing, unknown and expired sessions.
	StateAnonymous SessionState = iota
	// StateAuthenticated is a session populated by a successful login.
	StateAuthenticated
	// StateLoggedOut is terminal; the session is deleted on commit.
	StateLoggedOut
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "anonymous"
	}
}

// Identity is the authenticated user snapshot stored in a session.
// Permissions are captured at login and are not re-read per request.
type Identity struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	RoleID      int64    `json:"role_id"`
	RoleName    string   `json:"role_name"`
	Permissions []string `json:"permissions"`
}

// SessionOptions configures a SessionManager.
type SessionOptions struct {
	// CookieName defaults to "ks_session".
	CookieName string
	// Secret keys the HMAC that turns tokens into storage keys.
	Secret string
	// TTL defaults to 24h. Every commit of a changed session resets it.
	TTL time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// SessionManager loads and stores sessions in Redis. Tokens travel in a
// cookie or a bearer header; Redis only ever sees their HMAC.
type SessionManager struct {
	store  redis.UniversalClient
	opts   SessionOptions
	secret []byte
}

// Session is one request's view of a stored session. Changes are buffered
// until Commit.
type Session struct {
	ID         string
	values     map[string]string
	identity   *Identity
	perms      map[string]struct{}
	manager    *SessionManager
	previousID string
	fromCookie bool
	isNew      bool
	dirty      bool
	destroyed  bool
}

// storedSession is the JSON document kept under a session's storage key.
type storedSession struct {
	Values   map[string]string `json:"values"`
	Identity *Identity         `json:"identity,omitempty"`
}

// NewSessionManager returns a manager over store. store may be nil for
// callers that never Load or Commit.
func NewSessionManager(store redis.UniversalClient, opts SessionOptions) *SessionManager {
	if opts.CookieName == "" {
		opts.CookieName = "ks_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &SessionManager{store: store, opts: opts, secret: []byte(opts.Secret)}
}

// Load resolves the session for r from the session cookie or an
// `Authorization: Bearer` header. The cookie is tried first; when its session
// is gone the bearer token is tried next. Unknown or expired tokens yield a
// fresh anonymous session rather than an error.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	for _, c := range sm.tokensFromRequest(r) {
		raw, err := sm.store.Get(ctx, sm.StorageKey(c.token)).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return nil, fmt.Errorf("session: read: %w", err)
		}
		var stored storedSession
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("session: decode: %w", err)
		}
		if stored.Values == nil {
			stored.Values = make(map[string]string)
		}
		sess := &Session{ID: c.token, values: stored.Values, manager: sm, fromCookie: c.fromCookie}
		sess.setIdentity(stored.Identity)
		return sess, nil
	}
	return sm.newSession(), nil
}

// Commit writes session changes to Redis and the response cookie. A rotated
// token's old key is dropped in the same MULTI as the new key is written.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.destroyed {
		keys := []string{sm.StorageKey(sess.ID)}
		if sess.previousID != "" {
			keys = append(keys, sm.StorageKey(sess.previousID))
		}
		if err := sm.store.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("session: delete: %w", err)
		}
		sess.previousID = ""
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}
	// Untouched sessions keep their stored expiry; anonymous ones are never persisted.
	if !sess.dirty {
		return nil
	}

	data, err := json.Marshal(storedSession{Values: sess.values, Identity: sess.identity})
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	_, err = sm.store.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if sess.previousID != "" {
			pipe.Del(ctx, sm.StorageKey(sess.previousID))
		}
		pipe.Set(ctx, sm.StorageKey(sess.ID), data, sm.opts.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	sess.previousID = ""
	sess.dirty = false
	sess.isNew = false
	http.SetCookie(w, sm.cookie(sess.ID, int(sm.opts.TTL/time.Second)))
	return nil
}

// cookie builds the session cookie. maxAge < 0 deletes it.
func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     sm.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge > 0 {
		c.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	return c
}

// Destroy logs the session out. Commit removes it from Redis and expires
// the cookie.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
	sess.identity = nil
	sess.perms = nil
}

// TTL is how long a committed session lives without further changes.
func (sm *SessionManager) TTL() time.Duration {
	return sm.opts.TTL
}

// CookieName is the name of the session cookie.
func (sm *SessionManager) CookieName() string {
	return sm.opts.CookieName
}

// Set records value under key; it is persisted on commit.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get returns the value under key, or "" when unset.
func (s *Session) Get(key string) string {
	if s == nil || s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete drops key from the session.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// Authenticate stores the identity snapshot and rotates the session token so
// a pre-login token can never become an authenticated one.
func (s *Session) Authenticate(identity Identity) {
	if s.manager != nil && !s.isNew {
		s.previousID = s.ID
	}
	if s.manager != nil {
		s.ID = s.manager.generateSessionID()
	}
	perms := make([]string, len(identity.Permissions))
	copy(perms, identity.Permissions)
	identity.Permissions = perms
	s.setIdentity(&identity)
	delete(s.values, CSRFSessionKey)
	s.destroyed = false
	s.dirty = true
}

// Identity returns the authenticated identity or nil.
func (s *Session) Identity() *Identity {
	if s == nil || s.destroyed || s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// UserID returns the authenticated user id or zero.
func (s *Session) UserID() int64 {
	if id := s.Identity(); id != nil {
		return id.UserID
	}
	return 0
}

// State reports the lifecycle state of the session.
func (s *Session) State() SessionState {
	switch {
	case s == nil:
		return StateAnonymous
	case s.destroyed:
		return StateLoggedOut
	case s.identity != nil:
		return StateAuthenticated
	default:
		return StateAnonymous
	}
}

// IsAuthenticated reports whether the session belongs to a logged-in user.
func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// HasPermission reports whether the login-time permission snapshot contains perm.
func (s *Session) HasPermission(perm string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	_, ok := s.perms[perm]
	return ok
}

// FromCookie reports whether the token arrived in the session cookie.
func (s *Session) FromCookie() bool {
	return s != nil && s.fromCookie
}

func (s *Session) setIdentity(identity *Identity) {
	s.identity = identity
	s.perms = nil
	if identity == nil {
		return
	}
	s.perms = make(map[string]struct{}, len(identity.Permissions))
	for _, p := range identity.Permissions {
		s.perms[p] = struct{}{}
	}
}

type requestToken struct {
	token      string
	fromCookie bool
}

func (sm *SessionManager) tokensFromRequest(r *http.Request) []requestToken {
	var out []requestToken
	if cookie, err := r.Cookie(sm.opts.CookieName); err == nil && cookie.Value != "" {
		out = append(out, requestToken{token: cookie.Value, fromCookie: true})
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if token := strings.TrimSpace(auth[7:]); token != "" {
			out = append(out, requestToken{token: token})
		}
	}
	return out
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
	}
}

// StorageKey returns the Redis key for token. Keys hold an HMAC of the token
// so the store never contains usable bearer credentials.
func (sm *SessionManager) StorageKey(token string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(token))
	return "session:" + hex.EncodeToString(mac.Sum(nil))
}

// generateSessionID returns 256 random bits, URL-safe encoded.
func (sm *SessionManager) generateSessionID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
