package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type contextKey struct{}

// Manager binds sessions to requests through a cookie.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
	logger     *zap.Logger
}

type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

func NewManager(store Store, opts Options, logger *zap.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "storefront_sid"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Manager{
		store:      store,
		cookieName: opts.CookieName,
		ttl:        opts.TTL,
		secure:     opts.Secure,
		logger:     logger,
	}
}

func (m *Manager) Store() Store {
	return m.store
}

// Middleware loads the session before the handler runs and saves it afterwards
// when the handler changed it.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.load(r)
		if err != nil {
			m.logger.Error("Failed to load session", zap.Error(err))
		}
		if sess == nil {
			if sess, err = m.fresh(); err != nil {
				m.logger.Error("Failed to create session", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}

		// The cookie must be on the response before the handler writes a body.
		if sess.isNew {
			m.setCookie(w, sess.ID)
		}

		ctx := context.WithValue(r.Context(), contextKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))

		if sess.dirty && sess.ID != "" {
			if err := m.save(r.Context(), sess); err != nil {
				m.logger.Error("Failed to save session", zap.Error(err), zap.String("path", r.URL.Path))
			}
		}
	})
}

func (m *Manager) load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	data, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	sess.ID = cookie.Value
	return sess, nil
}

func (m *Manager) fresh() (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	return newSession(id), nil
}

func (m *Manager) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Save(ctx, sess.ID, data, m.ttl); err != nil {
		return err
	}
	sess.dirty = false
	sess.isNew = false
	return nil
}

// Regenerate moves the session to a new id, keeping its contents. Call it on
// login so a pre-login cookie cannot be reused.
func (m *Manager) Regenerate(w http.ResponseWriter, r *http.Request) error {
	sess := FromContext(r.Context())
	if sess == nil {
		return errors.New("no session in context")
	}

	id, err := newID()
	if err != nil {
		return err
	}

	if !sess.isNew {
		if err := m.store.Delete(r.Context(), sess.ID); err != nil {
			return err
		}
	}

	sess.ID = id
	sess.dirty = true
	m.setCookie(w, id)
	return nil
}

// Destroy removes the session from the store and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	sess := FromContext(r.Context())
	if sess != nil {
		if err := m.store.Delete(r.Context(), sess.ID); err != nil {
			return err
		}
		sess.ID = ""
		sess.dirty = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromContext returns the request session, or nil outside the middleware.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}

// WithSession attaches sess to ctx; used by tests and background callers.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// New returns an unsaved session with a fresh id.
func New() (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	return newSession(id), nil
}

func newID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
