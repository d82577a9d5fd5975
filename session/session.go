// Package session implements the cookie-backed session: the authenticated
// supplier identity minted by the identity service plus a small set of
// UI-continuity keys. The session is loaded explicitly at the request
// boundary and written back only when mutated.
package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieName = "dm_session"

// Flash is a one-shot message rendered on the next page load
type Flash struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}

// Session carries the authenticated user and the UI-state keys persisted
// across requests. Business invariants never live here.
type Session struct {
	UserID       int    `json:"userId"`
	SupplierID   int    `json:"supplierId"`
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress"`
	SupplierName string `json:"supplierName"`

	// CurrentlyApplyingTo remembers the last open framework dashboard the
	// supplier visited.
	CurrentlyApplyingTo string `json:"currentlyApplyingTo,omitempty"`
	// SignaturePage caches the filename of a signature page uploaded earlier
	// in this session, pending contract review.
	SignaturePage string `json:"signaturePage,omitempty"`

	Flashes []Flash `json:"flashes,omitempty"`

	dirty bool
}

// Authenticated reports whether the session belongs to a logged-in supplier
// user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != 0 && s.SupplierID != 0
}

// AddFlash queues a one-shot message for the next render.
func (s *Session) AddFlash(message, category string) {
	s.Flashes = append(s.Flashes, Flash{Message: message, Category: category})
	s.dirty = true
}

// TakeFlashes returns queued flashes and clears them.
func (s *Session) TakeFlashes() []Flash {
	if len(s.Flashes) == 0 {
		return nil
	}
	flashes := s.Flashes
	s.Flashes = nil
	s.dirty = true
	return flashes
}

// SetCurrentlyApplyingTo records the framework slug of the open framework
// the supplier last visited.
func (s *Session) SetCurrentlyApplyingTo(slug string) {
	if s.CurrentlyApplyingTo == slug {
		return
	}
	s.CurrentlyApplyingTo = slug
	s.dirty = true
}

// SetSignaturePage caches an uploaded signature filename.
func (s *Session) SetSignaturePage(filename string) {
	s.SignaturePage = filename
	s.dirty = true
}

// ClearSignaturePage removes the cached upload filename.
func (s *Session) ClearSignaturePage() {
	if s.SignaturePage == "" {
		return
	}
	s.SignaturePage = ""
	s.dirty = true
}

// Dirty reports whether the session has been mutated since it was loaded.
func (s *Session) Dirty() bool {
	return s.dirty
}

type claims struct {
	Session
	jwt.RegisteredClaims
}

// Manager signs and verifies session cookies.
type Manager struct {
	secret   []byte
	lifetime time.Duration
	secure   bool
}

// NewManager creates a session manager signing cookies with the given secret.
func NewManager(secret string, secure bool) *Manager {
	return &Manager{
		secret:   []byte(secret),
		lifetime: 12 * time.Hour,
		secure:   secure,
	}
}

// Load parses the session cookie on the request. A missing or invalid cookie
// yields an empty, unauthenticated session rather than an error.
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return &Session{}
	}

	var c claims
	token, err := jwt.ParseWithClaims(cookie.Value, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return &Session{}
	}
	return &c.Session
}

// Save writes the session back to a cookie if it has been mutated.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if !s.dirty {
		return nil
	}
	cookie, err := m.Mint(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, cookie)
	s.dirty = false
	return nil
}

// Mint issues a signed cookie for the given session. Used by Save and, in
// tests, to fabricate a logged-in client.
func (m *Manager) Mint(s *Session) (*http.Cookie, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Session: *s,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("signing session cookie: %w", err)
	}

	return &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  now.Add(m.lifetime),
	}, nil
}
