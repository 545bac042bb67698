// Package session keeps per-visitor state (cart, login, flash messages)
// server side, keyed by a random cookie id.
package session

import (
	"github.com/google/uuid"

	"storefront/internal/domain"
)

// UserSummary is the part of the user kept in the session.
type UserSummary struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	IsAdmin bool      `json:"is_admin"`
}

type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

type Session struct {
	ID string `json:"-"`

	Cart       []domain.CartItem      `json:"cart"`
	User       *UserSummary           `json:"user,omitempty"`
	ReturnTo   string                 `json:"return_to,omitempty"`
	PostalCode string                 `json:"postal_code,omitempty"`
	Shipping   *domain.ShippingOption `json:"shipping,omitempty"`
	Messages   []Flash                `json:"flashes,omitempty"`

	isNew bool
	dirty bool
}

func newSession(id string) *Session {
	return &Session{ID: id, Cart: []domain.CartItem{}, isNew: true}
}

// Touch marks the session for persistence at the end of the request.
func (s *Session) Touch() {
	s.dirty = true
}

func (s *Session) Dirty() bool {
	return s.dirty
}

func (s *Session) LoggedIn() bool {
	return s.User != nil
}

func (s *Session) SetUser(u *domain.User) {
	s.User = &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, IsAdmin: u.IsAdmin()}
	s.dirty = true
}

func (s *Session) ClearUser() {
	s.User = nil
	s.dirty = true
}

// SetCart replaces the cart lines.
func (s *Session) SetCart(items []domain.CartItem) {
	s.Cart = items
	s.dirty = true
}

// SetShipping records the quoted postal code and the chosen option; a nil
// option clears the choice.
func (s *Session) SetShipping(postalCode string, option *domain.ShippingOption) {
	s.PostalCode = postalCode
	s.Shipping = option
	s.dirty = true
}

func (s *Session) SetReturnTo(path string) {
	s.ReturnTo = path
	s.dirty = true
}

// PopReturnTo returns the stored redirect target, or fallback, and forgets it.
func (s *Session) PopReturnTo(fallback string) string {
	target := s.ReturnTo
	if target == "" {
		return fallback
	}
	s.ReturnTo = ""
	s.dirty = true
	return target
}

func (s *Session) Flash(kind, message string) {
	s.Messages = append(s.Messages, Flash{Kind: kind, Message: message})
	s.dirty = true
}

// Flashes returns the pending messages; each is shown once.
func (s *Session) Flashes() []Flash {
	if len(s.Messages) == 0 {
		return nil
	}
	out := s.Messages
	s.Messages = nil
	s.dirty = true
	return out
}
