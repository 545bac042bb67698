package transport

import (
	"errors"
	"net/http"
	"strings"

	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/session"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SessionControl rotates and ends sessions on login and logout.
type SessionControl interface {
	Regenerate(w http.ResponseWriter, r *http.Request) error
	Destroy(w http.ResponseWriter, r *http.Request) error
}

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

type profilePage struct {
	Profile       *service.Profile
	PasswordError map[string]string
}

// AuthHandler serves the HTML login, registration and account pages.
type AuthHandler struct {
	users    service.UserService
	sessions SessionControl
	render   *Renderer
	logger   *zap.Logger
}

func NewAuthHandler(users service.UserService, sessions SessionControl, render *Renderer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		render:   render,
		logger:   logger,
	}
}

// RegisterRoutes mounts the auth pages; the account pages go behind
// requireLogin and login attempts behind limitLogin.
func (h *AuthHandler) RegisterRoutes(r chi.Router, requireLogin, limitLogin func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.LoginPage)
		r.With(limitLogin).Post("/login", h.Login)
		r.Get("/register", h.RegisterPage)
		r.With(limitLogin).Post("/register", h.Register)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireLogin)
			r.Get("/profile", h.ProfilePage)
			r.Post("/profile", h.UpdateProfile)
			r.Post("/password", h.ChangePassword)
		})
	})
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if sess := session.FromContext(r.Context()); sess.LoggedIn() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "login", &View{Title: "Entrar", Form: loginForm{}})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := decodeForm(r, &form); err != nil {
		h.render.HTML(w, r, http.StatusBadRequest, "login", &View{Title: "Entrar", Form: form})
		return
	}
	form.Email = strings.TrimSpace(form.Email)

	if form.Email == "" || form.Password == "" {
		h.render.HTML(w, r, http.StatusUnprocessableEntity, "login", &View{
			Title:  "Entrar",
			Form:   loginForm{Email: form.Email},
			Errors: map[string]string{"email": "Informe email e senha"},
		})
		return
	}

	user, err := h.users.Login(r.Context(), form.Email, form.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		h.render.HTML(w, r, http.StatusUnauthorized, "login", &View{
			Title:  "Entrar",
			Form:   loginForm{Email: form.Email},
			Errors: map[string]string{"email": "Email ou senha inválidos"},
		})
		return
	}
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	if err := h.sessions.Regenerate(w, r); err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	sess := session.FromContext(r.Context())
	sess.SetUser(user)
	sess.Flash(session.FlashSuccess, "Bem-vindo(a), "+user.Name+"!")

	fallback := "/"
	if user.IsAdmin() {
		fallback = "/admin"
	}
	h.logger.Info("User logged in", zap.String("user_id", user.ID.String()))
	http.Redirect(w, r, safeRedirect(sess.PopReturnTo(fallback), fallback), http.StatusSeeOther)
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if sess := session.FromContext(r.Context()); sess.LoggedIn() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "register", &View{Title: "Criar conta", Form: service.RegisterInput{}})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := decodeForm(r, &input); err != nil {
		h.render.HTML(w, r, http.StatusBadRequest, "register", &View{Title: "Criar conta", Form: input})
		return
	}

	user, err := h.users.Register(r.Context(), input)
	if err != nil {
		input.Password, input.ConfirmPassword = "", ""
		view := &View{Title: "Criar conta", Form: input}

		if fe, ok := service.AsFormError(err); ok {
			view.Errors = fe.Fields
			h.render.HTML(w, r, http.StatusUnprocessableEntity, "register", view)
			return
		}
		if errors.Is(err, repository.ErrUserAlreadyExists) {
			view.Errors = map[string]string{"email": "Este email já está cadastrado"}
			h.render.HTML(w, r, http.StatusConflict, "register", view)
			return
		}
		h.render.ServerError(w, r, err)
		return
	}

	if err := h.sessions.Regenerate(w, r); err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	sess := session.FromContext(r.Context())
	sess.SetUser(user)
	sess.Flash(session.FlashSuccess, "Conta criada com sucesso! Bem-vindo(a), "+user.Name+"!")

	h.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	http.Redirect(w, r, safeRedirect(sess.PopReturnTo("/"), "/"), http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		h.logger.Error("Failed to destroy session", zap.Error(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) ProfilePage(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	profile, err := h.users.Profile(r.Context(), sess.User.ID)
	if err != nil {
		h.profileLoadFailed(w, r, err)
		return
	}

	h.render.HTML(w, r, http.StatusOK, "profile", &View{
		Title: "Minha conta",
		Form:  service.ProfileInput{Name: profile.User.Name, Phone: profile.User.Phone},
		Data:  profilePage{Profile: profile},
	})
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	var input service.ProfileInput
	if err := decodeForm(r, &input); err != nil {
		http.Redirect(w, r, "/auth/profile", http.StatusSeeOther)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), sess.User.ID, input)
	if err != nil {
		if fe, ok := service.AsFormError(err); ok {
			h.renderProfile(w, r, input, fe.Fields, nil)
			return
		}
		h.profileLoadFailed(w, r, err)
		return
	}

	sess.SetUser(user)
	sess.Flash(session.FlashSuccess, "Perfil atualizado com sucesso!")
	http.Redirect(w, r, "/auth/profile", http.StatusSeeOther)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	var input service.PasswordInput
	if err := decodeForm(r, &input); err != nil {
		http.Redirect(w, r, "/auth/profile", http.StatusSeeOther)
		return
	}

	err := h.users.ChangePassword(r.Context(), sess.User.ID, input)
	switch {
	case err == nil:
		sess.Flash(session.FlashSuccess, "Senha alterada com sucesso!")
		http.Redirect(w, r, "/auth/profile", http.StatusSeeOther)
	case errors.Is(err, service.ErrWrongPassword):
		h.renderProfile(w, r, service.ProfileInput{}, nil, map[string]string{"currentPassword": "Senha atual incorreta"})
	default:
		if fe, ok := service.AsFormError(err); ok {
			h.renderProfile(w, r, service.ProfileInput{}, nil, fe.Fields)
			return
		}
		h.profileLoadFailed(w, r, err)
	}
}

// renderProfile re-renders the account page with form errors. A blank input
// is filled from the stored user.
func (h *AuthHandler) renderProfile(w http.ResponseWriter, r *http.Request, input service.ProfileInput, profileErrs, passwordErrs map[string]string) {
	sess := session.FromContext(r.Context())
	profile, err := h.users.Profile(r.Context(), sess.User.ID)
	if err != nil {
		h.profileLoadFailed(w, r, err)
		return
	}
	if input.Name == "" && profileErrs == nil {
		input = service.ProfileInput{Name: profile.User.Name, Phone: profile.User.Phone}
	}

	h.render.HTML(w, r, http.StatusUnprocessableEntity, "profile", &View{
		Title:  "Minha conta",
		Form:   input,
		Errors: profileErrs,
		Data:   profilePage{Profile: profile, PasswordError: passwordErrs},
	})
}

// profileLoadFailed logs out sessions whose user no longer exists.
func (h *AuthHandler) profileLoadFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrUserNotFound) {
		sess := session.FromContext(r.Context())
		sess.ClearUser()
		sess.Flash(session.FlashError, "Sua sessão expirou. Faça login novamente.")
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	h.render.ServerError(w, r, err)
}
