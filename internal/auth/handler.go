package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
	"github.com/dealerhub/dealerhub/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	csrfManager *shared.CSRFManager
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		csrfManager: csrf,
		validator:   validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/session", h.showSession)
	r.Get("/sign-in", h.showSession)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/sign-in", h.handleSignIn)
		r.Post("/sign-up", h.handleSignUp)
	})
	r.Post("/sign-out", h.handleSignOut)
}

type signInForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type signUpForm struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,max=120"`
}

type sessionResponse struct {
	Authenticated bool                  `json:"authenticated"`
	Identity      string                `json:"identity,omitempty"`
	CSRFToken     string                `json:"csrf_token"`
	Next          string                `json:"next,omitempty"`
	Notifications []shared.FlashMessage `json:"notifications"`
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	token, _ := h.csrfManager.EnsureToken(sess)
	info := h.service.CurrentSession(r.Context())
	notes := sess.PopFlashes()
	if notes == nil {
		notes = []shared.FlashMessage{}
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Authenticated: info.Authenticated(),
		Identity:      info.Identity,
		CSRFToken:     token,
		Next:          r.URL.Query().Get("next"),
		Notifications: notes,
	})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var form signInForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validate(form); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	user, err := h.service.SignIn(r.Context(), sess, form.Email, form.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		h.notify(sess, "Invalid email or password")
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
			return
		}
		h.logger.Error("sign in", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.csrfManager.Rotate(sess)
	token, _ := h.csrfManager.EnsureToken(sess)
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Identity:      user.ID,
		CSRFToken:     token,
		Notifications: []shared.FlashMessage{},
	})
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var form signUpForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := h.validate(form); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	user, err := h.service.SignUp(r.Context(), form.Email, form.Password, form.DisplayName)
	if err != nil {
		if errors.Is(err, shared.ErrEmailTaken) {
			h.notify(sess, "This email is already registered")
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
			return
		}
		h.logger.Error("sign up", slog.Any("error", err))
		h.notify(sess, "Sign up failed, please try again")
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"identity": user.ID, "email": user.Email})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.service.SignOut(r.Context(), sess); err != nil {
		h.logger.Warn("sign out", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validate(form any) map[string]string {
	err := h.validator.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"general": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fieldErr := range verrs {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return fields
}

func (h *Handler) notify(sess *shared.Session, message string) {
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: message})
	}
}
