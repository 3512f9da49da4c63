package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Next     string
}

type registerForm struct {
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=8"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
	FirstName       string `validate:"required,max=150"`
	LastName        string `validate:"required,max=150"`
	CompanyName     string `validate:"max=255"`
}

type formPageData[T any] struct {
	Form   T
	Errors map[string]string
}

const invalidCredentialsMessage = "Invalid email or password"

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if StateFromContext(r.Context()).IsAuthenticated {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	form := loginForm{Next: nav.SafeNext(r.URL.Query().Get("next"), "")}
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", formPageData[loginForm]{Form: form})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Next:     nav.SafeNext(r.PostFormValue("next"), ""),
	}
	errs := h.validate(form)

	if len(errs) == 0 {
		_, err := h.service.Login(r.Context(), sess, api.Credentials{Email: form.Email, Password: form.Password}, clientInfo(r))
		if err == nil {
			h.rotateCSRF(r, sess)
			shared.Flash(r.Context(), "success", "Welcome back")
			http.Redirect(w, r, nav.SafeNext(form.Next, "/dashboard"), http.StatusSeeOther)
			return
		}
		h.logger.Info("login rejected", slog.Int("status", api.StatusOf(err)), slog.Any("error", err))
		errs["general"] = loginFailureMessage(err)
	}

	form.Password = ""
	h.render(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", formPageData[loginForm]{Form: form, Errors: errs})
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	if StateFromContext(r.Context()).IsAuthenticated {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "pages/register.html", "Create account", formPageData[registerForm]{})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := registerForm{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
		FirstName:       r.PostFormValue("first_name"),
		LastName:        r.PostFormValue("last_name"),
		CompanyName:     r.PostFormValue("company_name"),
	}
	errs := h.validate(form)

	if len(errs) == 0 {
		_, err := h.service.Register(r.Context(), sess, api.Registration{
			Email:       form.Email,
			Password:    form.Password,
			FirstName:   form.FirstName,
			LastName:    form.LastName,
			CompanyName: form.CompanyName,
		}, clientInfo(r))
		if err == nil {
			h.rotateCSRF(r, sess)
			shared.Flash(r.Context(), "success", "Your account is ready")
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		h.logger.Info("registration rejected", slog.Int("status", api.StatusOf(err)), slog.Any("error", err))
		errs["general"] = api.UserMessage(err)
	}

	form.Password, form.ConfirmPassword = "", ""
	h.render(w, r, http.StatusBadRequest, "pages/register.html", "Create account", formPageData[registerForm]{Form: form, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), shared.SessionFromContext(r.Context()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return "Must be at least " + fe.Param() + " characters"
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	case "eqfield":
		return "Passwords do not match"
	default:
		return fe.Error()
	}
}

func loginFailureMessage(err error) string {
	switch status := api.StatusOf(err); {
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return invalidCredentialsMessage
	case errors.Is(err, ErrNoCredential):
		return "Sign-in did not complete, please try again"
	default:
		return api.UserMessage(err)
	}
}

func (h *Handler) rotateCSRF(r *http.Request, sess *shared.Session) {
	if _, err := h.csrfManager.RotateToken(r.Context(), sess); err != nil {
		h.logger.Warn("rotate csrf token", slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, page, viewData); err != nil {
		h.logger.Error("render auth page", slog.String("page", page), slog.Any("error", err))
		if status == http.StatusOK {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

func clientInfo(r *http.Request) ClientInfo {
	return ClientInfo{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
