package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/openbank-platform/openbank/internal/platform/httpx"
	"github.com/openbank-platform/openbank/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/password", h.handleChangePassword)
}

// MountAdminRoutes registers routes that the router guards with an
// authorization middleware.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/auth/unlock/{principalID}", h.handleUnlock)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Email       string    `json:"email"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	account, err := h.service.Login(r.Context(), req.Email, req.Password, shared.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrAccountLocked):
			httpx.Problem(w, http.StatusTooManyRequests, "Account Locked", err.Error())
		case errors.Is(err, shared.ErrInvalidCredentials):
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		default:
			h.logger.Error("login", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{PrincipalID: account.ID, Email: account.Email})
}

type changePasswordRequest struct {
	Email           string `json:"email" validate:"required,email"`
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	err := h.service.ChangePassword(r.Context(), principal.ID, req.Email, req.CurrentPassword, req.NewPassword, shared.ClientIP(r))
	if err != nil {
		var policyErr *PolicyError
		switch {
		case errors.As(err, &policyErr):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Weak Password", strings.Join(policyErr.Violations, "; "))
		case errors.Is(err, ErrPasswordReused):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Password Reused", "choose a password not used recently")
		case errors.Is(err, shared.ErrInvalidCredentials):
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "current credentials rejected")
		default:
			h.logger.Error("change password", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

type unlockRequest struct {
	Reason string `json:"reason" validate:"required,max=256"`
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(chi.URLParam(r, "principalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "principalID must be a UUID")
		return
	}

	var req unlockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	if err := h.service.Unlock(r.Context(), principalID, req.Reason, shared.ClientIP(r)); err != nil {
		h.logger.Error("unlock account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid payload"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
