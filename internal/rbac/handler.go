package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/openbank-platform/openbank/internal/platform/httpx"
)

// Handler exposes the role and permission administration API. The router
// mounts it behind an authorization middleware, so every caller has
// already passed a permission check for the rbac resource.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, engine: engine, validator: validator.New()}
}

// MountRoutes registers administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rbac/roles", h.listRoles)
	r.Get("/rbac/principals/{principalID}/roles", h.principalRoles)
	r.Post("/rbac/principals/{principalID}/roles", h.assignRole)
	r.Delete("/rbac/principals/{principalID}/roles/{role}", h.removeRole)
	r.Post("/rbac/principals/{principalID}/grants", h.grantPermission)
	r.Post("/rbac/principals/{principalID}/denials", h.denyPermission)
	r.Get("/rbac/principals/{principalID}/permissions", h.effectivePermissions)
}

type roleSummary struct {
	Role     Role         `json:"role"`
	Inherits []Role       `json:"inherits,omitempty"`
	Direct   []Permission `json:"direct_permissions"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	catalog := h.engine.Catalog()
	summaries := make([]roleSummary, 0)
	for _, role := range catalog.Roles() {
		summaries = append(summaries, roleSummary{
			Role:     role,
			Inherits: catalog.InheritedRoles(role),
			Direct:   catalog.DirectPermissions(role),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": summaries})
}

type principalRolesResponse struct {
	PrincipalID uuid.UUID    `json:"principal_id"`
	Roles       []Role       `json:"roles"`
	Custom      []Permission `json:"custom_permissions"`
	Denied      []Permission `json:"denied_permissions"`
}

func (h *Handler) principalRoles(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.principalParam(w, r)
	if !ok {
		return
	}
	record, err := h.engine.Roles(r.Context(), principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("load principal roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	roles := make([]Role, 0, len(record.Roles))
	for role := range record.Roles {
		roles = append(roles, role)
	}
	httpx.JSON(w, http.StatusOK, principalRolesResponse{
		PrincipalID: principalID,
		Roles:       roles,
		Custom:      record.CustomPermissions,
		Denied:      record.DeniedPermissions,
	})
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.principalParam(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role is required")
		return
	}
	if err := h.engine.AssignRole(r.Context(), principalID, Role(req.Role)); err != nil {
		if errors.Is(err, ErrUnknownRole) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Role", req.Role)
			return
		}
		h.logger.Error("assign role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "role_assigned"})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.principalParam(w, r)
	if !ok {
		return
	}
	role := Role(chi.URLParam(r, "role"))
	if err := h.engine.RemoveRole(r.Context(), principalID, role); err != nil {
		if errors.Is(err, ErrUnknownRole) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Role", string(role))
			return
		}
		h.logger.Error("remove role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "role_removed"})
}

type permissionRequest struct {
	Resource   string            `json:"resource" validate:"required"`
	Action     string            `json:"action" validate:"required"`
	Conditions map[string]string `json:"conditions"`
}

func (req permissionRequest) permission() Permission {
	opts := make([]PermissionOption, 0, len(req.Conditions))
	for key, value := range req.Conditions {
		opts = append(opts, WithCondition(key, value))
	}
	return NewPermission(req.Resource, req.Action, opts...)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	h.applyPermission(w, r, h.engine.GrantPermission, "permission_granted")
}

func (h *Handler) denyPermission(w http.ResponseWriter, r *http.Request) {
	h.applyPermission(w, r, h.engine.DenyPermission, "permission_denied")
}

func (h *Handler) applyPermission(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, principalID uuid.UUID, p Permission) error, status string) {
	principalID, ok := h.principalParam(w, r)
	if !ok {
		return
	}
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "resource and action are required")
		return
	}
	if err := apply(r.Context(), principalID, req.permission()); err != nil {
		h.logger.Error("apply permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.principalParam(w, r)
	if !ok {
		return
	}
	perms, err := h.engine.EffectivePermissions(r.Context(), principalID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal_id": principalID,
		"permissions":  perms,
	})
}

func (h *Handler) principalParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	principalID, err := uuid.Parse(chi.URLParam(r, "principalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "principalID must be a UUID")
		return uuid.Nil, false
	}
	return principalID, true
}
