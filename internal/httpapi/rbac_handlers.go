package httpapi

import (
	"net/http"
	"strings"

	"shutterdesk.app/internal/audit"
	"shutterdesk.app/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request, _ auth.PrincipalSummary) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "role name is required")
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	role := &auth.Role{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	}
	if err := a.roles.CreateRole(ctx, role); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	if len(req.Permissions) > 0 {
		if err := a.roles.SetRolePermissions(ctx, role.ID, req.Permissions); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
	}
	_ = audit.Record(r.Context(), "rbac.role_create", map[string]any{
		"role_id":     role.ID,
		"name":        role.Name,
		"permissions": req.Permissions,
	})
	writeJSON(w, http.StatusCreated, role)
}

// handleRoleResource serves /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request, _ auth.PrincipalSummary) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "permissions" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	roleID := parts[0]

	var req setPermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	if err := a.roles.SetRolePermissions(ctx, roleID, req.Permissions); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.Record(r.Context(), "rbac.role_permissions_set", map[string]any{
		"role_id":     roleID,
		"permissions": req.Permissions,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"role_id":     roleID,
		"permissions": req.Permissions,
	})
}

// handleUserRoles serves POST /v1/users/{id}/roles and
// DELETE /v1/users/{id}/roles/{roleID}. Assignments go through the
// resolver so the permission cache is invalidated on every change.
func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, _ auth.PrincipalSummary) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "roles" {
		http.NotFound(w, r)
		return
	}
	userID := parts[0]

	ctx, cancel := a.storeContext(r)
	defer cancel()

	switch {
	case r.Method == http.MethodPost && len(parts) == 2:
		var req assignRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.RoleID == "" {
			writeError(w, r, http.StatusBadRequest, "role_id is required")
			return
		}
		if err := a.resolver.Assign(ctx, userID, req.RoleID); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		_ = audit.Record(r.Context(), "rbac.role_assign", map[string]any{
			"user_id": userID,
			"role_id": req.RoleID,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": userID,
			"role_id": req.RoleID,
		})
	case r.Method == http.MethodDelete && len(parts) == 3 && parts[2] != "":
		if err := a.resolver.Unassign(ctx, userID, parts[2]); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		_ = audit.Record(r.Context(), "rbac.role_unassign", map[string]any{
			"user_id": userID,
			"role_id": parts[2],
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": "unassigned"})
	case r.Method == http.MethodGet && len(parts) == 2:
		roles, err := a.roles.RolesOf(ctx, userID)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": userID,
			"roles":   roles,
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request, _ auth.PrincipalSummary) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()

	perms, err := a.roles.ListPermissions(ctx)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}
