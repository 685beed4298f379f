package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/ziminpro/bird/internal/session"
)

// RoleInfo is a role as UMS describes it
type RoleInfo struct {
	RoleID      string `json:"roleId,omitempty"`
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
}

// RoleList accepts both role objects and bare role names
type RoleList []RoleInfo

func (r *RoleList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(RoleList, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var name string
			if err := json.Unmarshal(item, &name); err != nil {
				return err
			}
			out = append(out, RoleInfo{Role: name})
			continue
		}
		var info RoleInfo
		if err := json.Unmarshal(item, &info); err != nil {
			return err
		}
		out = append(out, info)
	}
	*r = out
	return nil
}

// Names returns the role names in order
func (r RoleList) Names() []session.Role {
	names := make([]session.Role, 0, len(r))
	for _, info := range r {
		names = append(names, session.Role(info.Role))
	}
	return names
}

// DirectoryUser is a user as listed by UMS
type DirectoryUser struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Created int64    `json:"created,omitempty"`
	Roles   RoleList `json:"roles"`
}

// HasRole reports whether the user carries role
func (u DirectoryUser) HasRole(role session.Role) bool {
	for _, info := range u.Roles {
		if info.Role == string(role) {
			return true
		}
	}
	return false
}

// DisplayName returns the name, falling back to the email
func (u DirectoryUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// ListUsers returns the user directory
func (c *Client) ListUsers(ctx context.Context) ([]DirectoryUser, error) {
	env, err := c.call(ctx, http.MethodGet, c.endpoints.UMS, "/users", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[DirectoryUser](env), nil
}

// ListRoles returns the role catalog
func (c *Client) ListRoles(ctx context.Context) ([]RoleInfo, error) {
	env, err := c.call(ctx, http.MethodGet, c.endpoints.UMS, "/roles", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[RoleInfo](env), nil
}

// UpdateUserRoles replaces the roles of a user
func (c *Client) UpdateUserRoles(ctx context.Context, userID string, roles []session.Role) error {
	if roles == nil {
		roles = []session.Role{}
	}
	body := map[string]any{"roles": roles}

	env, err := c.call(ctx, http.MethodPut, c.endpoints.UMS, "/users/user/"+escape(userID)+"/roles", body)
	if err != nil {
		return err
	}
	return expect(env, "Failed to update roles.", "200")
}

// DeleteUser removes a user
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	env, err := c.call(ctx, http.MethodDelete, c.endpoints.UMS, "/users/user/"+escape(userID), nil)
	if err != nil {
		return err
	}
	return expect(env, "Failed to delete user.", "200")
}

// RotateSecret invalidates every token issued to a user
func (c *Client) RotateSecret(ctx context.Context, userID string) error {
	env, err := c.call(ctx, http.MethodPost, c.endpoints.UMS, "/auth/rotate-secret/"+escape(userID), nil)
	if err != nil {
		return err
	}
	return expect(env, "Failed to rotate secret.", "200")
}
