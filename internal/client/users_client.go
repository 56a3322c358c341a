package client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// UsersClient is a client for the platform user service. It implements
// service.UserDirectory.
type UsersClient struct {
	client *jsonClient
}

// NewUsersClient creates a new user service client.
func NewUsersClient(baseURL string, timeout time.Duration) *UsersClient {
	return &UsersClient{client: newJSONClient(baseURL, timeout)}
}

// GetUsersByRoleCode returns the IDs of users holding roleCode, in the
// order the user service returns them.
func (c *UsersClient) GetUsersByRoleCode(ctx context.Context, roleCode string) ([]string, error) {
	path := "/api/v1/users?role_code=" + url.QueryEscape(roleCode)

	var resp ListUsersResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list users for role %s: %w", roleCode, err)
	}

	ids := make([]string, 0, len(resp.Users))
	for _, u := range resp.Users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
