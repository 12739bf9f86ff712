package api

import (
	"context"
	"errors"
	"net/http"

	"foodadmin/internal/model"
)

// ErrEmptyCredentials is returned before any request is issued when the
// login form is incomplete.
var ErrEmptyCredentials = errors.New("email and password are required")

// Me resolves the identity behind the current session cookie.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var resp struct {
		User *model.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Login authenticates the staff user. On success the session cookie is
// stored in the client's jar and the server greeting message is returned.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	if email == "" || password == "" {
		return nil, "", ErrEmptyCredentials
	}

	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp struct {
		User    *model.User `json:"user"`
		Message string      `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, "", err
	}
	return resp.User, resp.Message, nil
}

// Logout asks the server to terminate the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", map[string]string{}, nil)
}
