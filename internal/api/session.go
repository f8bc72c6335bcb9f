package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/medsim/osce/internal/model"
)

// CheckSession asks the server whether the held cookies belong to a live session.
func (c *Client) CheckSession(ctx context.Context) (*model.SessionInfo, error) {
	var info model.SessionInfo
	if err := c.do(ctx, "GET", "/check_session", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Login posts the login form. The session cookie lands in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := c.newRequest(ctx, "POST", "/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := c.send(req, nil); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	info, err := c.CheckSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !info.LoggedIn || info.User == nil {
		return nil, &AuthError{Redirect: "/login"}
	}
	return info.User, nil
}
