package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/medsim/osce/internal/model"
)

// Area selects which dashboard's endpoints a call goes through.
type Area string

const (
	AreaAdmin   Area = "admin"
	AreaTeacher Area = "teacher"
)

// CaseNumberExists reports whether a station already uses the case number.
func (c *Client) CaseNumberExists(ctx context.Context, area Area, caseNumber string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	path := fmt.Sprintf("/%s/check_case_number/%s", area, url.PathEscape(caseNumber))
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// GetCase fetches a station by case number.
func (c *Client) GetCase(ctx context.Context, caseNumber model.CaseNumber) (*model.Station, error) {
	var st model.Station
	if err := c.do(ctx, "GET", "/get_case/"+url.PathEscape(caseNumber.String()), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// EditCase replaces a station. The case number in the URL is the one being
// edited; st.CaseNumber may differ when the teacher renumbers it.
func (c *Client) EditCase(ctx context.Context, caseNumber model.CaseNumber, st model.Station) error {
	return c.do(ctx, "POST", "/teacher/edit_case/"+url.PathEscape(caseNumber.String()), st, nil)
}

// DeleteCase removes a station through the teacher dashboard.
func (c *Client) DeleteCase(ctx context.Context, caseNumber model.CaseNumber) error {
	return c.do(ctx, "DELETE", "/teacher/delete_case/"+url.PathEscape(caseNumber.String()), nil, nil)
}

// ListStations returns all stations.
func (c *Client) ListStations(ctx context.Context) ([]model.Station, error) {
	var resp struct {
		Stations []model.Station `json:"stations"`
	}
	if err := c.do(ctx, "GET", "/admin/stations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stations, nil
}

// CreateStation adds a station.
func (c *Client) CreateStation(ctx context.Context, st model.Station) error {
	return c.do(ctx, "POST", "/admin/stations", st, nil)
}

// DeleteStation removes a station through the admin dashboard.
func (c *Client) DeleteStation(ctx context.Context, caseNumber model.CaseNumber) error {
	return c.do(ctx, "DELETE", "/admin/stations/"+url.PathEscape(caseNumber.String()), nil, nil)
}

// ListStudents returns all student accounts.
func (c *Client) ListStudents(ctx context.Context) ([]model.Student, error) {
	var resp struct {
		Students []model.Student `json:"students"`
	}
	if err := c.do(ctx, "GET", "/admin/students", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Students, nil
}

// CreateStudent adds a student account. The server hashes the password.
func (c *Client) CreateStudent(ctx context.Context, s model.Student, password string) (int64, error) {
	body := map[string]any{"name": s.Name, "email": s.Email, "password": password}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, "POST", "/admin/students", body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// DeleteStudent removes a student account.
func (c *Client) DeleteStudent(ctx context.Context, id int64) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/admin/students/%d", id), nil, nil)
}

// ListSessions returns all scheduled sessions.
func (c *Client) ListSessions(ctx context.Context) ([]model.Session, error) {
	var resp struct {
		Sessions []model.Session `json:"sessions"`
	}
	if err := c.do(ctx, "GET", "/admin/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// CreateSession schedules a session and returns its id.
func (c *Client) CreateSession(ctx context.Context, req model.SessionRequest) (int64, error) {
	var resp struct {
		ID int64 `json:"session_id"`
	}
	if err := c.do(ctx, "POST", "/admin/sessions", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// DeleteSession removes a scheduled session.
func (c *Client) DeleteSession(ctx context.Context, id int64) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/admin/sessions/%d", id), nil, nil)
}
