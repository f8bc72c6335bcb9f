package api

import (
	"context"
	"fmt"

	"github.com/medsim/osce/internal/model"
)

func competitionPath(id int64, action string) string {
	return fmt.Sprintf("/student/competitions/%d/%s", id, action)
}

// ListCompetitions returns the competitions visible to the logged-in student.
func (c *Client) ListCompetitions(ctx context.Context) ([]model.Competition, error) {
	var resp struct {
		Competitions []model.Competition `json:"competitions"`
	}
	if err := c.do(ctx, "GET", "/student/competitions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Competitions, nil
}

// JoinCompetition registers the student's presence in a competition session.
func (c *Client) JoinCompetition(ctx context.Context, id int64) error {
	return c.do(ctx, "POST", competitionPath(id, "join"), struct{}{}, nil)
}

// CompetitionStatus fetches the student's participation status.
func (c *Client) CompetitionStatus(ctx context.Context, id int64) (*model.CompetitionStatus, error) {
	var st model.CompetitionStatus
	if err := c.do(ctx, "GET", competitionPath(id, "status"), nil, &st); err != nil {
		return nil, err
	}
	if st.SessionID == 0 {
		st.SessionID = id
	}
	return &st, nil
}

// StartStation tells the server the student opened the given station.
func (c *Client) StartStation(ctx context.Context, id int64, caseNumber model.CaseNumber) error {
	body := map[string]any{"case_number": caseNumber}
	return c.do(ctx, "POST", competitionPath(id, "start_station"), body, nil)
}

// CompleteStation submits the consultation of the current station for scoring.
func (c *Client) CompleteStation(ctx context.Context, id int64, caseNumber model.CaseNumber, conversation []model.ChatMessage) (*model.Evaluation, error) {
	body := map[string]any{
		"case_number":  caseNumber,
		"conversation": conversation,
	}
	var resp struct {
		Evaluation *model.Evaluation `json:"evaluation"`
	}
	if err := c.do(ctx, "POST", competitionPath(id, "complete_station"), body, &resp); err != nil {
		return nil, err
	}
	return resp.Evaluation, nil
}

// NextStation asks the server to move the student from the rest period to the next station.
func (c *Client) NextStation(ctx context.Context, id int64) error {
	return c.do(ctx, "POST", competitionPath(id, "next_station"), struct{}{}, nil)
}

// CompetitionResults fetches the final scores and leaderboard.
func (c *Client) CompetitionResults(ctx context.Context, id int64) (*model.CompetitionResults, error) {
	var res model.CompetitionResults
	if err := c.do(ctx, "GET", competitionPath(id, "results"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
