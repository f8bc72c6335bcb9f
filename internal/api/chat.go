package api

import (
	"context"
	"errors"

	"github.com/medsim/osce/internal/model"
)

type chatRequest struct {
	Message    string              `json:"message"`
	CaseNumber model.CaseNumber    `json:"case_number"`
	History    []model.ChatMessage `json:"conversation,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Reply sends one consultation turn to the virtual patient and returns its answer.
// It satisfies chat.Responder.
func (c *Client) Reply(ctx context.Context, caseNumber model.CaseNumber, history []model.ChatMessage, text string) (string, error) {
	var resp chatResponse
	if err := c.do(ctx, "POST", "/chat", chatRequest{Message: text, CaseNumber: caseNumber, History: history}, &resp); err != nil {
		return "", err
	}
	if resp.Response == "" {
		return "", errors.New("empty chat response")
	}
	return resp.Response, nil
}
