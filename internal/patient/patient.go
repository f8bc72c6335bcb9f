// Package patient plays a station's virtual patient on an OpenAI-compatible
// endpoint, for practice without the OSCE server's chat.
package patient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/patient/prompts"
)

// CaseSource loads the station a consultation is about.
type CaseSource interface {
	GetCase(ctx context.Context, caseNumber model.CaseNumber) (*model.Station, error)
}

// Local answers consultation messages with a local model.
type Local struct {
	api     *openai.Client
	model   string
	persona prompts.Persona
	cases   CaseSource

	mu      sync.Mutex
	systems map[model.CaseNumber]string
}

// New creates a local patient. An empty baseURL uses the OpenAI default.
func New(baseURL, apiKey, modelName string, persona prompts.Persona, cases CaseSource) *Local {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if persona == "" {
		persona = prompts.PersonaStandard
	}
	return &Local{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		persona: persona,
		cases:   cases,
		systems: make(map[model.CaseNumber]string),
	}
}

// Reply returns the patient's answer to text given the consultation so far.
func (l *Local) Reply(ctx context.Context, caseNumber model.CaseNumber, history []model.ChatMessage, text string) (string, error) {
	system, err := l.systemPrompt(ctx, caseNumber)
	if err != nil {
		return "", err
	}

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompts.WrapStudentMessage(m.Content)})
		case model.RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompts.WrapStudentMessage(text),
	})

	resp, err := l.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    msgs,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("patient reply", "case_number", caseNumber, "chars", len(reply))
	return reply, nil
}

// Ping checks that the endpoint answers and knows the configured model.
func (l *Local) Ping(ctx context.Context) error {
	list, err := l.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == l.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not served by endpoint", l.model)
}

func (l *Local) systemPrompt(ctx context.Context, caseNumber model.CaseNumber) (string, error) {
	l.mu.Lock()
	system, ok := l.systems[caseNumber]
	l.mu.Unlock()
	if ok {
		return system, nil
	}

	st, err := l.cases.GetCase(ctx, caseNumber)
	if err != nil {
		return "", fmt.Errorf("load case %s: %w", caseNumber, err)
	}
	system, err = prompts.BuildPatientPrompt(l.persona, *st)
	if err != nil {
		return "", fmt.Errorf("build patient prompt: %w", err)
	}

	l.mu.Lock()
	l.systems[caseNumber] = system
	l.mu.Unlock()
	return system, nil
}
