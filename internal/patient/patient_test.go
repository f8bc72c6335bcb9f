package patient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/patient/prompts"
)

type fakeCases struct {
	calls int
	err   error
}

func (f *fakeCases) GetCase(_ context.Context, caseNumber model.CaseNumber) (*model.Station, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.Station{
		CaseNumber: caseNumber,
		Specialty:  "Neurology",
		Patient:    model.PatientInfo{Name: "Marie Curie", Age: 66},
		Symptoms:   []string{"headache"},
	}, nil
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newLLMServer(t *testing.T, got *chatRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  It started this morning.  "},"finish_reason":"stop"}]}`))
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama3","object":"model"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestReply(t *testing.T) {
	var got chatRequest
	srv := newLLMServer(t, &got)
	cases := &fakeCases{}
	p := New(srv.URL, "test-key", "llama3", prompts.PersonaStandard, cases)

	history := []model.ChatMessage{
		{Role: model.RoleSystem, Content: "Consultation started"},
		{Role: model.RoleUser, Content: "Hello"},
		{Role: model.RoleAssistant, Content: "Hello doctor."},
	}
	reply, err := p.Reply(context.Background(), "43", history, "When did the headache start?")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "It started this morning." {
		t.Errorf("reply = %q", reply)
	}

	if got.Model != "llama3" {
		t.Errorf("model = %q, want llama3", got.Model)
	}
	roles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(roles) {
		t.Fatalf("sent %d messages, want %d", len(got.Messages), len(roles))
	}
	for i, role := range roles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if !strings.Contains(got.Messages[0].Content, "Marie Curie") {
		t.Error("system prompt should describe the patient")
	}
	if !strings.Contains(got.Messages[3].Content, "<student-message>") {
		t.Error("student text should be wrapped")
	}

	if _, err := p.Reply(context.Background(), "43", nil, "Any fever?"); err != nil {
		t.Fatalf("second Reply: %v", err)
	}
	if cases.calls != 1 {
		t.Errorf("case loaded %d times, want 1", cases.calls)
	}
}

func TestReplyCaseError(t *testing.T) {
	var got chatRequest
	srv := newLLMServer(t, &got)
	p := New(srv.URL, "", "llama3", "", &fakeCases{err: errors.New("not found")})

	if _, err := p.Reply(context.Background(), "99", nil, "hi"); err == nil || !strings.Contains(err.Error(), "load case 99") {
		t.Errorf("expected case load error, got %v", err)
	}
}

func TestPing(t *testing.T) {
	var got chatRequest
	srv := newLLMServer(t, &got)

	if err := New(srv.URL, "", "llama3", "", &fakeCases{}).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := New(srv.URL, "", "gpt-unknown", "", &fakeCases{}).Ping(context.Background()); err == nil {
		t.Error("Ping should fail for a model the endpoint does not serve")
	}
}
