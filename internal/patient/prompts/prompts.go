package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/medsim/osce/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var studentMessageRegex = regexp.MustCompile(`(?i)</?\s*(student-message|system-instructions)\b[^>]*>`)

const maxMessageRunes = 4000

// Persona selects how the simulated patient behaves.
type Persona string

const (
	// PersonaStandard is a cooperative patient.
	PersonaStandard Persona = "standard"
	// PersonaAnxious keeps asking whether it is serious.
	PersonaAnxious Persona = "anxious"
	// PersonaReticent only answers precise questions.
	PersonaReticent Persona = "reticent"
)

var validPersonas = map[Persona]bool{
	PersonaStandard: true,
	PersonaAnxious:  true,
	PersonaReticent: true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Persona]*template.Template
)

// IsValidPersona checks if a persona name is valid.
func IsValidPersona(p string) bool {
	return validPersonas[Persona(p)]
}

// PatientData holds template data for the patient system prompt. The
// evaluation checklist never goes into the prompt.
type PatientData struct {
	Name       string
	Age        int
	Gender     string
	Occupation string
	Specialty  string
	Symptoms   []string
	History    string
	Directives string
	Images     []model.CaseImage
}

func load() error {
	loadOnce.Do(func() {
		templates = make(map[Persona]*template.Template)
		for p := range validPersonas {
			file := "templates/" + string(p) + ".txt"
			content, err := templateFS.ReadFile(file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(p)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[p] = tmpl
		}
	})
	return loadErr
}

// BuildPatientPrompt builds the system prompt that plays the station's patient.
func BuildPatientPrompt(persona Persona, st model.Station) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	tmpl, ok := templates[persona]
	if !ok {
		return "", errors.New("invalid patient persona: " + string(persona))
	}

	name := st.Patient.Name
	if name == "" {
		name = "the patient"
	}
	data := PatientData{
		Name:       name,
		Age:        st.Patient.Age,
		Gender:     st.Patient.Gender,
		Occupation: st.Patient.Occupation,
		Specialty:  st.Specialty,
		Symptoms:   st.Symptoms,
		History:    strings.TrimSpace(st.History),
		Directives: strings.TrimSpace(st.Directives),
		Images:     st.Images,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WrapStudentMessage strips tags that could break out of the student block,
// truncates very long input and wraps it in <student-message> tags.
func WrapStudentMessage(text string) string {
	text = studentMessageRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		text = "[No message]"
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		runes := []rune(text)
		text = string(runes[:maxMessageRunes]) + "\n[Message truncated due to length]"
	}
	return "<student-message>\n" + text + "\n</student-message>"
}
