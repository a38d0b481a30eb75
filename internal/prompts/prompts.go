// Package prompts holds the named prompt templates used by the analyses.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/spigell/nexhire/internal/ai"
)

//go:embed prompts.yaml
var defaultTemplates []byte

// Name identifies a prompt template.
type Name string

const (
	ATS               Name = "ats"
	Feedback          Name = "feedback"
	Fit               Name = "fit"
	Insights          Name = "insights"
	Improvements      Name = "improvements"
	InterviewPrep     Name = "interview_prep"
	Roadmap           Name = "roadmap"
	SimulateSkill     Name = "simulate_skill"
	CompareVersions   Name = "compare_versions"
	KeywordGap        Name = "keyword_gap"
	CoverLetter       Name = "cover_letter"
	Screening         Name = "screening"
	ScreeningBiasFree Name = "screening_bias_free"
	ExplainScore      Name = "explain_score"
)

const defaultUserTemplate = "Resume:\n{{RESUME}}\n\nJob description:\n{{JOB}}"

// aliases maps legacy configuration names onto template names.
var aliases = map[string]Name{
	"ats_prompt":          ATS,
	"feedback_prompt":     Feedback,
	"cover_letter_prompt": CoverLetter,
	"screening_prompt":    Screening,
}

// Template is a pair of system instructions and a user message template.
type Template struct {
	System string `mapstructure:"system"`
	User   string `mapstructure:"user"`
}

// Vars are substituted into templates.
type Vars struct {
	Resume   string
	ResumeV2 string
	Job      string
	Skill    string
	Score    int
}

// Library is an immutable set of templates.
type Library struct {
	templates map[Name]Template
}

// Defaults returns the embedded templates.
func Defaults() (*Library, error) {
	return Load(nil)
}

// Load merges overrides on top of the embedded templates. An override is
// either a string, replacing the system instructions, or a map with system
// and user keys. An empty string removes the template.
func Load(overrides map[string]any) (*Library, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultTemplates)); err != nil {
		return nil, fmt.Errorf("read default prompts: %w", err)
	}

	var raw map[string]Template
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decode default prompts: %w", err)
	}

	lib := &Library{templates: make(map[Name]Template, len(raw))}
	for name, tmpl := range raw {
		lib.templates[Name(name)] = tmpl
	}

	for key, value := range overrides {
		name := resolve(key)
		tmpl := lib.templates[name]

		switch val := value.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(val) == "" {
				delete(lib.templates, name)
				continue
			}
			tmpl.System = val
		default:
			var override Template
			if err := mapstructure.Decode(val, &override); err != nil {
				return nil, fmt.Errorf("decode prompt %q: %w", key, err)
			}
			if override.System != "" {
				tmpl.System = override.System
			}
			if override.User != "" {
				tmpl.User = override.User
			}
		}

		lib.templates[name] = tmpl
	}

	return lib, nil
}

func resolve(key string) Name {
	key = strings.ToLower(strings.TrimSpace(key))
	if name, ok := aliases[key]; ok {
		return name
	}
	return Name(key)
}

// Has reports whether a usable template is configured for name.
func (l *Library) Has(name Name) bool {
	if l == nil {
		return false
	}
	tmpl, ok := l.templates[name]
	return ok && strings.TrimSpace(tmpl.System) != ""
}

// Names lists the configured template names.
func (l *Library) Names() []Name {
	if l == nil {
		return nil
	}
	names := make([]Name, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	return names
}

// Render builds a prompt request. A missing template is a configuration error.
func (l *Library) Render(name Name, vars Vars, shape ai.Shape) (ai.PromptRequest, error) {
	if !l.Has(name) {
		return ai.PromptRequest{}, &ai.ConfigError{What: fmt.Sprintf("prompt template %q", name)}
	}

	tmpl := l.templates[name]
	user := tmpl.User
	if strings.TrimSpace(user) == "" {
		user = defaultUserTemplate
	}

	return ai.NewPromptRequest(substitute(tmpl.System, vars), substitute(user, vars), shape), nil
}

func substitute(tmpl string, vars Vars) string {
	return strings.NewReplacer(
		"{{RESUME}}", vars.Resume,
		"{{RESUME_V2}}", vars.ResumeV2,
		"{{JOB}}", vars.Job,
		"{{SKILL}}", vars.Skill,
		"{{SCORE}}", strconv.Itoa(vars.Score),
	).Replace(tmpl)
}
