package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/spigell/nexhire/internal/ai"
)

func TestDefaultsCoverEveryAnalysis(t *testing.T) {
	lib, err := Defaults()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	for _, name := range []Name{
		ATS, Feedback, Fit, Insights, Improvements, InterviewPrep, Roadmap, SimulateSkill,
		CompareVersions, KeywordGap, CoverLetter, Screening, ScreeningBiasFree, ExplainScore,
	} {
		if !lib.Has(name) {
			t.Fatalf("missing default template %q", name)
		}
	}
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	lib, err := Defaults()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	req, err := lib.Render(SimulateSkill, Vars{Resume: "RESUME TEXT", Job: "JOB TEXT", Skill: "Docker", Score: 64}, ai.ShapeJSON)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(req.System, `"Docker"`) || !strings.Contains(req.System, "64%") {
		t.Fatalf("system prompt not substituted: %q", req.System)
	}
	if !strings.Contains(req.User, "RESUME TEXT") || !strings.Contains(req.User, "JOB TEXT") {
		t.Fatalf("user prompt not substituted: %q", req.User)
	}
	if strings.Contains(req.System+req.User, "{{") {
		t.Fatalf("placeholders left in prompt: %q / %q", req.System, req.User)
	}
	if req.Shape != ai.ShapeJSON {
		t.Fatalf("unexpected shape: %s", req.Shape)
	}
}

func TestRenderCompareUsesBothVersions(t *testing.T) {
	lib, err := Defaults()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	req, err := lib.Render(CompareVersions, Vars{Resume: "first", ResumeV2: "second", Job: "job"}, ai.ShapeJSON)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(req.User, "first") || !strings.Contains(req.User, "second") {
		t.Fatalf("expected both versions in prompt: %q", req.User)
	}
}

func TestLoadOverrides(t *testing.T) {
	lib, err := Load(map[string]any{
		"ats_prompt":   "Score it. {{JOB}}",
		"cover_letter": map[string]any{"user": "Only the job: {{JOB}}"},
		"custom":       map[string]any{"system": "custom system"},
		"feedback":     "",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	req, err := lib.Render(ATS, Vars{Job: "golang dev"}, ai.ShapeJSON)
	if err != nil {
		t.Fatalf("render ats: %v", err)
	}
	if req.System != "Score it. golang dev" {
		t.Fatalf("alias override not applied: %q", req.System)
	}

	req, err = lib.Render(CoverLetter, Vars{Job: "golang dev", Resume: "hidden"}, ai.ShapeFreeText)
	if err != nil {
		t.Fatalf("render cover letter: %v", err)
	}
	if req.User != "Only the job: golang dev" || req.System == "" {
		t.Fatalf("partial override not merged: %+v", req)
	}

	req, err = lib.Render(Name("custom"), Vars{Resume: "r", Job: "j"}, ai.ShapeFreeText)
	if err != nil {
		t.Fatalf("render custom: %v", err)
	}
	if !strings.Contains(req.User, "Resume:\nr") {
		t.Fatalf("expected default user template, got %q", req.User)
	}

	if lib.Has(Feedback) {
		t.Fatal("expected feedback template to be removed")
	}
}

func TestRenderMissingTemplateIsConfigError(t *testing.T) {
	lib, err := Defaults()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	_, err = lib.Render(Name("unknown"), Vars{}, ai.ShapeFreeText)

	var cfgErr *ai.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	var nilLib *Library
	if _, err := nilLib.Render(ATS, Vars{}, ai.ShapeJSON); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError from nil library, got %v", err)
	}
}
