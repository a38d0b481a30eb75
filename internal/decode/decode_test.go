package decode

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spigell/nexhire/internal/ai"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "  {\"a\":1}  ", want: "{\"a\":1}"},
		{name: "json fence", raw: "```json\n{\"a\":1}\n```", want: "{\"a\":1}"},
		{name: "bare fence", raw: "```\n{\"a\":1}\n```", want: "{\"a\":1}"},
		{name: "prose around", raw: "Here you go:\n```json\n{\"a\":1}\n```\nThanks", want: "{\"a\":1}"},
		{name: "first block wins", raw: "```json\n{\"a\":1}\n```\n```json\n{\"b\":2}\n```", want: "{\"a\":1}"},
		{name: "unterminated", raw: "```json\n{\"a\":1}", want: "{\"a\":1}"},
		{name: "inline", raw: "```{\"a\":1}```", want: "{\"a\":1}"},
		{name: "backticks inside string", raw: " {\"summary\":\"Add ```go``` samples\"} ", want: "{\"summary\":\"Add ```go``` samples\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripFences(tt.raw)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			if again := StripFences(got); again != got {
				t.Fatalf("stripping is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestObjectFencedEqualsUnfenced(t *testing.T) {
	bodies := []string{
		`{"score": 42, "summary": "ok"}`,
		`{"score": 150, "skills": {"matched": ["go"]}}`,
		`not json at all`,
		"{\"score\": 50, \"summary\": \"Add ```go``` samples\"}",
	}
	fallback := map[string]any{"score": float64(0), "summary": FailedSummary}

	for _, body := range bodies {
		plain, plainErr := Object(body, fallback)
		fenced, fencedErr := Object("```json\n"+body+"\n```", fallback)

		if !reflect.DeepEqual(plain, fenced) {
			t.Fatalf("fenced and plain differ for %q: %v vs %v", body, plain, fenced)
		}
		if (plainErr == nil) != (fencedErr == nil) {
			t.Fatalf("error mismatch for %q: %v vs %v", body, plainErr, fencedErr)
		}
	}
}

func TestObjectKeepsBackticksInsideStrings(t *testing.T) {
	want := map[string]any{"score": float64(50), "summary": "Add ```go``` samples"}
	raws := []string{
		"{\"score\": 50, \"summary\": \"Add ```go``` samples\"}",
		"Result: {\"score\": 50, \"summary\": \"Add ```go``` samples\"}",
		"```json\n{\"score\": 50, \"summary\": \"Add ```go``` samples\"}\n```",
	}

	for _, raw := range raws {
		got, err := Object(raw, nil)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestObjectScenario(t *testing.T) {
	got, err := Object("```json\n{\"score\": 42, \"summary\": \"ok\"}\n```", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{"score": float64(42), "summary": "ok"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestObjectClampsScores(t *testing.T) {
	tests := []struct {
		raw  string
		key  string
		want float64
	}{
		{raw: `{"score": -5}`, key: "score", want: 0},
		{raw: `{"score": 150}`, key: "score", want: 100},
		{raw: `{"score": 77.6}`, key: "score", want: 78},
		{raw: `{"score": "85%"}`, key: "score", want: 85},
		{raw: `{"score": "high"}`, key: "score", want: 0},
		{raw: `{"score": null}`, key: "score", want: 0},
		{raw: `{"ats_score": 400}`, key: "ats_score", want: 100},
		{raw: `{"v1_score": -1}`, key: "v1_score", want: 0},
	}

	for _, tt := range tests {
		got, err := Object(tt.raw, nil)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.raw, err)
		}
		if got[tt.key] != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.raw, tt.want, got[tt.key])
		}
	}
}

func TestObjectClampsNestedScores(t *testing.T) {
	got, err := Object(`{"details": {"score": 300}, "name": "score"}`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nested := got["details"].(map[string]any)
	if nested["score"] != float64(100) {
		t.Fatalf("expected nested score to be clamped, got %v", nested["score"])
	}
	if got["name"] != "score" {
		t.Fatalf("non score fields must be untouched, got %v", got["name"])
	}
}

func TestObjectFallsBackOnMalformedInput(t *testing.T) {
	fallback := map[string]any{
		"score":   float64(0),
		"skills":  map[string]any{"matched": []any{}, "partial": []any{}, "missing": []any{}},
		"summary": FailedSummary,
	}

	for _, raw := range []string{"", "nope", "```json\n{broken\n```", "[1,2,3]", "null"} {
		got, err := Object(raw, fallback)

		var decodeErr *Error
		if !errors.As(err, &decodeErr) {
			t.Fatalf("%q: expected *Error, got %v", raw, err)
		}
		if !reflect.DeepEqual(got, fallback) {
			t.Fatalf("%q: expected fallback, got %v", raw, got)
		}
	}

	got, _ := Object("nope", fallback)
	got["summary"] = "mutated"
	got["skills"].(map[string]any)["matched"] = []any{"x"}
	if fallback["summary"] != FailedSummary {
		t.Fatal("fallback must be copied")
	}
	if len(fallback["skills"].(map[string]any)["matched"].([]any)) != 0 {
		t.Fatal("nested fallback must be copied")
	}
}

func TestObjectExtractsFirstBalancedObject(t *testing.T) {
	raw := `Sure! {"score": 60, "summary": "has } brace"} and {"score": 1}`

	got, err := Object(raw, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["score"] != float64(60) || got["summary"] != "has } brace" {
		t.Fatalf("unexpected object: %v", got)
	}
}

func TestObjectIsIdempotent(t *testing.T) {
	raw := "```json\n{\"score\": 150, \"summary\": \"ok\"}\n```"
	first, _ := Object(raw, nil)
	second, _ := Object(raw, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output, got %v and %v", first, second)
	}
}

func TestDecodeByShape(t *testing.T) {
	text, err := Decode("  advice \n", ai.ShapeFreeText, nil)
	if err != nil || text.Text != "advice" || text.Fields != nil {
		t.Fatalf("unexpected free text payload: %+v, %v", text, err)
	}

	structured, err := Decode(`{"score": 10}`, ai.ShapeJSON, nil)
	if err != nil || structured.Fields["score"] != float64(10) {
		t.Fatalf("unexpected structured payload: %+v, %v", structured, err)
	}
}

func TestClampScore(t *testing.T) {
	for in, want := range map[float64]int{-0.4: 0, 0.5: 1, 99.4: 99, 100.2: 100, 1e9: 100} {
		if got := ClampScore(in); got != want {
			t.Fatalf("ClampScore(%v) = %d, want %d", in, got, want)
		}
	}
}
