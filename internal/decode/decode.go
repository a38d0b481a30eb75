// Package decode turns raw model output into payloads callers can rely on.
// Structured output is fence stripped, parsed and score clamped; anything
// that cannot be parsed degrades to a caller supplied default together with
// an *Error, never a panic.
package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spigell/nexhire/internal/ai"
)

const (
	fence    = "```"
	maxScore = 100
)

// Error reports that a degraded default was returned instead of the model output.
type Error struct {
	Raw string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode structured response: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Payload is the shape independent decoding result.
type Payload struct {
	Shape  ai.Shape
	Text   string
	Fields map[string]any
}

// Decode decodes raw according to shape. Free text is only trimmed. For JSON
// the returned payload holds either the parsed fields or a copy of fallback.
func Decode(raw string, shape ai.Shape, fallback map[string]any) (Payload, error) {
	if shape != ai.ShapeJSON {
		return Payload{Shape: shape, Text: Text(raw)}, nil
	}

	fields, err := Object(raw, fallback)
	return Payload{Shape: shape, Fields: fields}, err
}

// Text returns free text output trimmed.
func Text(raw string) string {
	return strings.TrimSpace(raw)
}

// StripFences returns the content of the first fenced block of raw, or raw
// trimmed when there is no fence. Text that is already valid JSON is only
// trimmed, so backticks inside string values survive. Stripping twice gives
// the same result.
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if json.Valid([]byte(raw)) {
		return raw
	}

	start := strings.Index(raw, fence)
	if start == -1 {
		return raw
	}

	body := raw[start+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl != -1 && isLanguageTag(body[:nl]) {
		body = body[nl+1:]
	} else if nl == -1 && isLanguageTag(body) {
		return ""
	}

	if end := strings.Index(body, fence); end != -1 {
		body = body[:end]
	}

	return strings.TrimSpace(body)
}

func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '+':
		default:
			return false
		}
	}
	return true
}

// Object parses raw as a JSON object. When the text around the object is
// noisy the first balanced object is used. Every score field is clamped into
// [0, 100]. On failure a copy of fallback is returned with an *Error.
func Object(raw string, fallback map[string]any) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	cleaned := StripFences(trimmed)

	data, err := parseObject(cleaned)
	if err != nil && cleaned != trimmed {
		// A fence inside a string value of unfenced output.
		if whole, wholeErr := parseObject(trimmed); wholeErr == nil {
			data, err = whole, nil
		}
	}
	if err != nil {
		return clone(fallback), &Error{Raw: raw, Err: err}
	}

	clampScores(data)
	return data, nil
}

func parseObject(text string) (map[string]any, error) {
	if text == "" {
		return nil, errors.New("empty response")
	}

	var data map[string]any
	err := json.Unmarshal([]byte(text), &data)
	if err == nil && data != nil {
		return data, nil
	}

	candidate, ok := firstObject(text)
	if !ok {
		if err == nil {
			err = errors.New("response is not a JSON object")
		}
		return nil, err
	}

	data = nil
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// firstObject returns the first balanced {...} of text, honouring strings.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

func isScoreKey(key string) bool {
	key = strings.ToLower(key)
	return key == "score" || strings.HasSuffix(key, "_score")
}

func clampScores(data map[string]any) {
	for key, value := range data {
		if nested, ok := value.(map[string]any); ok {
			clampScores(nested)
			continue
		}
		if isScoreKey(key) {
			data[key] = float64(ClampScore(coerceScore(value)))
		}
	}
}

// ClampScore rounds score to the nearest integer inside [0, 100].
func ClampScore(score float64) int {
	if math.IsNaN(score) {
		return 0
	}
	score = math.Round(score)
	switch {
	case score < 0:
		return 0
	case score > maxScore:
		return maxScore
	default:
		return int(score)
	}
}

func coerceScore(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, ok := parseNumber(val)
		if !ok {
			return 0
		}
		return f
	default:
		return 0
	}
}

// parseNumber accepts values such as "85", " 85.5 " and "85%".
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func clone(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		switch val := v.(type) {
		case map[string]any:
			out[k] = clone(val)
		case []any:
			out[k] = append([]any(nil), val...)
		case []string:
			out[k] = append([]string(nil), val...)
		default:
			out[k] = val
		}
	}
	return out
}
