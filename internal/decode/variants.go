package decode

import (
	"github.com/mitchellh/mapstructure"
)

// Kind names a result variant.
type Kind string

const (
	KindScoreSummary      Kind = "score_summary"
	KindSkillBreakdown    Kind = "skill_breakdown"
	KindKeywordGap        Kind = "keyword_gap"
	KindFreeText          Kind = "free_text"
	KindScreening         Kind = "screening"
	KindSkillSimulation   Kind = "skill_simulation"
	KindVersionComparison Kind = "version_comparison"
)

// FailedSummary is the summary of every degraded structured payload.
const FailedSummary = "Analysis failed."

// Variant is implemented by every typed result.
type Variant interface {
	Kind() Kind
	// PrimaryScore is the score recorded in the activity log.
	PrimaryScore() int
}

type ScoreSummary struct {
	Score   int    `json:"score" mapstructure:"score"`
	Summary string `json:"summary" mapstructure:"summary"`
}

func (ScoreSummary) Kind() Kind { return KindScoreSummary }
func (s ScoreSummary) PrimaryScore() int { return s.Score }

type Skills struct {
	Matched []string `json:"matched" mapstructure:"matched"`
	Partial []string `json:"partial" mapstructure:"partial"`
	Missing []string `json:"missing" mapstructure:"missing"`
}

type SkillBreakdown struct {
	Score   int    `json:"score" mapstructure:"score"`
	Skills  Skills `json:"skills" mapstructure:"skills"`
	Summary string `json:"summary" mapstructure:"summary"`
}

func (SkillBreakdown) Kind() Kind { return KindSkillBreakdown }
func (s SkillBreakdown) PrimaryScore() int { return s.Score }

type KeywordGap struct {
	Score           int      `json:"score" mapstructure:"score"`
	MissingKeywords []string `json:"missing_keywords" mapstructure:"missing_keywords"`
	Summary         string   `json:"summary" mapstructure:"summary"`
}

func (KeywordGap) Kind() Kind { return KindKeywordGap }
func (k KeywordGap) PrimaryScore() int { return k.Score }

type FreeTextAdvice struct {
	Text string `json:"text"`
}

func (FreeTextAdvice) Kind() Kind { return KindFreeText }
func (FreeTextAdvice) PrimaryScore() int { return 0 }

type ScreeningResult struct {
	ATSScore  int      `json:"ats_score" mapstructure:"ats_score"`
	AuthBadge string   `json:"auth_badge" mapstructure:"auth_badge"`
	RedFlags  []string `json:"red_flags" mapstructure:"red_flags"`
	Summary   string   `json:"summary" mapstructure:"summary"`
}

func (ScreeningResult) Kind() Kind { return KindScreening }
func (s ScreeningResult) PrimaryScore() int { return s.ATSScore }

type SkillSimulation struct {
	NewScore int    `json:"new_score" mapstructure:"new_score"`
	Comment  string `json:"comment" mapstructure:"comment"`
}

func (SkillSimulation) Kind() Kind { return KindSkillSimulation }
func (s SkillSimulation) PrimaryScore() int { return s.NewScore }

type VersionComparison struct {
	V1Score     int      `json:"v1_score" mapstructure:"v1_score"`
	V2Score     int      `json:"v2_score" mapstructure:"v2_score"`
	Improvement string   `json:"improvement" mapstructure:"improvement"`
	KeyChanges  []string `json:"key_changes" mapstructure:"key_changes"`
	Advice      string   `json:"advice" mapstructure:"advice"`
}

func (VersionComparison) Kind() Kind { return KindVersionComparison }
func (v VersionComparison) PrimaryScore() int { return v.V2Score }

// Defaults returned when the model output cannot be decoded.
var (
	DefaultScoreSummary   = ScoreSummary{Summary: FailedSummary}
	DefaultSkillBreakdown = SkillBreakdown{Skills: Skills{Matched: []string{}, Partial: []string{}, Missing: []string{}}, Summary: FailedSummary}
	DefaultKeywordGap     = KeywordGap{MissingKeywords: []string{}, Summary: FailedSummary}
	DefaultScreening      = ScreeningResult{AuthBadge: "Unknown", RedFlags: []string{}, Summary: FailedSummary}
	DefaultSimulation     = SkillSimulation{Comment: "Simulation failed."}
	DefaultComparison     = VersionComparison{Improvement: "Comparison failed.", KeyChanges: []string{}}
)

// DecodeScoreSummary also accepts a bare number such as "85" or "85%".
func DecodeScoreSummary(raw string) (ScoreSummary, error) {
	if f, ok := parseNumber(StripFences(raw)); ok {
		return ScoreSummary{Score: ClampScore(f)}, nil
	}
	return decodeInto(raw, DefaultScoreSummary)
}

func DecodeSkillBreakdown(raw string) (SkillBreakdown, error) {
	out, err := decodeInto(raw, DefaultSkillBreakdown)
	out.Skills.Matched = nonNil(out.Skills.Matched)
	out.Skills.Partial = nonNil(out.Skills.Partial)
	out.Skills.Missing = nonNil(out.Skills.Missing)
	return out, err
}

func DecodeKeywordGap(raw string) (KeywordGap, error) {
	out, err := decodeInto(raw, DefaultKeywordGap)
	out.MissingKeywords = nonNil(out.MissingKeywords)
	return out, err
}

func DecodeFreeText(raw string) FreeTextAdvice {
	return FreeTextAdvice{Text: Text(raw)}
}

func DecodeScreening(raw string) (ScreeningResult, error) {
	out, err := decodeInto(raw, DefaultScreening)
	out.RedFlags = nonNil(out.RedFlags)
	if out.AuthBadge == "" {
		out.AuthBadge = DefaultScreening.AuthBadge
	}
	return out, err
}

func DecodeSkillSimulation(raw string) (SkillSimulation, error) {
	return decodeInto(raw, DefaultSimulation)
}

func DecodeVersionComparison(raw string) (VersionComparison, error) {
	out, err := decodeInto(raw, DefaultComparison)
	out.KeyChanges = nonNil(out.KeyChanges)
	return out, err
}

func decodeInto[T any](raw string, fallback T) (T, error) {
	fields, err := Object(raw, nil)
	if err != nil {
		return fallback, err
	}

	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return fallback, &Error{Raw: raw, Err: err}
	}

	if err := decoder.Decode(fields); err != nil {
		return fallback, &Error{Raw: raw, Err: err}
	}

	return out, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
