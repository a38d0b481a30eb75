package screening

import (
	"context"
	"fmt"
	"sort"

	"github.com/spigell/nexhire/internal/decode"
	"github.com/spigell/nexhire/internal/store"
)

// Action names an analysis in the HTTP API and the CLI.
type Action string

const (
	ActionATSScore        Action = "ats-score"
	ActionFeedback        Action = "feedback"
	ActionFit             Action = "fit"
	ActionInsights        Action = "insights"
	ActionImprovements    Action = "improvements"
	ActionInterviewPrep   Action = "interview-prep"
	ActionRoadmap         Action = "roadmap"
	ActionSimulateSkill   Action = "simulate-skill"
	ActionCompareVersions Action = "compare-versions"
	ActionKeywordGap      Action = "keyword-gap"
	ActionCoverLetter     Action = "cover-letter"
	ActionScreen          Action = "screen"
	ActionExplainScore    Action = "explain-score"
	ActionFullReport      Action = "full-report"
)

// Outcome is a Result with the payload type erased.
type Outcome = Result[decode.Variant]

type runner func(ctx context.Context, s *Service, in Input) (*Outcome, error)

var actions = map[Action]struct {
	title string
	run   runner
}{
	ActionATSScore:        {"ATS score", erase((*Service).ATSScore)},
	ActionFeedback:        {"Recruiter feedback", erase((*Service).Feedback)},
	ActionFit:             {"Job fit analysis", erase((*Service).AnalyzeFit)},
	ActionInsights:        {"Experience alignment", erase((*Service).Insights)},
	ActionImprovements:    {"Improvement suggestions", erase((*Service).Improvements)},
	ActionInterviewPrep:   {"Interview preparation", erase((*Service).InterviewPrep)},
	ActionRoadmap:         {"30-day plan", erase((*Service).Roadmap)},
	ActionSimulateSkill:   {"What-if skill simulator", erase((*Service).SimulateSkill)},
	ActionCompareVersions: {"Compare résumé versions", erase((*Service).CompareVersions)},
	ActionKeywordGap:      {"Keyword gap", erase((*Service).KeywordGap)},
	ActionCoverLetter:     {"Cover letter", erase((*Service).CoverLetter)},
	ActionScreen:          {"Recruiter screening", erase((*Service).Screen)},
	ActionExplainScore:    {"Explain score", erase((*Service).ExplainScore)},
	ActionFullReport:      {"Full report", runReport},
}

// ActionInfo describes an available action.
type ActionInfo struct {
	Action Action `json:"action"`
	Title  string `json:"title"`
}

// Actions lists every action sorted by name.
func Actions() []ActionInfo {
	out := make([]ActionInfo, 0, len(actions))
	for action, a := range actions {
		out = append(out, ActionInfo{Action: action, Title: a.title})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}

// UnknownActionError is returned by Run for an unregistered action.
type UnknownActionError struct {
	Action Action
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", string(e.Action))
}

// Run dispatches to the analysis named by action.
func (s *Service) Run(ctx context.Context, action Action, in Input) (*Outcome, error) {
	a, ok := actions[action]
	if !ok {
		return nil, &UnknownActionError{Action: action}
	}
	return a.run(ctx, s, in)
}

func erase[T decode.Variant](method func(*Service, context.Context, Input) (*Result[T], error)) runner {
	return func(ctx context.Context, s *Service, in Input) (*Outcome, error) {
		res, err := method(s, ctx, in)
		if res == nil {
			return nil, err
		}
		return &Outcome{
			Payload:  res.Payload,
			Kind:     res.Kind,
			Mode:     res.Mode,
			Action:   res.Action,
			Model:    res.Model,
			Attempts: res.Attempts,
			Notices:  res.Notices,
			Degraded: res.Degraded,
			Reason:   res.Reason,
		}, err
	}
}

func runReport(ctx context.Context, s *Service, in Input) (*Outcome, error) {
	report, err := s.FullReport(ctx, in)
	if report == nil {
		return nil, err
	}

	out := &Outcome{
		Payload:  *report,
		Kind:     string(KindReport),
		Mode:     store.ModeCandidate,
		Action:   "Full Report",
		Degraded: report.Degraded(),
	}
	if report.Fit != nil {
		out.Model = report.Fit.Model
		out.Notices = report.Fit.Notices
	}
	for _, section := range []int{attempts(report.Fit), attempts(report.Insights), attempts(report.Improvements)} {
		out.Attempts += section
	}
	if err != nil {
		out.Reason = "Some sections of the report could not be generated."
	}
	return out, err
}

func attempts[T decode.Variant](res *Result[T]) int {
	if res == nil {
		return 0
	}
	return res.Attempts
}
