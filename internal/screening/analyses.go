package screening

import (
	"context"
	"strings"

	"github.com/spigell/nexhire/internal/decode"
	"github.com/spigell/nexhire/internal/prompts"
	"github.com/spigell/nexhire/internal/store"
)

var (
	atsScore = structured(store.ModeCandidate, "ATS Score", prompts.ATS,
		decode.DecodeScoreSummary, decode.DefaultScoreSummary)
	fit = structured(store.ModeCandidate, "Job Fit Analysis", prompts.Fit,
		decode.DecodeSkillBreakdown, decode.DefaultSkillBreakdown)
	keywordGap = structured(store.ModeCandidate, "Keyword Gap", prompts.KeywordGap,
		decode.DecodeKeywordGap, decode.DefaultKeywordGap)
	simulation = structured(store.ModeCandidate, "What-If Simulator", prompts.SimulateSkill,
		decode.DecodeSkillSimulation, decode.DefaultSimulation)
	comparison = structured(store.ModeCandidate, "Compare Versions", prompts.CompareVersions,
		decode.DecodeVersionComparison, decode.DefaultComparison)
	screen = structured(store.ModeRecruiter, "Screening", prompts.Screening,
		decode.DecodeScreening, decode.DefaultScreening)

	feedback      = freeText(store.ModeCandidate, "Feedback", prompts.Feedback)
	insights      = freeText(store.ModeCandidate, "Experience Alignment", prompts.Insights)
	improvements  = freeText(store.ModeCandidate, "Improvement Suggestions", prompts.Improvements)
	interviewPrep = freeText(store.ModeCandidate, "Interview Prep", prompts.InterviewPrep)
	roadmap       = freeText(store.ModeCandidate, "30-Day Plan", prompts.Roadmap)
	coverLetter   = freeText(store.ModeCandidate, "Cover Letter", prompts.CoverLetter)
	explainScore  = freeText(store.ModeRecruiter, "Explain Score", prompts.ExplainScore)
)

// ATSScore estimates how well the résumé passes an applicant tracking system.
func (s *Service) ATSScore(ctx context.Context, in Input) (*Result[decode.ScoreSummary], error) {
	return run(ctx, s, atsScore, in)
}

// Feedback lists what the résumé is missing for the job.
func (s *Service) Feedback(ctx context.Context, in Input) (*Result[decode.FreeTextAdvice], error) {
	return run(ctx, s, feedback, in)
}

// AnalyzeFit scores role readiness with a matched, partial and missing skill breakdown.
func (s *Service) AnalyzeFit(ctx context.Context, in Input) (*Result[decode.SkillBreakdown], error) {
	return run(ctx, s, fit, in)
}

func (s *Service) Insights(ctx context.Context, in Input) (*Result[decode.FreeTextAdvice], error) {
	return run(ctx, s, insights, in)
}

func (s *Service) Improvements(ctx context.Context, in Input) (*Result[decode.FreeTextAdvice], error) {
	return run(ctx, s, improvements, in)
}

func (s *Service) InterviewPrep(ctx context.Context, in Input) (*Result[decode.FreeTextAdvice], error) {
	return run(ctx, s, interviewPrep, in)
}

func (s *Service) Roadmap(ctx context.Context, in Input) (*Result[decode.FreeTextAdvice], error) {
	return run(ctx, s, roadmap, in)
}

// SimulateSkill estimates the score after adding in.Skill, starting from in.Score.
func (s *Service) SimulateSkill(ctx context.Context, in Input) (*Result[decode.SkillSimulation], error) {
	if strings.TrimSpace(in.Skill) == "" {
		return nil, &InputError{Field: "skill"}
	}
	return run(ctx, s, simulation, in)
}

// CompareVersions scores in.Resume and in.ResumeV2 against the same job.
func (s *Service) CompareVersions(ctx context.Context, in Input) (*Result[decode.VersionComparison], error) {
	if strings.TrimSpace(in.ResumeV2) == "" {
		return nil, &InputError{Field: "resume_v2"}
	}
	return run(ctx, s, comparison, in)
}

func (s *Service) KeywordGap(ctx context.Context, in Input) (*Result[decode.KeywordGap], error) {
	return run(ctx, s, keywordGap, in)
}

func (s *Service) CoverLetter(ctx context.Context, in Input) (*Result[decode.FreeTextAdvice], error) {
	return run(ctx, s, coverLetter, in)
}

// Screen evaluates a candidate for a recruiter. With in.BiasFree personal
// details are redacted and a prompt that ignores them is used.
func (s *Service) Screen(ctx context.Context, in Input) (*Result[decode.ScreeningResult], error) {
	a := screen
	if in.BiasFree {
		a.prompt = prompts.ScreeningBiasFree
	}
	return run(ctx, s, a, in)
}

// ExplainScore explains the ATS score given in in.Score.
func (s *Service) ExplainScore(ctx context.Context, in Input) (*Result[decode.FreeTextAdvice], error) {
	return run(ctx, s, explainScore, in)
}
