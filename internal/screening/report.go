package screening

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/spigell/nexhire/internal/decode"
)

// KindReport is the kind of a full report.
const KindReport decode.Kind = "full_report"

// Report bundles the candidate analyses shown together after a fit analysis.
type Report struct {
	Fit          *Result[decode.SkillBreakdown] `json:"fit"`
	Insights     *Result[decode.FreeTextAdvice] `json:"insights"`
	Improvements *Result[decode.FreeTextAdvice] `json:"improvements"`
}

func (Report) Kind() decode.Kind { return KindReport }

func (r Report) PrimaryScore() int {
	if r.Fit == nil {
		return 0
	}
	return r.Fit.Payload.Score
}

// Degraded reports whether any section is degraded.
func (r Report) Degraded() bool {
	for _, degraded := range []bool{
		r.Fit != nil && r.Fit.Degraded,
		r.Insights != nil && r.Insights.Degraded,
		r.Improvements != nil && r.Improvements.Degraded,
	} {
		if degraded {
			return true
		}
	}
	return false
}

// FullReport runs the fit analysis and then insights and improvements
// concurrently. Every section is always present; the error joins the
// failures of degraded sections.
func (s *Service) FullReport(ctx context.Context, in Input) (*Report, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	report := &Report{}

	var fitErr error
	report.Fit, fitErr = s.AnalyzeFit(ctx, in)

	var (
		g                            errgroup.Group
		insightsErr, improvementsErr error
	)
	g.Go(func() error {
		report.Insights, insightsErr = s.Insights(ctx, in)
		return insightsErr
	})
	g.Go(func() error {
		report.Improvements, improvementsErr = s.Improvements(ctx, in)
		return improvementsErr
	})
	// The group has no context, so a failed section never cancels the other.
	// Wait keeps only the first failure; every section error is joined below.
	_ = g.Wait()

	return report, errors.Join(fitErr, insightsErr, improvementsErr)
}
