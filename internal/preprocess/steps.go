package preprocess

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/utils"
)

// Placeholder replaces redacted personal details.
const Placeholder = "[REDACTED]"

type whitespaceFilter struct {
	disabled bool
	reason   string
}

var (
	blankRuns     = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	manyNewlines  = regexp.MustCompile(`\n{3,}`)
	trailingBlank = regexp.MustCompile(`(?m)[ \t]+$`)
)

// NewWhitespace creates a step that collapses runs of blanks and empty lines.
func NewWhitespace() Filter {
	return &whitespaceFilter{}
}

func (f *whitespaceFilter) Name() string { return "whitespace" }

func (f *whitespaceFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *whitespaceFilter) IsEnabled() bool { return !f.disabled }

func (f *whitespaceFilter) Apply(_ context.Context, _ Deps, text string) (string, Step, error) {
	out := strings.ReplaceAll(text, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = blankRuns.ReplaceAllString(out, " ")
	out = trailingBlank.ReplaceAllString(out, "")
	out = manyNewlines.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)

	return out, measure(text, out), nil
}

func (f *whitespaceFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

var personalPatterns = []pattern{
	{name: "header", re: regexp.MustCompile(`(?im)^[ \t]*(?:full name|name|gender|sex|date of birth|dob|birth ?date|age|address|location|nationality|citizenship|marital status|religion)[ \t]*:.*$`)},
	{name: "email", re: regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
	{name: "url", re: regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+|\b(?:linkedin|github)\.com/[^\s<>"]*`)},
	{name: "phone", re: regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?(?:\(\d{2,4}\)[ .\-]?|\d{2,4}[ .\-])\d{3,4}[ .\-]?\d{3,4}\b|\+?\b\d{10,13}\b`)},
}

type redactionFilter struct {
	disabled bool
	reason   string
	counts   map[string]int
}

// NewRedaction creates the bias-free step that hides contact details and
// personal header lines such as name, gender or location.
func NewRedaction() Filter {
	return &redactionFilter{}
}

func (f *redactionFilter) Name() string { return "redaction" }

func (f *redactionFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *redactionFilter) IsEnabled() bool { return !f.disabled }

func (f *redactionFilter) Apply(_ context.Context, deps Deps, text string) (string, Step, error) {
	counts := make(map[string]int, len(personalPatterns))
	dropped := 0

	out := text
	for _, p := range personalPatterns {
		out = p.re.ReplaceAllStringFunc(out, func(match string) string {
			if match == Placeholder {
				return match
			}
			counts[p.name]++
			dropped += utf8.RuneCountInString(match)
			return Placeholder
		})
	}
	f.counts = counts

	if deps.Logger != nil && dropped > 0 {
		deps.Logger.Debug("redacted personal details",
			zap.Int("headers", counts["header"]),
			zap.Int("emails", counts["email"]),
			zap.Int("urls", counts["url"]),
			zap.Int("phones", counts["phone"]),
		)
	}

	initial := utf8.RuneCountInString(text)
	return out, Step{Initial: initial, Dropped: dropped, Left: utf8.RuneCountInString(out)}, nil
}

func (f *redactionFilter) Status() Status {
	details := map[string]string{}
	for name, count := range f.counts {
		details[name] = strconv.Itoa(count)
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type truncateFilter struct {
	disabled bool
	reason   string
	limit    int
}

// NewTruncate creates a step that keeps the first limit runes.
func NewTruncate(limit int) Filter {
	return &truncateFilter{limit: limit}
}

func (f *truncateFilter) Name() string { return "truncate" }

func (f *truncateFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *truncateFilter) IsEnabled() bool { return !f.disabled }

func (f *truncateFilter) Apply(_ context.Context, deps Deps, text string) (string, Step, error) {
	out := utils.TruncateRunes(text, f.limit)
	info := measure(text, out)

	if deps.Logger != nil && info.Dropped > 0 {
		deps.Logger.Info("input truncated",
			zap.Int("limit", f.limit),
			zap.Int("dropped_runes", info.Dropped),
		)
	}

	return out, info, nil
}

func (f *truncateFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"limit": strconv.Itoa(f.limit)},
	}
}
