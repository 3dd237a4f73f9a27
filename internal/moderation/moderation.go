// Package moderation screens outbound content. Text is checked
// synchronously by a set of rules that each return a typed Verdict; images
// go through an ImageScreener after the message is already persisted.
package moderation

import (
	"context"
	"regexp"
	"strings"

	goaway "github.com/TwiN/go-away"
	"golang.org/x/text/cases"
)

// Action is what the pipeline should do with the content.
type Action string

const (
	Allow  Action = "allow"
	Flag   Action = "flag"
	Reject Action = "reject"
)

// Severity orders verdicts. The zero value is SeverityNone.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "none"
}

// Verdict is the outcome of one rule or of the whole gate.
type Verdict struct {
	Action   Action
	Reason   string
	Severity Severity
}

// Flagged reports whether any rule matched.
func (v Verdict) Flagged() bool { return v.Action != Allow && v.Action != "" }

// Rule inspects folded text. Input is already case-folded.
type Rule interface {
	Name() string
	Check(text string) Verdict
}

// RuleFunc adapts a function to Rule.
type RuleFunc struct {
	ID string
	Fn func(text string) Verdict
}

func (r RuleFunc) Name() string              { return r.ID }
func (r RuleFunc) Check(text string) Verdict { return r.Fn(text) }

// Gate folds the verdicts of its rules: highest severity wins, and the
// strictest action among matching rules is kept.
type Gate struct {
	rules []Rule
	fold  cases.Caser
}

// NewGate returns a gate over rules. With no rules it uses DefaultRules.
func NewGate(rules ...Rule) *Gate {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Gate{rules: rules, fold: cases.Fold()}
}

// CheckText screens text.
func (g *Gate) CheckText(text string) Verdict {
	folded := g.fold.String(text)
	out := Verdict{Action: Allow}
	for _, r := range g.rules {
		v := r.Check(folded)
		if !v.Flagged() {
			continue
		}
		if v.Severity > out.Severity || out.Reason == "" {
			out.Reason = v.Reason
			if v.Severity > out.Severity {
				out.Severity = v.Severity
			}
		}
		if rank(v.Action) > rank(out.Action) {
			out.Action = v.Action
		}
	}
	return out
}

func rank(a Action) int {
	switch a {
	case Flag:
		return 1
	case Reject:
		return 2
	}
	return 0
}

var (
	violenceRe  = wordsRe("kill", "murder", "stab", "shoot", "strangle", "beat you", "hurt you", "rape")
	substanceRe = wordsRe("cocaine", "coke", "meth", "heroin", "mdma", "molly", "ecstasy", "weed", "xanax", "lsd", "ketamine")
	emailRe     = regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	digitsRe    = regexp.MustCompile(`[0-9][0-9 ().\-]{5,}[0-9]`)
)

func wordsRe(words ...string) *regexp.Regexp {
	q := make([]string, len(words))
	for i, w := range words {
		q[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(` + strings.Join(q, "|") + `)\b`)
}

// DefaultRules is the built-in rule set. None of them reject.
func DefaultRules() []Rule {
	detector := goaway.NewProfanityDetector()
	return []Rule{
		RuleFunc{ID: "profanity", Fn: func(t string) Verdict {
			if detector.IsProfane(t) {
				return Verdict{Action: Flag, Reason: "profanity", Severity: SeverityLow}
			}
			return Verdict{Action: Allow}
		}},
		RuleFunc{ID: "violence", Fn: lexicon(violenceRe, "violence", SeverityHigh)},
		RuleFunc{ID: "contact", Fn: func(t string) Verdict {
			if emailRe.MatchString(t) || hasPhoneLike(t) {
				return Verdict{Action: Flag, Reason: "contactInfo", Severity: SeverityMedium}
			}
			return Verdict{Action: Allow}
		}},
		RuleFunc{ID: "substances", Fn: lexicon(substanceRe, "substances", SeverityMedium)},
	}
}

func lexicon(re *regexp.Regexp, reason string, sev Severity) func(string) Verdict {
	return func(t string) Verdict {
		if re.MatchString(t) {
			return Verdict{Action: Flag, Reason: reason, Severity: sev}
		}
		return Verdict{Action: Allow}
	}
}

// hasPhoneLike reports a run with at least 7 digits, allowing the usual
// separators between them.
func hasPhoneLike(t string) bool {
	for _, m := range digitsRe.FindAllString(t, -1) {
		n := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				n++
			}
		}
		if n >= 7 {
			return true
		}
	}
	return false
}

// ImageVerdict is the outcome of an image screen.
type ImageVerdict string

const (
	ImageSafe   ImageVerdict = "safe"
	ImageUnsafe ImageVerdict = "unsafe"
)

// ImageScreener classifies an uploaded image.
type ImageScreener interface {
	Screen(ctx context.Context, url string) (ImageVerdict, error)
}

// AllowAll is the placeholder screener used until a vendor is configured.
type AllowAll struct{}

func (AllowAll) Screen(context.Context, string) (ImageVerdict, error) { return ImageSafe, nil }

// ScreenImage runs s and treats any failure as safe.
func ScreenImage(ctx context.Context, s ImageScreener, url string) ImageVerdict {
	if s == nil {
		return ImageSafe
	}
	v, err := s.Screen(ctx, url)
	if err != nil || v == "" {
		return ImageSafe
	}
	return v
}
