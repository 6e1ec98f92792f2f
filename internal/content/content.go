// Package content cleans user-submitted message text before it is persisted
// or broadcast: markup is stripped and profane terms are masked in place.
package content

import (
	"strings"

	goaway "github.com/TwiN/go-away"
	"github.com/microcosm-cc/bluemonday"
)

type Filter struct {
	policy   *bluemonday.Policy
	detector *goaway.ProfanityDetector
}

// NewFilter builds a filter with the default profanity dictionary plus any
// extra words. Extra words extend the dictionary, they do not replace it.
func NewFilter(extraWords []string) *Filter {
	profanities := goaway.DefaultProfanities
	if len(extraWords) > 0 {
		profanities = append(append([]string{}, profanities...), extraWords...)
	}

	detector := goaway.NewProfanityDetector().WithCustomDictionary(
		profanities,
		goaway.DefaultFalsePositives,
		goaway.DefaultFalseNegatives,
	)

	return &Filter{
		policy:   bluemonday.StrictPolicy(),
		detector: detector,
	}
}

// Sanitize strips all markup from s, leaving plain text.
func (f *Filter) Sanitize(s string) string {
	return strings.TrimSpace(f.policy.Sanitize(s))
}

// Censor masks profane terms in place, preserving the rest of the message.
func (f *Filter) Censor(s string) string {
	return f.detector.Censor(s)
}

// Clean runs the full pipeline: sanitize, then censor.
func (f *Filter) Clean(s string) string {
	return f.Censor(f.Sanitize(s))
}
