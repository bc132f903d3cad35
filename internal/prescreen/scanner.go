package prescreen

import (
	"regexp"
	"strings"

	appErr "judgecore/pkg/errors"
)

// Rule is one screening pattern. Rules are plain data so deployments can
// tighten or relax the set from configuration without code changes.
type Rule struct {
	// Name identifies the rule in rejection details and logs.
	Name string `yaml:"name"`

	// Pattern is a Go regular expression matched against the raw source.
	Pattern string `yaml:"pattern"`

	// Languages restricts the rule to the listed language ids.
	// Empty means the rule applies to every language.
	Languages []string `yaml:"languages"`

	// Reason is the operator-facing explanation returned to the submitter.
	Reason string `yaml:"reason"`
}

// Match reports which rule rejected a source.
type Match struct {
	RuleName string
	Reason   string
}

type compiledRule struct {
	name      string
	reason    string
	re        *regexp.Regexp
	languages map[string]struct{}
}

// Scanner screens submission sources against a fixed rule set before they
// are queued. Scanning is pure: the same source and language always produce
// the same outcome.
type Scanner struct {
	rules []compiledRule
}

// NewScanner compiles the rule set. A rule that fails to compile is a
// configuration error and rejects the whole set.
func NewScanner(rules []Rule) (*Scanner, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if strings.TrimSpace(rule.Name) == "" {
			return nil, appErr.ValidationError("rule_name", "required")
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.ValidationFailed, "compile screening rule %q failed", rule.Name)
		}
		cr := compiledRule{
			name:   rule.Name,
			reason: rule.Reason,
			re:     re,
		}
		if len(rule.Languages) > 0 {
			cr.languages = make(map[string]struct{}, len(rule.Languages))
			for _, lang := range rule.Languages {
				cr.languages[lang] = struct{}{}
			}
		}
		compiled = append(compiled, cr)
	}
	return &Scanner{rules: compiled}, nil
}

// Scan checks the source against every applicable rule in order and returns
// one match per rule that fired. A nil result means the source is clean.
func (s *Scanner) Scan(languageID, source string) []Match {
	var matches []Match
	for _, rule := range s.rules {
		if rule.languages != nil {
			if _, applies := rule.languages[languageID]; !applies {
				continue
			}
		}
		if rule.re.MatchString(source) {
			reason := rule.reason
			if reason == "" {
				reason = "source matched screening rule " + rule.name
			}
			matches = append(matches, Match{RuleName: rule.name, Reason: reason})
		}
	}
	return matches
}
