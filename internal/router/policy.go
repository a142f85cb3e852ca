package router

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ragline/ragline/internal/model"
)

// Rule is one override clause in a domain policy. All set conditions must
// hold for the rule to fire; the first firing rule decides the tier.
type Rule struct {
	MaxWords      int    `json:"max_words,omitempty"`      // fires when word count < MaxWords
	MinWords      int    `json:"min_words,omitempty"`      // fires when word count > MinWords
	Conditional   *bool  `json:"conditional,omitempty"`    // fires when conditional phrasing matches
	MultiQuestion *bool  `json:"multi_question,omitempty"` // fires when the multi-question flag matches
	Tier          string `json:"tier"`
}

// DomainPolicy fixes the tier for one domain: the default applies unless an
// override rule fires.
type DomainPolicy struct {
	Default string `json:"default"`
	Rules   []Rule `json:"rules,omitempty"`
}

// ScoredPolicy is the fallback for domains without an explicit policy.
// Feature points accumulate into a score; at or above the threshold the
// query goes to the capable tier.
type ScoredPolicy struct {
	LongQueryWords   int `json:"long_query_words"`
	LongQueryPoints  int `json:"long_query_points"`
	ManySentences    int `json:"many_sentences"`
	CapableThreshold int `json:"capable_threshold"`
}

// Policy is the full routing table. It round-trips through JSON so
// deployments can override the built-in table with a file.
type Policy struct {
	Domains          map[string]DomainPolicy `json:"domains"`
	Scored           ScoredPolicy            `json:"scored"`
	TechnicalTerms   []string                `json:"technical_terms"`
	ConditionalWords []string                `json:"conditional_words"`
}

func boolPtr(v bool) *bool { return &v }

// DefaultPolicy encodes the shipped routing table. Legal queries default to
// the capable tier with a cheap carve-out for short unconditional questions;
// HR queries default to cheap and escalate on length or multiple questions.
func DefaultPolicy() *Policy {
	return &Policy{
		Domains: map[string]DomainPolicy{
			"legal": {
				Default: model.TierCapable,
				Rules: []Rule{
					{MaxWords: 20, Conditional: boolPtr(false), Tier: model.TierCheap},
				},
			},
			"hr": {
				Default: model.TierCheap,
				Rules: []Rule{
					{MinWords: 100, Tier: model.TierCapable},
					{MultiQuestion: boolPtr(true), Tier: model.TierCapable},
				},
			},
		},
		Scored: ScoredPolicy{
			LongQueryWords:   50,
			LongQueryPoints:  2,
			ManySentences:    3,
			CapableThreshold: 3,
		},
		TechnicalTerms: []string{
			"algorithm", "implementation", "architecture", "deployment",
			"configuration", "infrastructure", "optimization", "integration",
			"compliance", "regulation", "statute", "provision",
		},
		ConditionalWords: []string{"if", "when", "unless", "provided", "assuming"},
	}
}

// LoadPolicyFile reads a policy table from disk. Fields left empty in the
// file fall back to the defaults so a partial override stays valid.
func LoadPolicyFile(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	p := DefaultPolicy()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode policy file: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) validate() error {
	for domain, dp := range p.Domains {
		if dp.Default != model.TierCheap && dp.Default != model.TierCapable {
			return fmt.Errorf("policy domain %q: invalid default tier %q", domain, dp.Default)
		}
		for i, rule := range dp.Rules {
			if rule.Tier != model.TierCheap && rule.Tier != model.TierCapable {
				return fmt.Errorf("policy domain %q rule %d: invalid tier %q", domain, i, rule.Tier)
			}
		}
	}
	if p.Scored.CapableThreshold <= 0 {
		return fmt.Errorf("policy: capable_threshold must be positive")
	}
	return nil
}

// compiledPolicy precompiles the vocabulary matchers so Route stays
// allocation-light on the hot path.
type compiledPolicy struct {
	policy    *Policy
	condRe    *regexp.Regexp
	techTerms []string
}

func compile(p *Policy) (*compiledPolicy, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	cp := &compiledPolicy{policy: p}
	if len(p.ConditionalWords) > 0 {
		words := make([]string, 0, len(p.ConditionalWords))
		for _, w := range p.ConditionalWords {
			words = append(words, regexp.QuoteMeta(strings.ToLower(w)))
		}
		re, err := regexp.Compile(`\b(` + strings.Join(words, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile conditional words: %w", err)
		}
		cp.condRe = re
	}
	cp.techTerms = make([]string, 0, len(p.TechnicalTerms))
	for _, t := range p.TechnicalTerms {
		cp.techTerms = append(cp.techTerms, strings.ToLower(t))
	}
	return cp, nil
}
