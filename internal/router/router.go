package router

import (
	"strings"
	"sync/atomic"

	"github.com/ragline/ragline/internal/model"
)

// Router decides which model tier serves a query. Route is deterministic:
// the same text and domain against the same policy always produce the same
// decision, so the component stays trivially testable and replayable.
type Router struct {
	policy atomic.Pointer[compiledPolicy]
}

func NewRouter(p *Policy) (*Router, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	cp, err := compile(p)
	if err != nil {
		return nil, err
	}
	r := &Router{}
	r.policy.Store(cp)
	return r, nil
}

// Reload swaps in a new policy table. In-flight Route calls finish against
// the snapshot they started with.
func (r *Router) Reload(p *Policy) error {
	cp, err := compile(p)
	if err != nil {
		return err
	}
	r.policy.Store(cp)
	return nil
}

// Route classifies the query and picks a tier. Domains with an explicit
// policy follow their rule list; everything else goes through the scored
// fallback.
func (r *Router) Route(queryText, domain string) model.RoutingDecision {
	cp := r.policy.Load()
	d := cp.analyze(queryText)
	d.Domain = domain

	sp := cp.policy.Scored
	if d.WordCount > sp.LongQueryWords {
		d.Score += sp.LongQueryPoints
	}
	if d.SentenceCount > sp.ManySentences {
		d.Score++
	}
	if d.Technical {
		d.Score++
	}
	if d.MultiQuestion {
		d.Score++
	}
	if d.Conditional {
		d.Score++
	}

	if dp, ok := cp.policy.Domains[domain]; ok {
		d.Tier = dp.Default
		for _, rule := range dp.Rules {
			if rule.matches(&d) {
				d.Tier = rule.Tier
				break
			}
		}
		return d
	}

	if d.Score >= sp.CapableThreshold {
		d.Tier = model.TierCapable
	} else {
		d.Tier = model.TierCheap
	}
	return d
}

func (rule Rule) matches(d *model.RoutingDecision) bool {
	if rule.MaxWords > 0 && d.WordCount >= rule.MaxWords {
		return false
	}
	if rule.MinWords > 0 && d.WordCount <= rule.MinWords {
		return false
	}
	if rule.Conditional != nil && d.Conditional != *rule.Conditional {
		return false
	}
	if rule.MultiQuestion != nil && d.MultiQuestion != *rule.MultiQuestion {
		return false
	}
	return true
}

func (cp *compiledPolicy) analyze(queryText string) model.RoutingDecision {
	lower := strings.ToLower(queryText)
	d := model.RoutingDecision{
		WordCount:     len(strings.Fields(queryText)),
		SentenceCount: countSentences(queryText),
		MultiQuestion: strings.Count(queryText, "?") > 1,
	}
	for _, term := range cp.techTerms {
		if strings.Contains(lower, term) {
			d.Technical = true
			break
		}
	}
	if cp.condRe != nil && cp.condRe.MatchString(lower) {
		d.Conditional = true
	}
	return d
}

// countSentences counts non-empty runs between sentence terminators. Text
// with no terminator at all still counts as one sentence.
func countSentences(text string) int {
	n := 0
	inSentence := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if inSentence {
				n++
				inSentence = false
			}
		default:
			if !isSpace(r) {
				inSentence = true
			}
		}
	}
	if inSentence {
		n++
	}
	return n
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
