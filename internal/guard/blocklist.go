package guard

import (
	"context"
	"regexp"
	"strings"
)

type blocklistConfig struct {
	Terms   []string `json:"terms"`
	MaskPII *bool    `json:"mask_pii"`
}

// blocklistChecker is the in-process checker: a term blocklist plus PII
// handling. Emails and phone numbers are anonymized in place; social
// security numbers block the whole response.
type blocklistChecker struct {
	terms   []string
	maskPII bool
}

var (
	emailRegex = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRegex = regexp.MustCompile(`\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}`)
	ssnRegex   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

func (c *blocklistChecker) Name() string {
	return "blocklist"
}

func (c *blocklistChecker) Check(_ context.Context, text string) (Verdict, error) {
	lower := strings.ToLower(text)
	for _, term := range c.terms {
		if strings.Contains(lower, term) {
			return Verdict{Reason: "blocked term"}, nil
		}
	}
	if ssnRegex.MatchString(text) {
		return Verdict{Reason: "sensitive information"}, nil
	}
	if c.maskPII {
		text = emailRegex.ReplaceAllString(text, "{EMAIL}")
		text = phoneRegex.ReplaceAllString(text, "{PHONE}")
	}
	return Verdict{Safe: true, Text: text}, nil
}

func createBlocklistChecker(args interface{}) (IChecker, error) {
	cfg := &blocklistConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	terms := make([]string, 0, len(cfg.Terms))
	for _, t := range cfg.Terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	maskPII := true
	if cfg.MaskPII != nil {
		maskPII = *cfg.MaskPII
	}
	return &blocklistChecker{terms: terms, maskPII: maskPII}, nil
}

func init() {
	Register("blocklist", createBlocklistChecker)
}
