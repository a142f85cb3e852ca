package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type httpConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

// httpChecker delegates to an external moderation endpoint. The endpoint
// receives the candidate text and answers with a verdict; an unreachable
// endpoint is an error, not a pass.
type httpChecker struct {
	endpoint string
	apiKey   string
}

type moderationRequest struct {
	Text string `json:"text"`
}

type moderationResponse struct {
	Safe     bool   `json:"safe"`
	Reason   string `json:"reason"`
	Redacted string `json:"redacted"`
}

func (c *httpChecker) Name() string {
	return "http"
}

func (c *httpChecker) Check(ctx context.Context, text string) (Verdict, error) {
	data, err := json.Marshal(moderationRequest{Text: text})
	if err != nil {
		return Verdict{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return Verdict{}, fmt.Errorf("moderation request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verdict{}, fmt.Errorf("decode moderation response: %w", err)
	}
	if !out.Safe {
		return Verdict{Reason: out.Reason}, nil
	}
	approved := text
	if out.Redacted != "" {
		approved = out.Redacted
	}
	return Verdict{Safe: true, Text: approved}, nil
}

func createHTTPChecker(args interface{}) (IChecker, error) {
	cfg := &httpConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("guard http checker requires an endpoint")
	}
	return &httpChecker{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
	}, nil
}

func init() {
	Register("http", createHTTPChecker)
}
