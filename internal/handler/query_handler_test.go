package handler_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/guard"
	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/errcode"
)

func TestQueryEndpointServesAndCaches(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	seedCorpus(t, ts)
	ts.cheap.replies = []string{"You get 15 PTO days per year."}
	body := map[string]string{"question": "How many PTO days do I get?", "domain": "hr"}

	var answer answerPayload
	resp := do(t, ts.handler, http.MethodPost, "/api/v1/query", body, nil)
	decode(t, resp, &answer)
	require.Equal(t, "You get 15 PTO days per year.", answer.Text)
	require.False(t, answer.Cached)
	require.Equal(t, model.TierCheap, answer.Tier)
	require.NotEmpty(t, answer.Citations)
	require.Equal(t, "Employee Handbook", answer.Citations[0].Title)

	// Word-for-word repeat is served from the cache.
	answer = answerPayload{}
	resp = do(t, ts.handler, http.MethodPost, "/api/v1/query", body, nil)
	decode(t, resp, &answer)
	require.True(t, answer.Cached)
	require.Equal(t, "You get 15 PTO days per year.", answer.Text)
	require.Equal(t, 1, ts.cheap.calls())
}

func TestQueryEndpointValidation(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	seedCorpus(t, ts)

	resp := do(t, ts.handler, http.MethodPost, "/api/v1/query",
		map[string]string{"question": "   ", "domain": "hr"}, nil)
	env := decode(t, resp, nil)
	require.Equal(t, errcode.ErrInvalid, env.Code)

	resp = do(t, ts.handler, http.MethodPost, "/api/v1/query", `{"question":`, nil)
	env = decode(t, resp, nil)
	require.Equal(t, errcode.ErrInvalid, env.Code)
}

func TestQueryEndpointDefaultsDomainToGeneral(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	seedCorpus(t, ts)
	ts.cheap.replies = []string{"Nothing out of the ordinary."}

	resp := do(t, ts.handler, http.MethodPost, "/api/v1/query",
		map[string]string{"question": "Anything I should know?"}, nil)
	var answer answerPayload
	decode(t, resp, &answer)
	require.False(t, answer.Cached)

	// An explicit "general" hits the entry the defaulted request cached.
	resp = do(t, ts.handler, http.MethodPost, "/api/v1/query",
		map[string]string{"question": "Anything I should know?", "domain": "general"}, nil)
	answer = answerPayload{}
	decode(t, resp, &answer)
	require.True(t, answer.Cached)
	require.Equal(t, 1, ts.cheap.calls())
}

func TestQueryEndpointRefusal(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	seedCorpus(t, ts)
	ts.cheap.replies = []string{"The forbidden merger details are attached."}

	resp := do(t, ts.handler, http.MethodPost, "/api/v1/query",
		map[string]string{"question": "How many PTO days do I get?", "domain": "hr"}, nil)
	var answer answerPayload
	decode(t, resp, &answer)
	require.True(t, answer.Refused)
	require.Equal(t, guard.RefusalMessage, answer.Text)
	require.Empty(t, answer.Citations)
}

func TestQueryEndpointGenerationFailure(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	seedCorpus(t, ts)
	ts.cheap.err = errors.New("invalid api key")

	resp := do(t, ts.handler, http.MethodPost, "/api/v1/query",
		map[string]string{"question": "How many PTO days do I get?", "domain": "hr"}, nil)
	env := decode(t, resp, nil)
	require.Equal(t, errcode.ErrGenerationFailed, env.Code)
}

func TestQueryEndpointRateLimit(t *testing.T) {
	ts := newTestServer(t, serverOptions{rateLimit: 200 * time.Millisecond})
	seedCorpus(t, ts)
	ts.cheap.replies = []string{"15 days."}
	body := map[string]string{"question": "How many PTO days do I get?", "domain": "hr"}

	resp := do(t, ts.handler, http.MethodPost, "/api/v1/query", body, nil)
	var answer answerPayload
	decode(t, resp, &answer)
	require.False(t, answer.Refused)

	// Same client, same path, inside the window.
	resp = do(t, ts.handler, http.MethodPost, "/api/v1/query", body, nil)
	env := decode(t, resp, nil)
	require.Equal(t, errcode.ErrTooMany, env.Code)
	require.Equal(t, 1, ts.cheap.calls())
}
