package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	resp  string
	usage TokenUsage
	err   error
	calls int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, TokenUsage, error) {
	f.calls++
	if f.err != nil {
		return "", TokenUsage{}, f.err
	}
	return f.resp, f.usage, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
	model  string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) ModelName() string { return f.model }

type fakeNetErr struct{ timeout bool }

func (e *fakeNetErr) Error() string   { return "dial tcp: i/o timeout" }
func (e *fakeNetErr) Timeout() bool   { return e.timeout }
func (e *fakeNetErr) Temporary() bool { return false }

func TestTransientClassification(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(errors.New("invalid api key")))

	marked := Transient(errors.New("429 too many requests"))
	require.True(t, IsTransient(marked))
	require.Equal(t, "429 too many requests", marked.Error())

	// The marker survives wrapping.
	require.True(t, IsTransient(fmt.Errorf("generate: %w", marked)))

	require.True(t, IsTransient(context.DeadlineExceeded))
	require.True(t, IsTransient(&fakeNetErr{timeout: true}))
	require.False(t, IsTransient(&fakeNetErr{timeout: false}))

	require.NoError(t, Transient(nil))
}

func TestManagerGenerateTierSelection(t *testing.T) {
	cheap := &fakeGenerator{resp: "cheap answer", usage: TokenUsage{InputTokens: 10, OutputTokens: 5}}
	capable := &fakeGenerator{resp: "capable answer"}
	m := NewManager(cheap, capable, nil, ManagerConfig{})

	resp, usage, err := m.Generate(context.Background(), "cheap", "q")
	require.NoError(t, err)
	require.Equal(t, "cheap answer", resp)
	require.Equal(t, int64(10), usage.InputTokens)

	resp, _, err = m.Generate(context.Background(), "capable", "q")
	require.NoError(t, err)
	require.Equal(t, "capable answer", resp)

	// Unknown tiers land on the cheap generator.
	resp, _, err = m.Generate(context.Background(), "", "q")
	require.NoError(t, err)
	require.Equal(t, "cheap answer", resp)
}

func TestManagerGenerateFallsBackAcrossTiers(t *testing.T) {
	cheap := &fakeGenerator{resp: "cheap answer"}
	m := NewManager(cheap, nil, nil, ManagerConfig{})

	resp, _, err := m.Generate(context.Background(), "capable", "q")
	require.NoError(t, err)
	require.Equal(t, "cheap answer", resp)

	m = NewManager(nil, nil, nil, ManagerConfig{})
	_, _, err = m.Generate(context.Background(), "cheap", "q")
	require.Error(t, err)
}

func TestManagerGenerateRejectsEmptyResponse(t *testing.T) {
	m := NewManager(&fakeGenerator{resp: "   \n"}, nil, nil, ManagerConfig{})
	_, _, err := m.Generate(context.Background(), "cheap", "q")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty ai response")
}

func TestManagerEmbed(t *testing.T) {
	m := NewManager(nil, nil, &fakeEmbedder{vector: []float32{1, 2}, model: "embed-1"}, ManagerConfig{})
	vec, err := m.Embed(context.Background(), "text", TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, vec)
	require.Equal(t, "embed-1", m.EmbeddingModelName())

	m = NewManager(nil, nil, nil, ManagerConfig{})
	_, err = m.Embed(context.Background(), "text", TaskTypeQuery)
	require.Error(t, err)
	require.Equal(t, "", m.EmbeddingModelName())
}

func TestManagerCost(t *testing.T) {
	m := NewManager(nil, nil, nil, ManagerConfig{
		Prices: map[string]TierPrice{
			"cheap": {InputPer1K: 0.5, OutputPer1K: 1.5},
		},
	})
	cost := m.Cost("cheap", TokenUsage{InputTokens: 2000, OutputTokens: 1000})
	require.InDelta(t, 2.5, cost, 1e-9)

	require.Zero(t, m.Cost("capable", TokenUsage{InputTokens: 2000}))
}

func TestTokenUsageAdd(t *testing.T) {
	sum := TokenUsage{InputTokens: 1, OutputTokens: 2}.Add(TokenUsage{InputTokens: 10, OutputTokens: 20})
	require.Equal(t, TokenUsage{InputTokens: 11, OutputTokens: 22}, sum)
}

func TestGroupGeneratorFallsThrough(t *testing.T) {
	primary := &fakeGenerator{err: errors.New("quota exceeded")}
	backup := &fakeGenerator{resp: "from backup"}
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "primary", Generator: primary},
		{Name: "backup", Generator: backup},
	})

	resp, _, err := g.Generate(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "from backup", resp)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, backup.calls)
}

func TestGroupGeneratorAllFail(t *testing.T) {
	last := errors.New("second down")
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "a", Generator: &fakeGenerator{err: errors.New("first down")}},
		{Name: "b", Generator: &fakeGenerator{err: last}},
	})

	_, _, err := g.Generate(context.Background(), "q")
	require.ErrorIs(t, err, last)

	require.Nil(t, NewGroupGenerator(nil))
}

func TestGroupEmbedder(t *testing.T) {
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "gemini", Embedder: &fakeEmbedder{err: errors.New("down")}},
		{Name: "openai", Embedder: &fakeEmbedder{vector: []float32{3}}},
	})
	vec, err := g.Embed(context.Background(), "text", TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{3}, vec)
	require.Equal(t, "gemini|openai", g.ModelName())
}

func TestProviderRegistry(t *testing.T) {
	Register("testfake", func(args interface{}) (IProvider, error) {
		return nil, errors.New("factory ran")
	})

	_, err := NewProvider("  TestFake ", map[string]interface{}{})
	require.EqualError(t, err, "factory ran")

	_, err = NewProvider("does-not-exist", nil)
	require.Error(t, err)

	_, err = NewProvider("", nil)
	require.Error(t, err)
}
