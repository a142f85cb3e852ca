package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/config"
)

func TestSplitSingleParagraph(t *testing.T) {
	c := NewChunker(config.IngestConfig{})
	pieces := c.Split(context.Background(), "Employees accrue vacation days monthly.")
	require.Len(t, pieces, 1)
	require.Equal(t, 0, pieces[0].Position)
	require.Equal(t, "", pieces[0].Section)
	require.Contains(t, pieces[0].Content, "Employees accrue vacation days monthly.")
}

func TestSplitHeadingsStartNewPieces(t *testing.T) {
	content := "# Vacation Policy\n\n" +
		"Employees accrue days monthly.\n\n" +
		"## Carryover\n\n" +
		"Up to five days carry over.\n"

	c := NewChunker(config.IngestConfig{})
	pieces := c.Split(context.Background(), content)
	require.Len(t, pieces, 2)

	require.Equal(t, "Vacation Policy", pieces[0].Section)
	require.Contains(t, pieces[0].Content, "Heading: Vacation Policy")
	require.Contains(t, pieces[0].Content, "Employees accrue days monthly.")
	require.Equal(t, 0, pieces[0].Position)

	require.Equal(t, "Carryover", pieces[1].Section)
	require.Contains(t, pieces[1].Content, "Up to five days carry over.")
	require.Equal(t, 1, pieces[1].Position)
}

func TestSplitSmallCodeBlockRidesAlong(t *testing.T) {
	content := "Run the setup script first.\n\n" +
		"```go\nx := 1\n```\n"

	c := NewChunker(config.IngestConfig{})
	pieces := c.Split(context.Background(), content)
	require.Len(t, pieces, 1)
	require.Contains(t, pieces[0].Content, "Run the setup script first.")
	require.Contains(t, pieces[0].Content, "```go")
	require.Contains(t, pieces[0].Content, "x := 1")
}

func TestSplitLargeCodeBlockStandsAlone(t *testing.T) {
	content := "one two three four five six seven eight\n\n" +
		"```python\nprint(\"a long line with many words inside it\")\n```\n"

	c := NewChunker(config.IngestConfig{ChunkTokenLimit: 10})
	pieces := c.Split(context.Background(), content)
	require.Len(t, pieces, 2)
	require.Contains(t, pieces[0].Content, "one two three")
	require.NotContains(t, pieces[0].Content, "```")
	require.Contains(t, pieces[1].Content, "```python")
}

func TestSplitOverlapCarriesTailForward(t *testing.T) {
	content := "alpha beta gamma delta\n\n" +
		"epsilon zeta eta theta\n\n" +
		"iota kappa lambda mu\n"

	c := NewChunker(config.IngestConfig{ChunkTokenLimit: 10, ChunkTokenOverlap: 5})
	pieces := c.Split(context.Background(), content)
	require.Len(t, pieces, 2)

	// The tail of the first piece repeats at the head of the second.
	require.True(t, strings.HasPrefix(pieces[0].Content, "alpha"))
	require.Contains(t, pieces[0].Content, "epsilon zeta eta theta")
	require.Contains(t, pieces[1].Content, "epsilon zeta eta theta")
	require.True(t, strings.HasSuffix(pieces[1].Content, "mu"))
}

func TestSplitEmptyContent(t *testing.T) {
	c := NewChunker(config.IngestConfig{})
	require.Empty(t, c.Split(context.Background(), ""))
	require.Empty(t, c.Split(context.Background(), "   \n\n   "))
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"hello world", 2},
		{"", 0},
		{"...", 1},
		{"日本語", 4},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, estimateTokens(tt.text), "text %q", tt.text)
	}
}

func TestNewChunkerGuards(t *testing.T) {
	c := NewChunker(config.IngestConfig{ChunkTokenLimit: -1, ChunkTokenOverlap: -5})
	require.Equal(t, 400, c.tokenLimit)
	require.Equal(t, 0, c.tokenOverlap)

	c = NewChunker(config.IngestConfig{ChunkTokenLimit: 10, ChunkTokenOverlap: 20})
	require.Equal(t, 10, c.tokenLimit)
	require.Equal(t, 2, c.tokenOverlap)
}
