package ingest

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/config"
)

// Piece is one chunk of a split document before embedding. Section records
// the nearest level 1 or 2 heading so the retrieval layer can cite it.
type Piece struct {
	Content  string
	Section  string
	Position int
	Tokens   int
}

// Chunker splits markdown or plain text into token-budgeted pieces along
// the document structure. Headings start fresh pieces, fenced code blocks
// stay intact, and consecutive text pieces share a tail overlap so context
// survives the cut.
type Chunker struct {
	tokenLimit   int
	tokenOverlap int
}

func NewChunker(cfg config.IngestConfig) *Chunker {
	limit := cfg.ChunkTokenLimit
	if limit <= 0 {
		limit = 400
	}
	overlap := cfg.ChunkTokenOverlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= limit {
		overlap = limit / 4
	}
	return &Chunker{tokenLimit: limit, tokenOverlap: overlap}
}

func (c *Chunker) Split(ctx context.Context, content string) []Piece {
	logger := logutil.GetLogger(ctx)
	md := goldmark.New()
	reader := text.NewReader([]byte(content))
	doc := md.Parser().Parse(reader)

	var pieces []Piece
	var current []string
	var currentTokens int
	var section string
	position := 0

	flush := func(carryOverlap bool) {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "\n\n")
		if section != "" {
			body = "Heading: " + section + "\n" + body
		}
		pieces = append(pieces, Piece{
			Content:  body,
			Section:  section,
			Position: position,
			Tokens:   estimateTokens(body),
		})
		position++

		if carryOverlap && len(current) > 1 && c.tokenOverlap > 0 {
			overlapTokens := 0
			var overlapParts []string
			for i := len(current) - 1; i >= 0; i-- {
				t := estimateTokens(current[i])
				if overlapTokens+t > c.tokenOverlap {
					break
				}
				overlapTokens += t
				overlapParts = append([]string{current[i]}, overlapParts...)
			}
			current = overlapParts
			currentTokens = overlapTokens
			return
		}
		current = nil
		currentTokens = 0
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			if n.Level == 1 || n.Level == 2 {
				flush(false)
				section = string(n.Text(reader.Source()))
			} else {
				txt := string(n.Text(reader.Source()))
				current = append(current, txt)
				currentTokens += estimateTokens(txt)
			}
		case *ast.FencedCodeBlock:
			lang := string(n.Language(reader.Source()))
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(reader.Source()))
			}
			fenced := "```" + lang + "\n" + code.String() + "\n```"
			tokens := estimateTokens(fenced)
			// Small code blocks ride along with the surrounding text;
			// anything else becomes a piece of its own.
			if currentTokens > 0 && currentTokens+tokens <= c.tokenLimit {
				current = append(current, fenced)
				currentTokens += tokens
			} else {
				flush(false)
				current = append(current, fenced)
				currentTokens = tokens
				flush(false)
			}
		default:
			txt := extractText(n, reader.Source())
			if txt == "" {
				continue
			}
			tokens := estimateTokens(txt)
			if currentTokens+tokens > c.tokenLimit {
				flush(true)
			}
			current = append(current, txt)
			currentTokens += tokens
		}
	}
	flush(false)

	logger.Debug("split content", zap.Int("size", len(content)), zap.Int("pieces", len(pieces)))
	return pieces
}

// estimateTokens counts words for ASCII text and characters for everything
// else, which tracks real tokenizers closely enough for budgeting.
func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Type() == ast.TypeBlock || node.Type() == ast.TypeInline {
			if node.Kind() == ast.KindText {
				sb.Write(node.(*ast.Text).Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
