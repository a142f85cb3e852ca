package index

import (
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/ragline/ragline/internal/model"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

type posting struct {
	chunk int
	tf    int
}

// lexicalSnapshot is immutable once built; Rebuild swaps a fresh one in so
// readers never see a partially built index.
type lexicalSnapshot struct {
	chunks   []*model.Chunk
	postings map[string][]posting
	lengths  []int
	avgLen   float64
}

type LexicalIndex struct {
	snap atomic.Pointer[lexicalSnapshot]
}

func NewLexicalIndex() *LexicalIndex {
	idx := &LexicalIndex{}
	idx.Rebuild(nil)
	return idx
}

func (l *LexicalIndex) Rebuild(chunks []*model.Chunk) {
	snap := &lexicalSnapshot{
		chunks:   chunks,
		postings: make(map[string][]posting),
		lengths:  make([]int, len(chunks)),
	}
	var total int
	for i, chunk := range chunks {
		terms := tokenize(chunk.Content)
		snap.lengths[i] = len(terms)
		total += len(terms)
		counts := make(map[string]int, len(terms))
		for _, term := range terms {
			counts[term]++
		}
		for term, tf := range counts {
			snap.postings[term] = append(snap.postings[term], posting{chunk: i, tf: tf})
		}
	}
	if len(chunks) > 0 {
		snap.avgLen = float64(total) / float64(len(chunks))
	}
	l.snap.Store(snap)
}

// Search scores candidates with Okapi BM25 and returns the best hits,
// filtered to domain when one is given.
func (l *LexicalIndex) Search(query string, domain string, limit int) ([]LexicalHit, error) {
	snap := l.snap.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	if limit <= 0 {
		return nil, nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(terms))
	scores := make(map[int]float64)
	docCount := float64(len(snap.chunks))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		plist := snap.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (docCount-df+0.5)/(df+0.5))
		for _, p := range plist {
			chunk := snap.chunks[p.chunk]
			if domain != "" && chunk.Domain != domain {
				continue
			}
			tf := float64(p.tf)
			norm := 1 - bm25B + bm25B*float64(snap.lengths[p.chunk])/snap.avgLen
			scores[p.chunk] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	hits := make([]LexicalHit, 0, len(scores))
	for idx, score := range scores {
		hits = append(hits, LexicalHit{Chunk: snap.chunks[idx], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Chunk.Ctime != hits[j].Chunk.Ctime {
			return hits[i].Chunk.Ctime > hits[j].Chunk.Ctime
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (l *LexicalIndex) Size() int {
	snap := l.snap.Load()
	if snap == nil {
		return 0
	}
	return len(snap.chunks)
}

func (l *LexicalIndex) Ready() bool {
	return l.snap.Load() != nil
}

func tokenize(text string) []string {
	var terms []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			terms = append(terms, sb.String())
			sb.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return terms
}
