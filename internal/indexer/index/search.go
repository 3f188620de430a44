package index

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// QueryResult is one document's match for a query.
type QueryResult struct {
	Where string  `json:"where"`
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

// MarshalJSON prints the score with exactly eight decimals.
func (r QueryResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Where string      `json:"where"`
		Count int         `json:"count"`
		Score json.Number `json:"score"`
	}{
		Where: r.Where,
		Count: r.Count,
		Score: json.Number(strconv.FormatFloat(r.Score, 'f', 8, 64)),
	})
}

// Less orders results by descending score, then descending count, then
// ascending document id.
func (r QueryResult) Less(other QueryResult) bool {
	if r.Score != other.Score {
		return r.Score > other.Score
	}
	if r.Count != other.Count {
		return r.Count > other.Count
	}
	return r.Where < other.Where
}

// accumulator folds matching terms into per-document results for one query.
type accumulator struct {
	ix      *InvertedIndex
	lookup  map[string]*QueryResult
	results []*QueryResult
}

func (ix *InvertedIndex) newAccumulator() *accumulator {
	return &accumulator{
		ix:     ix,
		lookup: make(map[string]*QueryResult),
	}
}

func (a *accumulator) fold(e *termEntry) {
	for doc, positions := range e.docs {
		r, ok := a.lookup[doc]
		if !ok {
			r = &QueryResult{Where: doc}
			a.lookup[doc] = r
			a.results = append(a.results, r)
		}
		r.Count += len(positions)
		r.Score = float64(r.Count) / float64(a.ix.counts[doc])
	}
}

func (a *accumulator) sorted() []QueryResult {
	out := make([]QueryResult, len(a.results))
	for i, r := range a.results {
		out[i] = *r
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Less(out[j])
	})
	return out
}

// Search runs an exact or partial search for the given query terms.
func (ix *InvertedIndex) Search(queries []string, exact bool) []QueryResult {
	if exact {
		return ix.ExactSearch(queries)
	}
	return ix.PartialSearch(queries)
}

// ExactSearch matches only terms present verbatim in the index.
func (ix *InvertedIndex) ExactSearch(queries []string) []QueryResult {
	acc := ix.newAccumulator()
	for _, q := range uniqueTerms(queries) {
		if e, ok := ix.entry(q); ok {
			acc.fold(e)
		}
	}
	return acc.sorted()
}

// PartialSearch matches every term that starts with a query term. The scan
// for each query walks the sorted dictionary from the query and stops at the
// first term without the prefix.
func (ix *InvertedIndex) PartialSearch(queries []string) []QueryResult {
	acc := ix.newAccumulator()
	for _, q := range uniqueTerms(queries) {
		ix.terms.AscendGreaterOrEqual(&termEntry{term: q}, func(e *termEntry) bool {
			if !strings.HasPrefix(e.term, q) {
				return false
			}
			acc.fold(e)
			return true
		})
	}
	return acc.sorted()
}

// uniqueTerms drops duplicate query terms, keeping first occurrence order.
func uniqueTerms(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
