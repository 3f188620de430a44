package index

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/btree"
)

const btreeDegree = 32

// termEntry holds the postings of one term: document id to sorted positions.
type termEntry struct {
	term string
	docs map[string][]int
}

func lessEntry(a, b *termEntry) bool {
	return a.term < b.term
}

// InvertedIndex maps terms to the documents and positions they occur at and
// tracks how many positions each document contributed. It is not safe for
// concurrent use; see ConcurrentIndex.
type InvertedIndex struct {
	terms   *btree.BTreeG[*termEntry]
	counts  map[string]int
	version uint64
}

func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{
		terms:  btree.NewG(btreeDegree, lessEntry),
		counts: make(map[string]int),
	}
}

func (ix *InvertedIndex) entry(term string) (*termEntry, bool) {
	return ix.terms.Get(&termEntry{term: term})
}

// Add records term at position in doc. It returns false when the position
// was already present, in which case the word count is left unchanged.
func (ix *InvertedIndex) Add(term string, position int, doc string) bool {
	e, ok := ix.entry(term)
	if !ok {
		e = &termEntry{term: term, docs: make(map[string][]int)}
		ix.terms.ReplaceOrInsert(e)
	}
	positions := e.docs[doc]
	i := sort.SearchInts(positions, position)
	if i < len(positions) && positions[i] == position {
		return false
	}
	e.docs[doc] = slices.Insert(positions, i, position)
	ix.counts[doc]++
	ix.version++
	return true
}

// AddAll merges other into ix and returns the number of new positions.
func (ix *InvertedIndex) AddAll(other *InvertedIndex) int {
	added := 0
	other.terms.Ascend(func(e *termEntry) bool {
		for doc, positions := range e.docs {
			for _, p := range positions {
				if ix.Add(e.term, p, doc) {
					added++
				}
			}
		}
		return true
	})
	return added
}

func (ix *InvertedIndex) Contains(term string) bool {
	_, ok := ix.entry(term)
	return ok
}

func (ix *InvertedIndex) ContainsDocument(term, doc string) bool {
	e, ok := ix.entry(term)
	if !ok {
		return false
	}
	_, ok = e.docs[doc]
	return ok
}

func (ix *InvertedIndex) ContainsPosition(term, doc string, position int) bool {
	e, ok := ix.entry(term)
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(e.docs[doc], position)
	return found
}

// Positions returns a copy of the positions of term in doc, ascending.
func (ix *InvertedIndex) Positions(term, doc string) []int {
	e, ok := ix.entry(term)
	if !ok {
		return []int{}
	}
	return slices.Clone(e.docs[doc])
}

// Documents returns the sorted ids of documents containing term.
func (ix *InvertedIndex) Documents(term string) []string {
	e, ok := ix.entry(term)
	if !ok {
		return []string{}
	}
	return sortedKeys(e.docs)
}

// Terms returns every indexed term in ascending order.
func (ix *InvertedIndex) Terms() []string {
	terms := make([]string, 0, ix.terms.Len())
	ix.terms.Ascend(func(e *termEntry) bool {
		terms = append(terms, e.term)
		return true
	})
	return terms
}

// Files returns the sorted ids of every document with a word count.
func (ix *InvertedIndex) Files() []string {
	return sortedKeys(ix.counts)
}

// Count returns the word count of doc, zero when unknown.
func (ix *InvertedIndex) Count(doc string) int {
	return ix.counts[doc]
}

// Counts returns a copy of the per-document word counts.
func (ix *InvertedIndex) Counts() map[string]int {
	out := make(map[string]int, len(ix.counts))
	for doc, n := range ix.counts {
		out[doc] = n
	}
	return out
}

func (ix *InvertedIndex) NumTerms() int {
	return ix.terms.Len()
}

// NumDocuments returns how many documents contain term.
func (ix *InvertedIndex) NumDocuments(term string) int {
	e, ok := ix.entry(term)
	if !ok {
		return 0
	}
	return len(e.docs)
}

// NumPositions returns how many positions term has in doc.
func (ix *InvertedIndex) NumPositions(term, doc string) int {
	e, ok := ix.entry(term)
	if !ok {
		return 0
	}
	return len(e.docs[doc])
}

// Snapshot returns a deep copy of the index suitable for serialization.
func (ix *InvertedIndex) Snapshot() map[string]map[string][]int {
	out := make(map[string]map[string][]int, ix.terms.Len())
	ix.terms.Ascend(func(e *termEntry) bool {
		docs := make(map[string][]int, len(e.docs))
		for doc, positions := range e.docs {
			docs[doc] = slices.Clone(positions)
		}
		out[e.term] = docs
		return true
	})
	return out
}

// Fingerprint hashes the full contents of the index: every term in order,
// its documents in order and their positions, then the word counts. Equal
// fingerprints mean equal indexes.
func (ix *InvertedIndex) Fingerprint() string {
	h := sha256.New()
	ix.terms.Ascend(func(e *termEntry) bool {
		fmt.Fprintf(h, "t%q", e.term)
		for _, doc := range sortedKeys(e.docs) {
			fmt.Fprintf(h, "d%q%v", doc, e.docs[doc])
		}
		return true
	})
	for _, doc := range ix.Files() {
		fmt.Fprintf(h, "c%q=%d", doc, ix.counts[doc])
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}

// Version changes whenever a new position is added.
func (ix *InvertedIndex) Version() uint64 {
	return ix.version
}

func (ix *InvertedIndex) String() string {
	var b strings.Builder
	b.WriteString("{")
	first := true
	ix.terms.Ascend(func(e *termEntry) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s=%v", e.term, e.docs)
		return true
	})
	b.WriteString("}")
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
