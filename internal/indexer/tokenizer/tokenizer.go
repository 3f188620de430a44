// Package tokenizer turns raw text into stemmed terms. Text is decomposed,
// stripped of diacritics and of everything except ASCII letters and
// whitespace, lower-cased, split on whitespace, and reduced with the
// Snowball English stemmer.
package tokenizer

import (
	"sort"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultStemCacheSize bounds the memoised stems when no size is given.
const DefaultStemCacheSize = 10000

// Token is a stemmed term and its 1-based position in the tokenized text.
type Token struct {
	Term     string
	Position int
}

// Tokenizer is safe for concurrent use.
type Tokenizer struct {
	stems *lru.Cache[string, string]
}

// New returns a Tokenizer whose stem cache holds up to cacheSize words.
func New(cacheSize int) *Tokenizer {
	if cacheSize <= 0 {
		cacheSize = DefaultStemCacheSize
	}
	// lru.New only fails for a non-positive size.
	stems, _ := lru.New[string, string](cacheSize)
	return &Tokenizer{stems: stems}
}

func keep(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || unicode.IsSpace(r)
}

// Clean normalises text for splitting.
func Clean(text string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return !keep(r) })),
		runes.Map(unicode.ToLower),
	)
	out, _, err := transform.String(t, text)
	if err != nil {
		return ""
	}
	return out
}

// Split cleans text and returns its whitespace separated words.
func Split(text string) []string {
	return strings.Fields(Clean(text))
}

// Stem reduces a cleaned word to its Snowball English stem.
func (t *Tokenizer) Stem(word string) string {
	if s, ok := t.stems.Get(word); ok {
		return s
	}
	s := english.Stem(word, true)
	t.stems.Add(word, s)
	return s
}

// Normalize cleans and stems a single raw word. Input that cleans down to
// more than one word is stemmed as its first word.
func (t *Tokenizer) Normalize(raw string) string {
	words := Split(raw)
	if len(words) == 0 {
		return ""
	}
	return t.Stem(words[0])
}

// Tokenize stems every word of text and numbers the results from 1.
func (t *Tokenizer) Tokenize(text string) []Token {
	words := Split(text)
	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		stem := t.Stem(w)
		if stem == "" {
			continue
		}
		tokens = append(tokens, Token{Term: stem, Position: len(tokens) + 1})
	}
	return tokens
}

// Terms returns the sorted set of distinct stems in line.
func (t *Tokenizer) Terms(line string) []string {
	seen := make(map[string]struct{})
	for _, w := range Split(line) {
		if stem := t.Stem(w); stem != "" {
			seen[stem] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for s := range seen {
		terms = append(terms, s)
	}
	sort.Strings(terms)
	return terms
}
