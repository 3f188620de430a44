package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/tokenizer"
)

// BenchmarkTokenize measures tokenisation for inputs of increasing size.
func BenchmarkTokenize(b *testing.B) {
	inputs := []struct {
		name string
		text string
	}{
		{"short", "Concurrent text search"},
		{"medium", body},
		{"long", strings.Repeat(body+" ", 50)},
		{"accented", strings.Repeat("Café naïve résumé façade coöperate ", 20)},
	}
	for _, in := range inputs {
		b.Run(in.name, func(b *testing.B) {
			tok := tokenizer.New(0)
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize(in.text)
			}
		})
	}
}

// BenchmarkStemCache compares a warm stem cache with one too small to hit.
func BenchmarkStemCache(b *testing.B) {
	words := strings.Fields(body)
	for _, size := range []struct {
		name string
		n    int
	}{{"warm", 1000}, {"thrashing", 1}} {
		b.Run(size.name, func(b *testing.B) {
			tok := tokenizer.New(size.n)
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = tok.Stem(words[i%len(words)])
			}
		})
	}
}
