package plagiarism

import (
	"strings"
	"unicode"
)

// Normalize collapses whitespace runs to single spaces, trims and lowercases.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Tokenize returns the maximal runs of letters and digits of the normalized text.
// Punctuation and symbols separate tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

// TermFrequency counts occurrences of each token.
func TermFrequency(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, token := range tokens {
		tf[token]++
	}
	return tf
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// stripPunctuation drops every rune that is not a letter, digit or whitespace.
func stripPunctuation(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if isWordRune(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
