package plagiarism

import (
	"math"
)

const (
	cosineWeight  = 0.6
	trigramWeight = 0.4
	gramSize      = 3
)

// CosineSimilarity is the cosine of the term-frequency vectors of both texts.
// It is 0 when either text has no tokens.
func CosineSimilarity(textA, textB string) float64 {
	tokensA := Tokenize(textA)
	tokensB := Tokenize(textB)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	tfA := TermFrequency(tokensA)
	tfB := TermFrequency(tokensB)

	magnitudeA := 0.0
	for _, count := range tfA {
		magnitudeA += float64(count * count)
	}
	magnitudeB := 0.0
	for _, count := range tfB {
		magnitudeB += float64(count * count)
	}
	if magnitudeA == 0 || magnitudeB == 0 {
		return 0.0
	}

	// Terms missing from either side contribute nothing to the dot product.
	dot := 0.0
	for term, countA := range tfA {
		if countB, ok := tfB[term]; ok {
			dot += float64(countA * countB)
		}
	}

	return clamp01(dot / math.Sqrt(magnitudeA*magnitudeB))
}

// TrigramSimilarity compares the punctuation-free, normalized texts by the Dice
// coefficient over their character trigram multisets.
func TrigramSimilarity(textA, textB string) float64 {
	a := []rune(Normalize(stripPunctuation(textA)))
	b := []rune(Normalize(stripPunctuation(textB)))
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if string(a) == string(b) {
		return 1.0
	}
	if len(a) < gramSize || len(b) < gramSize {
		return 0.0
	}

	gramsA := charGrams(a, gramSize)
	total := len(a) - gramSize + 1 + len(b) - gramSize + 1

	shared := 0
	for i := 0; i+gramSize <= len(b); i++ {
		gram := string(b[i : i+gramSize])
		if gramsA[gram] > 0 {
			gramsA[gram]--
			shared++
		}
	}

	return clamp01(2.0 * float64(shared) / float64(total))
}

// PlagiarismSimilarity blends lexical and structural similarity into [0, 1].
func PlagiarismSimilarity(textA, textB string) float64 {
	return combineScores(CosineSimilarity(textA, textB), TrigramSimilarity(textA, textB))
}

// ScorePercent converts a [0, 1] score to a percentage rounded to 2 decimals.
func ScorePercent(score float64) float64 {
	return math.Round(score*100*100) / 100
}

func combineScores(cosine, trigram float64) float64 {
	return math.Min(1.0, cosineWeight*cosine+trigramWeight*trigram)
}

func charGrams(runes []rune, n int) map[string]int {
	grams := make(map[string]int, len(runes))
	for i := 0; i+n <= len(runes); i++ {
		grams[string(runes[i:i+n])]++
	}
	return grams
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
