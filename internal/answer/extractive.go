package answer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

const defaultMaxSentences = 3

var sentencePattern = regexp.MustCompile(`(?m)[^.!?\n]+(?:[.!?]+|$)`)

// Extractive answers offline by picking the retrieved sentences that share
// the most weighted terms with the question.
type Extractive struct {
	maxSentences int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewExtractive creates an extractive generator returning up to
// maxSentences sentences. Non-positive values select 3.
func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = defaultMaxSentences
	}
	return &Extractive{
		maxSentences: maxSentences,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this generator.
func (e *Extractive) Name() string { return "extractive" }

// Generate scores every sentence of chunks by the normalized corpus
// frequency of the question terms it contains, and returns the best ones in
// their original order. Sentences sharing no term with the question are
// never selected; if none match, the first sentence of the nearest chunk
// is returned.
func (e *Extractive) Generate(ctx context.Context, query string, chunks []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return NoContentAnswer, nil
	}
	var sentences []string
	for _, ch := range chunks {
		for _, s := range sentencePattern.FindAllString(ch, -1) {
			if s = strings.TrimSpace(s); s != "" {
				sentences = append(sentences, s)
			}
		}
	}
	if len(sentences) == 0 {
		return NoContentAnswer, nil
	}

	queryTerms := map[string]struct{}{}
	for _, tok := range e.tokens(query) {
		queryTerms[tok] = struct{}{}
	}

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = e.tokens(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx   int
		score float64
	}
	var ranked []scored
	for i, toks := range tokens {
		score := 0.0
		for _, tok := range toks {
			if _, ok := queryTerms[tok]; ok {
				score += 1 + freq[tok]/maxF
			}
		}
		if score == 0 {
			continue
		}
		// long sentences should not win on length alone
		score /= math.Sqrt(float64(len(toks)))
		ranked = append(ranked, scored{i, score})
	}
	if len(ranked) == 0 {
		return sentences[0], nil
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	n := min(e.maxSentences, len(ranked))
	selected := make([]int, n)
	for i := range selected {
		selected[i] = ranked[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (e *Extractive) tokens(text string) []string {
	all := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, tok := range all {
		if _, ok := e.stopwords[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "why", "when", "where", "do", "does", "did", "i", "you", "me", "my",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
