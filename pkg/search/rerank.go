package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mnemohq/mnemo/pkg/message"
)

// DefaultDiversityWeight balances relevance against variety in Rerank.
const DefaultDiversityWeight = 0.3

// RerankOptions control the optional second-pass re-ranking.
type RerankOptions struct {
	// DiversityWeight in [0,1]: higher values punish near-duplicates
	// harder. Zero takes DefaultDiversityWeight.
	DiversityWeight float64

	// AuthorBoosts multiplies scores per author id, e.g. to prefer the
	// asking user's own history. Absent authors keep a 1.0 multiplier.
	AuthorBoosts map[string]float64
}

// Rerank applies a sequential diversity discount and per-author preference,
// then re-sorts. Walking the list in rank order, each result is compared by
// token-set Jaccard similarity against every higher-ranked result already
// passed; each near-duplicate pair (similarity above the tuning threshold)
// multiplies the score by (1 - diversityWeight) * similarity. This is an
// order-dependent discount, not a global optimization.
func (e *Engine) Rerank(results []message.ScoredMessage, opts RerankOptions) []message.ScoredMessage {
	if len(results) == 0 {
		return results
	}

	diversityWeight := opts.DiversityWeight
	if diversityWeight == 0 {
		diversityWeight = DefaultDiversityWeight
	}

	reranked := make([]message.ScoredMessage, len(results))
	copy(reranked, results)

	tokenSets := make([]map[string]struct{}, len(reranked))
	for i := range reranked {
		tokenSets[i] = tokenSet(reranked[i].Text)
	}

	for i := 1; i < len(reranked); i++ {
		for j := 0; j < i; j++ {
			sim := jaccard(tokenSets[i], tokenSets[j])
			if sim > e.tuning.DuplicateThreshold {
				reranked[i].Scores.Combined *= (1 - diversityWeight) * sim
			}
		}
	}

	if len(opts.AuthorBoosts) > 0 {
		for i := range reranked {
			if boost, ok := opts.AuthorBoosts[reranked[i].AuthorID]; ok {
				reranked[i].Scores.Combined *= boost
			}
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Scores.Combined > reranked[j].Scores.Combined
	})

	return reranked
}

// tokenSet splits text into a lowercased set of alphanumeric tokens.
func tokenSet(text string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}

	return set
}

// jaccard computes |a∩b| / |a∪b| over two token sets. Two empty sets are
// treated as dissimilar, not identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
