package genres

import (
	"fmt"
	"sort"
	"strings"
)

// Pairwise similarity levels.
const (
	ExactScore     = 1.0
	SubstringScore = 0.9
	ClusterScore   = 0.7

	// BothUnknownScore applies when neither artist has usable genres.
	BothUnknownScore = 0.5
	// OneUnknownScore applies when exactly one artist has usable genres.
	OneUnknownScore = 0.2
)

// Match explains how one candidate genre scored against the base genres.
type Match struct {
	Genre     string  `json:"genre"`
	BestMatch string  `json:"bestMatch,omitempty"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

// Result is the outcome of comparing two genre lists.
type Result struct {
	Score   float64 `json:"score"`
	Matches []Match `json:"matches,omitempty"`
}

// Similarity scores two genres. It is symmetric.
func Similarity(a, b string) float64 {
	score, _ := pairwise(normalize(a), normalize(b))
	return score
}

func pairwise(a, b string) (float64, string) {
	if a == "" || b == "" {
		return 0, "none"
	}
	if a == b {
		return ExactScore, "exact"
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return SubstringScore, "substring"
	}
	ca, okA := ClusterOf(a)
	cb, okB := ClusterOf(b)
	if !okA || !okB {
		return 0, "none"
	}
	if ca == cb {
		return ClusterScore, fmt.Sprintf("cluster:%s", ca)
	}
	if w := ClusterWeight(ca, cb); w > 0 {
		return w, fmt.Sprintf("adjacent:%s~%s", ca, cb)
	}
	return 0, "none"
}

// Compare scores a candidate's genres against a base artist's genres.
//
// The score is the mean over candidate genres of each genre's best match
// against any base genre, so a candidate sharing one strong genre is not
// diluted by unrelated secondary genres. Lists that are empty or only
// "unknown" get fixed scores.
func Compare(base, candidate []string) Result {
	b := known(base)
	c := known(candidate)

	switch {
	case len(b) == 0 && len(c) == 0:
		return Result{Score: BothUnknownScore}
	case len(b) == 0 || len(c) == 0:
		return Result{Score: OneUnknownScore}
	}

	matches := make([]Match, 0, len(c))
	var total float64
	for _, cg := range c {
		best := Match{Genre: cg, Reason: "none"}
		for _, bg := range b {
			score, reason := pairwise(cg, bg)
			if score > best.Score {
				best.Score = score
				best.BestMatch = bg
				best.Reason = reason
			}
		}
		total += best.Score
		matches = append(matches, best)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return Result{
		Score:   total / float64(len(c)),
		Matches: matches,
	}
}

// known normalizes genres and drops blanks, "unknown" and duplicates.
func known(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]bool, len(genres))
	for _, g := range genres {
		n := normalize(g)
		if n == "" || n == "unknown" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
