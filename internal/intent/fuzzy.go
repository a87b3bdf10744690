package intent

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// phoneticThreshold is the minimum Jaro-Winkler score accepted when
	// the candidate also matches phonetically.
	phoneticThreshold = 0.78

	// fuzzyThreshold is the minimum Jaro-Winkler score accepted on pure
	// string similarity, without phonetic support.
	fuzzyThreshold = 0.88
)

// correctVerb maps a possibly misspelled token to the closest verb in
// candidates, so "attck the goblin" still classifies as an attack.
//
// Candidates that share a Double Metaphone code with the token are ranked
// by Jaro-Winkler at a lenient threshold; without phonetic overlap a
// stricter similarity is required. Returns ("", false) when nothing is
// close enough.
func correctVerb(token string, candidates []string) (string, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return "", false
	}

	p1, s1 := matchr.DoubleMetaphone(token)

	var (
		best      string
		bestScore float64
	)
	for _, cand := range candidates {
		if token == cand {
			return cand, true
		}

		p2, s2 := matchr.DoubleMetaphone(cand)
		phonetic := codesOverlap(p1, s1, p2, s2)

		score := matchr.JaroWinkler(token, cand, false)
		threshold := fuzzyThreshold
		if phonetic {
			threshold = phoneticThreshold
		}
		if score >= threshold && score > bestScore {
			best = cand
			bestScore = score
		}
	}
	return best, best != ""
}

// codesOverlap reports whether the two Double Metaphone code pairs share at
// least one non-empty code.
func codesOverlap(p1, s1, p2, s2 string) bool {
	for _, a := range [2]string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || (s2 != "" && a == s2) {
			return true
		}
	}
	return false
}
