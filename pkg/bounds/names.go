package bounds

import "strings"

// NameConfig tunes the name correspondence heuristics.
type NameConfig struct {
	// Prefixes a length name may start with.
	Prefixes []string
	// Substrings a length name may contain.
	Substrings []string
	// SubseqThreshold is the percentage of the array name a common
	// subsequence must cover.
	SubseqThreshold int
}

// DefaultNameConfig returns the built-in keyword lists.
func DefaultNameConfig() NameConfig {
	return NameConfig{
		Prefixes:        []string{"len", "count", "size", "num", "siz"},
		Substrings:      []string{"length"},
		SubseqThreshold: 80,
	}
}

// Candidate is a potential length variable considered by MatchName.
type Candidate struct {
	Key  Key
	Name string
}

// MatchName picks the length candidate for the array named arr. Rules are
// tried in order (prefix, keyword, common subsequence); within a rule the
// first candidate wins.
func (c NameConfig) MatchName(arr string, cands []Candidate) (Candidate, Heuristic, bool) {
	rules := []struct {
		h     Heuristic
		match func(string, string) bool
	}{
		{NamePrefix, PrefixMatch},
		{NameKeyword, func(_ string, cand string) bool { return c.KeywordMatch(cand) }},
		{NameSubseq, func(a, cand string) bool { return SubseqMatch(a, cand, c.SubseqThreshold) }},
	}
	for _, r := range rules {
		for _, cand := range cands {
			if cand.Name == "" || cand.Name == arr {
				continue
			}
			if r.match(arr, cand.Name) {
				return cand, r.h, true
			}
		}
	}
	return Candidate{}, NoHeuristic, false
}

// PrefixMatch reports whether cand starts with the array name.
func PrefixMatch(arr, cand string) bool {
	return arr != "" && cand != arr && strings.HasPrefix(cand, arr)
}

// KeywordMatch reports whether name looks like a length by its spelling.
func (c NameConfig) KeywordMatch(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range c.Prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, s := range c.Substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// SubseqMatch reports whether the case-insensitive longest common
// subsequence of arr and cand covers at least threshold percent of arr.
func SubseqMatch(arr, cand string, threshold int) bool {
	if arr == "" {
		return false
	}
	n := LongestCommonSubsequence(strings.ToLower(arr), strings.ToLower(cand))
	return n*100 >= threshold*len(arr)
}

// LongestCommonSubsequence returns the length of the longest common
// subsequence of a and b, compared bytewise.
func LongestCommonSubsequence(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
