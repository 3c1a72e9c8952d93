package bounds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordMatch(t *testing.T) {
	cfg := DefaultNameConfig()
	tests := []struct {
		name string
		want bool
	}{
		{"len", true},
		{"count", true},
		{"Size", true},
		{"num_items", true},
		{"buf_length", true},
		{"total", false},
		{"idx", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.KeywordMatch(tt.name))
		})
	}
}

func TestPrefixMatch(t *testing.T) {
	assert.True(t, PrefixMatch("buf", "buf_len"))
	assert.False(t, PrefixMatch("buf", "buf"))
	assert.False(t, PrefixMatch("", "n"))
	assert.False(t, PrefixMatch("buf", "len_buf"))
}

func TestLongestCommonSubsequence(t *testing.T) {
	assert.Equal(t, 0, LongestCommonSubsequence("", "abc"))
	assert.Equal(t, 3, LongestCommonSubsequence("abc", "xaybzc"))
	assert.Equal(t, 4, LongestCommonSubsequence("data", "datalen"))
}

func TestSubseqMatch(t *testing.T) {
	assert.True(t, SubseqMatch("items", "nitems", 80))
	assert.True(t, SubseqMatch("Items", "ITEMSZ", 80))
	assert.False(t, SubseqMatch("items", "n", 80))
	assert.False(t, SubseqMatch("", "n", 80))
}

func TestMatchNameRuleOrder(t *testing.T) {
	cfg := DefaultNameConfig()
	cands := []Candidate{
		{Key: "k1", Name: "total"},
		{Key: "k2", Name: "count"},
		{Key: "k3", Name: "data_n"},
	}

	// The prefix rule outranks the keyword rule even for a later candidate.
	c, h, ok := cfg.MatchName("data", cands)
	assert.True(t, ok)
	assert.Equal(t, NamePrefix, h)
	assert.Equal(t, Key("k3"), c.Key)

	c, h, ok = cfg.MatchName("xdata", cands)
	assert.True(t, ok)
	assert.Equal(t, NameKeyword, h)
	assert.Equal(t, Key("k2"), c.Key)

	c, h, ok = cfg.MatchName("items", []Candidate{{Key: "k", Name: "nitems"}})
	assert.True(t, ok)
	assert.Equal(t, NameSubseq, h)
	assert.Equal(t, Key("k"), c.Key)

	_, h, ok = cfg.MatchName("buf", []Candidate{{Key: "k", Name: "flags"}, {Key: "self", Name: "buf"}})
	assert.False(t, ok)
	assert.Equal(t, NoHeuristic, h)
}
