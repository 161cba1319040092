package consensus_test

import (
	"testing"

	"github.com/consensuskit/bio/pileup/consensus"
	"github.com/grailbio/testutil/expect"
)

func TestResolveIUPAC(t *testing.T) {
	tests := []struct {
		counts consensus.Counter
		want   byte
	}{
		{consensus.Counter{5, 5, 0, 0}, 'M'},
		{consensus.Counter{4, 0, 4, 1}, 'R'},
		{consensus.Counter{2, 0, 0, 2}, 'W'},
		{consensus.Counter{0, 7, 7, 0}, 'S'},
		{consensus.Counter{0, 3, 1, 3}, 'Y'},
		{consensus.Counter{1, 0, 6, 6}, 'K'},
		{consensus.Counter{3, 3, 3, 0}, 'V'},
		{consensus.Counter{3, 3, 0, 3}, 'H'},
		{consensus.Counter{3, 0, 3, 3}, 'D'},
		{consensus.Counter{0, 3, 3, 3}, 'B'},
		{consensus.Counter{3, 3, 3, 3}, 'N'},
		// A single winner is not an ambiguity.
		{consensus.Counter{6, 4, 0, 0}, 'N'},
		{consensus.Counter{0, 0, 0, 0}, 'N'},
	}
	for _, tt := range tests {
		expect.EQ(t, string(consensus.ResolveIUPAC(tt.counts)), string(tt.want), "counts: %v", tt.counts)
	}
}

func TestCounter(t *testing.T) {
	var c consensus.Counter
	for _, b := range []byte("ACGTacgtNn-*") {
		c.Add(b)
	}
	expect.EQ(t, c, consensus.Counter{2, 2, 2, 2})
	expect.EQ(t, c.Total(), 8)
	expect.False(t, c.Add('N'))
	expect.True(t, c.Add('g'))
}
