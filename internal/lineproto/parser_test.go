package lineproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSingleLine(t *testing.T) {
	p := NewParser(nil)

	records := p.Feed("356#8#01,02,03,04,05,06,07,08\n")
	require.Len(t, records, 1)
	assert.Equal(t, "356", records[0].RawID)
	assert.Equal(t, 8, records[0].DLC)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, records[0].Data)
	assert.Zero(t, p.Dropped())
}

func TestFeedReassemblesAcrossChunks(t *testing.T) {
	p := NewParser(nil)

	records := p.Feed("123#8#01,02")
	assert.Empty(t, records)

	records = p.Feed(",03,04,05,06,07,08\n")
	require.Len(t, records, 1)
	assert.Equal(t, "123", records[0].RawID)
	assert.Equal(t, 8, records[0].DLC)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, records[0].Data)
}

func TestFeedMultipleLinesOneChunk(t *testing.T) {
	p := NewParser(nil)

	records := p.Feed("100#2#AA,BB\n200#1#CC\n300#0#")
	require.Len(t, records, 2)
	assert.Equal(t, "100", records[0].RawID)
	assert.Equal(t, []byte{0xAA, 0xBB}, records[0].Data)
	assert.Equal(t, "200", records[1].RawID)
	assert.Equal(t, []byte{0xCC}, records[1].Data)

	// The unterminated third line completes on the next chunk.
	records = p.Feed("\n")
	require.Len(t, records, 1)
	assert.Equal(t, "300", records[0].RawID)
	assert.Equal(t, 0, records[0].DLC)
	assert.Empty(t, records[0].Data)
}

func TestFeedDropsMalformedLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"status chatter", "READY\n"},
		{"too few fields", "123#8\n"},
		{"too many fields", "123#8#01#extra\n"},
		{"empty identifier", "#8#01\n"},
		{"non-numeric dlc", "123#eight#01\n"},
		{"negative dlc", "123#-1#01\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(nil)
			records := p.Feed(tt.line)
			assert.Empty(t, records)
			assert.Equal(t, uint64(1), p.Dropped())
		})
	}
}

func TestFeedSkipsBlankLines(t *testing.T) {
	p := NewParser(nil)

	records := p.Feed("\n\n  \n123#1#FF\n")
	require.Len(t, records, 1)
	assert.Equal(t, "123", records[0].RawID)
	assert.Zero(t, p.Dropped())
}

func TestFeedOmitsBadByteTokens(t *testing.T) {
	p := NewParser(nil)

	// Tokens that are not exactly two hex digits drop out of the data
	// slice without failing the line.
	records := p.Feed("123#4#01,ZZ,0200,FF\n")
	require.Len(t, records, 1)
	assert.Equal(t, 4, records[0].DLC)
	assert.Equal(t, []byte{0x01, 0xFF}, records[0].Data)
	assert.Zero(t, p.Dropped())
}

func TestFeedKeepsHexIdentifierVerbatim(t *testing.T) {
	p := NewParser(nil)

	records := p.Feed("9038FF50#2#12,34\n")
	require.Len(t, records, 1)
	assert.Equal(t, "9038FF50", records[0].RawID)
}
