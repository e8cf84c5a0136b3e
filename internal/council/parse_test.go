package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelForIndex(t *testing.T) {
	assert.Equal(t, "Response A", labelForIndex(0))
	assert.Equal(t, "Response B", labelForIndex(1))
	assert.Equal(t, "Response Z", labelForIndex(25))
	assert.Equal(t, "Response AA", labelForIndex(26))
	assert.Equal(t, "Response AB", labelForIndex(27))
}

func TestParseRanking(t *testing.T) {
	labels := []string{"Response A", "Response B", "Response C"}

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "well-formed ranking",
			text: "Some analysis here.\n\nFINAL RANKING:\n1. Response B\n2. Response A\n3. Response C",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "marker is case-insensitive",
			text: "final ranking:\n1. Response C\n2. Response B\n3. Response A",
			want: []string{"Response C", "Response B", "Response A"},
		},
		{
			name: "missing marker falls back to the whole text",
			text: "I prefer Response C, then Response A, and finally Response B.",
			want: []string{"Response C", "Response A", "Response B"},
		},
		{
			name: "unknown labels are discarded",
			text: "FINAL RANKING:\n1. Response B\n2. Response Z\n3. Response A\n4. Response C",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "duplicates keep the first occurrence",
			text: "FINAL RANKING:\n1. Response B\n2. Response B\n3. Response A\n4. Response C",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "missing labels are appended in presentation order",
			text: "FINAL RANKING:\n1. Response C",
			want: []string{"Response C", "Response A", "Response B"},
		},
		{
			name: "only the last marker section counts",
			text: "FINAL RANKING:\n1. Response A\n2. Response B\n3. Response C\n\nOn reflection, FINAL RANKING:\n1. Response C\n2. Response B\n3. Response A",
			want: []string{"Response C", "Response B", "Response A"},
		},
		{
			name: "reasoning blocks are stripped before parsing",
			text: "<think>1. Response A seems best</think>FINAL RANKING:\n1. Response B\n2. Response A\n3. Response C",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "irregular spacing between Response and letter",
			text: "FINAL RANKING:\n1. Response  B\n2. Response A\n3. Response C",
			want: []string{"Response B", "Response A", "Response C"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRanking(tt.text, labels)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("no recognizable label is a parse failure", func(t *testing.T) {
		_, err := parseRanking("I cannot decide between these answers.", labels)
		require.Error(t, err)
	})

	t.Run("deterministic on repeated input", func(t *testing.T) {
		text := "FINAL RANKING:\n1. Response B\n2. Response C"
		first, err := parseRanking(text, labels)
		require.NoError(t, err)
		second, err := parseRanking(text, labels)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
