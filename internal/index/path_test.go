package index

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expectErr bool
		expected  Path
	}{
		{name: "zero path", raw: "0.0", expected: P(0, 0)},
		{name: "multi-digit components", raw: "12.305", expected: P(12, 305)},
		{name: "error - empty string", raw: "", expectErr: true},
		{name: "error - missing row", raw: "3", expectErr: true},
		{name: "error - empty row", raw: "3.", expectErr: true},
		{name: "error - empty section", raw: ".4", expectErr: true},
		{name: "error - negative row", raw: "1.-2", expectErr: true},
		{name: "error - not a number", raw: "a.b", expectErr: true},
		{name: "error - three components", raw: "1.2.3", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.raw)

			if tc.expectErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, p)
		})
	}
}

func TestPath_RoundTrip(t *testing.T) {
	for _, p := range []Path{P(0, 0), P(1, 9), P(40, 2)} {
		t.Run(p.String(), func(t *testing.T) {
			parsed, err := Parse(p.String())
			require.NoError(t, err)
			assert.Equal(t, p, parsed)
		})
	}
}

func TestSortPaths(t *testing.T) {
	paths := []Path{P(1, 0), P(0, 3), P(1, -1), P(0, 1)}

	SortPaths(paths)

	assert.Equal(t, []Path{P(0, 1), P(0, 3), P(1, -1), P(1, 0)}, paths)
}

func TestRowsAndOffset(t *testing.T) {
	paths := []Path{P(0, 1), P(2, 4), P(0, 7)}

	assert.Equal(t, []int{1, 7}, Rows(paths, 0))
	assert.Nil(t, Rows(paths, 1))
	assert.Equal(t, P(3, 6), P(2, 4).Offset(1, 2))
}

func TestPath_JSON(t *testing.T) {
	// --- Arrange ---
	in := map[string][]Path{"rows": {P(0, 1), P(12, 3)}}

	// --- Act ---
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	var out map[string][]Path
	require.NoError(t, json.Unmarshal(raw, &out))

	// --- Assert ---
	assert.JSONEq(t, `{"rows":["0.1","12.3"]}`, string(raw))
	assert.Equal(t, in, out)

	var bad Path
	assert.Error(t, json.Unmarshal([]byte(`"1"`), &bad))
}
