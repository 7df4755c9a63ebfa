package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCirclesDropsUnparseable(t *testing.T) {
	grid := buildGrid([][]string{{"C", "A"}, {"T", "S"}})

	circles := parseCircles([]string{"0", "3", "nope", "", "17", "-1"}, grid)
	assert.Equal(t, []int{0, 3}, circles)

	markCircles(grid, circles)
	assert.True(t, grid[0][0].Circled)
	assert.True(t, grid[1][1].Circled)
	assert.False(t, grid[0][1].Circled)
}

func TestBlankGridKeepsStructureOnly(t *testing.T) {
	grid := buildGrid([][]string{{"C", "."}, {"T", "S"}})
	grid[0][0].Value = "C"
	grid[0][0].Good = true

	blank := blankGridFrom(grid)
	assert.Empty(t, blank[0][0].Value)
	assert.False(t, blank[0][0].Good)
	assert.True(t, blank[0][1].Black)
	assert.Equal(t, grid[0][0].Parents, blank[0][0].Parents)
}

func TestScopeJSONRoundTrip(t *testing.T) {
	var symbolic Scope
	require.NoError(t, json.Unmarshal([]byte(`"all"`), &symbolic))
	assert.Equal(t, ScopeAll, symbolic.Name)

	var explicit Scope
	require.NoError(t, json.Unmarshal([]byte(`[{"r":1,"c":0}]`), &explicit))
	require.Len(t, explicit.Cells, 1)
	assert.Equal(t, Position{Row: 1, Col: 0}, explicit.Cells[0])

	out, err := json.Marshal(explicit)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"r":1,"c":0}]`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`"everything"`), &symbolic))
}

func TestDecodeParamsRejectsUnknownType(t *testing.T) {
	_, err := DecodeParams("explode", []byte(`{}`))
	require.Error(t, err)
	var unknown ErrUnknownType
	assert.ErrorAs(t, err, &unknown)

	_, err = DecodeParams(TypeReveal, []byte(`{"scope": 42}`))
	assert.Error(t, err)

	params, err := DecodeParams(TypeReveal, []byte(`{"id":"u1","scope":[{"r":0,"c":0}]}`))
	require.NoError(t, err)
	p, ok := params.(RevealParams)
	require.True(t, ok)
	assert.Equal(t, "u1", p.ID)
	require.Len(t, p.Scope.Cells, 1)
}
