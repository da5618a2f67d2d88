package overlay

import (
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskgrid/internal/model"
	"github.com/sells-group/riskgrid/internal/scoring"
)

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Load(features []*Feature) { m.Called(features) }
func (m *mockRenderer) Emphasize(key string)     { m.Called(key) }
func (m *mockRenderer) Restore(key string)       { m.Called(key) }
func (m *mockRenderer) Focus(key string, b orb.Bound) {
	m.Called(key, b)
}

// tenCells returns cells gid 1..10 with distinct scores and small squares.
func tenCells() []scoring.ScoredCell {
	out := make([]scoring.ScoredCell, 10)
	for i := range out {
		x := float64(i)
		g := model.DecodeGeometry([]byte(fmt.Sprintf(
			`{"type":"Polygon","coordinates":[[[%g,0],[%g,0],[%g,1],[%g,0]]]}`, x, x+1, x+1, x)))
		out[i] = scoring.ScoredCell{
			GridCell:     model.NewGridCell(map[string]any{"gid": fmt.Sprint(i + 1)}, g),
			OverallScore: float64(i+1) / 10,
			Scored:       true,
		}
	}
	return out
}

func newHighlighted(t *testing.T) (*Highlighter, *StyleTable) {
	t.Helper()
	table := NewStyleTable()
	h := NewHighlighter(table)
	h.Rebuild(BuildIndex(tenCells(), NewResolver(Mode{Overall: true}, nil)))
	return h, table
}

func emphasized(table *StyleTable) []string {
	var keys []string
	for k, s := range table.Styles() {
		if s.Color == ColorEmphasis {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestHighlighter_SwitchKeepsSingleEmphasis(t *testing.T) {
	h, table := newHighlighted(t)
	base5, _ := table.Style("5")

	out := h.Select("5")
	assert.Equal(t, TransitionHighlighted, out.Transition)
	assert.Equal(t, []string{"5"}, emphasized(table))

	out = h.Select("7")
	assert.Equal(t, TransitionSwitched, out.Transition)
	assert.Equal(t, "5", out.Previous)
	assert.Equal(t, HighlightState{Key: "7"}, h.State())
	assert.Equal(t, []string{"7"}, emphasized(table))

	s5, _ := table.Style("5")
	assert.Equal(t, base5, s5)

	key, b, ok := table.Focused()
	require.True(t, ok)
	assert.Equal(t, "7", key)
	assert.Equal(t, 6.0, b.Min.X())
}

func TestHighlighter_ToggleLaw(t *testing.T) {
	h, table := newHighlighted(t)
	before := table.Styles()

	assert.Equal(t, TransitionHighlighted, h.Select("3").Transition)
	assert.Equal(t, TransitionCleared, h.Select("3").Transition)

	assert.False(t, h.State().Active())
	assert.Equal(t, before, table.Styles())
}

func TestHighlighter_UnknownKeyIsNoOp(t *testing.T) {
	h, table := newHighlighted(t)
	h.Select("2")
	before := table.Styles()

	out := h.Select("999")
	assert.Equal(t, TransitionNotFound, out.Transition)
	assert.Equal(t, HighlightState{Key: "2"}, out.State)
	assert.Equal(t, before, table.Styles())
}

func TestHighlighter_Clear(t *testing.T) {
	h, table := newHighlighted(t)

	assert.Equal(t, TransitionNone, h.Clear().Transition)

	h.Select("4")
	out := h.Clear()
	assert.Equal(t, TransitionCleared, out.Transition)
	assert.Equal(t, "4", out.Previous)
	assert.Empty(t, emphasized(table))

	h.Select("4")
	assert.Equal(t, TransitionCleared, h.Select("").Transition)
}

func TestHighlighter_RebuildResetsAndStaleKeysNotFound(t *testing.T) {
	h, table := newHighlighted(t)
	h.Select("9")

	h.Rebuild(BuildIndex(tenCells()[:3], NewResolver(Mode{}, nil)))
	assert.False(t, h.State().Active())
	assert.Empty(t, emphasized(table))
	assert.Len(t, table.Styles(), 3)

	assert.Equal(t, TransitionNotFound, h.Select("9").Transition)
	assert.Equal(t, TransitionHighlighted, h.Select("2").Transition)
}

func TestHighlighter_DrivesRenderer(t *testing.T) {
	r := new(mockRenderer)
	r.On("Load", mock.Anything).Return()
	r.On("Emphasize", "1").Return()
	r.On("Focus", "1", mock.Anything).Return()
	r.On("Restore", "1").Return()
	r.On("Emphasize", "2").Return()
	r.On("Focus", "2", mock.Anything).Return()

	h := NewHighlighter(r)
	h.Rebuild(BuildIndex(tenCells(), NewResolver(Mode{}, nil)))

	h.Select("1")
	h.Select("2")

	r.AssertExpectations(t)
	r.AssertNumberOfCalls(t, "Restore", 1)
}

func TestHighlighter_EmptyIndex(t *testing.T) {
	h := NewHighlighter(NewStyleTable())
	assert.Equal(t, TransitionNotFound, h.Select("1").Transition)
}

func TestBuildIndex(t *testing.T) {
	cells := tenCells()
	cells = append(cells, scoring.ScoredCell{GridCell: model.NewGridCell(map[string]any{"name": "no id"}, nil)})

	idx := BuildIndex(cells, NewResolver(Mode{Overall: true}, nil))
	assert.Equal(t, 10, idx.Len())

	f, ok := idx.Lookup("10")
	require.True(t, ok)
	assert.Equal(t, "#006837", f.Base.FillColor)
	assert.True(t, f.HasBound)

	keys := make([]string, 0, idx.Len())
	for _, f := range idx.Features() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, keys)
}
