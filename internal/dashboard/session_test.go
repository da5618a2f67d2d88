package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskgrid/internal/model"
	"github.com/sells-group/riskgrid/internal/overlay"
	"github.com/sells-group/riskgrid/internal/scoring"
	"github.com/sells-group/riskgrid/internal/source"
	"github.com/sells-group/riskgrid/internal/store"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) LoadDistrict(ctx context.Context, name string) (*source.District, error) {
	args := m.Called(ctx, name)
	d, _ := args.Get(0).(*source.District)
	return d, args.Error(1)
}

type mockNames struct {
	mock.Mock
}

func (m *mockNames) Resolve(ctx context.Context, pts []orb.Point) ([]string, error) {
	args := m.Called(ctx, pts)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) SaveRun(ctx context.Context, run *store.Run) error {
	return m.Called(ctx, run).Error(0)
}

func square(x float64) string {
	return fmt.Sprintf(`{"type":"Polygon","coordinates":[[[%g,0],[%g,0],[%g,1],[%g,1]]]}`, x, x+1, x+1, x)
}

// testDistrict has ten cells whose lighting readings rise with the gid, so
// higher gids score lower.
func testDistrict(t *testing.T) *source.District {
	t.Helper()
	cells := make([]model.GridCell, 10)
	for i := range cells {
		row := fmt.Sprintf(`{"gid":%d,"lighting_r":%d,"location_name":"Ward %d","geometry":%s}`, i+1, i+1, i+1, square(float64(i)))
		require.NoError(t, json.Unmarshal([]byte(row), &cells[i]))
	}
	return &source.District{
		Name:  "Central Delhi",
		Cells: cells,
		POIs:  []model.POI{{Name: "PS Kamla Market", Coords: &model.Coords{X: 0.5, Y: 0.5}}},
	}
}

func loadedSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s := NewSession(nil, opts)
	_, err := s.SetDistrict(context.Background(), testDistrict(t), "geojson")
	require.NoError(t, err)
	return s
}

func TestSession_Load(t *testing.T) {
	loader := new(mockLoader)
	loader.On("LoadDistrict", mock.Anything, "central delhi").Return(testDistrict(t), nil)

	s := NewSession(loader, Options{Source: "postgis"})
	snap, err := s.Load(context.Background(), "central delhi")
	require.NoError(t, err)
	loader.AssertExpectations(t)

	assert.Equal(t, "Central Delhi", snap.District)
	assert.Equal(t, "postgis", snap.Source)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 10, snap.Cells)
	assert.Equal(t, 1, snap.POIs)
	assert.Equal(t, overlay.Mode{Overall: true}, snap.Mode)
	assert.Equal(t, 10, snap.Summary.TotalFeatures)
	assert.Equal(t, 10, snap.Summary.Lighting.Count)

	require.Len(t, snap.Top, 10)
	assert.Equal(t, "1", snap.Top[0].GID)
	assert.Equal(t, "Ward 1", snap.Top[0].Name)
	for i := 1; i < len(snap.Top); i++ {
		assert.GreaterOrEqual(t, snap.Top[i-1].OverallScore, snap.Top[i].OverallScore)
	}

	assert.Len(t, s.Styles(), 10)
	assert.Len(t, s.Scores(), 10)
}

func TestSession_LoadErrors(t *testing.T) {
	loader := new(mockLoader)
	loader.On("LoadDistrict", mock.Anything, "Atlantis").Return(nil, fmt.Errorf("no rows"))

	s := NewSession(loader, Options{})
	_, err := s.Load(context.Background(), "Atlantis")
	assert.ErrorContains(t, err, "dashboard: load Atlantis")

	_, err = NewSession(nil, Options{}).Load(context.Background(), "x")
	assert.Error(t, err)
}

func TestSession_ApplyWeightsWithoutDistrict(t *testing.T) {
	s := NewSession(nil, Options{})
	_, err := s.ApplyWeights(context.Background(), scoring.DefaultUserWeights())
	assert.ErrorIs(t, err, ErrNoDistrict)
}

func TestSession_ApplyWeightsKeepsPOIs(t *testing.T) {
	s := loadedSession(t, Options{})

	snap, err := s.ApplyWeights(context.Background(), scoring.Weights{scoring.CriterionProximity: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, 1.0, snap.Weights[scoring.CriterionProximity])

	scores := s.Scores()
	// The station sits inside cell 1.
	assert.Equal(t, 1.0, scores[0].OverallScore)
	assert.Contains(t, scores[0].Components, scoring.CriterionProximity)
}

func TestSession_ApplyWeightsIsIdempotent(t *testing.T) {
	s := loadedSession(t, Options{})
	first := s.Scores()

	_, err := s.ApplyWeights(context.Background(), scoring.DefaultUserWeights())
	require.NoError(t, err)
	second := s.Scores()

	for i := range first {
		assert.Equal(t, first[i].OverallScore, second[i].OverallScore)
	}
}

func TestSession_SetAttributeToggle(t *testing.T) {
	s := loadedSession(t, Options{})

	m, err := s.SetAttribute(model.KeyLighting)
	require.NoError(t, err)
	assert.Equal(t, overlay.Mode{Attribute: model.KeyLighting}, m)
	assert.Equal(t, "Lighting Radiance", s.Legend().Title)

	st, ok := s.Styles()["1"]
	require.True(t, ok)
	assert.Equal(t, overlay.AttributeColor(model.KeyLighting, 1.0), st.FillColor)

	m, err = s.SetAttribute(model.KeyLighting)
	require.NoError(t, err)
	assert.Equal(t, overlay.Mode{}, m)
	assert.Equal(t, overlay.ColorNeutral, s.Styles()["1"].FillColor)

	_, err = s.SetAttribute("population")
	assert.ErrorContains(t, err, "unknown attribute")
}

func TestSession_ShowOverall(t *testing.T) {
	s := loadedSession(t, Options{})
	_, err := s.SetAttribute(model.KeyNO2)
	require.NoError(t, err)

	m := s.ShowOverall(true)
	assert.Equal(t, overlay.Mode{Overall: true, Attribute: model.KeyNO2}, m)
	assert.Equal(t, "Overall Rating", s.Legend().Title)

	m = s.ShowOverall(false)
	assert.Equal(t, overlay.Mode{Attribute: model.KeyNO2}, m)
}

func TestSession_HighlightSwitch(t *testing.T) {
	s := loadedSession(t, Options{})

	assert.Equal(t, overlay.TransitionHighlighted, s.Highlight("5").Transition)
	out := s.Highlight("7")
	assert.Equal(t, overlay.TransitionSwitched, out.Transition)

	var emphasized []string
	for k, st := range s.Styles() {
		if st.Color == overlay.ColorEmphasis {
			emphasized = append(emphasized, k)
		}
	}
	assert.Equal(t, []string{"7"}, emphasized)
	assert.Equal(t, overlay.HighlightState{Key: "7"}, s.Snapshot().Highlight)

	assert.Equal(t, overlay.TransitionNotFound, s.Highlight("77").Transition)
	assert.Equal(t, overlay.TransitionCleared, s.Highlight("").Transition)
}

func TestSession_RescoreResetsHighlight(t *testing.T) {
	s := loadedSession(t, Options{})
	s.Highlight("3")

	_, err := s.ApplyWeights(context.Background(), scoring.DefaultUserWeights())
	require.NoError(t, err)
	assert.False(t, s.Snapshot().Highlight.Active())
}

func TestSession_ResolvesNames(t *testing.T) {
	names := new(mockNames)
	names.On("Resolve", mock.Anything, mock.Anything).Return([]string{"Kamla Market"}, nil)

	s := loadedSession(t, Options{TopN: 2, Names: names})
	snap := s.Snapshot()

	require.Len(t, snap.Top, 2)
	assert.Equal(t, "Kamla Market", snap.Top[0].Name)
	// The resolver returned one name for two points.
	assert.Equal(t, "Ward 2", snap.Top[1].Name)
	names.AssertExpectations(t)
}

func TestSession_RecordsRuns(t *testing.T) {
	rec := new(mockRecorder)
	rec.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *store.Run) bool {
		return r.District == "Central Delhi" && r.Source == "geojson" && len(r.Top) == 10
	})).Return(nil).Once()
	rec.On("SaveRun", mock.Anything, mock.Anything).Return(fmt.Errorf("database is locked")).Once()

	s := loadedSession(t, Options{Recorder: rec})

	// A failed recording does not fail the apply.
	_, err := s.ApplyWeights(context.Background(), scoring.DefaultUserWeights())
	require.NoError(t, err)
	rec.AssertExpectations(t)
}

func TestSession_Popup(t *testing.T) {
	s := loadedSession(t, Options{})

	text, ok := s.Popup("2")
	require.True(t, ok)
	assert.Contains(t, text, "lighting_r: 2")
	assert.Contains(t, text, "Overall Score:")

	_, ok = s.Popup("nope")
	assert.False(t, ok)
}

func TestNewSession_Defaults(t *testing.T) {
	s := NewSession(nil, Options{})
	snap := s.Snapshot()
	assert.Equal(t, scoring.DefaultUserWeights(), snap.Weights)
	assert.Empty(t, snap.District)
	assert.Equal(t, overlay.Mode{Overall: true}, snap.Mode)
	assert.Equal(t, "Overall Rating", s.Legend().Title)
}
