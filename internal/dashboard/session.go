// Package dashboard owns the interactive scoring state of one district:
// weights, scores, ranking, summary, render mode and highlight. Each event
// replaces the derived state in full; the last event wins.
package dashboard

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/model"
	"github.com/sells-group/riskgrid/internal/overlay"
	"github.com/sells-group/riskgrid/internal/scoring"
	"github.com/sells-group/riskgrid/internal/source"
	"github.com/sells-group/riskgrid/internal/store"
)

// ErrNoDistrict is returned by operations that need loaded data.
var ErrNoDistrict = eris.New("dashboard: no district loaded")

// RunRecorder persists applied scoring runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *store.Run) error
}

// Options configures a Session.
type Options struct {
	Weights  scoring.Weights
	TopN     int
	Names    scoring.NameResolver
	Recorder RunRecorder
	Source   string
}

// Snapshot is the derived state after the latest event.
type Snapshot struct {
	District   string                 `json:"district"`
	Source     string                 `json:"source"`
	Generation uint64                 `json:"generation"`
	Weights    scoring.Weights        `json:"weights"`
	Mode       overlay.Mode           `json:"mode"`
	Cells      int                    `json:"cells"`
	POIs       int                    `json:"pois"`
	Top        []scoring.RankedEntry  `json:"top"`
	Summary    scoring.Summary        `json:"summary"`
	Highlight  overlay.HighlightState `json:"highlight"`
}

// Session is safe for concurrent use.
type Session struct {
	loader source.Loader
	opts   Options

	mu          sync.Mutex
	gen         uint64
	district    *source.District
	source      string
	weights     scoring.Weights
	scored      []scoring.ScoredCell
	top         []scoring.RankedEntry
	summary     scoring.Summary
	mode        overlay.Mode
	table       *overlay.StyleTable
	highlighter *overlay.Highlighter
}

// NewSession creates a session. loader may be nil when districts are only
// set directly.
func NewSession(loader source.Loader, opts Options) *Session {
	if opts.TopN <= 0 {
		opts.TopN = scoring.DefaultTopN
	}
	weights := opts.Weights
	if len(weights) == 0 {
		weights = scoring.DefaultUserWeights()
	}
	table := overlay.NewStyleTable()
	return &Session{
		loader:      loader,
		opts:        opts,
		weights:     weights.Clone(),
		mode:        overlay.Mode{Overall: true},
		table:       table,
		highlighter: overlay.NewHighlighter(table),
	}
}

// Load fetches a district and scores it with the current weights.
func (s *Session) Load(ctx context.Context, name string) (Snapshot, error) {
	if s.loader == nil {
		return Snapshot{}, eris.New("dashboard: no district loader configured")
	}
	d, err := s.loader.LoadDistrict(ctx, name)
	if err != nil {
		return Snapshot{}, eris.Wrapf(err, "dashboard: load %s", name)
	}
	return s.SetDistrict(ctx, d, s.opts.Source)
}

// SetDistrict replaces the loaded data and scores it with the current
// weights.
func (s *Session) SetDistrict(ctx context.Context, d *source.District, sourceName string) (Snapshot, error) {
	if d == nil {
		return Snapshot{}, eris.New("dashboard: nil district")
	}
	s.mu.Lock()
	s.district = d
	s.source = sourceName
	w := s.weights
	s.mu.Unlock()

	return s.apply(ctx, w)
}

// ApplyWeights re-scores the loaded district. POIs are always taken into
// account again.
func (s *Session) ApplyWeights(ctx context.Context, w scoring.Weights) (Snapshot, error) {
	return s.apply(ctx, w.Clone())
}

func (s *Session) apply(ctx context.Context, w scoring.Weights) (Snapshot, error) {
	s.mu.Lock()
	if s.district == nil {
		s.mu.Unlock()
		return Snapshot{}, ErrNoDistrict
	}
	s.gen++
	gen := s.gen
	d := s.district
	scored := scoring.Score(d.Cells, w, d.POIs)
	s.weights = w
	s.scored = scored
	s.summary = scoring.Summarize(scored)
	s.top = scoring.Rank(ctx, scored, s.opts.TopN, nil)
	s.rebuildLocked()
	top := s.top
	s.mu.Unlock()

	// Names may need I/O, so they are resolved outside the lock and only
	// kept if no newer event replaced this one meanwhile.
	if s.opts.Names != nil {
		top = scoring.Rank(ctx, scored, s.opts.TopN, s.opts.Names)
		s.mu.Lock()
		if s.gen == gen {
			s.top = top
		}
		s.mu.Unlock()
	}

	snap := s.Snapshot()
	if s.opts.Recorder != nil && snap.Generation == gen {
		run := &store.Run{
			District: snap.District,
			Source:   snap.Source,
			Weights:  w,
			Summary:  snap.Summary,
			Top:      top,
		}
		if err := s.opts.Recorder.SaveRun(ctx, run); err != nil {
			zap.L().Warn("dashboard: record run failed", zap.String("district", snap.District), zap.Error(err))
		}
	}
	return snap, nil
}

// SetAttribute selects attr as the single-attribute render mode and turns
// the overall mode off. Selecting the active attribute again clears it.
func (s *Session) SetAttribute(attr string) (overlay.Mode, error) {
	if !scoring.IsCriterion(attr) {
		return overlay.Mode{}, eris.Errorf("dashboard: unknown attribute %q", attr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mode.Overall && s.mode.Attribute == attr {
		s.mode = overlay.Mode{}
	} else {
		s.mode = overlay.Mode{Attribute: attr}
	}
	s.rebuildLocked()
	return s.mode, nil
}

// ShowOverall switches the overall render mode on or off. The selected
// attribute is kept and takes effect again when overall is off.
func (s *Session) ShowOverall(on bool) overlay.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode.Overall = on
	s.rebuildLocked()
	return s.mode
}

// Highlight selects key, or clears the highlight when key is empty.
func (s *Session) Highlight(key string) overlay.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlighter.Select(key)
}

// Snapshot returns the current derived state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Source:     s.source,
		Generation: s.gen,
		Weights:    s.weights.Clone(),
		Mode:       s.mode,
		Top:        append([]scoring.RankedEntry(nil), s.top...),
		Summary:    s.summary,
		Highlight:  s.highlighter.State(),
	}
	if s.district != nil {
		snap.District = s.district.Name
		snap.Cells = len(s.district.Cells)
		snap.POIs = len(s.district.POIs)
	}
	return snap
}

// Scores returns the scored cells of the latest event.
func (s *Session) Scores() []scoring.ScoredCell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scoring.ScoredCell(nil), s.scored...)
}

// Styles returns the rendered style of every indexed feature.
func (s *Session) Styles() map[string]overlay.Style {
	return s.table.Styles()
}

// Legend returns the legend of the current mode.
func (s *Session) Legend() overlay.LegendSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return overlay.Legend(s.mode)
}

// Popup returns the popup text of feature key.
func (s *Session) Popup(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.scored {
		if c.GID == key {
			return overlay.Popup(c), true
		}
	}
	return "", false
}

func (s *Session) rebuildLocked() {
	idx := overlay.BuildIndex(s.scored, overlay.NewResolver(s.mode, s.poisLocked()))
	s.highlighter.Rebuild(idx)
}

func (s *Session) poisLocked() []model.POI {
	if s.district == nil {
		return nil
	}
	return s.district.POIs
}
