package overlay

import (
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/model"
	"github.com/sells-group/riskgrid/internal/scoring"
)

// Feature is one rendered cell.
type Feature struct {
	Key      string
	Cell     scoring.ScoredCell
	Base     Style
	Bound    orb.Bound
	HasBound bool
}

// Index maps feature keys to rendered features. It is rebuilt in full
// whenever the scored collection or the mode changes.
type Index struct {
	features map[string]*Feature
	order    []string
}

// BuildIndex renders cells with r. The key is the cell's gid, falling back
// to id. Cells with neither are rendered nowhere.
func BuildIndex(cells []scoring.ScoredCell, r *Resolver) *Index {
	idx := &Index{features: make(map[string]*Feature, len(cells))}
	for _, c := range cells {
		key := c.GID
		if key == "" {
			zap.L().Debug("overlay: cell without gid or id not indexed")
			continue
		}
		f := &Feature{Key: key, Cell: c, Base: r.Style(c)}
		f.Bound, f.HasBound = model.Bound(c.Geometry)
		if _, dup := idx.features[key]; !dup {
			idx.order = append(idx.order, key)
		}
		idx.features[key] = f
	}
	return idx
}

// Lookup returns the feature for key.
func (i *Index) Lookup(key string) (*Feature, bool) {
	if i == nil {
		return nil, false
	}
	f, ok := i.features[key]
	return f, ok
}

// Len returns the number of indexed features.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.order)
}

// Features returns the features in input order.
func (i *Index) Features() []*Feature {
	if i == nil {
		return nil
	}
	out := make([]*Feature, 0, len(i.order))
	for _, k := range i.order {
		out = append(out, i.features[k])
	}
	return out
}

// Renderer applies style changes to a rendered feature set.
type Renderer interface {
	// Load replaces the rendered set, every feature at its base style.
	Load(features []*Feature)
	Emphasize(key string)
	Restore(key string)
	Focus(key string, b orb.Bound)
}

// StyleTable is an in-memory Renderer that records the current style of
// every feature and the last focused bound.
type StyleTable struct {
	mu       sync.RWMutex
	base     map[string]Style
	current  map[string]Style
	focusKey string
	focus    orb.Bound
}

// NewStyleTable returns an empty StyleTable.
func NewStyleTable() *StyleTable {
	return &StyleTable{
		base:    map[string]Style{},
		current: map[string]Style{},
	}
}

// Load implements Renderer.
func (t *StyleTable) Load(features []*Feature) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.base = make(map[string]Style, len(features))
	t.current = make(map[string]Style, len(features))
	for _, f := range features {
		t.base[f.Key] = f.Base
		t.current[f.Key] = f.Base
	}
	t.focusKey = ""
	t.focus = orb.Bound{}
}

// Emphasize implements Renderer.
func (t *StyleTable) Emphasize(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.base[key]; ok {
		t.current[key] = Emphasize(s)
	}
}

// Restore implements Renderer.
func (t *StyleTable) Restore(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.base[key]; ok {
		t.current[key] = s
	}
}

// Focus implements Renderer.
func (t *StyleTable) Focus(key string, b orb.Bound) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focusKey = key
	t.focus = b
}

// Style returns the current style of key.
func (t *StyleTable) Style(key string) (Style, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.current[key]
	return s, ok
}

// Styles returns a copy of every current style.
func (t *StyleTable) Styles() map[string]Style {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Style, len(t.current))
	for k, v := range t.current {
		out[k] = v
	}
	return out
}

// Focused returns the last focused feature and its bound.
func (t *StyleTable) Focused() (string, orb.Bound, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.focusKey, t.focus, t.focusKey != ""
}
