package overlay

import (
	"sync"

	"go.uber.org/zap"
)

// Transition names the outcome of a highlight event.
type Transition string

// Highlight transitions.
const (
	TransitionHighlighted Transition = "highlighted"
	TransitionSwitched    Transition = "switched"
	TransitionCleared     Transition = "cleared"
	TransitionNotFound    Transition = "not_found"
	TransitionNone        Transition = "none"
)

// HighlightState is either idle (Key == "") or highlighting Key.
type HighlightState struct {
	Key string `json:"key,omitempty"`
}

// Active reports whether a feature is highlighted.
func (s HighlightState) Active() bool {
	return s.Key != ""
}

// Outcome describes a highlight event.
type Outcome struct {
	Transition Transition     `json:"transition"`
	Previous   string         `json:"previous,omitempty"`
	State      HighlightState `json:"state"`
}

// Highlighter tracks the single highlighted feature of an index and
// drives a Renderer through emphasis changes.
type Highlighter struct {
	mu       sync.Mutex
	renderer Renderer
	index    *Index
	state    HighlightState
}

// NewHighlighter returns an idle Highlighter over an empty index.
func NewHighlighter(r Renderer) *Highlighter {
	return &Highlighter{renderer: r, index: &Index{features: map[string]*Feature{}}}
}

// Rebuild swaps in a new index. The renderer is reloaded at base styles
// and the state returns to idle.
func (h *Highlighter) Rebuild(idx *Index) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.index = idx
	h.renderer.Load(idx.Features())
	h.state = HighlightState{}
}

// Select toggles key: selecting the highlighted feature clears it,
// selecting another moves the emphasis, and unknown keys change nothing.
func (h *Highlighter) Select(key string) Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	if key == "" {
		return h.clearLocked()
	}

	f, ok := h.index.Lookup(key)
	if !ok {
		zap.L().Warn("overlay: highlight target not found", zap.String("gid", key))
		return Outcome{Transition: TransitionNotFound, State: h.state}
	}

	prev := h.state.Key
	if prev == key {
		h.renderer.Restore(key)
		h.state = HighlightState{}
		return Outcome{Transition: TransitionCleared, Previous: prev, State: h.state}
	}

	transition := TransitionHighlighted
	if prev != "" {
		h.renderer.Restore(prev)
		transition = TransitionSwitched
	}
	h.renderer.Emphasize(key)
	if f.HasBound {
		h.renderer.Focus(key, f.Bound)
	}
	h.state = HighlightState{Key: key}
	return Outcome{Transition: transition, Previous: prev, State: h.state}
}

// Clear removes any highlight.
func (h *Highlighter) Clear() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clearLocked()
}

func (h *Highlighter) clearLocked() Outcome {
	prev := h.state.Key
	if prev == "" {
		return Outcome{Transition: TransitionNone, State: h.state}
	}
	h.renderer.Restore(prev)
	h.state = HighlightState{}
	return Outcome{Transition: TransitionCleared, Previous: prev, State: h.state}
}

// State returns the current highlight state.
func (h *Highlighter) State() HighlightState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}
