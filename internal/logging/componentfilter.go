package logging

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// componentKey is the attribute every component attaches at construction time.
const componentKey = "component"

// filterState is shared by all WithAttrs/WithGroup clones of a
// ComponentFilterHandler so level changes apply everywhere at once.
type filterState struct {
	mu           sync.RWMutex
	defaultLevel slog.Level
	levels       map[string]slog.Level
}

func (s *filterState) levelFor(component string) slog.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lvl, ok := s.levels[component]; ok {
		return lvl
	}
	return s.defaultLevel
}

func (s *filterState) minLevel() slog.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	min := s.defaultLevel
	for _, lvl := range s.levels {
		if lvl < min {
			min = lvl
		}
	}
	return min
}

// ComponentFilterHandler filters records by per-component log levels.
// Components identify themselves through the "component" attribute attached
// at construction time; records without one use the default level.
//
// Level changes are dynamic and safe for concurrent use, so the running
// service can turn on debug logging for a single component.
type ComponentFilterHandler struct {
	inner    slog.Handler
	state    *filterState
	preAttrs []slog.Attr
}

// NewComponentFilterHandler wraps inner with per-component level filtering.
// The inner handler should be configured to pass everything; this handler
// owns level decisions.
func NewComponentFilterHandler(inner slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		inner: inner,
		state: &filterState{
			defaultLevel: defaultLevel,
			levels:       make(map[string]slog.Level),
		},
	}
}

// SetLevel overrides the level for a single component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.levels[component] = level
}

// ClearLevel removes a component override, restoring the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	delete(h.state.levels, component)
}

// Level reports the effective level for a component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	return h.state.levelFor(component)
}

// DefaultLevel reports the level used for components without an override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	return h.state.defaultLevel
}

// Enabled is a cheap pre-check; the per-component decision happens in Handle
// because attributes are not visible here. It answers true whenever any
// component could accept the level.
func (h *ComponentFilterHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.state.minLevel()
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := ""
	for _, a := range h.preAttrs {
		if a.Key == componentKey {
			component = a.Value.String()
		}
	}
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == componentKey {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.state.levelFor(component) {
		return nil
	}
	if h.inner == nil {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	inner := h.inner
	if inner != nil {
		inner = inner.WithAttrs(attrs)
	}
	return &ComponentFilterHandler{
		inner:    inner,
		state:    h.state,
		preAttrs: append(slices.Clip(h.preAttrs), attrs...),
	}
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	inner := h.inner
	if inner != nil {
		inner = inner.WithGroup(name)
	}
	return &ComponentFilterHandler{
		inner:    inner,
		state:    h.state,
		preAttrs: h.preAttrs,
	}
}
