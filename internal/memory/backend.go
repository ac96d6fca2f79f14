package memory

import (
	"context"
	"sort"
	"sync"
)

// Backend persists team histories. Replace must be all-or-nothing: on error
// the previous history and frequencies stay in place.
type Backend interface {
	Load(ctx context.Context, teamID string) ([]EpisodicEntry, error)
	Replace(ctx context.Context, teamID string, episodes []EpisodicEntry, frequencies map[string]int) error
	Teams(ctx context.Context) ([]string, error)
	Close() error
}

// #region in-process

// InProcessBackend keeps histories in a map. Used when no path is configured and in tests.
type InProcessBackend struct {
	mu    sync.RWMutex
	teams map[string][]EpisodicEntry
	freq  map[string]map[string]int
}

// NewInProcessBackend creates an empty backend.
func NewInProcessBackend() *InProcessBackend {
	return &InProcessBackend{
		teams: make(map[string][]EpisodicEntry),
		freq:  make(map[string]map[string]int),
	}
}

func (b *InProcessBackend) Load(_ context.Context, teamID string) ([]EpisodicEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneEntries(b.teams[teamID]), nil
}

func (b *InProcessBackend) Replace(_ context.Context, teamID string, episodes []EpisodicEntry, frequencies map[string]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(episodes) == 0 {
		delete(b.teams, teamID)
		delete(b.freq, teamID)
		return nil
	}
	b.teams[teamID] = cloneEntries(episodes)
	f := make(map[string]int, len(frequencies))
	for k, v := range frequencies {
		f[k] = v
	}
	b.freq[teamID] = f
	return nil
}

func (b *InProcessBackend) Teams(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.teams))
	for id := range b.teams {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (b *InProcessBackend) Close() error { return nil }

// #endregion in-process

// #region clone

func cloneEntries(in []EpisodicEntry) []EpisodicEntry {
	if in == nil {
		return nil
	}
	out := make([]EpisodicEntry, len(in))
	for i, e := range in {
		out[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e EpisodicEntry) EpisodicEntry {
	e.Patterns = append([]string(nil), e.Patterns...)
	if e.Ruptures != nil {
		rs := make([]RuptureSummary, len(e.Ruptures))
		for i, r := range e.Ruptures {
			r.Categories = append(r.Categories[:0:0], r.Categories...)
			rs[i] = r
		}
		e.Ruptures = rs
	}
	if e.Attributes != nil {
		attrs := make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs[k] = v
		}
		e.Attributes = attrs
	}
	return e
}

// #endregion clone
