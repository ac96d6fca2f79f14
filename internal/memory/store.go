package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/gate"
)

// #region store

// Store owns every team's history. Operations on one team are serialized by
// that team's lock; different teams proceed in parallel.
type Store struct {
	backend Backend
	config  Config
	gate    *gate.Gate
	catalog *catalog.Catalog
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex // guards teams and closed
	teams  map[string]*team
	closed bool
}

type team struct {
	mu       sync.Mutex
	loaded   bool
	episodes []EpisodicEntry
}

// Option configures a Store.
type Option func(*Store)

// WithGate replaces the default neutrality gate.
func WithGate(g *gate.Gate) Option { return func(s *Store) { s.gate = g } }

// WithCatalog restricts stored pattern codes to the catalog's patterns.
func WithCatalog(c *catalog.Catalog) Option { return func(s *Store) { s.catalog = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New creates a store over backend.
func New(backend Backend, config Config, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("memory: nil backend")
	}
	if config.MaxEpisodes < 1 {
		return nil, fmt.Errorf("memory: max_episodes must be >= 1, got %d", config.MaxEpisodes)
	}
	if config.RetentionDays < 0 {
		return nil, fmt.Errorf("memory: retention_days must be >= 0, got %d", config.RetentionDays)
	}
	s := &Store{
		backend: backend,
		config:  config,
		gate:    gate.Default(),
		logger:  zap.NewNop(),
		now:     time.Now,
		teams:   make(map[string]*team),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open builds a store from config: SQLite when Path is set, in-process otherwise.
func Open(config Config, opts ...Option) (*Store, error) {
	var backend Backend = NewInProcessBackend()
	if config.Path != "" {
		sb, err := NewSQLiteBackend(config.Path)
		if err != nil {
			return nil, err
		}
		backend = sb
	}
	s, err := New(backend, config, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

// Backend exposes the persistence layer, e.g. so the run log can share the SQLite handle.
func (s *Store) Backend() Backend { return s.backend }

// Close releases the backend. Later calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.backend.Close()
}

// team returns the locked state for id, loading it from the backend on first use.
// The caller must unlock t.mu.
func (s *Store) team(ctx context.Context, id string) (*team, error) {
	if id == "" {
		return nil, ErrEmptyTeam
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	t, ok := s.teams[id]
	if !ok {
		t = &team{}
		s.teams[id] = t
	}
	s.mu.Unlock()

	t.mu.Lock()
	if !t.loaded {
		eps, err := s.backend.Load(ctx, id)
		if err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("load team %s: %w", id, err)
		}
		t.episodes = eps
		t.loaded = true
	}
	return t, nil
}

// #endregion store

// #region record

// Record validates entry and appends it to the team's history. Entries older
// than the retention window are purged, then the oldest entries by insertion
// order are evicted down to MaxEpisodes. A validation or backend failure
// leaves the history untouched.
func (s *Store) Record(ctx context.Context, teamID string, entry EpisodicEntry) (EpisodicEntry, error) {
	if teamID == "" {
		return EpisodicEntry{}, ErrEmptyTeam
	}
	if entry.TeamID != "" && entry.TeamID != teamID {
		return EpisodicEntry{}, fmt.Errorf("record: entry team %q does not match %q", entry.TeamID, teamID)
	}
	entry = cloneEntry(entry)
	entry.TeamID = teamID
	entry.Patterns = uniqueSorted(entry.Patterns)
	if err := s.Validate(entry); err != nil {
		s.logger.Warn("episode rejected", zap.String("team_id", teamID), zap.Error(err))
		return EpisodicEntry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = now
	}

	t, err := s.team(ctx, teamID)
	if err != nil {
		return EpisodicEntry{}, err
	}
	defer t.mu.Unlock()

	for _, e := range t.episodes {
		if e.ID == entry.ID {
			return EpisodicEntry{}, fmt.Errorf("record team %s: %w: %s", teamID, ErrDuplicateEpisode, entry.ID)
		}
	}
	next := append(cloneEntries(t.episodes), entry)
	next, purged := s.purge(next, now)
	evicted := 0
	if over := len(next) - s.config.MaxEpisodes; over > 0 {
		evicted = over
		next = next[over:]
	}
	if err := s.backend.Replace(ctx, teamID, next, Frequencies(next)); err != nil {
		return EpisodicEntry{}, fmt.Errorf("record team %s: %w", teamID, err)
	}
	t.episodes = next

	s.logger.Debug("episode recorded",
		zap.String("team_id", teamID),
		zap.String("episode_id", entry.ID),
		zap.Int("retained", len(next)),
		zap.Int("evicted", evicted),
		zap.Int("purged", purged),
	)
	return cloneEntry(entry), nil
}

// RecordFields admits an entry given as a decoded JSON object. Keys outside the
// allow-list, or matching the denylist at any depth, fail with a
// gate.ForbiddenFieldError naming every offending path.
func (s *Store) RecordFields(ctx context.Context, teamID string, fields map[string]any) (EpisodicEntry, error) {
	violations := s.gate.Scan("entry", fields)
	violations = append(violations, notAllowed("entry", fields, allowedFields)...)
	if rs, ok := fields["rupture_events"].([]any); ok {
		for i, r := range rs {
			if m, ok := r.(map[string]any); ok {
				violations = append(violations, notAllowed(fmt.Sprintf("entry.rupture_events[%d]", i), m, allowedRuptureFields)...)
			}
		}
	}
	if attrs, ok := fields["attributes"].(map[string]any); ok {
		violations = append(violations, notAllowed("entry.attributes", attrs, AllowedAttributes)...)
	}
	if len(violations) > 0 {
		return EpisodicEntry{}, &gate.ForbiddenFieldError{Violations: dedupe(violations)}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return EpisodicEntry{}, fmt.Errorf("encode entry: %w", err)
	}
	var entry EpisodicEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return EpisodicEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	return s.Record(ctx, teamID, entry)
}

// #endregion record

// #region validate

// Validate runs the neutrality and allow-list checks Record applies.
func (s *Store) Validate(entry EpisodicEntry) error {
	var violations []gate.Violation
	if err := s.gate.CheckStruct("entry", entry); err != nil {
		violations = append(violations, violationsOf(err)...)
	}
	keys := make([]string, 0, len(entry.Attributes))
	for k := range entry.Attributes {
		keys = append(keys, k)
	}
	if err := s.gate.CheckAllowed("entry.attributes", keys, AllowedAttributes); err != nil {
		violations = append(violations, violationsOf(err)...)
	}
	if entry.MatchIndex < 0 {
		violations = append(violations, valueViolation("entry.match_index", "match_index", "must be >= 0"))
	}
	for i, code := range entry.Patterns {
		path := fmt.Sprintf("entry.detected_patterns[%d]", i)
		if v := s.gate.Inspect(path, code); v != nil {
			violations = append(violations, *v)
			continue
		}
		if s.catalog != nil && !s.catalog.IsPatternCode(code) {
			violations = append(violations, valueViolation(path, code, "not a catalog pattern code"))
		}
	}
	for i, r := range entry.Ruptures {
		path := fmt.Sprintf("entry.rupture_events[%d]", i)
		if r.Phase != catalog.ZoneGlobal && r.Phase != catalog.ZoneLast15Min {
			violations = append(violations, valueViolation(path+".phase", string(r.Phase), "unknown phase"))
		}
		if math.IsNaN(r.Magnitude) || math.IsInf(r.Magnitude, 0) || r.Magnitude < 0 {
			violations = append(violations, valueViolation(path+".magnitude", "magnitude", "must be finite and >= 0"))
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return &gate.ForbiddenFieldError{Violations: dedupe(violations)}
}

func valueViolation(path, field, reason string) gate.Violation {
	return gate.Violation{Kind: gate.ViolationValue, Path: path, Field: field, Reason: reason}
}

func notAllowed(path string, m map[string]any, allowed map[string]struct{}) []gate.Violation {
	var out []gate.Violation
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := allowed[k]; !ok {
			out = append(out, gate.Violation{
				Kind: gate.ViolationNotAllowed, Path: path + "." + k, Field: k, Reason: "field is not in the allow-list",
			})
		}
	}
	return out
}

// dedupe keeps the first violation per path.
func dedupe(vs []gate.Violation) []gate.Violation {
	seen := make(map[string]struct{}, len(vs))
	out := vs[:0]
	for _, v := range vs {
		if _, ok := seen[v.Path]; ok {
			continue
		}
		seen[v.Path] = struct{}{}
		out = append(out, v)
	}
	return out
}

func violationsOf(err error) []gate.Violation {
	var fe *gate.ForbiddenFieldError
	if errors.As(err, &fe) {
		return fe.Violations
	}
	return nil
}

// #endregion validate

// #region semantic

// Frequencies counts, per pattern code, the entries that contain it.
func Frequencies(episodes []EpisodicEntry) map[string]int {
	out := make(map[string]int)
	for _, e := range episodes {
		for _, code := range uniqueSorted(e.Patterns) {
			out[code]++
		}
	}
	return out
}

// RecomputeSemantic purges expired entries, rebuilds the frequency map from
// what remains and persists both.
func (s *Store) RecomputeSemantic(ctx context.Context, teamID string) (map[string]int, error) {
	t, err := s.team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	next, _ := s.purge(cloneEntries(t.episodes), s.now().UTC())
	freq := Frequencies(next)
	if err := s.backend.Replace(ctx, teamID, next, freq); err != nil {
		return nil, fmt.Errorf("recompute team %s: %w", teamID, err)
	}
	t.episodes = next
	return freq, nil
}

// #endregion semantic

// #region reads

// HistoricalContext returns the unexpired history, oldest first, with pattern
// counts and each code's share of all pattern occurrences. It never modifies
// the store.
func (s *Store) HistoricalContext(ctx context.Context, teamID string) (HistoricalContext, error) {
	t, err := s.team(ctx, teamID)
	if err != nil {
		return HistoricalContext{}, err
	}
	eps, _ := s.purge(cloneEntries(t.episodes), s.now().UTC())
	t.mu.Unlock()

	freq := Frequencies(eps)
	total := 0
	for _, n := range freq {
		total += n
	}
	shares := make(map[string]float64, len(freq))
	for code, n := range freq {
		shares[code] = float64(n) / float64(total)
	}
	if eps == nil {
		eps = []EpisodicEntry{}
	}
	return HistoricalContext{TeamID: teamID, Episodes: eps, Frequencies: freq, Shares: shares}, nil
}

// Recent returns up to n unexpired entries, newest first.
func (s *Store) Recent(ctx context.Context, teamID string, n int) ([]EpisodicEntry, error) {
	hc, err := s.HistoricalContext(ctx, teamID)
	if err != nil {
		return nil, err
	}
	eps := hc.Episodes
	if n < 0 {
		n = 0
	}
	out := make([]EpisodicEntry, 0, min(n, len(eps)))
	for i := len(eps) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, eps[i])
	}
	return out, nil
}

// PatternCount returns how many retained entries contain code.
func (s *Store) PatternCount(ctx context.Context, teamID, code string) (int, error) {
	hc, err := s.HistoricalContext(ctx, teamID)
	if err != nil {
		return 0, err
	}
	return hc.Frequencies[code], nil
}

// ByAttribute returns unexpired entries whose attribute key equals value, oldest first.
func (s *Store) ByAttribute(ctx context.Context, teamID, key, value string) ([]EpisodicEntry, error) {
	if _, ok := AllowedAttributes[key]; !ok {
		return nil, fmt.Errorf("by attribute: %q is not a stored attribute", key)
	}
	hc, err := s.HistoricalContext(ctx, teamID)
	if err != nil {
		return nil, err
	}
	var out []EpisodicEntry
	for _, e := range hc.Episodes {
		if e.Attributes[key] == value {
			out = append(out, e)
		}
	}
	return out, nil
}

// Export returns every team's historical context ordered by team id.
func (s *Store) Export(ctx context.Context) ([]HistoricalContext, error) {
	ids, err := s.backend.Teams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	s.mu.Lock()
	for id, t := range s.teams {
		if t.loaded {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	ids = uniqueSorted(ids)

	out := make([]HistoricalContext, 0, len(ids))
	for _, id := range ids {
		hc, err := s.HistoricalContext(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(hc.Episodes) == 0 {
			continue
		}
		out = append(out, hc)
	}
	return out, nil
}

// Clear drops a team's history.
func (s *Store) Clear(ctx context.Context, teamID string) error {
	t, err := s.team(ctx, teamID)
	if err != nil {
		return err
	}
	defer t.mu.Unlock()
	if err := s.backend.Replace(ctx, teamID, nil, nil); err != nil {
		return fmt.Errorf("clear team %s: %w", teamID, err)
	}
	t.episodes = nil
	s.logger.Info("team history cleared", zap.String("team_id", teamID))
	return nil
}

// #endregion reads

// #region helpers

// purge drops entries older than the retention window and reports how many.
func (s *Store) purge(eps []EpisodicEntry, now time.Time) ([]EpisodicEntry, int) {
	if s.config.RetentionDays == 0 {
		return eps, 0
	}
	cutoff := now.AddDate(0, 0, -s.config.RetentionDays)
	kept := eps[:0]
	for _, e := range eps {
		if e.RecordedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	return kept, len(eps) - len(kept)
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}

// #endregion helpers
