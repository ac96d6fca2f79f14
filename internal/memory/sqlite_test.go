package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/magscore/internal/catalog"
)

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	s, err := Open(Config{MaxEpisodes: 3, RetentionDays: 365, Path: path})
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		e := entry(i, "PTN_01")
		if i == 4 {
			e.Patterns = append(e.Patterns, "PTN_VIS_01")
			e.Ruptures = []RuptureSummary{{Phase: catalog.ZoneLast15Min, Magnitude: 0.52, Categories: []catalog.Category{catalog.Stability}, FromMinute: 60, ToMinute: 90}}
			e.Attributes = map[string]string{"venue_type": "away"}
		}
		_, err := s.Record(ctx, "team-a", e)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	reopened, err := Open(Config{MaxEpisodes: 3, RetentionDays: 365, Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	hc, err := reopened.HistoricalContext(ctx, "team-a")
	require.NoError(t, err)
	require.Len(t, hc.Episodes, 3)
	assert.Equal(t, 2, hc.Episodes[0].MatchIndex)
	last := hc.Episodes[2]
	assert.Equal(t, []string{"PTN_01", "PTN_VIS_01"}, last.Patterns)
	assert.Equal(t, "away", last.Attributes["venue_type"])
	require.Len(t, last.Ruptures, 1)
	assert.Equal(t, 0.52, last.Ruptures[0].Magnitude)
	assert.Equal(t, map[string]int{"PTN_01": 3, "PTN_VIS_01": 1}, hc.Frequencies)

	sb, ok := reopened.Backend().(*SQLiteBackend)
	require.True(t, ok)
	stored, err := sb.Frequencies(ctx, "team-a")
	require.NoError(t, err)
	assert.Equal(t, hc.Frequencies, stored)

	teams, err := sb.Teams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"team-a"}, teams)
}

func TestSQLiteBackend_ClearRemovesRows(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	s, err := New(b, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	_, err = s.Record(ctx, "team-a", entry(1, "PTN_02"))
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, "team-a"))

	eps, err := b.Load(ctx, "team-a")
	require.NoError(t, err)
	assert.Empty(t, eps)
	freq, err := b.Frequencies(ctx, "team-a")
	require.NoError(t, err)
	assert.Empty(t, freq)
}

func TestRecord_EpisodeIDScopedToTeam(t *testing.T) {
	ctx := context.Background()
	backends := map[string]func(t *testing.T) Backend{
		"in-process": func(*testing.T) Backend { return NewInProcessBackend() },
		"sqlite": func(t *testing.T) Backend {
			b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "memory.db"))
			require.NoError(t, err)
			return b
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s, err := New(open(t), DefaultConfig())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })

			e := entry(1, "PTN_01")
			e.ID = "shared-id"
			_, err = s.Record(ctx, "team-a", e)
			require.NoError(t, err)
			_, err = s.Record(ctx, "team-b", e)
			require.NoError(t, err)

			_, err = s.Record(ctx, "team-a", e)
			assert.True(t, errors.Is(err, ErrDuplicateEpisode))

			hc, err := s.HistoricalContext(ctx, "team-a")
			require.NoError(t, err)
			assert.Len(t, hc.Episodes, 1)
			hc, err = s.HistoricalContext(ctx, "team-b")
			require.NoError(t, err)
			assert.Len(t, hc.Episodes, 1)
		})
	}
}
