package signals

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/magscore/internal/catalog"
)

// #region helpers

func seq(category catalog.Category, code string, phase catalog.Zone, pairs ...float64) []RawSignal {
	var out []RawSignal
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, RawSignal{Category: category, Code: code, Phase: phase, Minute: pairs[i], Value: pairs[i+1]})
	}
	return out
}

// #endregion helpers

// #region smooth-tests

func TestSmooth_SingleObservationUnchanged(t *testing.T) {
	s := NewSmoother(DefaultSmootherConfig())
	out, err := s.Smooth(seq(catalog.Stability, "low_block_drop", catalog.ZoneGlobal, 30, 0.63))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0.63, out[0].Value)
	assert.Equal(t, 30.0, out[0].Minute)
}

func TestSmooth_RecentObservationsWeighMore(t *testing.T) {
	s := NewSmoother(DefaultSmootherConfig())
	// weights 1, 0.5, 0.25 from newest to oldest
	out, err := s.Smooth(seq(catalog.Stability, "low_block_drop", catalog.ZoneGlobal, 10, 1, 20, 0, 30, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.25/1.75, out[0].Value, 1e-9)

	out, err = s.Smooth(seq(catalog.Stability, "low_block_drop", catalog.ZoneGlobal, 10, 0, 20, 0, 30, 1))
	require.NoError(t, err)
	assert.InDelta(t, 1/1.75, out[0].Value, 1e-9)
}

func TestSmooth_WindowLimitsHistory(t *testing.T) {
	s := NewSmoother(SmootherConfig{Window: 2, Decay: 1})
	out, err := s.Smooth(seq(catalog.Intensity, "sprint_drop", catalog.ZoneGlobal, 1, 100, 2, 0.4, 3, 0.6))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out[0].Value, 1e-9)
}

func TestSmooth_Deterministic(t *testing.T) {
	raw := append(seq(catalog.Cohesion, "possession_control", catalog.ZoneGlobal, 10, 0.5, 20, 0.7),
		seq(catalog.Stability, "xg_against_spike", catalog.ZoneLast15Min, 76, 0.2, 85, 0.9)...)
	s := NewSmoother(DefaultSmootherConfig())
	a, err := s.Smooth(raw)
	require.NoError(t, err)
	b, err := s.Smooth(raw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSmooth_OrderedByPhaseCategoryCode(t *testing.T) {
	raw := append(seq(catalog.Stability, "xg_against_spike", catalog.ZoneLast15Min, 80, 0.2),
		seq(catalog.Stability, "low_block_drop", catalog.ZoneGlobal, 10, 0.1)...)
	raw = append(raw, seq(catalog.Intensity, "pressing_wave", catalog.ZoneGlobal, 10, 0.3)...)

	out, err := NewSmoother(DefaultSmootherConfig()).Smooth(raw)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "pressing_wave", out[0].Code)
	assert.Equal(t, "low_block_drop", out[1].Code)
	assert.Equal(t, catalog.ZoneLast15Min, out[2].Phase)
}

func TestSmooth_OutOfOrderFails(t *testing.T) {
	raw := seq(catalog.Psychology, "fouls_spike", catalog.ZoneGlobal, 40, 0.2, 35, 0.3)
	_, err := NewSmoother(DefaultSmootherConfig()).Smooth(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignalSequence))

	var se *SequenceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "fouls_spike", se.Code)
	assert.Equal(t, 1, se.Index)
}

func TestSmooth_EqualMinutesAccepted(t *testing.T) {
	raw := seq(catalog.Psychology, "fouls_spike", catalog.ZoneGlobal, 40, 0.2, 40, 0.3)
	_, err := NewSmoother(DefaultSmootherConfig()).Smooth(raw)
	assert.NoError(t, err)
}

func TestNewSmoother_ClampsConfig(t *testing.T) {
	s := NewSmoother(SmootherConfig{Window: 0, Decay: -1})
	out, err := s.Smooth(seq(catalog.Stability, "low_block_drop", catalog.ZoneGlobal, 1, 0.2, 2, 0.8))
	require.NoError(t, err)
	assert.Equal(t, 0.8, out[0].Value)
}

// #endregion smooth-tests

// #region series-tests

func TestSmoothSeries_RunningValues(t *testing.T) {
	raw := seq(catalog.Stability, "low_block_drop", catalog.ZoneGlobal, 10, 0.2, 20, 0.4, 30, 0.8, 40, 1.0)
	points, err := NewSmoother(DefaultSmootherConfig()).SmoothSeries(raw)
	require.NoError(t, err)
	require.Len(t, points, 4)

	assert.Equal(t, 0.2, points[0].Value)
	assert.InDelta(t, (0.4+0.1)/1.5, points[1].Value, 1e-9)
	assert.InDelta(t, (1.0+0.4+0.1)/1.75, points[3].Value, 1e-9)
	for i := 1; i < len(points); i++ {
		assert.LessOrEqual(t, points[i-1].Minute, points[i].Minute)
	}
}

func TestSmoothSeries_LastPointMatchesSmooth(t *testing.T) {
	raw := seq(catalog.Intensity, "pressing_wave", catalog.ZoneGlobal, 5, 0.3, 15, 0.9, 25, 0.1)
	s := NewSmoother(DefaultSmootherConfig())
	points, err := s.SmoothSeries(raw)
	require.NoError(t, err)
	final, err := s.Smooth(raw)
	require.NoError(t, err)
	assert.Equal(t, final[0].Value, points[len(points)-1].Value)
}

// #endregion series-tests
