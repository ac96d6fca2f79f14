package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/flow"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/logging"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pattern"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region helpers

type fakeVision struct {
	out []signals.RawSignal
	err error
}

func (f fakeVision) Extract(context.Context, string) ([]signals.RawSignal, error) {
	return f.out, f.err
}

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	c := catalog.Default()
	g := gate.Default()
	store, err := memory.New(memory.NewInProcessBackend(), memory.DefaultConfig(),
		memory.WithGate(g), memory.WithCatalog(c))
	require.NoError(t, err)
	p, err := New(c, g, store, DefaultConfig(), opts...)
	require.NoError(t, err)
	return p
}

func loadInput(t *testing.T) MatchInput {
	t.Helper()
	data, err := os.ReadFile("testdata/late_collapse.json")
	require.NoError(t, err)
	in, err := DecodeInput(gate.Default(), data)
	require.NoError(t, err)
	return in
}

func patternCodes(ps []pattern.DetectedPattern) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Code)
	}
	return out
}

// #endregion helpers

func TestAnalyze_DetectsAndRecords(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	res, err := p.Analyze(ctx, loadInput(t))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"PTN_01", "PTN_VIS_01"}, patternCodes(res.Patterns))
	assert.True(t, res.VisualAvailable)
	assert.True(t, res.TimelineComplete)
	assert.Len(t, res.Phases, 2)
	assert.NotEmpty(t, res.EpisodeID)
	assert.Empty(t, res.History.Episodes, "history is read before recording")

	hc, err := p.Store().HistoricalContext(ctx, "team-north")
	require.NoError(t, err)
	require.Len(t, hc.Episodes, 1)
	assert.Equal(t, []string{"PTN_01", "PTN_VIS_01"}, hc.Episodes[0].Patterns)
	assert.Equal(t, "high_press", hc.Episodes[0].Attributes["opposing_style"])

	second, err := p.Analyze(ctx, loadInput(t))
	require.NoError(t, err)
	assert.Equal(t, 1, second.History.Frequencies["PTN_01"])
}

func TestAnalyze_DryRunDoesNotRecord(t *testing.T) {
	p := newPipeline(t)
	in := loadInput(t)
	in.DryRun = true

	res, err := p.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.EpisodeID)

	hc, err := p.Store().HistoricalContext(context.Background(), in.TeamID)
	require.NoError(t, err)
	assert.Empty(t, hc.Episodes)
}

func TestAnalyze_ShortTimelineStillReturnsPatterns(t *testing.T) {
	p := newPipeline(t)
	in := loadInput(t)
	in.Stats = nil

	res, err := p.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.TimelineComplete)
	assert.Empty(t, res.Ruptures)
	assert.Len(t, res.Phases, 2)
	assert.Contains(t, patternCodes(res.Patterns), "PTN_01")
}

func TestAnalyze_OutOfOrderSignals(t *testing.T) {
	p := newPipeline(t)
	in := loadInput(t)
	in.Signals = append(in.Signals, signals.RawSignal{
		Category: catalog.Stability, Code: "low_block_drop", Value: 0.5, Phase: catalog.ZoneLast15Min, Minute: 80,
	})

	_, err := p.Analyze(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, signals.ErrInvalidSignalSequence))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestAnalyze_SegmentErrorStopsRun(t *testing.T) {
	p := newPipeline(t)
	in := loadInput(t)
	in.Stats[catalog.ZoneGlobal][0].Values["possession"] = math.NaN()

	res, err := p.Analyze(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flow.ErrInvalidPoint))
	assert.Empty(t, res.Phases)

	hc, err := p.Store().HistoricalContext(context.Background(), in.TeamID)
	require.NoError(t, err)
	assert.Empty(t, hc.Episodes)
}

func TestAnalyze_UnknownCategory(t *testing.T) {
	p := newPipeline(t)
	in := loadInput(t)
	in.Signals = append(in.Signals, signals.RawSignal{Category: "WTH", Code: "rain", Value: 1, Phase: catalog.ZoneGlobal, Minute: 10})

	_, err := p.Analyze(context.Background(), in)
	assert.True(t, errors.Is(err, catalog.ErrUnknownSignalCategory))
}

func TestAnalyze_ForbiddenAttributeRejected(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p := newPipeline(t, WithMetrics(m))
	in := loadInput(t)
	in.Attributes["final_score"] = "2-1"

	_, err := p.Analyze(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gate.ErrForbiddenField))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(logging.DecisionRejected)))

	hc, err := p.Store().HistoricalContext(context.Background(), in.TeamID)
	require.NoError(t, err)
	assert.Empty(t, hc.Episodes)
}

func TestAnalyze_AttributeOutsideAllowListRejected(t *testing.T) {
	p := newPipeline(t)
	in := loadInput(t)
	in.Attributes["referee"] = "x"

	_, err := p.Analyze(context.Background(), in)
	assert.True(t, errors.Is(err, gate.ErrForbiddenField))
}

func TestAnalyze_MissingTeam(t *testing.T) {
	p := newPipeline(t)
	in := loadInput(t)
	in.TeamID = ""

	_, err := p.Analyze(context.Background(), in)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestAnalyze_VisionFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := NewMetrics(prometheus.NewRegistry())
	p := newPipeline(t,
		WithVision(fakeVision{err: errors.New("connection refused")}, 0),
		WithLogger(zap.New(core)),
		WithMetrics(m),
	)
	in := loadInput(t)
	in.Visual = nil

	res, err := p.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.VisualAvailable)
	assert.NotContains(t, patternCodes(res.Patterns), "PTN_VIS_01")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VisionFailures))
	assert.Equal(t, 1, logs.FilterMessageSnippet("vision extraction failed").Len())
}

func TestAnalyze_VisionSignalsJoinMatching(t *testing.T) {
	p := newPipeline(t, WithVision(fakeVision{out: []signals.RawSignal{
		{Category: catalog.Visual, Code: "VIS_PRESS", Value: 0.95, Phase: catalog.ZoneLast15Min, Minute: 88},
		{Category: catalog.Stability, Code: "low_block_drop", Value: 0.9, Phase: catalog.ZoneLast15Min, Minute: 88},
	}}, 0))
	in := loadInput(t)
	in.Visual = nil

	res, err := p.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.VisualAvailable)
	assert.Contains(t, patternCodes(res.Patterns), "PTN_VIS_01")
}

func TestAnalyze_MetricsAndRunLog(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	runLog, err := logging.NewRunLog(db)
	require.NoError(t, err)

	m := NewMetrics(prometheus.NewRegistry())
	p := newPipeline(t, WithMetrics(m), WithRunLog(runLog))

	_, err = p.Analyze(context.Background(), loadInput(t))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(logging.DecisionRecorded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatternsDetected.WithLabelValues("PTN_01")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BehaviorsActivated.WithLabelValues("STB_01")))

	rows, err := runLog.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, logging.DecisionRecorded, rows[0].Decision)
	assert.Equal(t, "m-0412", rows[0].MatchID)
	assert.Contains(t, rows[0].CountsJSON, `"patterns":2`)
}

func TestDecodeInput_RejectsForbiddenFieldsAtAnyDepth(t *testing.T) {
	g := gate.Default()
	_, err := DecodeInput(g, []byte(`{"team_id":"t","stats":{"global":[{"minute":10,"values":{"win_probability":0.6}}]}}`))
	require.Error(t, err)

	var fe *gate.ForbiddenFieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "input.stats.global[0].values.win_probability", fe.Violations[0].Path)
}

func TestDecodeInput_RejectsUnknownAndMalformed(t *testing.T) {
	g := gate.Default()
	_, err := DecodeInput(g, []byte(`{"team_id":"t","weather":"rain"}`))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = DecodeInput(g, []byte(`{"team_id":`))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestNew_RejectsBadStageConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flow.SubWindow = 0
	store, err := memory.New(memory.NewInProcessBackend(), memory.DefaultConfig())
	require.NoError(t, err)

	_, err = New(catalog.Default(), gate.Default(), store, cfg)
	assert.Error(t, err)
}
