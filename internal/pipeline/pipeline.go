package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/magscore/internal/behavior"
	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/eval"
	"github.com/danielpatrickdp/magscore/internal/flow"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/logging"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pattern"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region vision-source
// VisionSource supplies VIS signals for a match. Failures are not fatal.
type VisionSource interface {
	Extract(ctx context.Context, matchID string) ([]signals.RawSignal, error)
}

// #endregion vision-source

// #region pipeline-struct
// Pipeline wires the stages around an injected memory store.
type Pipeline struct {
	catalog   *catalog.Catalog
	gate      *gate.Gate
	producer  *signals.Producer
	smoother  *signals.Smoother
	evaluator *behavior.Evaluator
	matcher   *pattern.Matcher
	segmenter *flow.Segmenter
	store     *memory.Store
	harness   *eval.EvalHarness

	vision        VisionSource
	visionTimeout time.Duration
	runLog        *logging.RunLog
	metrics       *Metrics
	logger        *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithVision attaches a vision collaborator, bounded by timeout per call.
// A zero timeout leaves the call bounded only by the run context.
func WithVision(v VisionSource, timeout time.Duration) Option {
	return func(p *Pipeline) { p.vision, p.visionTimeout = v, timeout }
}

// WithRunLog writes one analysis_log row per run.
func WithRunLog(l *logging.RunLog) Option { return func(p *Pipeline) { p.runLog = l } }

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// #endregion pipeline-struct

// #region constructor
// New builds every stage from config. Stage constructors reject bad settings.
func New(c *catalog.Catalog, g *gate.Gate, store *memory.Store, config Config, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("pipeline: nil memory store")
	}
	evaluator, err := behavior.NewEvaluator(c, config.Behavior, config.Timeline)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	segmenter, err := flow.NewSegmenter(config.Flow, config.Timeline)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p := &Pipeline{
		catalog:   c,
		gate:      g,
		producer:  signals.NewProducer(g, nil),
		smoother:  signals.NewSmoother(config.Smoothing),
		evaluator: evaluator,
		matcher:   pattern.NewMatcher(c),
		segmenter: segmenter,
		store:     store,
		harness:   eval.NewEvalHarness(eval.ConfigFrom(config.Behavior, config.Flow), g),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Store returns the injected memory store.
func (p *Pipeline) Store() *memory.Store { return p.store }

// #endregion constructor

// #region analyze
// Analyze runs in through every stage, reads the team's history, then records
// the match unless in.DryRun is set. It returns a complete Result or an error.
func (p *Pipeline) Analyze(ctx context.Context, in MatchInput) (Result, error) {
	runID := uuid.New().String()
	log := p.logger.With(zap.String("run_id", runID), zap.String("match_id", in.MatchID), zap.String("team_id", in.TeamID))
	counts := logging.RunCounts{}

	res, err := p.analyze(ctx, runID, in, &counts, log)

	decision, reason := logging.DecisionAnalyzed, ""
	switch {
	case err != nil:
		decision, reason = logging.DecisionRejected, err.Error()
		log.Warn("analysis rejected", zap.Error(err))
	case res.EpisodeID != "":
		decision = logging.DecisionRecorded
	}
	if p.metrics != nil {
		p.metrics.RunsTotal.WithLabelValues(decision).Inc()
	}
	countsJSON, _ := json.Marshal(counts)
	if logErr := p.runLog.Log(ctx, logging.RunEntry{
		RunID:      runID,
		MatchID:    in.MatchID,
		TeamID:     in.TeamID,
		Decision:   decision,
		Reason:     reason,
		CountsJSON: string(countsJSON),
	}); logErr != nil {
		log.Error("run log write failed", zap.Error(logErr))
	}
	if err != nil {
		return Result{}, err
	}
	log.Info("analysis complete",
		zap.String("decision", decision),
		zap.Int("behaviors", counts.Behaviors),
		zap.Int("patterns", counts.Patterns),
		zap.Int("ruptures", counts.Ruptures),
	)
	return res, nil
}

func (p *Pipeline) analyze(ctx context.Context, runID string, in MatchInput, counts *logging.RunCounts, log *zap.Logger) (Result, error) {
	if in.TeamID == "" {
		return Result{}, fmt.Errorf("%w: team_id is required", ErrInvalidInput)
	}
	if in.MatchIndex < 0 {
		return Result{}, fmt.Errorf("%w: match_index must be >= 0", ErrInvalidInput)
	}
	if err := p.gate.CheckStruct("input", in); err != nil {
		return Result{}, err
	}

	// 1. Signals
	var raw, visual []signals.RawSignal
	err := p.stage("produce", func() error {
		produced, err := p.producer.Produce(ctx, in.Stats)
		if err != nil {
			return err
		}
		raw = produced
		for _, s := range append(append([]signals.RawSignal(nil), in.Signals...), in.Visual...) {
			if err := s.Validate(p.gate, p.catalog); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
			if s.Category == catalog.Visual {
				visual = append(visual, s)
			} else {
				raw = append(raw, s)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	visual = append(visual, p.extractVision(ctx, in.MatchID, log)...)
	counts.Signals, counts.Visual = len(raw), len(visual)

	// 2. Smoothing
	var smoothed []signals.SmoothedSignal
	var series []signals.SmoothedPoint
	err = p.stage("smooth", func() error {
		var err error
		if smoothed, err = p.smoother.Smooth(raw); err != nil {
			return err
		}
		series, err = p.smoother.SmoothSeries(raw)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	// 3. Behaviors and patterns per phase
	res := Result{
		RunID:           runID,
		MatchID:         in.MatchID,
		TeamID:          in.TeamID,
		VisualAvailable: len(visual) > 0,
	}
	err = p.stage("evaluate", func() error {
		for _, z := range catalog.Zones {
			activated, err := p.evaluator.Evaluate(z, smoothed, visual)
			if err != nil {
				return err
			}
			res.Behaviors = append(res.Behaviors, activated...)
			res.Patterns = append(res.Patterns, p.matcher.Match(z, activated, visual)...)
		}
		res.Contradictions = behavior.Contradictions(p.catalog, res.Behaviors)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	// 4. Flow
	err = p.stage("segment", func() error {
		f, err := p.segmenter.Segment(series)
		switch {
		case errors.Is(err, flow.ErrIncompleteTimeline):
			log.Debug("timeline too short for rupture detection", zap.Int("points", len(series)))
			res.Phases = p.segmenter.Phases(series)
		case err != nil:
			return err
		default:
			res.Phases, res.Ruptures, res.TimelineComplete = f.Phases, f.Ruptures, true
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("segment flow: %w", err)
	}

	// 5. History, read before this match is added
	err = p.stage("history", func() error {
		hc, err := p.store.HistoricalContext(ctx, in.TeamID)
		res.History = hc
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("read history: %w", err)
	}

	// 6. Invariant checks
	check := p.harness.Run(eval.Bundle{
		Behaviors: res.Behaviors,
		Patterns:  res.Patterns,
		Ruptures:  res.Ruptures,
		History:   &res.History,
	})
	if !check.Passed {
		return Result{}, fmt.Errorf("%w: %s", ErrResultRejected, check.Reason)
	}

	// 7. Record
	if !in.DryRun {
		err = p.stage("record", func() error {
			ep, err := p.store.Record(ctx, in.TeamID, EntryFor(in, res))
			res.EpisodeID = ep.ID
			return err
		})
		if err != nil {
			return Result{}, err
		}
	}

	counts.Behaviors, counts.Patterns, counts.Ruptures = len(res.Behaviors), len(res.Patterns), len(res.Ruptures)
	p.observe(res)
	return res, nil
}

// #endregion analyze

// #region entry
// EntryFor derives the episodic summary stored for a result. Only pattern
// codes, rupture summaries and allow-listed attributes leave the run.
func EntryFor(in MatchInput, res Result) memory.EpisodicEntry {
	entry := memory.EpisodicEntry{
		TeamID:     in.TeamID,
		MatchIndex: in.MatchIndex,
		Attributes: in.Attributes,
	}
	for _, dp := range res.Patterns {
		entry.Patterns = append(entry.Patterns, dp.Code)
	}
	for _, r := range res.Ruptures {
		entry.Ruptures = append(entry.Ruptures, memory.RuptureSummary{
			Phase:      r.Phase,
			Magnitude:  r.Magnitude,
			Categories: r.TriggeringCategories,
			FromMinute: r.FromMinute,
			ToMinute:   r.ToMinute,
		})
	}
	return entry
}

// #endregion entry

// #region helpers

func (p *Pipeline) extractVision(ctx context.Context, matchID string, log *zap.Logger) []signals.RawSignal {
	if p.vision == nil {
		return nil
	}
	var out []signals.RawSignal
	_ = p.stage("vision", func() error {
		vctx := ctx
		if p.visionTimeout > 0 {
			var cancel context.CancelFunc
			vctx, cancel = context.WithTimeout(ctx, p.visionTimeout)
			defer cancel()
		}
		got, err := p.vision.Extract(vctx, matchID)
		if err != nil {
			log.Warn("vision extraction failed, continuing without visual signals", zap.Error(err))
			if p.metrics != nil {
				p.metrics.VisionFailures.Inc()
			}
			return nil
		}
		for _, s := range got {
			if s.Category != catalog.Visual {
				log.Warn("vision returned non-visual signal", zap.String("category", string(s.Category)), zap.String("code", s.Code))
				continue
			}
			if err := s.Validate(p.gate, p.catalog); err != nil {
				log.Warn("vision signal dropped", zap.Error(err))
				continue
			}
			out = append(out, s)
		}
		return nil
	})
	return out
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return err
}

func (p *Pipeline) observe(res Result) {
	if p.metrics == nil {
		return
	}
	for _, ab := range res.Behaviors {
		p.metrics.BehaviorsActivated.WithLabelValues(ab.Code).Inc()
	}
	for _, dp := range res.Patterns {
		p.metrics.PatternsDetected.WithLabelValues(dp.Code).Inc()
	}
	for _, r := range res.Ruptures {
		p.metrics.RupturesTotal.WithLabelValues(string(r.Phase)).Inc()
	}
}

// #endregion helpers
