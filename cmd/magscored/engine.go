package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/codec"
	"github.com/danielpatrickdp/magscore/internal/config"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/logging"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pipeline"
)

// engine owns every long-lived component built from config.
type engine struct {
	gate     *gate.Gate
	store    *memory.Store
	vision   *codec.VisionClient
	pipeline *pipeline.Pipeline
}

func buildEngine(cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*engine, error) {
	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		var err error
		if cat, err = catalog.LoadFile(cfg.Catalog.Path); err != nil {
			return nil, err
		}
	}
	g, err := gate.New(cfg.Gate)
	if err != nil {
		return nil, fmt.Errorf("build gate: %w", err)
	}
	store, err := memory.Open(cfg.Memory,
		memory.WithGate(g), memory.WithCatalog(cat), memory.WithLogger(logger.Named("memory")))
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}
	eng := &engine{gate: g, store: store}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
	}
	if cfg.Server.RunLog {
		if sb, ok := store.Backend().(*memory.SQLiteBackend); ok {
			runLog, err := logging.NewRunLog(sb.DB())
			if err != nil {
				eng.Close()
				return nil, err
			}
			opts = append(opts, pipeline.WithRunLog(runLog))
		}
	}
	if cfg.Vision.Addr != "" {
		vc, err := codec.NewVisionClient(cfg.Vision.Addr)
		if err != nil {
			eng.Close()
			return nil, err
		}
		eng.vision = vc
		opts = append(opts, pipeline.WithVision(vc, cfg.Vision.Timeout))
	}

	eng.pipeline, err = pipeline.New(cat, g, store, pipeline.Config{
		Timeline:  cfg.Match,
		Smoothing: cfg.Smoothing,
		Behavior:  cfg.Behavior,
		Flow:      cfg.Flow,
	}, opts...)
	if err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

// Close releases the store and the vision connection.
func (e *engine) Close() error {
	var errs []error
	if e.vision != nil {
		errs = append(errs, e.vision.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}
