// Package config loads engine settings from defaults, an optional YAML file
// and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/magscore/internal/behavior"
	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/flow"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/logging"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region config
// Config is the full settings tree.
type Config struct {
	Match     catalog.Timeline       `koanf:"match"`
	Catalog   CatalogConfig          `koanf:"catalog"`
	Smoothing signals.SmootherConfig `koanf:"smoothing"`
	Behavior  behavior.Config        `koanf:"behavior"`
	Flow      flow.Config            `koanf:"flow"`
	Memory    memory.Config          `koanf:"memory"`
	Gate      gate.Config            `koanf:"gate"`
	Vision    VisionConfig           `koanf:"vision"`
	Server    ServerConfig           `koanf:"server"`
	Log       logging.Config         `koanf:"log"`
}

// CatalogConfig points at an optional YAML override of the built-in tables.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

// VisionConfig addresses the optional vision collaborator. Empty Addr disables it.
type VisionConfig struct {
	Addr    string        `koanf:"addr"`
	Timeout time.Duration `koanf:"timeout"`
}

// ServerConfig holds listener addresses for magscored.
type ServerConfig struct {
	GRPCAddr    string `koanf:"grpc_addr"`
	MetricsAddr string `koanf:"metrics_addr"` // empty disables /metrics
	RunLog      bool   `koanf:"run_log"`      // write analysis_log rows; needs memory.path
}

// Default returns every section's documented defaults.
func Default() Config {
	return Config{
		Match:     catalog.DefaultTimeline(),
		Smoothing: signals.DefaultSmootherConfig(),
		Behavior:  behavior.DefaultConfig(),
		Flow:      flow.DefaultConfig(),
		Memory:    memory.DefaultConfig(),
		Gate:      gate.DefaultConfig(),
		Vision:    VisionConfig{Timeout: 2 * time.Second},
		Server: ServerConfig{
			GRPCAddr:    ":50061",
			MetricsAddr: ":9464",
			RunLog:      true,
		},
		Log: logging.DefaultConfig(),
	}
}

// #endregion config

// #region validate
// Validate rejects values no component could run with. Component constructors
// repeat their own checks; this surfaces them before anything starts.
func (c Config) Validate() error {
	var errs []error
	if c.Match.MatchLength <= 0 || c.Match.FinalWindow <= 0 || c.Match.FinalWindow > c.Match.MatchLength {
		errs = append(errs, fmt.Errorf("match: final_window must be in (0, match_length], got %v/%v", c.Match.FinalWindow, c.Match.MatchLength))
	}
	if c.Smoothing.Window < 1 {
		errs = append(errs, fmt.Errorf("smoothing.window must be >= 1, got %d", c.Smoothing.Window))
	}
	if c.Smoothing.Decay <= 0 || c.Smoothing.Decay > 1 {
		errs = append(errs, fmt.Errorf("smoothing.decay must be in (0, 1], got %v", c.Smoothing.Decay))
	}
	if c.Behavior.MinConvergence < behavior.MinConvergenceFloor {
		errs = append(errs, fmt.Errorf("behavior.min_convergence must be >= %d, got %d", behavior.MinConvergenceFloor, c.Behavior.MinConvergence))
	}
	if c.Behavior.BoostFactor <= 0 {
		errs = append(errs, fmt.Errorf("behavior.boost_factor must be > 0, got %v", c.Behavior.BoostFactor))
	}
	if c.Flow.SubWindow <= 0 {
		errs = append(errs, fmt.Errorf("flow.sub_window must be > 0, got %v", c.Flow.SubWindow))
	}
	if c.Flow.Threshold < 0 {
		errs = append(errs, fmt.Errorf("flow.threshold must be >= 0, got %v", c.Flow.Threshold))
	}
	if c.Memory.MaxEpisodes < 1 {
		errs = append(errs, fmt.Errorf("memory.max_episodes must be >= 1, got %d", c.Memory.MaxEpisodes))
	}
	if c.Memory.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("memory.retention_days must be >= 0, got %d", c.Memory.RetentionDays))
	}
	if c.Vision.Addr != "" && c.Vision.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("vision.timeout must be > 0 when vision.addr is set"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// #endregion validate
