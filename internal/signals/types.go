package signals

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/gate"
)

// #region raw-signal
// RawSignal is one normalized observation. Minute is the match clock.
type RawSignal struct {
	Category catalog.Category `json:"category"`
	Code     string           `json:"code"`
	Value    float64          `json:"value"`
	Phase    catalog.Zone     `json:"phase"`
	Minute   float64          `json:"minute"`
}

// Validate runs the neutrality gate over the signal code and checks the category
// and phase against the catalog.
func (s RawSignal) Validate(g *gate.Gate, c *catalog.Catalog) error {
	if err := g.CheckName("signal.code", s.Code); err != nil {
		return err
	}
	if _, ok := c.Category(s.Category); !ok {
		return fmt.Errorf("signal %s: %w: %q", s.Code, catalog.ErrUnknownSignalCategory, s.Category)
	}
	if s.Phase != catalog.ZoneGlobal && s.Phase != catalog.ZoneLast15Min {
		return fmt.Errorf("signal %s/%s: invalid phase %q", s.Category, s.Code, s.Phase)
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("signal %s/%s: non-finite value", s.Category, s.Code)
	}
	return nil
}

// #endregion raw-signal

// #region smoothed-signal
// SmoothedSignal is the dampened value of one (category, code, phase) sequence.
// Minute is the clock of the latest contributing observation.
type SmoothedSignal struct {
	Category catalog.Category `json:"category"`
	Code     string           `json:"code"`
	Value    float64          `json:"value"`
	Phase    catalog.Zone     `json:"phase"`
	Minute   float64          `json:"minute"`
}

// SmoothedPoint is the running smoothed value at a single observation.
type SmoothedPoint struct {
	Category catalog.Category
	Code     string
	Phase    catalog.Zone
	Minute   float64
	Value    float64
}

// #endregion smoothed-signal

// #region snapshot
// Snapshot is a set of raw match statistics observed at a minute marker.
type Snapshot struct {
	Minute float64            `json:"minute"`
	Values map[string]float64 `json:"values"`
}

// #endregion snapshot

// #region errors

// ErrInvalidSignalSequence: observations for one (category, code) go back in time.
var ErrInvalidSignalSequence = errors.New("invalid signal sequence")

// SequenceError locates the out-of-order observation.
type SequenceError struct {
	Category catalog.Category
	Code     string
	Phase    catalog.Zone
	Index    int
	Minute   float64
	Previous float64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s/%s (%s) observation %d at minute %.2f precedes minute %.2f: %v",
		e.Category, e.Code, e.Phase, e.Index, e.Minute, e.Previous, ErrInvalidSignalSequence)
}

func (e *SequenceError) Unwrap() error { return ErrInvalidSignalSequence }

// #endregion errors
