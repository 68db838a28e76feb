package core

import "fmt"

// LightSampleStrategy selects how the render driver builds the
// LightDistribution consulted by the s=1 and s=0-origin-pdf paths.
type LightSampleStrategy int

const (
	LightSamplePower LightSampleStrategy = iota
	LightSampleUniform
	LightSampleSpatial
)

// ParseLightSampleStrategy maps a configuration string to a
// LightSampleStrategy, falling back to the documented default (power) for
// anything unrecognized.
func ParseLightSampleStrategy(s string) (LightSampleStrategy, bool) {
	switch s {
	case "power", "":
		return LightSamplePower, true
	case "uniform":
		return LightSampleUniform, true
	case "spatial":
		return LightSampleSpatial, true
	default:
		return LightSamplePower, false
	}
}

// MISStrategy selects the heuristic ConnectBDPT uses to combine strategy
// weights.
type MISStrategy int

const (
	MISBalance MISStrategy = iota
	MISPower
	MISUniform
)

// ParseMISStrategy maps a configuration string to a MISStrategy, falling
// back to balance for anything unrecognized.
func ParseMISStrategy(s string) (MISStrategy, bool) {
	switch s {
	case "balance", "":
		return MISBalance, true
	case "power":
		return MISPower, true
	case "uniform":
		return MISUniform, true
	default:
		return MISBalance, false
	}
}

// FactorScheme selects how the SA-MIS rectifier derives a per-(depth,t,cell)
// factor from the prepass's sample moments.
type FactorScheme int

const (
	FactorNone FactorScheme = iota
	FactorReciprocalVariance
	FactorMomentOverVariance
)

// ParseFactorScheme maps a configuration string to a FactorScheme, falling
// back to none for anything unrecognized.
func ParseFactorScheme(s string) (FactorScheme, bool) {
	switch s {
	case "none", "":
		return FactorNone, true
	case "reciprocal":
		return FactorReciprocalVariance, true
	case "moment":
		return FactorMomentOverVariance, true
	default:
		return FactorNone, false
	}
}

// PixelBounds is a sub-rectangle of the film to render, in half-open pixel
// coordinates [X0,X1) x [Y0,Y1) as parsed from the configuration surface.
type PixelBounds struct {
	X0, X1, Y0, Y1 int
}

// Valid reports whether the bounds describe a non-empty, correctly ordered
// rectangle.
func (b PixelBounds) Valid() bool {
	return b.X1 > b.X0 && b.Y1 > b.Y0
}

// Config holds every option on the configuration surface, independent of
// how it was populated (CLI flags, a scene file, or a test literal).
type Config struct {
	MaxDepth            int
	PixelBounds         PixelBounds
	HasPixelBounds      bool
	LightSampleStrategy LightSampleStrategy
	MISStrategy         MISStrategy
	FactorScheme        FactorScheme
	RectiMinDepth       int
	RectiMaxDepth       int
	DownsamplingFactor  int
	VisualizeFactors    bool
	ClampThreshold      float64
	Presamples          int
	EstimateVariances   bool
	UseRefVars          bool
}

// DefaultConfig returns the configuration surface's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:            5,
		LightSampleStrategy: LightSamplePower,
		MISStrategy:         MISBalance,
		FactorScheme:        FactorNone,
		RectiMinDepth:       1,
		RectiMaxDepth:       1,
		DownsamplingFactor:  8,
		VisualizeFactors:    true,
		ClampThreshold:      16,
		Presamples:          1,
		EstimateVariances:   false,
		UseRefVars:          false,
	}
}

// Validate checks cross-field invariants the driver must reject before
// rendering (§7: "bad pixelbounds logs an error and the run is aborted").
func (c Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("maxdepth must be >= 0, got %d", c.MaxDepth)
	}
	if c.HasPixelBounds && !c.PixelBounds.Valid() {
		return fmt.Errorf("invalid pixelbounds %+v: empty or inverted rectangle", c.PixelBounds)
	}
	if c.RectiMinDepth > c.RectiMaxDepth {
		return fmt.Errorf("rectimindepth (%d) must be <= rectimaxdepth (%d)", c.RectiMinDepth, c.RectiMaxDepth)
	}
	if c.DownsamplingFactor < 1 {
		return fmt.Errorf("downsamplingfactor must be >= 1, got %d", c.DownsamplingFactor)
	}
	if c.Presamples < 0 {
		return fmt.Errorf("presamples must be >= 0, got %d", c.Presamples)
	}
	return nil
}

// EffectiveDownsamplingFactor applies the userefvars override, which forces
// a 1:1 (reference-variance) grid regardless of the configured factor.
func (c Config) EffectiveDownsamplingFactor() int {
	if c.UseRefVars {
		return 1
	}
	return c.DownsamplingFactor
}
