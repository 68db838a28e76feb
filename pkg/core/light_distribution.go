package core

import "fmt"

// LightDistribution selects a light to sample from, and reports the
// probability with which a given light would have been selected. The
// render driver builds one per SamplesPerPixel-config's
// LightSampleStrategy; BDPT's s=1 strategy and Vertex.PdfLightOrigin both
// consult it through this interface.
type LightDistribution interface {
	// Sample selects a light given a uniform random number u, returning
	// the light, its selection pdf, and its index into Lights().
	Sample(u float64) (Light, float64, int)
	// Pdf returns the probability that lightIndex would be selected,
	// independent of the draw that produced it.
	Pdf(lightIndex int) float64
	Lights() []Light
}

// weightedLightDistribution selects lights from a fixed, normalized weight
// table via inverse-CDF sampling.
type weightedLightDistribution struct {
	lights  []Light
	weights []float64
}

// newWeightedLightDistribution normalizes weights to sum to 1, falling back
// to a uniform table if every weight is zero.
func newWeightedLightDistribution(lights []Light, weights []float64) *weightedLightDistribution {
	if len(lights) != len(weights) {
		panic(fmt.Sprintf("lights length (%d) must match weights length (%d)", len(lights), len(weights)))
	}
	normalized := make([]float64, len(weights))
	total := 0.0
	for _, w := range weights {
		if w < 0 {
			panic("light distribution weights must be non-negative")
		}
		total += w
	}
	if total == 0 {
		if len(weights) > 0 {
			uniform := 1.0 / float64(len(weights))
			for i := range normalized {
				normalized[i] = uniform
			}
		}
	} else {
		for i, w := range weights {
			normalized[i] = w / total
		}
	}
	return &weightedLightDistribution{lights: lights, weights: normalized}
}

func (d *weightedLightDistribution) Sample(u float64) (Light, float64, int) {
	if len(d.lights) == 0 {
		return nil, 0, -1
	}
	cum := 0.0
	for i, w := range d.weights {
		cum += w
		if u <= cum {
			return d.lights[i], w, i
		}
	}
	last := len(d.lights) - 1
	return d.lights[last], d.weights[last], last
}

func (d *weightedLightDistribution) Pdf(lightIndex int) float64 {
	if lightIndex < 0 || lightIndex >= len(d.weights) {
		return 0
	}
	return d.weights[lightIndex]
}

func (d *weightedLightDistribution) Lights() []Light {
	return d.lights
}

// NewUniformLightDistribution weights every light equally.
func NewUniformLightDistribution(lights []Light) LightDistribution {
	if len(lights) == 0 {
		return &weightedLightDistribution{lights: lights, weights: []float64{}}
	}
	weights := make([]float64, len(lights))
	u := 1.0 / float64(len(lights))
	for i := range weights {
		weights[i] = u
	}
	return newWeightedLightDistribution(lights, weights)
}

// NewPowerLightDistribution weights each light by an estimate of its total
// emitted power (luminance of L/Le integrated over its emitting surface, as
// reported by the light itself through approxPower).
func NewPowerLightDistribution(lights []Light, approxPower func(Light) float64) LightDistribution {
	weights := make([]float64, len(lights))
	for i, l := range lights {
		weights[i] = approxPower(l)
	}
	return newWeightedLightDistribution(lights, weights)
}

// NewSpatialLightDistribution builds a power-weighted distribution
// restricted to the lights near a region of the scene, identified by their
// distance to the region's centroid: finite lights farther than maxDistance
// get zero weight, infinite lights are always in range, and a non-positive
// maxDistance disables the cutoff. No direction or cone test is applied.
func NewSpatialLightDistribution(lights []Light, approxPower func(Light) float64, centroid Vec3, lightPos func(Light) (Vec3, bool), maxDistance float64) LightDistribution {
	weights := make([]float64, len(lights))
	for i, l := range lights {
		pos, finite := lightPos(l)
		if !finite {
			// infinite lights are always in range
			weights[i] = approxPower(l)
			continue
		}
		d := pos.Subtract(centroid).Length()
		if maxDistance <= 0 || d <= maxDistance {
			weights[i] = approxPower(l)
		}
	}
	return newWeightedLightDistribution(lights, weights)
}

// NewLightDistribution builds the distribution named by strategy, falling
// back to power for the spatial strategy when no spatial hints were given
// (e.g. when building a single whole-scene distribution rather than a
// per-tile one).
func NewLightDistribution(strategy LightSampleStrategy, lights []Light, approxPower func(Light) float64) LightDistribution {
	switch strategy {
	case LightSampleUniform:
		return NewUniformLightDistribution(lights)
	case LightSamplePower, LightSampleSpatial:
		return NewPowerLightDistribution(lights, approxPower)
	default:
		return NewPowerLightDistribution(lights, approxPower)
	}
}

// BuildLightToIndex returns the map from light identity to its index in
// lights, used by Vertex.PdfLightOrigin to recover a light's selection
// probability from the distribution.
func BuildLightToIndex(lights []Light) map[Light]int {
	m := make(map[Light]int, len(lights))
	for i, l := range lights {
		m[l] = i
	}
	return m
}
