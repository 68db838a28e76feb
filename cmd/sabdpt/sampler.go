package main

import (
	"math/rand"

	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// independentSampler draws every dimension from its own *rand.Rand. It
// carries no stratification; each Get1D/Get2D call is an independent
// uniform draw.
type independentSampler struct {
	rng             *rand.Rand
	samplesPerPixel int
	sampleIndex     int
}

func newIndependentSampler(seed uint64, samplesPerPixel int) *independentSampler {
	return &independentSampler{
		rng:             rand.New(rand.NewSource(int64(seed))),
		samplesPerPixel: samplesPerPixel,
	}
}

func (s *independentSampler) Get1D() float64 {
	return s.rng.Float64()
}

func (s *independentSampler) Get2D() core.Vec2 {
	return core.NewVec2(s.rng.Float64(), s.rng.Float64())
}

func (s *independentSampler) StartPixel(p core.Vec2) {
	s.sampleIndex = 0
}

func (s *independentSampler) StartNextSample() bool {
	s.sampleIndex++
	return s.sampleIndex <= s.samplesPerPixel
}

func (s *independentSampler) SetSampleNumber(n int) bool {
	s.sampleIndex = n
	return n < s.samplesPerPixel
}

func (s *independentSampler) Clone(seed uint64) core.Sampler {
	return newIndependentSampler(seed, s.samplesPerPixel)
}

func (s *independentSampler) SamplesPerPixel() int {
	return s.samplesPerPixel
}
