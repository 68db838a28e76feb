package bdpt

import (
	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// fixedSampler hands out predetermined values for each dimension in a
// fixed replay order; it panics if a test under-provisions a dimension
// the code under test actually consumes.
type fixedSampler struct {
	v1D  []float64
	v2D  []core.Vec2
	i1D  int
	i2D  int
	spp  int
	samp int
}

func newFixedSampler(v1D []float64, v2D []core.Vec2) *fixedSampler {
	return &fixedSampler{v1D: v1D, v2D: v2D, spp: 1}
}

func (s *fixedSampler) Get1D() float64 {
	v := s.v1D[s.i1D]
	s.i1D++
	return v
}

func (s *fixedSampler) Get2D() core.Vec2 {
	v := s.v2D[s.i2D]
	s.i2D++
	return v
}

func (s *fixedSampler) StartPixel(p core.Vec2)     { s.samp = 0 }
func (s *fixedSampler) StartNextSample() bool      { s.samp++; return s.samp <= s.spp }
func (s *fixedSampler) SetSampleNumber(n int) bool  { s.samp = n; return n < s.spp }
func (s *fixedSampler) Clone(seed uint64) core.Sampler {
	return newFixedSampler(s.v1D, s.v2D)
}
func (s *fixedSampler) SamplesPerPixel() int { return s.spp }

// fakeBSDF is a diffuse-only BSDF stand-in: F returns a constant albedo over
// pi for any same-hemisphere pair, Pdf is the cosine-weighted density, and
// SampleF always succeeds by reflecting into the upper hemisphere of n.
type fakeBSDF struct {
	albedo core.Spectrum
	n      core.Vec3

	specular bool
}

func (b *fakeBSDF) F(wo, wi core.Vec3, mode core.TransportMode) core.Spectrum {
	if b.specular {
		return core.Vec3{}
	}
	if wo.Dot(b.n) <= 0 || wi.Dot(b.n) <= 0 {
		return core.Vec3{}
	}
	return b.albedo.Multiply(1 / 3.14159265)
}

func (b *fakeBSDF) Pdf(wo, wi core.Vec3, mode core.TransportMode) float64 {
	if b.specular {
		return 0
	}
	if wo.Dot(b.n) <= 0 || wi.Dot(b.n) <= 0 {
		return 0
	}
	return wi.Dot(b.n) / 3.14159265
}

func (b *fakeBSDF) SampleF(wo core.Vec3, u core.Vec2, mode core.TransportMode) (wi core.Vec3, f core.Spectrum, pdf float64, lobe core.LobeType, ok bool) {
	if b.specular {
		wi = b.n.Multiply(2 * wo.Dot(b.n)).Subtract(wo)
		return wi, b.albedo, 1, core.LobeSpecular | core.LobeReflection, true
	}
	wi = b.n
	pdf = b.Pdf(wo, wi, mode)
	f = b.F(wo, wi, mode)
	return wi, f, pdf, core.LobeDiffuse | core.LobeReflection, true
}

// fakeScene always misses, the minimal Scene that lets a test exercise a
// random walk's background-escape branch without any geometry.
type fakeScene struct {
	lights []core.Light
	radius float64
}

func (s *fakeScene) Intersect(ray core.Ray, tMax float64) (core.SurfaceInteraction, bool) {
	return core.SurfaceInteraction{}, false
}
func (s *fakeScene) Lights() []core.Light  { return s.lights }
func (s *fakeScene) WorldRadius() float64  { return s.radius }
func (s *fakeScene) WorldCenter() core.Vec3 { return core.Vec3{} }

// fakeVisibility is always unoccluded, for connection-strategy tests that
// don't exercise shadowing.
type fakeVisibility struct{}

func (fakeVisibility) Unoccluded(scene core.Scene) bool                 { return true }
func (fakeVisibility) Tr(scene core.Scene, sampler core.Sampler) core.Spectrum { return core.NewVec3(1, 1, 1) }

// fakeLight is a one-directional delta-position area-ish light: SampleLe
// always emits from a fixed point/direction with fixed pdfs, and SampleLi
// always returns a fixed incident direction, for tests that need a light
// endpoint without modeling real geometry.
type fakeLight struct {
	point    core.Vec3
	normal   core.Vec3
	radiance core.Spectrum
	delta    bool
	infinite bool
}

func (l *fakeLight) SampleLe(u1, u2 core.Vec2) (ray core.Ray, nLight core.Vec3, le core.Spectrum, pdfPos, pdfDir float64) {
	return core.NewRay(l.point, l.normal), l.normal, l.radiance, 1, 1
}

func (l *fakeLight) SampleLi(it core.SurfaceInteraction, u core.Vec2) (wi core.Vec3, pdf float64, li core.Spectrum, vis core.VisibilityTester) {
	d := l.point.Subtract(it.Point)
	dist2 := d.LengthSquared()
	if dist2 == 0 {
		return core.Vec3{}, 0, core.Vec3{}, fakeVisibility{}
	}
	wi = d.Normalize()
	return wi, 1, l.radiance, fakeVisibility{}
}

func (l *fakeLight) PdfLi(it core.SurfaceInteraction, wi core.Vec3) float64 { return 1 }

func (l *fakeLight) PdfLe(ray core.Ray, nLight core.Vec3) (pdfPos, pdfDir float64) { return 1, 1 }

func (l *fakeLight) L(it core.SurfaceInteraction, w core.Vec3) core.Spectrum {
	if w.Dot(l.normal) < 0 {
		return l.radiance
	}
	return core.Vec3{}
}

func (l *fakeLight) Le(ray core.Ray) core.Spectrum {
	if l.infinite {
		return l.radiance
	}
	return core.Vec3{}
}

func (l *fakeLight) IsDelta() bool    { return l.delta }
func (l *fakeLight) IsInfinite() bool { return l.infinite }

// fakeCamera is a minimal orthographic-ish stand-in: GenerateRay always
// fires straight down -Z with constant importance, and SampleWi connects to
// a fixed lens point.
type fakeCamera struct {
	origin core.Vec3
}

func (c *fakeCamera) GenerateRay(pFilm, sample core.Vec2) (core.Ray, core.Spectrum) {
	return core.NewRay(c.origin, core.NewVec3(0, 0, -1)), core.NewVec3(1, 1, 1)
}

func (c *fakeCamera) SampleWi(it core.SurfaceInteraction, u core.Vec2) (wi core.Vec3, pdf float64, pRaster core.Vec2, vis core.VisibilityTester, we core.Spectrum, ok bool) {
	d := c.origin.Subtract(it.Point)
	dist2 := d.LengthSquared()
	if dist2 == 0 {
		return core.Vec3{}, 0, core.Vec2{}, fakeVisibility{}, core.Vec3{}, false
	}
	wi = d.Normalize()
	return wi, 1, core.NewVec2(50, 50), fakeVisibility{}, core.NewVec3(1, 1, 1), true
}

func (c *fakeCamera) PdfWe(ray core.Ray) (pdfPos, pdfDir float64) { return 0, 1 }

// uniformLightDistr is a one-light LightDistribution for connection tests
// that don't need power/spatial sampling behavior.
type uniformLightDistr struct {
	lights []core.Light
}

func (d *uniformLightDistr) Sample(u float64) (core.Light, float64, int) {
	if len(d.lights) == 0 {
		return nil, 0, -1
	}
	return d.lights[0], 1, 0
}

func (d *uniformLightDistr) Pdf(lightIndex int) float64 { return 1 }
func (d *uniformLightDistr) Lights() []core.Light        { return d.lights }
