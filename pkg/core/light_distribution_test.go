package core

import (
	"math"
	"testing"
)

// distrFakeLight is a minimal Light for exercising LightDistribution alone;
// every method beyond IsDelta/IsInfinite is irrelevant to selection.
type distrFakeLight struct {
	delta    bool
	infinite bool
}

func (l *distrFakeLight) SampleLe(u1, u2 Vec2) (Ray, Vec3, Spectrum, float64, float64) {
	return Ray{}, Vec3{}, Vec3{}, 0, 0
}
func (l *distrFakeLight) SampleLi(it SurfaceInteraction, u Vec2) (Vec3, float64, Spectrum, VisibilityTester) {
	return Vec3{}, 0, Vec3{}, nil
}
func (l *distrFakeLight) PdfLi(it SurfaceInteraction, wi Vec3) float64        { return 0 }
func (l *distrFakeLight) PdfLe(ray Ray, nLight Vec3) (float64, float64)      { return 0, 0 }
func (l *distrFakeLight) L(it SurfaceInteraction, w Vec3) Spectrum           { return Vec3{} }
func (l *distrFakeLight) Le(ray Ray) Spectrum                               { return Vec3{} }
func (l *distrFakeLight) IsDelta() bool                                      { return l.delta }
func (l *distrFakeLight) IsInfinite() bool                                   { return l.infinite }

func TestNewUniformLightDistribution(t *testing.T) {
	a, b, c := &distrFakeLight{}, &distrFakeLight{}, &distrFakeLight{}
	distr := NewUniformLightDistribution([]Light{a, b, c})

	for i := 0; i < 3; i++ {
		if got := distr.Pdf(i); math.Abs(got-1.0/3.0) > 1e-12 {
			t.Errorf("Pdf(%d) = %v, want 1/3", i, got)
		}
	}

	light, pdf, idx := distr.Sample(0.999)
	if light != c || idx != 2 {
		t.Errorf("Sample(0.999) should land on the last light, got idx=%d", idx)
	}
	if math.Abs(pdf-1.0/3.0) > 1e-12 {
		t.Errorf("Sample(0.999) pdf = %v, want 1/3", pdf)
	}
}

func TestNewUniformLightDistribution_Empty(t *testing.T) {
	distr := NewUniformLightDistribution(nil)
	light, pdf, idx := distr.Sample(0.5)
	if light != nil || pdf != 0 || idx != -1 {
		t.Errorf("expected an empty distribution to report (nil,0,-1), got (%v,%v,%d)", light, pdf, idx)
	}
}

func TestNewPowerLightDistribution_WeightsProportionalToPower(t *testing.T) {
	weak, strong := &distrFakeLight{}, &distrFakeLight{}
	power := map[Light]float64{weak: 1, strong: 3}
	distr := NewPowerLightDistribution([]Light{weak, strong}, func(l Light) float64 { return power[l] })

	if got := distr.Pdf(0); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("Pdf(weak) = %v, want 0.25", got)
	}
	if got := distr.Pdf(1); math.Abs(got-0.75) > 1e-12 {
		t.Errorf("Pdf(strong) = %v, want 0.75", got)
	}

	// u=0.25 lands exactly on the weak/strong boundary (cumulative 0.25);
	// the inverse-CDF walk's u<=cum test selects the first light whose
	// cumulative weight reaches u, i.e. weak.
	light, _, idx := distr.Sample(0.25)
	if light != weak || idx != 0 {
		t.Errorf("Sample(0.25) = idx %d, want 0 (weak)", idx)
	}
	light, _, idx = distr.Sample(0.26)
	if light != strong || idx != 1 {
		t.Errorf("Sample(0.26) = idx %d, want 1 (strong)", idx)
	}
}

func TestNewPowerLightDistribution_AllZeroFallsBackToUniform(t *testing.T) {
	a, b := &distrFakeLight{}, &distrFakeLight{}
	distr := NewPowerLightDistribution([]Light{a, b}, func(Light) float64 { return 0 })
	if got := distr.Pdf(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Pdf(0) with all-zero power = %v, want 0.5 (uniform fallback)", got)
	}
	if got := distr.Pdf(1); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Pdf(1) with all-zero power = %v, want 0.5 (uniform fallback)", got)
	}
}

func TestNewSpatialLightDistribution_OutOfRangeGetsZeroWeight(t *testing.T) {
	near := &distrFakeLight{}
	far := &distrFakeLight{}
	infinite := &distrFakeLight{infinite: true}

	pos := map[Light]Vec3{
		near: NewVec3(1, 0, 0),
		far:  NewVec3(100, 0, 0),
	}
	lightPos := func(l Light) (Vec3, bool) {
		if l == infinite {
			return Vec3{}, false
		}
		return pos[l], true
	}
	power := func(Light) float64 { return 1 }

	distr := NewSpatialLightDistribution([]Light{near, far, infinite}, power, Vec3{}, lightPos, 10)

	if got := distr.Pdf(0); got <= 0 {
		t.Errorf("expected the in-range light to keep nonzero weight, got %v", got)
	}
	if got := distr.Pdf(1); got != 0 {
		t.Errorf("expected the out-of-range light to get zero weight, got %v", got)
	}
	if got := distr.Pdf(2); got <= 0 {
		t.Errorf("expected the infinite light to always be in range, got %v", got)
	}
}

func TestNewSpatialLightDistribution_NonPositiveMaxDistanceDisablesCulling(t *testing.T) {
	far := &distrFakeLight{}
	lightPos := func(l Light) (Vec3, bool) { return NewVec3(1000, 0, 0), true }
	distr := NewSpatialLightDistribution([]Light{far}, func(Light) float64 { return 1 }, Vec3{}, lightPos, 0)
	if got := distr.Pdf(0); got <= 0 {
		t.Errorf("expected maxDistance<=0 to disable range culling, got weight %v", got)
	}
}

func TestNewLightDistribution_DispatchesByStrategy(t *testing.T) {
	a, b := &distrFakeLight{}, &distrFakeLight{}
	power := func(Light) float64 { return 1 }

	uniform := NewLightDistribution(LightSampleUniform, []Light{a, b}, power)
	if got := uniform.Pdf(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("LightSampleUniform: Pdf(0) = %v, want 0.5", got)
	}

	spatial := NewLightDistribution(LightSampleSpatial, []Light{a, b}, power)
	if got := spatial.Pdf(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("LightSampleSpatial with uniform power falls back to power-weighted: Pdf(0) = %v, want 0.5", got)
	}
}

func TestBuildLightToIndex(t *testing.T) {
	a, b, c := &distrFakeLight{}, &distrFakeLight{}, &distrFakeLight{}
	m := BuildLightToIndex([]Light{a, b, c})
	if m[a] != 0 || m[b] != 1 || m[c] != 2 {
		t.Errorf("BuildLightToIndex = %v, want a:0 b:1 c:2", m)
	}
	if _, ok := m[&distrFakeLight{}]; ok {
		t.Errorf("expected a light never passed in to be absent from the map")
	}
}
