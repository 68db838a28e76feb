package main

import (
	"math"

	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// emptyScene has no geometry of its own; every ray misses. It exists so
// cmd/sabdpt can exercise the full render pipeline against a single
// environment light without needing a geometry/material stack.
type emptyScene struct {
	lights      []core.Light
	worldRadius float64
	worldCenter core.Vec3
}

func newEmptyScene(lights []core.Light, worldRadius float64) *emptyScene {
	return &emptyScene{lights: lights, worldRadius: worldRadius}
}

func (s *emptyScene) Intersect(ray core.Ray, tMax float64) (core.SurfaceInteraction, bool) {
	return core.SurfaceInteraction{}, false
}

func (s *emptyScene) Lights() []core.Light {
	return s.lights
}

func (s *emptyScene) WorldRadius() float64 {
	return s.worldRadius
}

func (s *emptyScene) WorldCenter() core.Vec3 {
	return s.worldCenter
}

// environmentLight is a constant-radiance infinite light: every escaping
// ray sees the same emitted color, regardless of direction.
type environmentLight struct {
	radiance    core.Spectrum
	worldRadius float64
	worldCenter core.Vec3
}

func newEnvironmentLight(radiance core.Spectrum, worldRadius float64, worldCenter core.Vec3) *environmentLight {
	return &environmentLight{radiance: radiance, worldRadius: worldRadius, worldCenter: worldCenter}
}

func (l *environmentLight) IsDelta() bool    { return false }
func (l *environmentLight) IsInfinite() bool { return true }

func (l *environmentLight) Le(ray core.Ray) core.Spectrum {
	return l.radiance
}

func (l *environmentLight) L(it core.SurfaceInteraction, w core.Vec3) core.Spectrum {
	return core.Vec3{}
}

// uniformSphereDirection maps (u1, u2) in [0,1)^2 to a direction uniform
// over the full sphere, the standard inversion-sampling construction.
func uniformSphereDirection(u core.Vec2) core.Vec3 {
	z := 1 - 2*u.X
	r := math.Sqrt(math.Max(0, 1-z*z))
	phi := 2 * math.Pi * u.Y
	return core.NewVec3(r*math.Cos(phi), r*math.Sin(phi), z)
}

func (l *environmentLight) SampleLi(it core.SurfaceInteraction, u core.Vec2) (wi core.Vec3, pdf float64, li core.Spectrum, vis core.VisibilityTester) {
	wi = uniformSphereDirection(u)
	pdf = 1 / (4 * math.Pi)
	li = l.radiance
	vis = straightLineVisibility{from: it.Point, to: it.Point.Add(wi.Multiply(2 * l.worldRadius))}
	return
}

func (l *environmentLight) PdfLi(it core.SurfaceInteraction, wi core.Vec3) float64 {
	return 1 / (4 * math.Pi)
}

// SampleLe samples an emitted ray from a disk tangent to the scene's
// bounding sphere, perpendicular to a uniformly sampled direction — the
// standard unidirectional construction for turning an infinite light into
// a finite-origin ray for light-subpath generation.
func (l *environmentLight) SampleLe(u1, u2 core.Vec2) (ray core.Ray, nLight core.Vec3, le core.Spectrum, pdfPos, pdfDir float64) {
	d := uniformSphereDirection(u1)
	var a, b core.Vec3
	if math.Abs(d.X) > math.Abs(d.Y) {
		a = core.NewVec3(-d.Z, 0, d.X).Normalize()
	} else {
		a = core.NewVec3(0, d.Z, -d.Y).Normalize()
	}
	b = d.Cross(a)

	cd := concentricDisk(u2)
	pOnDisk := l.worldCenter.Add(d.Multiply(l.worldRadius)).
		Add(a.Multiply(cd.X * l.worldRadius)).
		Add(b.Multiply(cd.Y * l.worldRadius))

	ray = core.NewRay(pOnDisk, d.Negate())
	nLight = d
	le = l.radiance
	pdfPos = 1 / (math.Pi * l.worldRadius * l.worldRadius)
	pdfDir = 1 / (4 * math.Pi)
	return
}

func (l *environmentLight) PdfLe(ray core.Ray, nLight core.Vec3) (pdfPos, pdfDir float64) {
	pdfPos = 1 / (math.Pi * l.worldRadius * l.worldRadius)
	pdfDir = 1 / (4 * math.Pi)
	return
}

// concentricDisk maps (u1, u2) in [0,1)^2 to a uniform sample on the unit
// disk via Shirley's concentric mapping.
func concentricDisk(u core.Vec2) core.Vec2 {
	ox := 2*u.X - 1
	oy := 2*u.Y - 1
	if ox == 0 && oy == 0 {
		return core.Vec2{}
	}
	var theta, r float64
	if math.Abs(ox) > math.Abs(oy) {
		r = ox
		theta = math.Pi / 4 * (oy / ox)
	} else {
		r = oy
		theta = math.Pi/2 - math.Pi/4*(ox/oy)
	}
	return core.NewVec2(r*math.Cos(theta), r*math.Sin(theta))
}
