package main

import (
	"math"

	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// pinholeCamera is a minimal perspective camera: a single aperture point
// implementing the full core.Camera contract BDPT's t=1 strategy and
// infinite-light bookkeeping need (GenerateRay, SampleWi, PdfWe),
// following the standard pinhole positional-delta convention:
// pdfPos is a Dirac delta (folded into SampleWi's solid-angle pdf via the
// dist^2/cosTheta Jacobian) and pdfDir is 1/(A*cos^3(theta)) where A is the
// image-plane area one unit in front of the camera.
type pinholeCamera struct {
	origin           core.Vec3
	forward, up, right core.Vec3
	width, height    int
	tanHalfFov       float64
	aspect           float64
}

func newPinholeCamera(origin, lookAt, up core.Vec3, fovDegrees float64, width, height int) *pinholeCamera {
	forward := lookAt.Subtract(origin).Normalize()
	right := forward.Cross(up).Normalize()
	trueUp := right.Cross(forward).Normalize()
	return &pinholeCamera{
		origin:     origin,
		forward:    forward,
		up:         trueUp,
		right:      right,
		width:      width,
		height:     height,
		tanHalfFov: math.Tan(fovDegrees * math.Pi / 360),
		aspect:     float64(width) / float64(height),
	}
}

// screenDirection maps a film-pixel coordinate to a world-space ray
// direction (unnormalized, on the image plane one unit along forward).
func (c *pinholeCamera) screenDirection(pFilm core.Vec2) core.Vec3 {
	ndcX := (2*(pFilm.X/float64(c.width)) - 1) * c.tanHalfFov * c.aspect
	ndcY := (1 - 2*(pFilm.Y/float64(c.height))) * c.tanHalfFov
	dir := c.forward.Add(c.right.Multiply(ndcX)).Add(c.up.Multiply(ndcY))
	return dir
}

// imagePlaneArea is the area of the image rectangle one unit in front of
// the camera along forward, used by We/PdfWe.
func (c *pinholeCamera) imagePlaneArea() float64 {
	halfW := c.tanHalfFov * c.aspect
	halfH := c.tanHalfFov
	return (2 * halfW) * (2 * halfH)
}

func (c *pinholeCamera) GenerateRay(pFilm core.Vec2, sample core.Vec2) (core.Ray, core.Spectrum) {
	dir := c.screenDirection(pFilm).Normalize()
	we := c.we(dir)
	return core.NewRay(c.origin, dir), core.NewVec3(we, we, we)
}

// we evaluates the camera's importance function for a ray direction,
// We(ray) = 1 / (A * cos^4(theta)), the standard pinhole formula.
func (c *pinholeCamera) we(dir core.Vec3) float64 {
	cosTheta := dir.Dot(c.forward)
	if cosTheta <= 0 {
		return 0
	}
	a := c.imagePlaneArea()
	if a <= 0 {
		return 0
	}
	return 1 / (a * cosTheta * cosTheta * cosTheta * cosTheta)
}

// project maps a world-space point onto the film plane, returning ok=false
// if it falls behind the camera or outside the frame.
func (c *pinholeCamera) project(p core.Vec3) (core.Vec2, bool) {
	d := p.Subtract(c.origin)
	cosTheta := d.Normalize().Dot(c.forward)
	if cosTheta <= 1e-6 {
		return core.Vec2{}, false
	}
	// Project d onto the z=1 plane along forward.
	t := 1 / d.Dot(c.forward)
	local := d.Multiply(t)
	localX := local.Dot(c.right)
	localY := local.Dot(c.up)
	halfW := c.tanHalfFov * c.aspect
	halfH := c.tanHalfFov
	ndcX := localX / halfW
	ndcY := localY / halfH
	if ndcX < -1 || ndcX > 1 || ndcY < -1 || ndcY > 1 {
		return core.Vec2{}, false
	}
	px := (ndcX + 1) / 2 * float64(c.width)
	py := (1 - (ndcY+1)/2) * float64(c.height)
	return core.NewVec2(px, py), true
}

func (c *pinholeCamera) SampleWi(it core.SurfaceInteraction, u core.Vec2) (wi core.Vec3, pdf float64, pRaster core.Vec2, vis core.VisibilityTester, we core.Spectrum, ok bool) {
	toCam := c.origin.Subtract(it.Point)
	dist2 := toCam.LengthSquared()
	if dist2 == 0 {
		return
	}
	dist := math.Sqrt(dist2)
	wi = toCam.Multiply(1 / dist)

	pRaster, projected := c.project(it.Point)
	if !projected {
		return
	}

	cosAtCamera := wi.Negate().Dot(c.forward)
	if cosAtCamera <= 1e-6 {
		return
	}
	pdf = dist2 / cosAtCamera

	weScalar := c.we(wi.Negate())
	we = core.NewVec3(weScalar, weScalar, weScalar)
	if weScalar <= 0 {
		return
	}

	vis = straightLineVisibility{from: it.Point, to: c.origin}
	ok = true
	return
}

func (c *pinholeCamera) PdfWe(ray core.Ray) (pdfPos, pdfDir float64) {
	cosTheta := ray.Direction.Normalize().Dot(c.forward)
	if cosTheta <= 0 {
		return 0, 0
	}
	a := c.imagePlaneArea()
	if a <= 0 {
		return 0, 0
	}
	return 0, 1 / (a * cosTheta * cosTheta * cosTheta)
}

// straightLineVisibility is the VisibilityTester every demo collaborator
// shares: the scene carries no occluding geometry, so the segment is
// always unoccluded and untinted.
type straightLineVisibility struct {
	from, to core.Vec3
}

func (v straightLineVisibility) Unoccluded(scene core.Scene) bool {
	d := v.to.Subtract(v.from)
	dist := d.Length()
	if dist == 0 {
		return true
	}
	ray := core.NewRay(v.from, d.Multiply(1/dist))
	_, hit := scene.Intersect(ray, dist-1e-4)
	return !hit
}

func (v straightLineVisibility) Tr(scene core.Scene, sampler core.Sampler) core.Spectrum {
	if v.Unoccluded(scene) {
		return core.NewVec3(1, 1, 1)
	}
	return core.Vec3{}
}
