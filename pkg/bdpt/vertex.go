// Package bdpt implements the bidirectional path-tracing core: the vertex
// model, the random walk that builds subpaths, and the connection/MIS
// machinery that combines them into a path-traced pixel estimate.
package bdpt

import (
	"math"

	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// VertexType tags which of the four variants a Vertex holds. Go has no
// inheritance to lean on here, so dispatch that PBRT expresses as virtual
// methods on an Interaction hierarchy becomes an explicit switch wherever a
// Vertex method needs variant-specific behavior.
type VertexType int

const (
	VertexCamera VertexType = iota
	VertexLight
	VertexSurface
	VertexMedium
)

// Vertex is a single node of a camera or light subpath. Every variant
// shares Beta/PdfFwd/PdfRev/Delta; the remaining fields are meaningful only
// for the variant named by Type.
type Vertex struct {
	Type VertexType

	Point  core.Vec3
	Normal core.Vec3 // geometric normal; zero for camera vertices

	Beta core.Spectrum // accumulated throughput / (sampling pdf so far)

	PdfFwd float64
	PdfRev float64
	Delta  bool

	// Surface-only.
	Isect core.SurfaceInteraction

	// Medium-only.
	MI core.MediumInteraction

	// Camera-only.
	Camera core.Camera

	// Light-only.
	Light core.Light
	// EmittedLight is the Le/L captured at creation time so later stages
	// don't need to re-evaluate the light.
	EmittedLight  core.Spectrum
	InfiniteLight bool
}

// FromCamera builds the vertex-0 endpoint of a camera subpath.
func FromCamera(camera core.Camera, point core.Vec3, beta core.Spectrum) Vertex {
	return Vertex{
		Type:   VertexCamera,
		Point:  point,
		Camera: camera,
		Beta:   beta,
	}
}

// FromLight builds the vertex-0 endpoint of a light subpath.
func FromLight(light core.Light, point, normal core.Vec3, beta core.Spectrum, pdfFwd float64) Vertex {
	return Vertex{
		Type:         VertexLight,
		Point:        point,
		Normal:       normal,
		Light:        light,
		Beta:         beta,
		PdfFwd:       pdfFwd,
		EmittedLight: beta,
	}
}

// FromInfiniteLight builds the terminal Light vertex created when a camera
// subpath escapes the scene and the driver is tracking radiance (so the
// environment's contribution is captured as an s=0 strategy).
func FromInfiniteLight(ray core.Ray, le core.Spectrum, beta core.Spectrum, pdfDirSolidAngle float64) Vertex {
	return Vertex{
		Type:          VertexLight,
		Point:         ray.Origin.Add(ray.Direction.Multiply(1e8)),
		Normal:        ray.Direction.Negate(),
		Beta:          beta,
		PdfFwd:        pdfDirSolidAngle,
		EmittedLight:  le,
		InfiniteLight: true,
	}
}

// FromSurface builds a surface vertex reached by scattering from prev.
// pdfFwd is the BSDF's solid-angle sampling density; ConvertDensity turns
// it into the area-measure density this vertex stores.
func FromSurface(prev *Vertex, isect core.SurfaceInteraction, beta core.Spectrum, pdfFwdSolidAngle float64) Vertex {
	v := Vertex{
		Type:   VertexSurface,
		Point:  isect.Point,
		Normal: isect.Normal,
		Isect:  isect,
		Beta:   beta,
	}
	v.PdfFwd = ConvertDensity(prev, &v, pdfFwdSolidAngle)
	return v
}

// FromMedium builds a medium-scattering vertex reached from prev.
func FromMedium(prev *Vertex, mi core.MediumInteraction, beta core.Spectrum, pdfFwdSolidAngle float64) Vertex {
	v := Vertex{
		Type:  VertexMedium,
		Point: mi.Point,
		MI:    mi,
		Beta:  beta,
	}
	v.PdfFwd = ConvertDensity(prev, &v, pdfFwdSolidAngle)
	return v
}

// ConvertDensity converts the solid-angle density of sampling next from
// prev into an area-measure density at next, applying the geometric
// Jacobian |cos theta| / distance^2. The cosine factor is omitted for
// medium and camera vertices (finite light vertices keep it), and infinite
// lights keep their directional density unconverted since they have no
// finite position.
func ConvertDensity(prev, next *Vertex, pdfSolidAngle float64) float64 {
	if next.IsInfiniteLight() {
		return pdfSolidAngle
	}
	w := next.Point.Subtract(prev.Point)
	d2 := w.LengthSquared()
	if d2 == 0 {
		return 0
	}
	pdf := pdfSolidAngle / d2
	if next.IsOnSurface() {
		n := w.Multiply(1 / math.Sqrt(d2))
		pdf *= math.Abs(n.Dot(next.Normal))
	}
	return pdf
}

// IsOnSurface reports whether the vertex has a well-defined geometric
// normal (surface and non-infinite light vertices).
func (v *Vertex) IsOnSurface() bool {
	return v.Type == VertexSurface || (v.Type == VertexLight && !v.InfiniteLight)
}

// Interaction returns the reference point a camera or light collaborator
// samples against (Camera.SampleWi, Light.SampleLi), valid for any vertex
// variant. Surface vertices return their own Isect; medium and light
// vertices synthesize one from their Point/Normal/Wo, since only surface
// vertices populate Isect directly.
func (v *Vertex) Interaction() core.SurfaceInteraction {
	switch v.Type {
	case VertexSurface:
		return v.Isect
	case VertexMedium:
		return core.SurfaceInteraction{Point: v.MI.Point, Wo: v.MI.Wo}
	default:
		return core.SurfaceInteraction{Point: v.Point, Normal: v.Normal, ShadingNormal: v.Normal}
	}
}

// IsConnectible reports whether a subpath may be connected through this
// vertex. Delta (specular surface, delta light) vertices cannot.
func (v *Vertex) IsConnectible() bool {
	switch v.Type {
	case VertexLight:
		return !v.IsDeltaLight()
	case VertexCamera:
		return true
	case VertexSurface:
		return !v.Delta
	case VertexMedium:
		return true
	}
	return true
}

// IsLight reports whether the vertex is a light endpoint, including an
// infinite-light terminal vertex captured by the random walk.
func (v *Vertex) IsLight() bool {
	return v.Type == VertexLight
}

// IsDeltaLight reports whether this light vertex's emitter is a Dirac
// distribution (point/directional light).
func (v *Vertex) IsDeltaLight() bool {
	return v.Type == VertexLight && v.Light != nil && v.Light.IsDelta()
}

// IsInfiniteLight reports whether this vertex represents an environment
// light escape.
func (v *Vertex) IsInfiniteLight() bool {
	return v.Type == VertexLight && (v.InfiniteLight || (v.Light != nil && v.Light.IsInfinite()))
}

// Le returns the radiance emitted toward the vertex preceding it (prev) in a
// camera subpath, i.e. what the s=0 strategy captures when the camera
// subpath terminates at a light.
func (v *Vertex) Le(prev *Vertex) core.Spectrum {
	if !v.IsLight() {
		return core.Vec3{}
	}
	if v.InfiniteLight {
		return v.EmittedLight
	}
	if v.Light == nil {
		return core.Vec3{}
	}
	w := v.Point.Subtract(prev.Point).Normalize()
	return v.Light.L(v.Isect, w)
}

// f evaluates the scattering function toward other: the BSDF for a
// surface vertex, the phase function for a medium vertex. mode
// distinguishes radiance transport (camera subpaths) from importance
// transport (light subpaths); the two differ by the shading-normal
// correction factor applied at surface vertices.
func (v *Vertex) f(other *Vertex, mode core.TransportMode) core.Spectrum {
	w := other.Point.Subtract(v.Point).Normalize()
	switch v.Type {
	case VertexSurface:
		if v.Isect.BSDF == nil {
			return core.Vec3{}
		}
		wo := v.Isect.Wo
		return v.Isect.BSDF.F(wo, w, mode)
	case VertexMedium:
		return core.NewVec3(v.MI.Phase.P(v.MI.Wo, w), v.MI.Phase.P(v.MI.Wo, w), v.MI.Phase.P(v.MI.Wo, w))
	default:
		return core.Vec3{}
	}
}

// Pdf returns the area-measure density that this vertex would sample at
// next, given it was reached from prev (nil for the camera's vertex-0).
// It dispatches on variant and returns 0 for delta events.
func (v *Vertex) Pdf(scene core.Scene, prev *Vertex, next *Vertex) float64 {
	if v.Type == VertexLight {
		return v.PdfLight(scene, next)
	}

	wn := next.Point.Subtract(v.Point)
	if wn.LengthSquared() == 0 {
		return 0
	}
	wn = wn.Normalize()

	var wp core.Vec3
	havePrev := prev != nil
	if havePrev {
		wp = prev.Point.Subtract(v.Point)
		if wp.LengthSquared() == 0 {
			return 0
		}
		wp = wp.Normalize()
	} else if v.Type != VertexCamera {
		return 0
	}

	var pdf float64
	switch v.Type {
	case VertexCamera:
		if v.Camera == nil {
			return 0
		}
		_, pdfDir := v.Camera.PdfWe(core.NewRay(v.Point, wn))
		pdf = pdfDir
	case VertexSurface:
		if v.Isect.BSDF == nil {
			return 0
		}
		pdf = v.Isect.BSDF.Pdf(wp, wn, core.Radiance)
	case VertexMedium:
		pdf = v.MI.Phase.P(wp, wn)
	}
	return ConvertDensity(v, next, pdf)
}

// PdfLight returns the area density of this light vertex emitting toward
// next.
func (v *Vertex) PdfLight(scene core.Scene, next *Vertex) float64 {
	w := next.Point.Subtract(v.Point)
	d2 := w.LengthSquared()
	if d2 == 0 {
		return 0
	}
	invDist2 := 1 / d2
	w = w.Multiply(math.Sqrt(invDist2))

	var pdf float64
	if v.InfiniteLight {
		worldRadius := scene.WorldRadius()
		if worldRadius <= 0 {
			worldRadius = 1
		}
		pdf = 1 / (math.Pi * worldRadius * worldRadius)
	} else if v.Light != nil {
		pdfPos, pdfDir := v.Light.PdfLe(core.NewRay(v.Point, w), v.Normal)
		pdf = pdfDir * invDist2
		_ = pdfPos
	}

	if next.IsOnSurface() {
		pdf *= math.Abs(next.Normal.Dot(w))
	}
	return pdf
}

// PdfLightOrigin returns the combined probability of selecting this light
// from distr and sampling this surface point on it, as seen from next.
func (v *Vertex) PdfLightOrigin(scene core.Scene, next *Vertex, distr core.LightDistribution, lightToIndex map[core.Light]int) float64 {
	w := next.Point.Subtract(v.Point)
	if w.LengthSquared() == 0 {
		return 0
	}
	w = w.Normalize()

	if v.InfiniteLight {
		return 1 / (4 * math.Pi)
	}
	if v.Light == nil {
		return 0
	}
	idx, ok := lightToIndex[v.Light]
	if !ok {
		return 0
	}
	pdfChoice := distr.Pdf(idx)
	pdfPos, _ := v.Light.PdfLe(core.NewRay(v.Point, w), v.Normal)
	return pdfPos * pdfChoice
}

// remap0 sanitizes a density that may legitimately be zero because the
// event it describes is a Dirac distribution: MIS weight ratios substitute
// 1 for any such zero so a delta event contributes a neutral factor rather
// than a division by zero.
func remap0(f float64) float64 {
	if f != 0 {
		return f
	}
	return 1
}
