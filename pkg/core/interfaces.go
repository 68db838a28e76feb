package core

// This file collects the collaborator contracts that the BDPT core consumes
// but never implements: scene intersection, materials, lights, the camera,
// the sampler, and the film. A concrete renderer wires its own geometry,
// material, and camera stacks against these interfaces; the core only ever
// calls through them.

// TransportMode distinguishes tracing radiance from the camera from tracing
// importance from a light. It changes the shading-normal correction applied
// when a BSDF is evaluated (see Vertex.f in pkg/bdpt).
type TransportMode int

const (
	Radiance TransportMode = iota
	Importance
)

// Bounds2i is an inclusive-exclusive integer rectangle, [Min, Max).
type Bounds2i struct {
	Min, Max Vec2
}

// Width returns the horizontal extent of the bounds.
func (b Bounds2i) Width() int {
	return int(b.Max.X - b.Min.X)
}

// Height returns the vertical extent of the bounds.
func (b Bounds2i) Height() int {
	return int(b.Max.Y - b.Min.Y)
}

// SurfaceInteraction describes a ray/scene intersection: position, geometric
// and shading normals, the BSDF installed at that point (nil at a pure
// medium boundary), and a reference back to the primitive's light, if it is
// one.
type SurfaceInteraction struct {
	Point        Vec3
	Normal       Vec3 // geometric normal
	ShadingNormal Vec3
	Wo           Vec3 // direction back toward the ray's origin
	BSDF         BSDF
	AreaLight    Light // non-nil iff this surface is an emitter
}

// MediumInteraction describes a scattering event sampled inside a
// participating medium.
type MediumInteraction struct {
	Point Vec3
	Wo    Vec3
	Phase Phase
}

// VisibilityTester defers the shadow/transmittance query between two points
// to the scene collaborator; BDPT calls Tr exactly once per evaluated
// connection.
type VisibilityTester interface {
	// Unoccluded reports whether the straight segment between the two
	// points tested is unobstructed by opaque geometry.
	Unoccluded(scene Scene) bool
	// Tr returns the transmittance along the segment, accounting for any
	// participating media the segment passes through. It is 0 for any
	// opaque occluder and (0,1] otherwise.
	Tr(scene Scene, sampler Sampler) Spectrum
}

// Scene is the read-only collaborator queried for ray intersections and the
// ordered light list used to build lightToIndex and the light distribution.
type Scene interface {
	// Intersect returns the closest intersection with t in (epsilon,
	// tMax), or ok=false if none exists.
	Intersect(ray Ray, tMax float64) (SurfaceInteraction, bool)
	Lights() []Light
	WorldRadius() float64
	WorldCenter() Vec3
}

// Infinity is the tMax passed when a ray should be tested over its full
// length, e.g. a primary or subpath-extension ray.
const Infinity = 1e38

// Camera abstracts ray generation and the two camera-side sampling
// operations BDPT's t=1 strategy and infinite-light bookkeeping need.
type Camera interface {
	// GenerateRay produces a primary ray for a film sample and the camera's
	// importance at that ray, We.
	GenerateRay(pFilm Vec2, sample Vec2) (Ray, Spectrum)
	// SampleWi samples a point on the camera's lens/aperture visible from
	// it, returning the direction toward the camera, the solid-angle pdf
	// of that sample, the raster coordinate it corresponds to, and a
	// visibility tester for the segment.
	SampleWi(it SurfaceInteraction, u Vec2) (wi Vec3, pdf float64, pRaster Vec2, vis VisibilityTester, we Spectrum, ok bool)
	// PdfWe returns the positional and directional densities of having
	// generated ray via GenerateRay.
	PdfWe(ray Ray) (pdfPos, pdfDir float64)
}

// Light is the emitter interface: delta lights (point/directional) and
// infinite lights (environment) both implement it, distinguished by
// IsDelta/IsInfinite.
type Light interface {
	// SampleLe samples an emitted ray from the light, for building light
	// subpaths.
	SampleLe(u1, u2 Vec2) (ray Ray, nLight Vec3, le Spectrum, pdfPos, pdfDir float64)
	// SampleLi samples an incident direction toward it from a reference
	// interaction, for the s=1 direct-lighting strategy.
	SampleLi(it SurfaceInteraction, u Vec2) (wi Vec3, pdf float64, li Spectrum, vis VisibilityTester)
	// PdfLi returns the solid-angle density of SampleLi having sampled wi.
	PdfLi(it SurfaceInteraction, wi Vec3) float64
	// PdfLe returns the positional and directional densities of having
	// emitted ray via SampleLe.
	PdfLe(ray Ray, nLight Vec3) (pdfPos, pdfDir float64)
	// L returns emitted radiance at it seen along w, the direction from the
	// viewing vertex toward the light, for area lights hit directly by a
	// camera subpath (s=0 strategy).
	L(it SurfaceInteraction, w Vec3) Spectrum
	// Le returns emitted radiance for a ray that escaped the scene,
	// non-zero only for infinite lights.
	Le(ray Ray) Spectrum
	IsDelta() bool
	IsInfinite() bool
}

// Medium abstracts a participating medium: sampling a free-flight distance
// (or the segment's end) and its phase function.
type Medium interface {
	Sample(ray Ray, sampler Sampler) (tr Spectrum, mi MediumInteraction, ok bool)
}

// Phase is a medium's phase function, the medium analogue of a BSDF.
type Phase interface {
	P(wo, wi Vec3) float64
	SampleP(wo Vec3, u Vec2) (wi Vec3, pdf float64)
}

// LobeType flags describe what a sampled BSDF lobe is, mirroring the
// reflection-type bitmask collaborators are expected to expose.
type LobeType int

const (
	LobeReflection LobeType = 1 << iota
	LobeTransmission
	LobeDiffuse
	LobeGlossy
	LobeSpecular
)

// IsSpecular reports whether the lobe is a Dirac-delta distribution.
func (l LobeType) IsSpecular() bool {
	return l&LobeSpecular != 0
}

// BSDF evaluates and samples scattering at a surface interaction.
type BSDF interface {
	F(wo, wi Vec3, mode TransportMode) Spectrum
	Pdf(wo, wi Vec3, mode TransportMode) float64
	SampleF(wo Vec3, u Vec2, mode TransportMode) (wi Vec3, f Spectrum, pdf float64, lobe LobeType, ok bool)
}

// Sampler is the stream of stratified pseudo-random numbers a subpath
// random walk and connection strategy draw from.
type Sampler interface {
	Get1D() float64
	Get2D() Vec2
	StartPixel(p Vec2)
	StartNextSample() bool
	SetSampleNumber(n int) bool
	Clone(seed uint64) Sampler
	SamplesPerPixel() int
}

// FilmTile is a thread-local accumulation buffer for one tile's worth of
// pixels, merged back into the Film via MergeFilmTile.
type FilmTile interface {
	Bounds() Bounds2i
	AddSample(pFilm Vec2, l Spectrum, weight float64)
}

// Film is the append-only image accumulator. Tile merges and splats must be
// safe to call concurrently from every render worker.
type Film interface {
	GetFilmTile(bounds Bounds2i) FilmTile
	MergeFilmTile(tile FilmTile)
	AddSplat(pFilm Vec2, l Spectrum)
	CroppedPixelBounds() Bounds2i
	WriteImageToBuffer(scale float64) ([]float64, int, int)
	Clear()
}
