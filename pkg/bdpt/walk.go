package bdpt

import (
	"github.com/tanager-render/sa-bdpt/pkg/arena"
	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// Path is an ordered subpath of vertices, backed by a per-tile arena so
// its storage is reclaimed in bulk at the end of each pixel sample rather
// than individually.
type Path struct {
	Vertices *arena.Arena[Vertex]
}

// Len returns the number of live vertices in the subpath.
func (p *Path) Len() int {
	return p.Vertices.Len()
}

// At returns a pointer to the i'th vertex.
func (p *Path) At(i int) *Vertex {
	return p.Vertices.At(i)
}

// GenerateCameraSubpath traces ray through the scene to build a camera
// subpath of at most maxDepth+1 vertices (the camera endpoint plus up to
// maxDepth scattering events), returning the populated subpath.
func GenerateCameraSubpath(scene core.Scene, camera core.Camera, sampler core.Sampler, verts *arena.Arena[Vertex], ray core.Ray, we core.Spectrum, maxDepth int) Path {
	path := Path{Vertices: verts}
	pdfPos, pdfDir := camera.PdfWe(ray)
	_ = pdfPos
	*verts.Alloc() = FromCamera(camera, ray.Origin, core.NewVec3(1, 1, 1))
	if maxDepth == 0 {
		return path
	}
	randomWalk(scene, sampler, &path, ray, core.NewVec3(1, 1, 1), pdfDir, maxDepth, core.Radiance, nil)
	_ = we
	return path
}

// GenerateCameraSubpathInMedium is GenerateCameraSubpath for a camera
// whose initial ray starts inside a participating medium.
func GenerateCameraSubpathInMedium(scene core.Scene, camera core.Camera, sampler core.Sampler, verts *arena.Arena[Vertex], ray core.Ray, maxDepth int, medium core.Medium) Path {
	path := Path{Vertices: verts}
	_, pdfDir := camera.PdfWe(ray)
	*verts.Alloc() = FromCamera(camera, ray.Origin, core.NewVec3(1, 1, 1))
	if maxDepth == 0 {
		return path
	}
	randomWalk(scene, sampler, &path, ray, core.NewVec3(1, 1, 1), pdfDir, maxDepth, core.Radiance, medium)
	return path
}

// GenerateLightSubpath samples an emitter from distr and traces a light
// subpath of at most maxDepth vertices (the light endpoint plus up to
// maxDepth-1 scattering events).
func GenerateLightSubpath(scene core.Scene, sampler core.Sampler, verts *arena.Arena[Vertex], distr core.LightDistribution, maxDepth int) Path {
	path := Path{Vertices: verts}
	if len(distr.Lights()) == 0 || maxDepth == 0 {
		return path
	}
	light, lightPdf, _ := distr.Sample(sampler.Get1D())
	if light == nil || lightPdf <= 0 {
		return path
	}
	ray, nLight, le, pdfPos, pdfDir := light.SampleLe(sampler.Get2D(), sampler.Get2D())
	if le.IsBlack() || pdfPos <= 0 || pdfDir <= 0 {
		return path
	}

	lightVertexPdf := pdfPos * lightPdf
	*verts.Alloc() = FromLight(light, ray.Origin, nLight, le.Multiply(1/lightVertexPdf), lightVertexPdf)

	cosTheta := ray.Direction.AbsDot(nLight)
	beta := le.Multiply(cosTheta / (lightPdf * pdfPos * pdfDir))
	bounces := randomWalk(scene, sampler, &path, ray, beta, pdfDir, maxDepth-1, core.Importance, nil)

	if light.IsInfinite() {
		// The position SampleLe returned is a sample on a proxy disk, not a
		// physical point on the light, so its area density doesn't mean
		// what FromLight assumed. Replace vertex-0's density with the
		// directional sampling density instead, and fix up vertex-1's
		// forward density with the solid-angle-to-area Jacobian at the
		// first real hit, since the disk's area measure has no 1/distance^2
		// relationship to that hit the way a finite light's surface does.
		path.At(0).PdfFwd = lightPdf * pdfDir
		if bounces > 0 {
			v1 := path.At(1)
			v1.PdfFwd = pdfPos
			if v1.IsOnSurface() {
				v1.PdfFwd *= ray.Direction.AbsDot(v1.Normal)
			}
		}
	}

	return path
}

// randomWalk implements the shared state machine §4.B describes: intersect,
// optionally scatter in a medium, otherwise scatter off a surface or
// capture an infinite-light escape, retroactively filling in the reverse
// density of the vertex preceding the one just appended. It mutates path in place.
func randomWalk(scene core.Scene, sampler core.Sampler, path *Path, ray core.Ray, beta core.Spectrum, pdfFwd float64, maxBounces int, mode core.TransportMode, medium core.Medium) int {
	bounces := 0
	for bounces < maxBounces {
		prev := path.At(path.Len() - 1)

		isect, hit := scene.Intersect(ray, core.Infinity)

		if medium != nil {
			tr, mi, scattered := medium.Sample(ray, sampler)
			beta = beta.MultiplyVec(tr)
			if beta.IsBlack() {
				break
			}
			if scattered {
				*path.Vertices.Alloc() = FromMedium(prev, mi, beta, pdfFwd)
				appended := path.At(path.Len() - 1)
				bounces++

				wi, phasePdf := mi.Phase.SampleP(mi.Wo, sampler.Get2D())
				if phasePdf == 0 {
					break
				}
				prev.PdfRev = ConvertDensity(appended, prev, phasePdf)
				pdfFwd = phasePdf
				ray = core.NewRay(mi.Point, wi)
				if bounces >= maxBounces {
					break
				}
				continue
			}
		}

		if !hit {
			if mode == core.Radiance {
				le := environmentRadiance(scene, ray)
				if !le.IsBlack() {
					prev.PdfRev = 0
					*path.Vertices.Alloc() = FromInfiniteLight(ray, le, beta, pdfFwd)
					bounces++
				}
			}
			break
		}

		if isect.BSDF == nil {
			// Pure medium boundary: continue the ray without spending a
			// bounce on a vertex.
			ray = core.NewRay(isect.Point, ray.Direction)
			continue
		}

		v := FromSurface(prev, isect, beta, pdfFwd)
		bounces++

		wo := isect.Wo
		wi, f, pdf, lobe, ok := isect.BSDF.SampleF(wo, sampler.Get2D(), mode)
		*path.Vertices.Alloc() = v
		appended := path.At(path.Len() - 1)
		if !ok || pdf == 0 || f.IsBlack() {
			break
		}

		cosTheta := wi.AbsDot(isect.ShadingNormal)
		beta = beta.MultiplyVec(f).Multiply(cosTheta / pdf)

		if mode == core.Importance {
			// Shading-normal correction for importance transport, 1 in
			// radiance mode.
			ns, ng := isect.ShadingNormal, isect.Normal
			num := wo.AbsDot(ns) * wi.AbsDot(ng)
			den := wo.AbsDot(ng) * wi.AbsDot(ns)
			if den > 0 {
				beta = beta.Multiply(num / den)
			}
		}

		pdfRev := isect.BSDF.Pdf(wi, wo, core.Radiance)
		if lobe.IsSpecular() {
			appended.Delta = true
			appended.PdfFwd = 0
			pdfRev = 0
			pdf = 0
		}
		prev.PdfRev = ConvertDensity(appended, prev, pdfRev)

		if beta.IsBlack() {
			break
		}

		pdfFwd = pdf
		ray = core.NewRay(isect.Point, wi)

		if bounces >= maxBounces {
			break
		}
	}
	return bounces
}

// environmentRadiance sums the Le contribution of every infinite light in
// the scene for a ray that escaped all geometry.
func environmentRadiance(scene core.Scene, ray core.Ray) core.Spectrum {
	var total core.Spectrum
	for _, l := range scene.Lights() {
		if l.IsInfinite() {
			total = total.Add(l.Le(ray))
		}
	}
	return total
}
