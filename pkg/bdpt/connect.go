package bdpt

import "github.com/tanager-render/sa-bdpt/pkg/core"

// Rectifier is the SA-MIS factor lookup consulted by MIS weight
// computation during the main pass. A nil Rectifier behaves as if every
// factor were 1, matching "no rectifier" per §4.C.2 step 2.
type Rectifier interface {
	Get(pRaster core.Vec2, depth, t int) float64
}

// ConnectBDPT builds the complete path formed by joining the first s
// vertices of lightSubpath and the first t vertices of cameraSubpath,
// returning its unweighted radiance and its MIS weight. For t=1
// connections, pRaster is populated with the raster coordinate the light
// subpath's last vertex was actually visible from — an output, since the
// t=1 strategy may land on a different pixel than the one being sampled.
func ConnectBDPT(
	scene core.Scene,
	lightSubpath, cameraSubpath *Path,
	s, t int,
	distr core.LightDistribution,
	lightToIndex map[core.Light]int,
	camera core.Camera,
	sampler core.Sampler,
	rect Rectifier,
	misStrategy core.MISStrategy,
) (radiance core.Spectrum, misWeight float64, sampledVertex *Vertex, pRaster core.Vec2, ok bool) {
	if t == 0 {
		return core.Vec3{}, 0, nil, core.Vec2{}, false
	}

	var l core.Spectrum

	switch {
	case s == 0:
		zLast := cameraSubpath.At(t - 1)
		if zLast.IsLight() {
			var prev *Vertex
			if t >= 2 {
				prev = cameraSubpath.At(t - 2)
			}
			l = zLast.Le(prev).MultiplyVec(zLast.Beta)
		}

	case t == 1:
		yLast := lightSubpath.At(s - 1)
		if !yLast.IsConnectible() {
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		wi, pdf, pr, vis, we, sampled := camera.SampleWi(yLast.Interaction(), sampler.Get2D())
		if !sampled || pdf <= 0 || we.IsBlack() {
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		cameraBeta := we.Multiply(1 / pdf)
		f := yLast.f(&Vertex{Point: yLast.Point.Add(wi)}, core.Importance)
		if yLast.IsOnSurface() {
			f = f.Multiply(wi.AbsDot(yLast.Normal))
		}
		if f.IsBlack() {
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		tr := vis.Tr(scene, sampler)
		l = yLast.Beta.MultiplyVec(f).MultiplyVec(cameraBeta).MultiplyVec(tr)
		pRaster = pr
		sv := FromCamera(camera, yLast.Point.Add(wi), cameraBeta)
		sv.PdfFwd = pdf
		sampledVertex = &sv

	case s == 1:
		zLast := cameraSubpath.At(t - 1)
		if !zLast.IsConnectible() {
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		light, lightPdf, idx := distr.Sample(sampler.Get1D())
		if light == nil || lightPdf <= 0 {
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		wi, pdf, li, vis := light.SampleLi(zLast.Interaction(), sampler.Get2D())
		if pdf <= 0 || li.IsBlack() {
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		lightPdfTotal := pdf * lightPdf
		lightBeta := li.Multiply(1 / lightPdfTotal)
		f := zLast.f(&Vertex{Point: zLast.Point.Add(wi)}, core.Radiance)
		if zLast.IsOnSurface() {
			f = f.Multiply(wi.AbsDot(zLast.Normal))
		}
		if f.IsBlack() {
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		tr := vis.Tr(scene, sampler)
		l = zLast.Beta.MultiplyVec(f).MultiplyVec(lightBeta).MultiplyVec(tr)

		sv := Vertex{
			Type:         VertexLight,
			Point:        zLast.Point.Add(wi),
			Light:        light,
			Beta:         lightBeta,
			PdfFwd:       lightPdfTotal,
			EmittedLight: li,
		}
		_ = idx
		sampledVertex = &sv

	default:
		yLast := lightSubpath.At(s - 1)
		zLast := cameraSubpath.At(t - 1)
		if t > 1 && zLast.IsLight() {
			// Avoids double-counting infinite-light paths already
			// captured by the s=0 strategy.
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		if !yLast.IsConnectible() || !zLast.IsConnectible() {
			return core.Vec3{}, 0, nil, core.Vec2{}, false
		}
		l = connectVertices(scene, sampler, yLast, zLast)
	}

	if l.IsBlack() {
		return core.Vec3{}, 0, nil, core.Vec2{}, false
	}

	w := MISWeight(scene, lightSubpath, cameraSubpath, sampledVertex, s, t, distr, lightToIndex, rect, misStrategy, pRaster)
	return l, w, sampledVertex, pRaster, true
}

// connectVertices evaluates the s>=2,t>=2 direct-connection contribution
// between y and z: throughput at y, the scattering functions at both
// ends, the geometric term, throughput at z, and the visibility
// transmittance.
func connectVertices(scene core.Scene, sampler core.Sampler, y, z *Vertex) core.Spectrum {
	d := z.Point.Subtract(y.Point)
	dist2 := d.LengthSquared()
	if dist2 == 0 {
		return core.Vec3{}
	}
	dir := d.Normalize()

	fy := y.f(z, core.Importance)
	fz := z.f(y, core.Radiance)
	if fy.IsBlack() || fz.IsBlack() {
		return core.Vec3{}
	}

	g := 1.0 / dist2
	if y.IsOnSurface() {
		g *= dir.AbsDot(y.Normal)
	}
	if z.IsOnSurface() {
		g *= dir.Negate().AbsDot(z.Normal)
	}
	if g <= 0 {
		return core.Vec3{}
	}

	tr := visibilityTr(scene, sampler, y.Point, z.Point)
	if tr.IsBlack() {
		return core.Vec3{}
	}

	return y.Beta.MultiplyVec(fy).MultiplyVec(fz).MultiplyVec(z.Beta).Multiply(g).MultiplyVec(tr)
}

// visibilityTr is a fallback used by the s>=2,t>=2 connection, which has no
// VisibilityTester of its own (unlike the s=1/t=1 cases, which receive one
// from the light/camera sample). It intersects the segment directly
// against the scene; a hit strictly between the endpoints means the
// connection is occluded.
func visibilityTr(scene core.Scene, sampler core.Sampler, from, to core.Vec3) core.Spectrum {
	d := to.Subtract(from)
	dist := d.Length()
	if dist == 0 {
		return core.NewVec3(1, 1, 1)
	}
	dir := d.Multiply(1 / dist)
	ray := core.NewRay(from, dir)
	const epsilon = 1e-4
	_, hit := scene.Intersect(ray, dist-epsilon)
	if hit {
		return core.Vec3{}
	}
	return core.NewVec3(1, 1, 1)
}
