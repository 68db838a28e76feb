package bdpt

import (
	"testing"

	"github.com/tanager-render/sa-bdpt/pkg/arena"
	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// buildCameraPath constructs a two-vertex camera path (camera endpoint +
// one diffuse surface hit) directly, bypassing GenerateCameraSubpath, so
// connection-strategy tests can control exact vertex state. Wo at the
// surface vertex points back toward the camera origin, as a real
// intersection would report.
func buildCameraPath(t *testing.T, cam core.Camera, camOrigin, surfacePoint, surfaceNormal core.Vec3, bsdf core.BSDF) Path {
	t.Helper()
	verts := arena.New[Vertex](4)
	path := Path{Vertices: verts}
	*verts.Alloc() = FromCamera(cam, camOrigin, core.NewVec3(1, 1, 1))
	isect := core.SurfaceInteraction{
		Point:         surfacePoint,
		Normal:        surfaceNormal,
		ShadingNormal: surfaceNormal,
		Wo:            camOrigin.Subtract(surfacePoint).Normalize(),
		BSDF:          bsdf,
	}
	*verts.Alloc() = FromSurface(path.At(0), isect, core.NewVec3(1, 1, 1), 1)
	return path
}

func TestConnectBDPT_S0_CameraPathHitsLight(t *testing.T) {
	scene := &fakeScene{radius: 10}
	cam := &fakeCamera{origin: core.NewVec3(0, 0, 0)}
	light := &fakeLight{radiance: core.NewVec3(3, 3, 3), normal: core.NewVec3(0, 0, 1)}

	verts := arena.New[Vertex](4)
	cameraPath := Path{Vertices: verts}
	*verts.Alloc() = FromCamera(cam, core.NewVec3(0, 0, 0), core.NewVec3(1, 1, 1))
	lightVertex := FromLight(light, core.NewVec3(0, 0, -1), core.NewVec3(0, 0, 1), core.NewVec3(3, 3, 3), 1)
	lightVertex.EmittedLight = light.radiance
	*verts.Alloc() = lightVertex

	lightPath := Path{Vertices: arena.New[Vertex](1)}
	distr := &uniformLightDistr{lights: []core.Light{light}}
	lightToIndex := core.BuildLightToIndex([]core.Light{light})
	sampler := newFixedSampler(nil, nil)

	l, weight, _, _, ok := ConnectBDPT(scene, &lightPath, &cameraPath, 0, 2, distr, lightToIndex, cam, sampler, nil, core.MISBalance)
	if !ok {
		t.Fatalf("expected the s=0 strategy to succeed when the camera path terminates at a light")
	}
	if weight != 1 {
		t.Errorf("expected s+t==2 to bypass MIS weighting (weight=1), got %v", weight)
	}
	if l.IsBlack() {
		t.Errorf("expected non-black radiance from the light's emission")
	}
}

func TestConnectBDPT_T1_DirectCameraConnection(t *testing.T) {
	scene := &fakeScene{radius: 10}
	cam := &fakeCamera{origin: core.NewVec3(0, 0, 5)}
	light := &fakeLight{point: core.NewVec3(0, 0, 10), normal: core.NewVec3(0, 0, -1), radiance: core.NewVec3(2, 2, 2)}

	lightVerts := arena.New[Vertex](4)
	lightPath := Path{Vertices: lightVerts}
	*lightVerts.Alloc() = FromLight(light, light.point, light.normal, core.NewVec3(2, 2, 2), 1)
	bsdf := &fakeBSDF{albedo: core.NewVec3(0.5, 0.5, 0.5), n: core.NewVec3(0, 0, 1)}
	isect := core.SurfaceInteraction{
		Point:         core.NewVec3(0, 0, 0),
		Normal:        core.NewVec3(0, 0, 1),
		ShadingNormal: core.NewVec3(0, 0, 1),
		Wo:            core.NewVec3(0, 0, 1),
		BSDF:          bsdf,
	}
	*lightVerts.Alloc() = FromSurface(lightPath.At(0), isect, core.NewVec3(1, 1, 1), 1)

	cameraVerts := arena.New[Vertex](4)
	cameraPath := Path{Vertices: cameraVerts}
	*cameraVerts.Alloc() = FromCamera(cam, cam.origin, core.NewVec3(1, 1, 1))

	distr := &uniformLightDistr{lights: []core.Light{light}}
	lightToIndex := core.BuildLightToIndex([]core.Light{light})
	sampler := newFixedSampler(nil, []core.Vec2{{}})

	l, weight, sampledVertex, pRaster, ok := ConnectBDPT(scene, &lightPath, &cameraPath, 2, 1, distr, lightToIndex, cam, sampler, nil, core.MISBalance)
	if !ok {
		t.Fatalf("expected the t=1 connection to succeed")
	}
	if sampledVertex == nil || sampledVertex.Type != VertexCamera {
		t.Errorf("expected a sampled camera vertex to be returned for t=1")
	}
	if pRaster != core.NewVec2(50, 50) {
		t.Errorf("expected the fake camera's fixed raster coordinate, got %+v", pRaster)
	}
	if l.IsBlack() {
		t.Errorf("expected non-black radiance from the t=1 connection")
	}
	if weight <= 0 || weight > 1 {
		t.Errorf("MIS weight should be in (0,1], got %v", weight)
	}
}

func TestConnectBDPT_S1_DirectLightConnection(t *testing.T) {
	scene := &fakeScene{radius: 10}
	cam := &fakeCamera{origin: core.NewVec3(0, 0, 5)}
	light := &fakeLight{point: core.NewVec3(0, 0, 10), normal: core.NewVec3(0, 0, -1), radiance: core.NewVec3(2, 2, 2)}
	bsdf := &fakeBSDF{albedo: core.NewVec3(0.5, 0.5, 0.5), n: core.NewVec3(0, 0, 1)}

	cameraPath := buildCameraPath(t, cam, cam.origin, core.NewVec3(0, 0, 0), core.NewVec3(0, 0, 1), bsdf)
	lightPath := Path{Vertices: arena.New[Vertex](0)}

	distr := &uniformLightDistr{lights: []core.Light{light}}
	lightToIndex := core.BuildLightToIndex([]core.Light{light})
	sampler := newFixedSampler([]float64{0.1}, []core.Vec2{{}})

	l, weight, sampledVertex, _, ok := ConnectBDPT(scene, &lightPath, &cameraPath, 1, 2, distr, lightToIndex, cam, sampler, nil, core.MISBalance)
	if !ok {
		t.Fatalf("expected the s=1 direct-lighting strategy to succeed")
	}
	if sampledVertex == nil || sampledVertex.Type != VertexLight {
		t.Errorf("expected a sampled light vertex to be returned for s=1")
	}
	if l.IsBlack() {
		t.Errorf("expected non-black radiance from the s=1 connection")
	}
	if weight <= 0 || weight > 1 {
		t.Errorf("MIS weight should be in (0,1], got %v", weight)
	}
}

func TestConnectBDPT_T0_AlwaysFails(t *testing.T) {
	scene := &fakeScene{radius: 10}
	cam := &fakeCamera{origin: core.NewVec3(0, 0, 0)}
	cameraPath := Path{Vertices: arena.New[Vertex](0)}
	lightPath := Path{Vertices: arena.New[Vertex](0)}
	distr := &uniformLightDistr{}
	sampler := newFixedSampler(nil, nil)

	_, _, _, _, ok := ConnectBDPT(scene, &lightPath, &cameraPath, 0, 0, distr, nil, cam, sampler, nil, core.MISBalance)
	if ok {
		t.Errorf("t=0 should never produce a valid connection")
	}
}
