package render

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// pixelAccum sums weighted radiance and sample weight for one pixel.
type pixelAccum struct {
	sum    core.Spectrum
	weight float64
}

// tileAccum is a tile-local, single-goroutine pixel accumulator. No
// locking: a tile's pixels are only ever written by the goroutine that
// owns the tile.
type tileAccum struct {
	bounds core.Bounds2i
	width  int
	pixels []pixelAccum
}

func newTileAccum(bounds core.Bounds2i) *tileAccum {
	w, h := bounds.Width(), bounds.Height()
	return &tileAccum{bounds: bounds, width: w, pixels: make([]pixelAccum, w*h)}
}

func (t *tileAccum) AddSample(pFilm core.Vec2, L core.Spectrum, weight float64) {
	x := int(pFilm.X) - int(t.bounds.Min.X)
	y := int(pFilm.Y) - int(t.bounds.Min.Y)
	if x < 0 || y < 0 || x >= t.width || y*t.width+x >= len(t.pixels) {
		return
	}
	p := &t.pixels[y*t.width+x]
	p.sum = p.sum.Add(L.Multiply(weight))
	p.weight += weight
}

// splatAccum holds one pixel's splatted radiance as three atomically
// addable bit patterns: splats may land on a pixel outside the tile
// currently being rendered, so every write must be safe from any
// goroutine without a global lock.
type splatAccum struct {
	r, g, b uint64
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		newVal := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(newVal)) {
			return
		}
	}
}

func loadFloat64(addr *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(addr))
}

// FrameBuffer is the driver-internal accumulator for one render pass
// (prepass or main). It is distinct from the core.Film collaborator: the
// two-pass SA-MIS blend in §4.E operates on these raw per-pass sums, and
// only the merged result is ever handed to the external Film.
type FrameBuffer struct {
	originX, originY int // cropped window offset; inputs arrive in absolute film coords
	width, height    int

	mu     sync.Mutex
	pixels []pixelAccum

	splats []splatAccum
}

// NewFrameBuffer allocates a buffer covering bounds, a cropped pixel
// window in absolute film coordinates.
func NewFrameBuffer(bounds core.Bounds2i) *FrameBuffer {
	width, height := bounds.Width(), bounds.Height()
	return &FrameBuffer{
		originX: int(bounds.Min.X),
		originY: int(bounds.Min.Y),
		width:   width,
		height:  height,
		pixels:  make([]pixelAccum, width*height),
		splats:  make([]splatAccum, width*height),
	}
}

// MergeTile folds a completed tile's samples into the buffer. Pixel
// ranges are partitioned across tiles, so distinct tiles never touch the
// same pixel; the mutex only guards against the merge itself racing a
// concurrent MergeTile from another worker.
func (fb *FrameBuffer) MergeTile(t *tileAccum) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	x0, y0 := int(t.bounds.Min.X)-fb.originX, int(t.bounds.Min.Y)-fb.originY
	h := t.bounds.Height()
	for ty := 0; ty < h; ty++ {
		for tx := 0; tx < t.width; tx++ {
			src := t.pixels[ty*t.width+tx]
			if src.weight == 0 {
				continue
			}
			dstX, dstY := x0+tx, y0+ty
			if dstX < 0 || dstY < 0 || dstX >= fb.width || dstY >= fb.height {
				continue
			}
			d := &fb.pixels[dstY*fb.width+dstX]
			d.sum = d.sum.Add(src.sum)
			d.weight += src.weight
		}
	}
}

// AddSplat atomically accumulates a t=1 connection's contribution into
// the pixel containing pRaster (coordinates truncated toward zero); a
// splat outside the buffer is dropped.
func (fb *FrameBuffer) AddSplat(pRaster core.Vec2, L core.Spectrum) {
	x, y := int(pRaster.X)-fb.originX, int(pRaster.Y)-fb.originY
	if x < 0 || y < 0 || x >= fb.width || y >= fb.height {
		return
	}
	s := &fb.splats[y*fb.width+x]
	atomicAddFloat64(&s.r, L.X)
	atomicAddFloat64(&s.g, L.Y)
	atomicAddFloat64(&s.b, L.Z)
}

// At returns the mean radiance accumulated at (x, y): the pixel-sample
// estimator's running average, excluding splats.
func (fb *FrameBuffer) At(x, y int) core.Spectrum {
	p := fb.pixels[y*fb.width+x]
	if p.weight == 0 {
		return core.Spectrum{}
	}
	return p.sum.Multiply(1 / p.weight)
}

// SplatAt returns the raw (unscaled) splat sum accumulated at (x, y).
func (fb *FrameBuffer) SplatAt(x, y int) core.Spectrum {
	s := fb.splats[y*fb.width+x]
	return core.NewVec3(loadFloat64(&s.r), loadFloat64(&s.g), loadFloat64(&s.b))
}
