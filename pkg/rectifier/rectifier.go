// Package rectifier implements the Stratification-Aware MIS rectifier: a
// two-pass pipeline that estimates per-strategy, per-region sample moments
// during a prepass and derives reweighting factors consumed by MIS during
// the main pass.
package rectifier

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// BufferIndex maps a (depth, t) strategy pair to a flat index into the
// per-cell buffers. The source's `s+t-2+t` formula collides — (0,2) and
// (1,1) both land on 2 — which corrupts diagnostic output; this uses a
// 2-D (depth, t) layout instead: index = d*(d+3)/2 + (t-1), valid for
// d >= 0, 1 <= t <= d+2.
func BufferIndex(depth, t int) int {
	return depth*(depth+3)/2 + (t - 1)
}

// bufferCount returns the number of distinct (depth, t) slots across
// depths [0, maxDepth], matching the layout BufferIndex produces.
func bufferCount(maxDepth int) int {
	return BufferIndex(maxDepth, maxDepth+2) + 1
}

// cell accumulates the running sums needed to recover mean and variance
// for one (depth, t, downsampled pixel cell) triple. Every field is
// accessed through atomic operations since AddEstimate is called
// concurrently from every render tile during the prepass.
type cell struct {
	sumU  uint64 // bits of a float64: sum of unweighted contributions
	sumU2 uint64 // bits of a float64: sum of squared unweighted contributions
	sumW  uint64 // bits of a float64: sum of weighted contributions (for the moment scheme's pixel mean)
	n     int64
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		newV := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(newV)) {
			return
		}
	}
}

func loadFloat64(addr *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(addr))
}

// Config mirrors the subset of core.Config the rectifier needs, kept
// narrow so tests can construct one without a full render configuration.
type Config struct {
	MinDepth, MaxDepth int
	DownsamplingFactor int
	ClampThreshold     float64
	Scheme             core.FactorScheme
}

// Rectifier is the driver-facing SA-MIS state. One instance is shared
// across all tiles for the lifetime of a render.
type Rectifier struct {
	cfg Config

	originX, originY int // cropped window offset; pRaster arrives in absolute film coords
	width, height    int // cropped window dimensions
	cellsX, cellsY   int // downsampled grid dimensions

	cells []cell // [bufferIndex][cellY*cellsX+cellX], flattened

	// factor and mask are populated by Prepare and read-only afterward.
	factor []float64 // same indexing as cells
	mask   []bool    // [cellY*cellsX+cellX], pixel-level clamp mask

	buffers int
}

// New builds a rectifier over the given cropped pixel window. pRaster
// arguments to AddEstimate/Get/IsMasked are expected in absolute film
// coordinates; bounds.Min is subtracted internally.
func New(bounds core.Bounds2i, cfg Config) *Rectifier {
	width, height := bounds.Width(), bounds.Height()
	down := cfg.DownsamplingFactor
	if down < 1 {
		down = 1
	}
	cellsX := (width + down - 1) / down
	cellsY := (height + down - 1) / down
	buffers := bufferCount(cfg.MaxDepth)

	r := &Rectifier{
		cfg:     cfg,
		originX: int(bounds.Min.X),
		originY: int(bounds.Min.Y),
		width:   width,
		height:  height,
		cellsX:  cellsX,
		cellsY:  cellsY,
		cells:   make([]cell, buffers*cellsX*cellsY),
		factor:  make([]float64, buffers*cellsX*cellsY),
		mask:    make([]bool, cellsX*cellsY),
		buffers: buffers,
	}
	for i := range r.factor {
		r.factor[i] = 1
	}
	return r
}

func (r *Rectifier) cellCoord(pRaster core.Vec2) (int, int) {
	down := r.cfg.DownsamplingFactor
	if down < 1 {
		down = 1
	}
	cx := (int(pRaster.X) - r.originX) / down
	cy := (int(pRaster.Y) - r.originY) / down
	if cx >= r.cellsX {
		cx = r.cellsX - 1
	}
	if cy >= r.cellsY {
		cy = r.cellsY - 1
	}
	if cx < 0 {
		cx = 0
	}
	if cy < 0 {
		cy = 0
	}
	return cx, cy
}

func (r *Rectifier) index(depth, t, cx, cy int) int {
	buf := BufferIndex(depth, t)
	return buf*r.cellsX*r.cellsY + cy*r.cellsX + cx
}

// AddEstimate records one prepass sample's unweighted and weighted
// contribution for strategy (depth, t) at pRaster. unweighted is L /
// misWeight when both are non-zero, else 0; it is the quantity whose
// sample variance SA-MIS rectifies against.
func (r *Rectifier) AddEstimate(pRaster core.Vec2, depth, t int, unweighted, weighted float64) {
	if depth < r.cfg.MinDepth || depth > r.cfg.MaxDepth {
		return
	}
	cx, cy := r.cellCoord(pRaster)
	idx := r.index(depth, t, cx, cy)
	c := &r.cells[idx]
	atomicAddFloat64(&c.sumU, unweighted)
	atomicAddFloat64(&c.sumU2, unweighted*unweighted)
	atomicAddFloat64(&c.sumW, weighted)
	atomic.AddInt64(&c.n, 1)
}

// Prepare finalizes the prepass into a read-only factor/mask table,
// deriving alpha per (depth, t, cell) from the configured scheme and
// marking pixels whose aggregate factor is clamp-threshold-degenerate.
func (r *Rectifier) Prepare() {
	for buf := 0; buf < r.buffers; buf++ {
		for cy := 0; cy < r.cellsY; cy++ {
			for cx := 0; cx < r.cellsX; cx++ {
				idx := buf*r.cellsX*r.cellsY + cy*r.cellsX + cx
				c := &r.cells[idx]
				n := atomic.LoadInt64(&c.n)
				if n == 0 {
					r.factor[idx] = 1
					continue
				}
				sumU := loadFloat64(&c.sumU)
				sumU2 := loadFloat64(&c.sumU2)
				mean := sumU / float64(n)
				variance := sumU2/float64(n) - mean*mean
				r.factor[idx] = deriveFactor(r.cfg.Scheme, mean, variance)
			}
		}
	}
	r.applyClampMask()
}

func deriveFactor(scheme core.FactorScheme, mean, variance float64) float64 {
	switch scheme {
	case core.FactorReciprocalVariance:
		if variance > 0 {
			return 1 / variance
		}
		return 1
	case core.FactorMomentOverVariance:
		if variance > 0 && mean != 0 {
			return 1 + mean*mean/variance
		}
		return 1
	default:
		return 1
	}
}

// applyClampMask marks a cell masked when its minimum strategy factor
// exceeds clampThreshold times the per-cell median factor, per §4.D.
func (r *Rectifier) applyClampMask() {
	if r.cfg.ClampThreshold <= 0 {
		return
	}
	perCell := make([]float64, r.buffers)
	for cy := 0; cy < r.cellsY; cy++ {
		for cx := 0; cx < r.cellsX; cx++ {
			for buf := 0; buf < r.buffers; buf++ {
				idx := buf*r.cellsX*r.cellsY + cy*r.cellsX + cx
				perCell[buf] = r.factor[idx]
			}
			median := medianOf(perCell)
			minFactor := math.Inf(1)
			for _, f := range perCell {
				if f < minFactor {
					minFactor = f
				}
			}
			if median > 0 && minFactor > r.cfg.ClampThreshold*median {
				r.mask[cy*r.cellsX+cx] = true
			}
		}
	}
}

func medianOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Get returns the rectification factor for strategy (depth, t) at
// pRaster, a constant-time lookup used inside MIS during the main pass.
func (r *Rectifier) Get(pRaster core.Vec2, depth, t int) float64 {
	if depth < 0 || depth >= r.buffers || t-1 < 0 {
		return 1
	}
	cx, cy := r.cellCoord(pRaster)
	idx := r.index(depth, t, cx, cy)
	if idx < 0 || idx >= len(r.factor) {
		return 1
	}
	return r.factor[idx]
}

// IsMasked reports whether the prepass result at pRaster should be
// discarded rather than blended into the main pass.
func (r *Rectifier) IsMasked(pRaster core.Vec2) bool {
	cx, cy := r.cellCoord(pRaster)
	return r.mask[cy*r.cellsX+cx]
}
