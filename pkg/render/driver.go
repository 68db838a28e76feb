// Package render implements the BDPT render driver: tiling the film,
// scheduling tiles across a worker pool, running the SA-MIS prepass and
// rectified main pass, and merging both buffers into the final image.
package render

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/tanager-render/sa-bdpt/pkg/arena"
	"github.com/tanager-render/sa-bdpt/pkg/bdpt"
	"github.com/tanager-render/sa-bdpt/pkg/core"
	"github.com/tanager-render/sa-bdpt/pkg/rectifier"
)

// ProgressReporter is the out-of-scope progress-reporting collaborator the
// driver calls into per-tile and per-pass. pkg/progress ships a websocket
// implementation; a nil reporter is also valid (no-op).
type ProgressReporter interface {
	TileDone(pass, tileIndex int, bounds core.Bounds2i, elapsed time.Duration)
	PassDone(pass, samplesPerPixel int, elapsed time.Duration)
}

// Stats summarizes a completed render for the driver's post-render
// report (surfaced by cmd/sabdpt via tablewriter).
type Stats struct {
	PrepassSamples, MainPassSamples int
	PrepassElapsed, MainPassElapsed time.Duration
	MaskedPixels                    int
	StrategySamples                 map[[2]int]int64 // keyed by (depth, t)
}

// Driver owns the state of one render: the scene/camera/film collaborators,
// configuration, and (once built) the light distribution and rectifier.
type Driver struct {
	Scene      core.Scene
	Camera     core.Camera
	Film       core.Film
	Sampler    core.Sampler
	Config     core.Config
	Reporter   ProgressReporter
	NumWorkers int

	lightToIndex map[core.Light]int
	distr        core.LightDistribution
	rect         *rectifier.Rectifier

	statsMu sync.Mutex
}

// recordStrategy tallies one successful (depth,t) connection strategy for
// the post-render stats table; called from multiple tile workers, so it's
// guarded by statsMu rather than the per-pass FrameBuffer's own locking.
func (d *Driver) recordStrategy(stats *Stats, depth, t int) {
	d.statsMu.Lock()
	stats.StrategySamples[[2]int{depth, t}]++
	d.statsMu.Unlock()
}

// approxPower is the power-sampling weight: emitted radiance luminance, as
// a stand-in for true emitted-power integration until a concrete Light
// implementation reports flux directly.
func approxPower(scene core.Scene) func(core.Light) float64 {
	return func(l core.Light) float64 {
		if l.IsInfinite() {
			return 1
		}
		_, le, _, pdfPos, pdfDir := sampleLeForPower(l)
		if pdfPos <= 0 || pdfDir <= 0 {
			return 1
		}
		return le.Luminance()
	}
}

func sampleLeForPower(l core.Light) (core.Ray, core.Spectrum, core.Vec3, float64, float64) {
	ray, n, le, pdfPos, pdfDir := l.SampleLe(core.NewVec2(0.5, 0.5), core.NewVec2(0.5, 0.5))
	return ray, le, n, pdfPos, pdfDir
}

// Render runs the full two-pass SA-MIS pipeline described in §4.E and
// returns summary statistics. The final image is committed to d.Film
// once, after the masked prepass/main blend.
func (d *Driver) Render() Stats {
	lights := d.Scene.Lights()
	d.lightToIndex = core.BuildLightToIndex(lights)
	d.distr = core.NewLightDistribution(d.Config.LightSampleStrategy, lights, approxPower(d.Scene))

	bounds := d.Film.CroppedPixelBounds()
	d.rect = rectifier.New(bounds, rectifier.Config{
		MinDepth:           d.Config.RectiMinDepth,
		MaxDepth:           d.Config.RectiMaxDepth,
		DownsamplingFactor: d.Config.EffectiveDownsamplingFactor(),
		ClampThreshold:     d.Config.ClampThreshold,
		Scheme:             d.Config.FactorScheme,
	})

	stats := Stats{StrategySamples: make(map[[2]int]int64)}

	prepassFB := NewFrameBuffer(bounds)
	mainFB := NewFrameBuffer(bounds)

	prepassStart := time.Now()
	d.runPass(0, d.Config.Presamples, bounds, true, prepassFB, &stats)
	stats.PrepassElapsed = time.Since(prepassStart)
	stats.PrepassSamples = d.Config.Presamples
	if d.Reporter != nil {
		d.Reporter.PassDone(0, d.Config.Presamples, stats.PrepassElapsed)
	}

	d.rect.Prepare()

	mainSamples := d.Sampler.SamplesPerPixel() - d.Config.Presamples
	if mainSamples < 0 {
		mainSamples = 0
	}
	mainStart := time.Now()
	d.runPass(1, mainSamples, bounds, false, mainFB, &stats)
	stats.MainPassElapsed = time.Since(mainStart)
	stats.MainPassSamples = mainSamples
	if d.Reporter != nil {
		d.Reporter.PassDone(1, mainSamples, stats.MainPassElapsed)
	}

	d.mergeAndCommit(bounds, prepassFB, mainFB, &stats)

	return stats
}

// mergeAndCommit performs the §4.E step-7 per-pixel merge: masked
// pixels take the main-pass estimate alone, everything else blends the
// two passes weighted by their sample counts. Splats are combined
// separately (per the §9 open-question resolution, the blend weighting
// only applies to the pixel-accumulator buffers) and scaled by
// 1/samplesPerPixel at write-out. The merged result is written into
// d.Film as a single pass so the external collaborator's own weighting
// never double-counts either pass.
func (d *Driver) mergeAndCommit(bounds core.Bounds2i, prepassFB, mainFB *FrameBuffer, stats *Stats) {
	x0, y0 := int(bounds.Min.X), int(bounds.Min.Y)
	width, height := bounds.Width(), bounds.Height()

	wp := float64(stats.PrepassSamples)
	wm := float64(stats.MainPassSamples)
	total := wp + wm

	tile := d.Film.GetFilmTile(bounds)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var merged core.Spectrum
			masked := d.rect.IsMasked(core.NewVec2(float64(x0+x), float64(y0+y)))
			if masked {
				stats.MaskedPixels++
				merged = mainFB.At(x, y)
			} else if total > 0 {
				merged = prepassFB.At(x, y).Multiply(wp / total).Add(mainFB.At(x, y).Multiply(wm / total))
			}
			if !merged.IsBlack() {
				tile.AddSample(core.NewVec2(float64(x0+x)+0.5, float64(y0+y)+0.5), merged, 1)
			}
		}
	}
	d.Film.MergeFilmTile(tile)

	totalSamples := stats.PrepassSamples + stats.MainPassSamples
	if totalSamples == 0 {
		return
	}
	scale := 1 / float64(totalSamples)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			splat := prepassFB.SplatAt(x, y).Add(mainFB.SplatAt(x, y))
			if splat.IsBlack() {
				continue
			}
			d.Film.AddSplat(core.NewVec2(float64(x0+x)+0.5, float64(y0+y)+0.5), splat.Multiply(scale))
		}
	}
}

// runPass schedules every tile of bounds across the worker pool for one
// pass (prepass or main), merging each tile's local accumulator into fb
// once the tile completes.
func (d *Driver) runPass(pass, samples int, bounds core.Bounds2i, isPrepass bool, fb *FrameBuffer, stats *Stats) {
	if samples <= 0 {
		return
	}
	tiles := NewTileGrid(bounds)

	pool := newWorkerPool(d.NumWorkers, len(tiles), func(t tileTask) error {
		start := time.Now()
		d.renderTile(t.tile, pass, samples, isPrepass, fb, stats)
		if d.Reporter != nil {
			d.Reporter.TileDone(pass, t.tile.Index, t.tile.Bounds, time.Since(start))
		}
		return nil
	})

	for _, tile := range tiles {
		pool.submit(tileTask{tile: tile, pass: pass, samplesPerPixel: samples})
	}
	pool.closeAndWait()
	for range tiles {
		<-pool.results
	}
}

// tileSeed derives a deterministic per-tile, per-pass sampler seed via
// FNV-1a, so repeated renders of the same configuration reproduce
// bit-identical images.
func tileSeed(tileIndex, passOffset int) uint64 {
	h := fnv.New64a()
	var b [16]byte
	putInt(b[0:8], tileIndex)
	putInt(b[8:16], passOffset)
	h.Write(b[:])
	return h.Sum64()
}

func putInt(b []byte, v int) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

// renderTile runs samples pixel-samples per pixel over tile, accumulating
// into a tile-local buffer before merging into fb, using a fresh arena
// and a tile-local sampler clone reset per pixel sample.
func (d *Driver) renderTile(tile Tile, pass, samples int, isPrepass bool, fb *FrameBuffer, stats *Stats) {
	sampler := d.Sampler.Clone(tileSeed(tile.Index, pass))
	acc := newTileAccum(tile.Bounds)

	maxCamVerts := d.Config.MaxDepth + 2
	maxLightVerts := d.Config.MaxDepth + 1
	camArena := arena.New[bdpt.Vertex](maxCamVerts)
	lightArena := arena.New[bdpt.Vertex](maxLightVerts)

	x0, y0 := int(tile.Bounds.Min.X), int(tile.Bounds.Min.Y)
	x1, y1 := int(tile.Bounds.Max.X), int(tile.Bounds.Max.Y)

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			pFilm := core.NewVec2(float64(x)+0.5, float64(y)+0.5)
			sampler.StartPixel(pFilm)
			for s := 0; s < samples; s++ {
				if !sampler.StartNextSample() {
					break
				}
				camArena.Reset()
				lightArena.Reset()
				d.renderSample(pFilm, sampler, camArena, lightArena, acc, fb, isPrepass, stats)
			}
		}
	}

	fb.MergeTile(acc)
}

// renderSample builds both subpaths for one pixel sample and accumulates
// every valid connection strategy's weighted contribution, per the
// component-B/C/D pipeline §4.E describes. The t=1 strategies splat
// directly into fb (their raster coordinate may land outside the tile
// being rendered); every other strategy's contribution is summed into a
// single combined radiance for this pixel sample, since the BDPT
// estimator for one sample is the sum over all its strategies, not one
// independent sample per strategy.
func (d *Driver) renderSample(pFilm core.Vec2, sampler core.Sampler, camArena, lightArena *arena.Arena[bdpt.Vertex], acc *tileAccum, fb *FrameBuffer, isPrepass bool, stats *Stats) {
	ray, we := d.Camera.GenerateRay(pFilm, sampler.Get2D())

	cameraPath := bdpt.GenerateCameraSubpath(d.Scene, d.Camera, sampler, camArena, ray, we, d.Config.MaxDepth+1)
	lightPath := bdpt.GenerateLightSubpath(d.Scene, sampler, lightArena, d.distr, d.Config.MaxDepth+1)

	misStrategy := d.Config.MISStrategy
	var rect bdpt.Rectifier
	if !isPrepass {
		rect = d.rect
	} else {
		misStrategy = core.MISBalance
	}

	var pixelL core.Spectrum

	for t := 1; t <= cameraPath.Len(); t++ {
		for s := 0; s <= lightPath.Len(); s++ {
			if s+t < 2 {
				continue
			}
			if s == 1 && t == 1 {
				continue
			}
			// depth counts bounces, not path length: s+t vertices make up
			// s+t-2 bounces once the camera and light endpoints are excluded,
			// so this is offset by one from a raw s+t-1 path-length count.
			depth := s + t - 2
			if depth > d.Config.MaxDepth {
				continue
			}

			l, misWeight, _, pRaster, ok := bdpt.ConnectBDPT(
				d.Scene, &lightPath, &cameraPath, s, t,
				d.distr, d.lightToIndex, d.Camera, sampler, rect, misStrategy,
			)
			if !ok {
				continue
			}
			d.recordStrategy(stats, depth, t)

			weighted := l.Multiply(misWeight)

			if isPrepass {
				unweighted := l.Luminance()
				d.rect.AddEstimate(coordFor(pRaster, pFilm, t), depth, t, unweighted, weighted.Luminance())
			}

			if t == 1 {
				fb.AddSplat(pRaster, weighted)
			} else {
				pixelL = pixelL.Add(weighted)
			}
		}
	}

	acc.AddSample(pFilm, pixelL, 1)
}

// coordFor picks the raster coordinate the rectifier should bucket a
// strategy's estimate under: the sampled splat location for t=1
// strategies (since they may land on a different pixel than the one
// being sampled), otherwise the pixel being sampled.
func coordFor(pRaster, pFilm core.Vec2, t int) core.Vec2 {
	if t == 1 {
		return pRaster
	}
	return pFilm
}
