package main

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// pixelAccum sums weighted radiance and sample weight for one pixel, and
// a separately-accumulated splat term, matching the Film contract's
// append-only AddSample/AddSplat split.
type pixelAccum struct {
	sum    core.Spectrum
	weight float64
	splat  core.Spectrum
}

// film is the simplest collaborator satisfying core.Film: a full-resolution
// grid, a mutex-guarded tile merge (fine-grained enough for a demo render;
// the driver itself merges one whole-image tile once per render), and a PNG
// write-out via the standard library, since no third-party library offers
// an image encoder better suited to a simple tone-mapped preview.
type film struct {
	bounds core.Bounds2i

	mu     sync.Mutex
	pixels []pixelAccum
}

func newFilm(bounds core.Bounds2i) *film {
	return &film{
		bounds: bounds,
		pixels: make([]pixelAccum, bounds.Width()*bounds.Height()),
	}
}

func (f *film) CroppedPixelBounds() core.Bounds2i {
	return f.bounds
}

func (f *film) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pixels {
		f.pixels[i] = pixelAccum{}
	}
}

type filmTile struct {
	bounds core.Bounds2i
	width  int
	pixels []pixelAccum
}

func (f *film) GetFilmTile(bounds core.Bounds2i) core.FilmTile {
	w, h := bounds.Width(), bounds.Height()
	return &filmTile{bounds: bounds, width: w, pixels: make([]pixelAccum, w*h)}
}

func (t *filmTile) Bounds() core.Bounds2i {
	return t.bounds
}

func (t *filmTile) AddSample(pFilm core.Vec2, l core.Spectrum, weight float64) {
	x := int(pFilm.X) - int(t.bounds.Min.X)
	y := int(pFilm.Y) - int(t.bounds.Min.Y)
	if x < 0 || y < 0 || x >= t.width || y*t.width+x >= len(t.pixels) {
		return
	}
	p := &t.pixels[y*t.width+x]
	p.sum = p.sum.Add(l.Multiply(weight))
	p.weight += weight
}

func (f *film) MergeFilmTile(tile core.FilmTile) {
	t, ok := tile.(*filmTile)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	x0 := int(t.bounds.Min.X) - int(f.bounds.Min.X)
	y0 := int(t.bounds.Min.Y) - int(f.bounds.Min.Y)
	width := f.bounds.Width()
	h := t.bounds.Height()
	for ty := 0; ty < h; ty++ {
		for tx := 0; tx < t.width; tx++ {
			src := t.pixels[ty*t.width+tx]
			if src.weight == 0 {
				continue
			}
			dstX, dstY := x0+tx, y0+ty
			if dstX < 0 || dstY < 0 || dstX >= width || dstY >= f.bounds.Height() {
				continue
			}
			d := &f.pixels[dstY*width+dstX]
			d.sum = d.sum.Add(src.sum)
			d.weight += src.weight
		}
	}
}

func (f *film) AddSplat(pFilm core.Vec2, l core.Spectrum) {
	x := int(pFilm.X) - int(f.bounds.Min.X)
	y := int(pFilm.Y) - int(f.bounds.Min.Y)
	width, height := f.bounds.Width(), f.bounds.Height()
	if x < 0 || y < 0 || x >= width || y >= height {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &f.pixels[y*width+x]
	p.splat = p.splat.Add(l)
}

// WriteImageToBuffer returns the film's pixels as a flat RGB buffer,
// scaled by scale, for the driver's calling convention; cmd/sabdpt calls
// it with scale=1 since the render driver already normalizes both passes
// before committing to the film.
func (f *film) WriteImageToBuffer(scale float64) ([]float64, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	width, height := f.bounds.Width(), f.bounds.Height()
	buf := make([]float64, width*height*3)
	for i, p := range f.pixels {
		c := p.splat
		if p.weight > 0 {
			c = c.Add(p.sum.Multiply(1 / p.weight))
		}
		c = c.Multiply(scale)
		buf[i*3+0] = c.X
		buf[i*3+1] = c.Y
		buf[i*3+2] = c.Z
	}
	return buf, width, height
}

// writePNG gamma-corrects and tone-clamps the film's buffer into an 8-bit
// PNG via this film's WriteImageToBuffer.
func writePNG(w io.Writer, f *film) error {
	buf, width, height := f.WriteImageToBuffer(1)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			c := core.NewVec3(buf[i], buf[i+1], buf[i+2]).Clamp(0, 1).GammaCorrect(2.2)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(c.X*255 + 0.5),
				G: uint8(c.Y*255 + 0.5),
				B: uint8(c.Z*255 + 0.5),
				A: 255,
			})
		}
	}
	return png.Encode(w, img)
}
