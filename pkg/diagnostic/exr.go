// Package diagnostic renders the SA-MIS rectifier's factor and variance
// grids into persisted images: half-float EXR for numerically faithful
// diagnostic maps, and PNG for the visualize-factors false-color preview.
package diagnostic

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/mrjoshuak/go-openexr/exr"
)

// Grid is a single-channel 2-D grid of values — a factor or variance map
// for one (depth, t) strategy — in the shape the rectifier exposes them.
type Grid struct {
	Width, Height int
	Values        []float64
}

// At returns the value at (x, y), or 0 outside bounds.
func (g Grid) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.Values[y*g.Width+x]
}

// WriteEXR writes grid as a single-channel half-float EXR (replicated
// across R/G/B, alpha 1), matching the variance-d{D}-t{T}.exr /
// factor-d{D}-t{T}.exr naming the persisted-outputs contract names.
func WriteEXR(path string, grid Grid) error {
	out, err := exr.NewRGBAOutputFile(path, grid.Width, grid.Height)
	if err != nil {
		return err
	}
	img := exr.NewRGBAImage(image.Rect(0, 0, grid.Width, grid.Height))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			v := float32(grid.At(x, y))
			img.SetRGBA(x, y, v, v, v, 1)
		}
	}
	return out.WriteRGBA(img)
}

// WritePNG renders grid as a false-color PNG: a simple blue-to-red ramp
// over the grid's normalized [min,max] range, for the visualizefactors
// preview.
func WritePNG(w io.Writer, grid Grid) error {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range grid.Values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			t := (grid.At(x, y) - lo) / span
			img.Set(x, y, rampColor(t))
		}
	}
	return png.Encode(w, img)
}

// rampColor maps t in [0,1] to a blue (low) -> red (high) color ramp.
func rampColor(t float64) color.RGBA {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return color.RGBA{
		R: uint8(255 * t),
		G: uint8(64),
		B: uint8(255 * (1 - t)),
		A: 255,
	}
}
