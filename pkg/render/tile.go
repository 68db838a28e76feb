package render

import "github.com/tanager-render/sa-bdpt/pkg/core"

// TileSize is the block size the film is tiled into for parallel
// scheduling.
const TileSize = 16

// Tile is a rectangular region of the film scheduled as a single unit of
// work.
type Tile struct {
	Index  int
	Bounds core.Bounds2i
}

// NewTileGrid partitions bounds into TileSize x TileSize blocks, clipped
// to bounds at the right/bottom edge.
func NewTileGrid(bounds core.Bounds2i) []Tile {
	width := bounds.Width()
	height := bounds.Height()
	tilesX := (width + TileSize - 1) / TileSize
	tilesY := (height + TileSize - 1) / TileSize

	tiles := make([]Tile, 0, tilesX*tilesY)
	idx := 0
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0 := bounds.Min.X + float64(tx*TileSize)
			y0 := bounds.Min.Y + float64(ty*TileSize)
			x1 := min(x0+TileSize, bounds.Max.X)
			y1 := min(y0+TileSize, bounds.Max.Y)
			tiles = append(tiles, Tile{
				Index:  idx,
				Bounds: core.Bounds2i{Min: core.NewVec2(x0, y0), Max: core.NewVec2(x1, y1)},
			})
			idx++
		}
	}
	return tiles
}
