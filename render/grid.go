package render

import (
	"gocv.io/x/gocv"
	"image"
)

// Grid composes equally sized tiles into a rows x cols image.  Slots without
// a frame are left black.
type Grid struct {
	rows       int
	cols       int
	tileWidth  int
	tileHeight int
	canvas     gocv.Mat
	tile       gocv.Mat
}

// NewGrid allocates a grid of rows x cols tiles of the given size
func NewGrid(rows, cols, tileWidth, tileHeight int) *Grid {
	return &Grid{
		rows:       rows,
		cols:       cols,
		tileWidth:  tileWidth,
		tileHeight: tileHeight,
		canvas:     gocv.NewMatWithSize(rows*tileHeight, cols*tileWidth, gocv.MatTypeCV8UC3),
		tile:       gocv.NewMat(),
	}
}

// Slots returns the number of tiles in the grid
func (g *Grid) Slots() int {
	return g.rows * g.cols
}

// TileRect returns the area of the canvas covered by slot i
func (g *Grid) TileRect(i int) image.Rectangle {

	r := i / g.cols
	c := i % g.cols

	return image.Rect(c*g.tileWidth, r*g.tileHeight,
		(c+1)*g.tileWidth, (r+1)*g.tileHeight)
}

// Reset blanks the canvas so every slot is a placeholder
func (g *Grid) Reset() {
	g.canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// Place resizes frame to the tile size and copies it into slot i.  Empty
// frames and slots outside the grid are ignored.
func (g *Grid) Place(i int, frame gocv.Mat) {

	if i < 0 || i >= g.Slots() || frame.Empty() {
		return
	}

	src := frame

	if frame.Cols() != g.tileWidth || frame.Rows() != g.tileHeight {
		gocv.Resize(frame, &g.tile, image.Pt(g.tileWidth, g.tileHeight), 0, 0,
			gocv.InterpolationLinear)
		src = g.tile
	}

	if src.Channels() == 1 {
		gocv.CvtColor(src, &g.tile, gocv.ColorGrayToBGR)
		src = g.tile
	}

	region := g.canvas.Region(g.TileRect(i))
	defer region.Close()

	src.CopyTo(&region)
}

// Canvas returns the composed image.  It is owned by the grid and only valid
// until the next Reset or Place.
func (g *Grid) Canvas() *gocv.Mat {
	return &g.canvas
}

// Close frees the grid memory
func (g *Grid) Close() error {
	g.tile.Close()
	return g.canvas.Close()
}
