package render

import (
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
	}
}

// WithScale returns a copy of the font at a different scale and thickness
func (f Font) WithScale(scale float64, thickness int) Font {
	f.Scale = scale
	f.Thickness = thickness
	return f
}

// WithColor returns a copy of the font in a different color
func (f Font) WithColor(c color.RGBA) Font {
	f.Color = c
	return f
}

// Draw writes text with its baseline starting at pt
func (f Font) Draw(img *gocv.Mat, text string, pt image.Point) {
	gocv.PutTextWithParams(img, text, pt, f.Face, f.Scale, f.Color,
		f.Thickness, f.LineType, false)
}

// Size returns the pixel size of text rendered in this font
func (f Font) Size(text string) image.Point {
	return gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)
}
