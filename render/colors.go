package render

import "image/color"

var (
	// White is used for default text
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	// Black is the color of placeholder tiles
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	// Red is the color of the emergency warning
	Red = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	// Yellow is the header title color
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	// Green is the footer rate color
	Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	// LightGray is the footer latency color
	LightGray = color.RGBA{R: 200, G: 200, B: 200, A: 255}

	// headerFill is the background of the header banner
	headerFill = color.RGBA{R: 50, G: 0, B: 0, A: 255}
	// footerFill is the background of the footer banner
	footerFill = color.RGBA{R: 20, G: 20, B: 20, A: 255}
)
