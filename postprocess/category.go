package postprocess

import (
	"fmt"
	"image/color"
	"strings"
)

// Category is the traffic taxonomy a detection is classified into
type Category int

const (
	// None is a detection that matches no category and is not counted
	None Category = iota
	Cars
	Bikes
	Buses
	Trucks
	Autos
	// Emergency flags the junction instead of being counted
	Emergency
)

var categoryNames = map[Category]string{
	None:      "none",
	Cars:      "cars",
	Bikes:     "bikes",
	Buses:     "buses",
	Trucks:    "trucks",
	Autos:     "autos",
	Emergency: "emergency",
}

// String returns the lower case category name
func (c Category) String() string {

	if name, ok := categoryNames[c]; ok {
		return name
	}

	return fmt.Sprintf("category(%d)", int(c))
}

// ParseCategory returns the category for a name such as "cars"
func ParseCategory(name string) (Category, error) {

	name = strings.ToLower(strings.TrimSpace(name))

	for c, n := range categoryNames {
		if n == name {
			return c, nil
		}
	}

	return None, fmt.Errorf("unknown category %q", name)
}

var (
	// DefaultColor is used for detections outside the taxonomy
	DefaultColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

	categoryColors = map[Category]color.RGBA{
		Cars:      {R: 0, G: 255, B: 0, A: 255},
		Bikes:     {R: 0, G: 255, B: 255, A: 255},
		Buses:     {R: 255, G: 255, B: 0, A: 255},
		Trucks:    {R: 255, G: 165, B: 0, A: 255},
		Autos:     {R: 255, G: 0, B: 255, A: 255},
		Emergency: {R: 255, G: 0, B: 0, A: 255},
	}
)

// Color returns the display color of the category
func (c Category) Color() color.RGBA {

	if col, ok := categoryColors[c]; ok {
		return col
	}

	return DefaultColor
}

// Counts is the number of detections per counted category.  All keys are
// always present when serialised.
type Counts struct {
	Cars   int `json:"cars"`
	Bikes  int `json:"bikes"`
	Buses  int `json:"buses"`
	Trucks int `json:"trucks"`
	Autos  int `json:"autos"`
}

// Add increments the counter for c, other categories are ignored
func (n *Counts) Add(c Category) {
	switch c {
	case Cars:
		n.Cars++
	case Bikes:
		n.Bikes++
	case Buses:
		n.Buses++
	case Trucks:
		n.Trucks++
	case Autos:
		n.Autos++
	}
}

// Total returns the sum of all counters
func (n Counts) Total() int {
	return n.Cars + n.Bikes + n.Buses + n.Trucks + n.Autos
}
