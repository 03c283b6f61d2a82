package report

import (
	"image/color"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PopulationBreaks are the lower bounds of the population classes on the
// borough maps. The last class is open-ended.
var PopulationBreaks = []float64{0, 1000, 2000, 3000, 5000, 10000, 15000, 20000}

// classColors is a yellow-to-red ramp, one entry per break.
var classColors = []color.Color{
	color.RGBA{R: 0xff, G: 0xff, B: 0xcc, A: 0xff},
	color.RGBA{R: 0xff, G: 0xed, B: 0xa0, A: 0xff},
	color.RGBA{R: 0xfe, G: 0xd9, B: 0x76, A: 0xff},
	color.RGBA{R: 0xfe, G: 0xb2, B: 0x4c, A: 0xff},
	color.RGBA{R: 0xfd, G: 0x8d, B: 0x3c, A: 0xff},
	color.RGBA{R: 0xfc, G: 0x4e, B: 0x2a, A: 0xff},
	color.RGBA{R: 0xe3, G: 0x1a, B: 0x1c, A: 0xff},
	color.RGBA{R: 0xb1, G: 0x00, B: 0x26, A: 0xff},
}

var noDataColor = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}

var numbers = message.NewPrinter(language.English)

// PopulationClass returns the index of the class containing v, or -1 when v
// is missing or negative.
func PopulationClass(v *float64) int {
	if v == nil || *v < 0 || math.IsNaN(*v) {
		return -1
	}
	class := 0
	for i, b := range PopulationBreaks {
		if *v >= b {
			class = i
		}
	}
	return class
}

// ClassLabel renders a class as "1,000 - 2,000" or "20,000+".
func ClassLabel(class int) string {
	if class < 0 || class >= len(PopulationBreaks) {
		return "no data"
	}
	lo := PopulationBreaks[class]
	if class == len(PopulationBreaks)-1 {
		return numbers.Sprintf("%.0f+", lo)
	}
	return numbers.Sprintf("%.0f - %.0f", lo, PopulationBreaks[class+1])
}

// ClassColor is the fill color of a class.
func ClassColor(class int) color.Color {
	if class < 0 || class >= len(classColors) {
		return noDataColor
	}
	return classColors[class]
}
