package layer

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/oilfield/depletion"
)

// NoiseParams shapes a generated field.
type NoiseParams struct {
	Scale       float64 // Base frequency in cycles across the grid
	Octaves     int
	Persistence float64 // Amplitude multiplier per octave
	Contrast    float64 // Exponent applied to the noise; 1 leaves it unchanged
}

// Generate builds a w×h saturation grid from fractal simplex noise. The noise
// is sampled on a 4-D torus, so the field tiles seamlessly across both edges
// like the grid it fills. Values are in [0,1].
func Generate(w, h int, seed int64, p NoiseParams) *depletion.Grid {
	g := depletion.NewGrid(w, h)
	if g.TotalCells() == 0 {
		return g
	}
	noise := opensimplex.NewNormalized(seed)

	octaves := p.Octaves
	if octaves < 1 {
		octaves = 1
	}
	contrast := p.Contrast
	if contrast <= 0 {
		contrast = 1
	}

	for x := 0; x < w; x++ {
		ax := 2 * math.Pi * float64(x) / float64(w)
		for y := 0; y < h; y++ {
			ay := 2 * math.Pi * float64(y) / float64(h)
			v := torusNoise(noise, ax, ay, octaves, p.Scale, p.Persistence)
			g.Set(x, y, clamp01(math.Pow(v, contrast)))
		}
	}
	return g
}

// torusNoise layers octaves of 4-D noise sampled on a torus.
func torusNoise(noise opensimplex.Noise, ax, ay float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	// Radius of each circle in noise space; circumference equals frequency.
	r := frequency / (2 * math.Pi)
	for i := 0; i < octaves; i++ {
		total += noise.Eval4(r*math.Cos(ax), r*math.Sin(ax), r*math.Cos(ay), r*math.Sin(ay)) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		r *= 2
	}

	return total / maxVal
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
