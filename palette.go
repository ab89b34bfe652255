package terrastream

import (
	"fmt"
	"image/color"

	"github.com/muesli/gamut"
)

// LevelPalette returns n distinct pastel colors, one per LOD, for debug
// output such as coverage images.
func LevelPalette(n int) ([]color.Color, error) {
	if n <= 0 {
		return nil, nil
	}
	colors, err := gamut.Generate(n, gamut.PastelGenerator{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate level palette: %w", err)
	}
	return colors, nil
}
