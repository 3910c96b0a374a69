package detect

import (
	"testing"

	"star-align/pkg/geometry"

	"github.com/stretchr/testify/assert"
)

func TestDefaultParams(t *testing.T) {
	params := DefaultParams()
	assert.Equal(t, 5, params.BlurKernel)
	assert.Equal(t, 4.0, params.SigmaThreshold)
	assert.Greater(t, params.MaxArea, params.MinArea)
	assert.Greater(t, params.MaxStars, 0)
}

func TestPositionsAndMagnitudes(t *testing.T) {
	stars := []Star{
		{Center: geometry.Point2D{X: 10, Y: 20}, Magnitude: -5.1},
		{Center: geometry.Point2D{X: 30, Y: 40}, Magnitude: -3.2},
	}

	positions := Positions(stars)
	magnitudes := Magnitudes(stars)

	assert.Equal(t, []geometry.Point2D{{X: 10, Y: 20}, {X: 30, Y: 40}}, positions)
	assert.Equal(t, []float64{-5.1, -3.2}, magnitudes)
}

func TestPositionsEmpty(t *testing.T) {
	assert.Empty(t, Positions(nil))
	assert.Empty(t, Magnitudes(nil))
}
