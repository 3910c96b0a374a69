package distortion

import (
	"math"
	"testing"

	"star-align/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// calibrationGrid covers a 1600x1200 frame with a regular point lattice.
func calibrationGrid() []geometry.Point2D {
	var grid []geometry.Point2D
	for x := 100.0; x <= 1500; x += 200 {
		for y := 100.0; y <= 1100; y += 200 {
			grid = append(grid, geometry.Point2D{X: x, Y: y})
		}
	}
	return grid
}

func distortAll(points []geometry.Point2D, params Parameters) []geometry.Point2D {
	distorted := make([]geometry.Point2D, len(points))
	for i, p := range points {
		distorted[i] = Apply(p, params)
	}
	return distorted
}

func TestApplyCorrectRoundTripCombined(t *testing.T) {
	params := Parameters{
		Type:           Combined,
		PrincipalPoint: geometry.Point2D{X: 800, Y: 600},
		K1:             5e-8, K2: -2e-14,
		P1: 1e-7, P2: -5e-8,
	}

	for _, p := range calibrationGrid() {
		distorted := Apply(p, params)
		recovered := Correct(distorted, params)
		assert.InDelta(t, p.X, recovered.X, 1e-6)
		assert.InDelta(t, p.Y, recovered.Y, 1e-6)
	}
}

func TestApplyCorrectRoundTripRational(t *testing.T) {
	params := Parameters{
		Type:           RadialRational,
		PrincipalPoint: geometry.Point2D{X: 800, Y: 600},
		K1:             4e-8, K2: -1e-14,
		K4: 2e-8, K5: 5e-15,
	}

	for _, p := range calibrationGrid() {
		distorted := Apply(p, params)
		recovered := Correct(distorted, params)
		assert.InDelta(t, p.X, recovered.X, 1e-6)
		assert.InDelta(t, p.Y, recovered.Y, 1e-6)
	}
}

func TestApplyCorrectRoundTripTangential(t *testing.T) {
	params := Parameters{
		Type:           Tangential,
		PrincipalPoint: geometry.Point2D{X: 800, Y: 600},
		P1:             3e-7, P2: -2e-7,
	}

	for _, p := range calibrationGrid() {
		distorted := Apply(p, params)
		recovered := Correct(distorted, params)
		assert.InDelta(t, p.X, recovered.X, 1e-6)
		assert.InDelta(t, p.Y, recovered.Y, 1e-6)
	}
}

func TestApplyIdentityWhenUncalibrated(t *testing.T) {
	params := Parameters{Type: RadialPolynomial, PrincipalPoint: geometry.Point2D{X: 800, Y: 600}}
	p := geometry.Point2D{X: 123.4, Y: 567.8}
	assert.Equal(t, p, Apply(p, params))
	assert.Equal(t, p, Correct(p, params))
}

func TestCalibrateRecoversRadialModel(t *testing.T) {
	truth := Parameters{
		Type:           RadialPolynomial,
		PrincipalPoint: geometry.Point2D{X: 800, Y: 600},
		K1:             2e-8,
	}

	world := calibrationGrid()
	image := distortAll(world, truth)

	fitted := Calibrate(image, world, RadialPolynomial, geometry.Point2D{X: 810, Y: 590})

	require.True(t, fitted.IsCalibrated)
	assert.Equal(t, len(world), fitted.NumPointsUsed)
	assert.Less(t, fitted.RMSError, 0.05)
	assert.InDelta(t, truth.PrincipalPoint.X, fitted.PrincipalPoint.X, 2.0)
	assert.InDelta(t, truth.PrincipalPoint.Y, fitted.PrincipalPoint.Y, 2.0)
	assert.InDelta(t, truth.K1, fitted.K1, 0.3*truth.K1)
}

func TestCalibrateTangentialModel(t *testing.T) {
	truth := Parameters{
		Type:           Tangential,
		PrincipalPoint: geometry.Point2D{X: 800, Y: 600},
		P1:             2e-7, P2: -1e-7,
	}

	world := calibrationGrid()
	image := distortAll(world, truth)

	fitted := Calibrate(image, world, Tangential, truth.PrincipalPoint)

	require.True(t, fitted.IsCalibrated)
	assert.Less(t, fitted.RMSError, 0.01)
}

func TestCalibrateGeneralizesToHeldOutPoints(t *testing.T) {
	truth := Parameters{
		Type:           RadialPolynomial,
		PrincipalPoint: geometry.Point2D{X: 800, Y: 600},
		K1:             2e-8, K2: -3e-15,
	}

	all := calibrationGrid()
	var trainWorld, holdWorld []geometry.Point2D
	for i, p := range all {
		if i%5 == 0 {
			holdWorld = append(holdWorld, p)
		} else {
			trainWorld = append(trainWorld, p)
		}
	}
	trainImage := distortAll(trainWorld, truth)
	holdImage := distortAll(holdWorld, truth)

	fitted := Calibrate(trainImage, trainWorld, RadialPolynomial, geometry.Point2D{X: 805, Y: 595})

	require.True(t, fitted.IsCalibrated)
	assert.Less(t, ValidateModel(fitted, holdImage, holdWorld), 0.1)
}

func TestValidateModelDiscriminates(t *testing.T) {
	truth := Parameters{
		Type:           RadialPolynomial,
		PrincipalPoint: geometry.Point2D{X: 800, Y: 600},
		K1:             2e-8,
	}
	world := calibrationGrid()
	image := distortAll(world, truth)

	assert.InDelta(t, 0.0, ValidateModel(truth, image, world), 1e-9)

	zero := Parameters{Type: RadialPolynomial, PrincipalPoint: truth.PrincipalPoint}
	assert.Greater(t, ValidateModel(zero, image, world), 1.0)
}

func TestValidateModelBadInput(t *testing.T) {
	p := []geometry.Point2D{{X: 1, Y: 1}}
	assert.True(t, math.IsInf(ValidateModel(Parameters{}, p, nil), 1))
	assert.True(t, math.IsInf(ValidateModel(Parameters{}, nil, nil), 1))
}

func TestCalibrateRejectsBadInput(t *testing.T) {
	grid := calibrationGrid()

	assert.False(t, Calibrate(nil, nil, RadialPolynomial, geometry.Point2D{}).IsCalibrated)
	assert.False(t, Calibrate(grid[:3], grid[:4], RadialPolynomial, geometry.Point2D{}).IsCalibrated)
	// The rational model fits 8 coefficients; 3 points cannot constrain it.
	assert.False(t, Calibrate(grid[:3], grid[:3], RadialRational, geometry.Point2D{}).IsCalibrated)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "radial-polynomial", RadialPolynomial.String())
	assert.Equal(t, "radial-rational", RadialRational.String())
	assert.Equal(t, "tangential", Tangential.String())
	assert.Equal(t, "combined", Combined.String())
}
