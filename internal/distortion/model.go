// Package distortion models parametric optical distortion and fits the
// model coefficients from point correspondences.
package distortion

import (
	"math"

	"star-align/pkg/geometry"
)

// Type selects the distortion model variant.
type Type int

const (
	// RadialPolynomial is the standard radial polynomial model (k1..k3).
	RadialPolynomial Type = iota
	// RadialRational uses a rational radial factor with a k4..k6
	// denominator.
	RadialRational
	// Tangential is the two-parameter Brown-Conrady tangential model
	// (p1, p2) with no radial term.
	Tangential
	// Combined applies both the radial polynomial and tangential terms.
	Combined
)

func (t Type) String() string {
	switch t {
	case RadialPolynomial:
		return "radial-polynomial"
	case RadialRational:
		return "radial-rational"
	case Tangential:
		return "tangential"
	case Combined:
		return "combined"
	default:
		return "unknown"
	}
}

// Parameters holds a fitted distortion model centered at the principal
// point.
type Parameters struct {
	Type           Type
	PrincipalPoint geometry.Point2D

	// Radial coefficients.
	K1, K2, K3 float64
	// Higher-order radial coefficients (rational denominator).
	K4, K5, K6 float64
	// Tangential coefficients.
	P1, P2 float64

	// Fit quality.
	RMSError      float64
	NumPointsUsed int
	IsCalibrated  bool
}

// radialFactor evaluates the radial magnification at squared radius r2.
func radialFactor(r2 float64, params Parameters) float64 {
	switch params.Type {
	case Tangential:
		return 1.0
	case RadialRational:
		num := 1.0 + r2*(params.K1+r2*(params.K2+r2*params.K3))
		den := 1.0 + r2*(params.K4+r2*(params.K5+r2*params.K6))
		if math.Abs(den) < 1e-12 {
			return 1.0
		}
		return num / den
	default:
		return 1.0 + r2*(params.K1+r2*(params.K2+r2*params.K3))
	}
}

// tangentialShift evaluates the Brown-Conrady tangential displacement
// at the centered position (x, y).
func tangentialShift(x, y, r2 float64, params Parameters) (float64, float64) {
	if params.Type != Tangential && params.Type != Combined {
		return 0, 0
	}
	dx := 2*params.P1*x*y + params.P2*(r2+2*x*x)
	dy := params.P1*(r2+2*y*y) + 2*params.P2*x*y
	return dx, dy
}

// Apply runs the forward model: it maps an undistorted point to the
// position the optics would image it at. Used to synthesize and
// validate test data.
func Apply(p geometry.Point2D, params Parameters) geometry.Point2D {
	x := p.X - params.PrincipalPoint.X
	y := p.Y - params.PrincipalPoint.Y
	r2 := x*x + y*y

	f := radialFactor(r2, params)
	dx, dy := tangentialShift(x, y, r2, params)

	return geometry.Point2D{
		X: params.PrincipalPoint.X + x*f + dx,
		Y: params.PrincipalPoint.Y + y*f + dy,
	}
}

// Correct maps an observed (distorted) point to its undistorted
// position by inverting the forward model with fixed-point iteration.
func Correct(p geometry.Point2D, params Parameters) geometry.Point2D {
	xd := p.X - params.PrincipalPoint.X
	yd := p.Y - params.PrincipalPoint.Y

	// The distorted position is a good starting estimate for mild
	// optical distortion.
	x, y := xd, yd
	for iter := 0; iter < 20; iter++ {
		r2 := x*x + y*y
		f := radialFactor(r2, params)
		if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			break
		}
		dx, dy := tangentialShift(x, y, r2, params)

		xn := (xd - dx) / f
		yn := (yd - dy) / f
		if math.Abs(xn-x) < 1e-10 && math.Abs(yn-y) < 1e-10 {
			x, y = xn, yn
			break
		}
		x, y = xn, yn
	}

	return geometry.Point2D{
		X: params.PrincipalPoint.X + x,
		Y: params.PrincipalPoint.Y + y,
	}
}

// ValidateModel applies the forward model to held-out world points and
// returns the RMS distance to the expected image positions. Mismatched
// or empty inputs return +Inf.
func ValidateModel(params Parameters, testImagePoints, testWorldPoints []geometry.Point2D) float64 {
	if len(testImagePoints) != len(testWorldPoints) || len(testImagePoints) == 0 {
		return math.Inf(1)
	}

	var sumSq float64
	for i := range testWorldPoints {
		predicted := Apply(testWorldPoints[i], params)
		d := predicted.Distance(testImagePoints[i])
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(testWorldPoints)))
}
