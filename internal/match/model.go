// Package match implements robust 2D transformation estimation between
// detected star positions and catalog positions using RANSAC over point
// correspondences.
package match

import (
	"math/rand"
	"time"

	"star-align/pkg/geometry"
)

// RANSACParameters controls the robust estimation loop.
type RANSACParameters struct {
	MaxIterations   int        // Maximum RANSAC iterations
	InlierThreshold float64    // Inlier threshold in pixels
	MinInlierRatio  float64    // Minimum inlier ratio for a valid model
	MinSampleSize   int        // Samples drawn per model hypothesis
	Confidence      float64    // Desired confidence level
	RNG             *rand.Rand // Random source; seed it for deterministic runs
}

// DefaultRANSACParameters returns the standard parameter set.
// The RNG is time-seeded; callers that need reproducible fits should
// supply their own seeded generator.
func DefaultRANSACParameters() RANSACParameters {
	return RANSACParameters{
		MaxIterations:   1000,
		InlierThreshold: 2.0,
		MinInlierRatio:  0.6,
		MinSampleSize:   3,
		Confidence:      0.99,
		RNG:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TransformationModel holds a fitted 2D transformation as a homogeneous
// 3x3 matrix together with the RANSAC consensus statistics and the
// decomposed geometric parameters.
type TransformationModel struct {
	Matrix        [3][3]float64 // Homogeneous transformation matrix
	InlierIndices []int         // Indices of inlier correspondences
	RMSError      float64       // RMS residual over inliers
	NumInliers    int
	IsValid       bool

	// Decomposed parameters of the 2x2 linear block.
	ScaleX, ScaleY             float64
	Rotation                   float64 // radians
	TranslationX, TranslationY float64
	Skew                       float64 // radians
}

// IdentityModel returns a valid model holding the identity transform.
func IdentityModel() TransformationModel {
	return TransformationModel{
		Matrix: [3][3]float64{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
		IsValid: true,
		ScaleX:  1,
		ScaleY:  1,
	}
}

// Apply maps a single point through the model matrix (homogeneous
// multiply with w=1; the bottom row is always [0 0 1] for the models
// produced here).
func (m TransformationModel) Apply(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{
		X: m.Matrix[0][0]*p.X + m.Matrix[0][1]*p.Y + m.Matrix[0][2],
		Y: m.Matrix[1][0]*p.X + m.Matrix[1][1]*p.Y + m.Matrix[1][2],
	}
}

// Affine returns the model's linear block and translation as a 2x3
// affine transform.
func (m TransformationModel) Affine() geometry.AffineTransform {
	return geometry.AffineTransform{
		A: m.Matrix[0][0], B: m.Matrix[0][1], TX: m.Matrix[0][2],
		C: m.Matrix[1][0], D: m.Matrix[1][1], TY: m.Matrix[1][2],
	}
}

// TransformPoints applies the model to every point and returns the
// transformed copies.
func TransformPoints(points []geometry.Point2D, model TransformationModel) []geometry.Point2D {
	transformed := make([]geometry.Point2D, len(points))
	for i, p := range points {
		transformed[i] = model.Apply(p)
	}
	return transformed
}

// CalculateResiduals returns the per-correspondence Euclidean distance
// between the transformed source points and their targets. Mismatched
// slice lengths yield an empty result.
func CalculateResiduals(source, target []geometry.Point2D, model TransformationModel) []float64 {
	if len(source) != len(target) {
		return nil
	}
	residuals := make([]float64, len(source))
	for i := range source {
		residuals[i] = model.Apply(source[i]).Distance(target[i])
	}
	return residuals
}
