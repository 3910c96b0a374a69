package match

import (
	"math"

	"star-align/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// estimator fits a transformation model from a minimal (or larger)
// correspondence sample. Implementations are stateless; a rank-deficient
// or otherwise degenerate sample yields a model with IsValid=false,
// never an error.
type estimator interface {
	minSample() int
	fit(src, dst []geometry.Point2D) TransformationModel
}

// affineEstimator fits a full 6-DOF affine transform (scale, rotation,
// shear, translation) by QR least squares.
type affineEstimator struct{}

func (affineEstimator) minSample() int { return 3 }

func (affineEstimator) fit(src, dst []geometry.Point2D) TransformationModel {
	n := len(src)
	if n < 3 || len(dst) != n {
		return TransformationModel{}
	}

	// Two equations per correspondence:
	//   x' = a*x + b*y + tx
	//   y' = c*x + d*y + ty
	A := mat.NewDense(2*n, 6, nil)
	rhs := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y

		A.Set(2*i, 0, x)
		A.Set(2*i, 1, y)
		A.Set(2*i, 2, 1)
		rhs.SetVec(2*i, dst[i].X)

		A.Set(2*i+1, 3, x)
		A.Set(2*i+1, 4, y)
		A.Set(2*i+1, 5, 1)
		rhs.SetVec(2*i+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, rhs); err != nil {
		return TransformationModel{}
	}

	a, b, tx := sol.AtVec(0), sol.AtVec(1), sol.AtVec(2)
	c, d, ty := sol.AtVec(3), sol.AtVec(4), sol.AtVec(5)
	if !allFinite(a, b, tx, c, d, ty) {
		return TransformationModel{}
	}

	model := TransformationModel{
		Matrix: [3][3]float64{
			{a, b, tx},
			{c, d, ty},
			{0, 0, 1},
		},
	}
	model.ScaleX = math.Hypot(a, c)
	model.ScaleY = math.Hypot(b, d)
	model.Rotation = math.Atan2(c, a)
	model.TranslationX = tx
	model.TranslationY = ty
	model.Skew = math.Atan2(b, d) - model.Rotation
	model.IsValid = true
	return model
}

// similarityEstimator fits a 4-DOF similarity transform (uniform scale,
// rotation, translation). The shared rotation/scale term couples the x
// and y equations, so the system has 4 unknowns:
//
//	x' = a*x - b*y + tx
//	y' = b*x + a*y + ty
type similarityEstimator struct{}

func (similarityEstimator) minSample() int { return 2 }

func (similarityEstimator) fit(src, dst []geometry.Point2D) TransformationModel {
	n := len(src)
	if n < 2 || len(dst) != n {
		return TransformationModel{}
	}

	A := mat.NewDense(2*n, 4, nil)
	rhs := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y

		A.Set(2*i, 0, x)
		A.Set(2*i, 1, -y)
		A.Set(2*i, 2, 1)
		rhs.SetVec(2*i, dst[i].X)

		A.Set(2*i+1, 0, y)
		A.Set(2*i+1, 1, x)
		A.Set(2*i+1, 3, 1)
		rhs.SetVec(2*i+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, rhs); err != nil {
		return TransformationModel{}
	}

	a, b := sol.AtVec(0), sol.AtVec(1)
	tx, ty := sol.AtVec(2), sol.AtVec(3)
	if !allFinite(a, b, tx, ty) {
		return TransformationModel{}
	}

	scale := math.Hypot(a, b)
	model := TransformationModel{
		Matrix: [3][3]float64{
			{a, -b, tx},
			{b, a, ty},
			{0, 0, 1},
		},
	}
	model.ScaleX = scale
	model.ScaleY = scale
	model.Rotation = math.Atan2(b, a)
	model.TranslationX = tx
	model.TranslationY = ty
	model.IsValid = true
	return model
}

func allFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
