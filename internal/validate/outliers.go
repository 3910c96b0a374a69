package validate

import (
	"math"

	"star-align/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// covarianceSingularEps is the determinant magnitude below which the
// 2x2 residual covariance is treated as singular.
const covarianceSingularEps = 1e-10

// DetectOutliers flags residual points whose Mahalanobis distance from
// the sample mean exceeds threshold. The 2x2 sample covariance (N-1
// denominator) is inverted analytically; when it is singular the test
// falls back to plain Euclidean distance from the mean. Fewer than 3
// points mark nothing as an outlier.
func DetectOutliers(residuals []geometry.Point2D, threshold float64) []bool {
	isOutlier := make([]bool, len(residuals))
	if len(residuals) < minSampleCount {
		return isOutlier
	}

	xs := make([]float64, len(residuals))
	ys := make([]float64, len(residuals))
	for i, r := range residuals {
		xs[i] = r.X
		ys[i] = r.Y
	}

	meanX := stat.Mean(xs, nil)
	meanY := stat.Mean(ys, nil)
	cxx := stat.Variance(xs, nil)
	cyy := stat.Variance(ys, nil)
	cxy := stat.Covariance(xs, ys, nil)

	det := cxx*cyy - cxy*cxy
	singular := math.Abs(det) < covarianceSingularEps

	for i, r := range residuals {
		dx := r.X - meanX
		dy := r.Y - meanY

		var dist float64
		if singular {
			dist = math.Hypot(dx, dy)
		} else {
			invXX := cyy / det
			invXY := -cxy / det
			invYY := cxx / det
			q := dx*(invXX*dx+invXY*dy) + dy*(invXY*dx+invYY*dy)
			dist = math.Sqrt(math.Max(0, q))
		}
		isOutlier[i] = dist > threshold
	}
	return isOutlier
}
