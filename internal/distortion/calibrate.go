package distortion

import (
	"math"

	"star-align/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

const (
	maxLMIterations = 200
	initialDamping  = 1e-3
	maxDamping      = 1e12
	costTolerance   = 1e-12
	stepTolerance   = 1e-10
)

// Calibrate fits the chosen distortion model to paired observed image
// points and their expected (undistorted) world positions using
// Levenberg-Marquardt. The principal point is always part of the fit,
// seeded from initialPrincipalPoint. An uncalibratable input (size
// mismatch, too few points for the variant's coefficient count, or a
// diverging fit) returns parameters with IsCalibrated=false.
func Calibrate(imagePoints, worldPoints []geometry.Point2D, typ Type, initialPrincipalPoint geometry.Point2D) Parameters {
	params := Parameters{Type: typ, PrincipalPoint: initialPrincipalPoint}

	n := len(imagePoints)
	if n == 0 || n != len(worldPoints) {
		return params
	}
	theta := packCoefficients(params)
	if 2*n < len(theta) {
		return params
	}

	cost := residualCost(theta, typ, imagePoints, worldPoints)
	damping := initialDamping
	converged := false

	dim := len(theta)
	for iter := 0; iter < maxLMIterations; iter++ {
		jac, res := buildJacobian(theta, typ, imagePoints, worldPoints)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), res)

		accepted := false
		for damping <= maxDamping {
			damped := mat.NewDense(dim, dim, nil)
			damped.Copy(&jtj)
			for d := 0; d < dim; d++ {
				damped.Set(d, d, damped.At(d, d)+damping)
			}

			var delta mat.VecDense
			if err := delta.SolveVec(damped, &jtr); err != nil {
				damping *= 10
				continue
			}

			trial := make([]float64, dim)
			stepNorm := 0.0
			for d := 0; d < dim; d++ {
				step := delta.AtVec(d)
				trial[d] = theta[d] - step
				stepNorm += step * step
			}
			stepNorm = math.Sqrt(stepNorm)

			trialCost := residualCost(trial, typ, imagePoints, worldPoints)
			if trialCost < cost {
				improvement := cost - trialCost
				theta = trial
				cost = trialCost
				damping = math.Max(damping*0.5, 1e-12)
				accepted = true
				if improvement < costTolerance || stepNorm < stepTolerance {
					converged = true
				}
				break
			}
			damping *= 10
		}

		if !accepted {
			// No further progress at any damping level: the fit has
			// settled.
			converged = true
			break
		}
		if converged {
			break
		}
	}

	params = unpackCoefficients(theta, typ)
	params.RMSError = math.Sqrt(cost / float64(n))
	params.NumPointsUsed = n
	params.IsCalibrated = converged && allCoefficientsFinite(theta)
	return params
}

// packCoefficients flattens the fitted parameter vector for the model
// variant. The principal point always occupies the first two slots.
func packCoefficients(params Parameters) []float64 {
	base := []float64{params.PrincipalPoint.X, params.PrincipalPoint.Y}
	switch params.Type {
	case RadialPolynomial:
		return append(base, params.K1, params.K2, params.K3)
	case RadialRational:
		return append(base, params.K1, params.K2, params.K3, params.K4, params.K5, params.K6)
	case Tangential:
		return append(base, params.P1, params.P2)
	default: // Combined
		return append(base, params.K1, params.K2, params.K3, params.P1, params.P2)
	}
}

func unpackCoefficients(theta []float64, typ Type) Parameters {
	params := Parameters{
		Type:           typ,
		PrincipalPoint: geometry.Point2D{X: theta[0], Y: theta[1]},
	}
	switch typ {
	case RadialPolynomial:
		params.K1, params.K2, params.K3 = theta[2], theta[3], theta[4]
	case RadialRational:
		params.K1, params.K2, params.K3 = theta[2], theta[3], theta[4]
		params.K4, params.K5, params.K6 = theta[5], theta[6], theta[7]
	case Tangential:
		params.P1, params.P2 = theta[2], theta[3]
	default: // Combined
		params.K1, params.K2, params.K3 = theta[2], theta[3], theta[4]
		params.P1, params.P2 = theta[5], theta[6]
	}
	return params
}

// residualCost sums the squared distances between distortion-corrected
// image points and their world positions.
func residualCost(theta []float64, typ Type, imagePoints, worldPoints []geometry.Point2D) float64 {
	params := unpackCoefficients(theta, typ)
	var sumSq float64
	for i := range imagePoints {
		corrected := Correct(imagePoints[i], params)
		dx := corrected.X - worldPoints[i].X
		dy := corrected.Y - worldPoints[i].Y
		sumSq += dx*dx + dy*dy
	}
	return sumSq
}

// buildJacobian evaluates the residual vector and its Jacobian with
// central finite differences.
func buildJacobian(theta []float64, typ Type, imagePoints, worldPoints []geometry.Point2D) (*mat.Dense, *mat.VecDense) {
	n := len(imagePoints)
	dim := len(theta)

	res := mat.NewVecDense(2*n, nil)
	params := unpackCoefficients(theta, typ)
	for i := range imagePoints {
		corrected := Correct(imagePoints[i], params)
		res.SetVec(2*i, corrected.X-worldPoints[i].X)
		res.SetVec(2*i+1, corrected.Y-worldPoints[i].Y)
	}

	jac := mat.NewDense(2*n, dim, nil)
	perturbed := make([]float64, dim)
	for d := 0; d < dim; d++ {
		h := 1e-6 * math.Max(1.0, math.Abs(theta[d]))

		copy(perturbed, theta)
		perturbed[d] = theta[d] + h
		plus := unpackCoefficients(perturbed, typ)
		perturbed[d] = theta[d] - h
		minus := unpackCoefficients(perturbed, typ)

		for i := range imagePoints {
			cp := Correct(imagePoints[i], plus)
			cm := Correct(imagePoints[i], minus)
			jac.Set(2*i, d, (cp.X-cm.X)/(2*h))
			jac.Set(2*i+1, d, (cp.Y-cm.Y)/(2*h))
		}
	}
	return jac, res
}

func allCoefficientsFinite(theta []float64) bool {
	for _, v := range theta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
