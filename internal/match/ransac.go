package match

import (
	"context"
	"math"
	"math/rand"
	"time"

	"star-align/pkg/geometry"
)

// EstimateAffineTransformation fits a 6-DOF affine transform between
// paired source and target points using RANSAC. A size mismatch or fewer
// points than params.MinSampleSize yields an invalid model.
func EstimateAffineTransformation(source, target []geometry.Point2D, params RANSACParameters) TransformationModel {
	return EstimateAffineTransformationContext(context.Background(), source, target, params)
}

// EstimateAffineTransformationContext is EstimateAffineTransformation
// with a deadline: when ctx is cancelled the loop stops and the best
// model found so far is finalized and returned.
func EstimateAffineTransformationContext(ctx context.Context, source, target []geometry.Point2D, params RANSACParameters) TransformationModel {
	return runRANSAC(ctx, source, target, params, affineEstimator{})
}

// EstimateSimilarityTransformation fits a 4-DOF similarity transform
// (uniform scale, rotation, translation) between paired points using
// RANSAC. Same input contract as EstimateAffineTransformation.
func EstimateSimilarityTransformation(source, target []geometry.Point2D, params RANSACParameters) TransformationModel {
	return EstimateSimilarityTransformationContext(context.Background(), source, target, params)
}

// EstimateSimilarityTransformationContext is the deadline-aware variant
// of EstimateSimilarityTransformation.
func EstimateSimilarityTransformationContext(ctx context.Context, source, target []geometry.Point2D, params RANSACParameters) TransformationModel {
	return runRANSAC(ctx, source, target, params, similarityEstimator{})
}

// runRANSAC drives the shared consensus loop: sample, fit, score,
// keep the best-by-inlier-count model. Degenerate candidates are
// discarded silently; every failure mode surfaces only through the
// returned model's IsValid flag.
func runRANSAC(ctx context.Context, source, target []geometry.Point2D, params RANSACParameters, est estimator) TransformationModel {
	var best TransformationModel

	n := len(source)
	if n == 0 || n != len(target) || n < params.MinSampleSize || params.MinSampleSize < est.minSample() {
		return best
	}

	rng := params.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sampleSrc := make([]geometry.Point2D, params.MinSampleSize)
	sampleDst := make([]geometry.Point2D, params.MinSampleSize)

	maxInliers := 0
	for iter := 0; iter < params.MaxIterations; iter++ {
		if iter%64 == 0 && ctx.Err() != nil {
			break
		}

		// Draw MinSampleSize distinct indices by partial Fisher-Yates
		// shuffle: O(sample size) per iteration.
		for k := 0; k < params.MinSampleSize; k++ {
			j := k + rng.Intn(n-k)
			indices[k], indices[j] = indices[j], indices[k]
			sampleSrc[k] = source[indices[k]]
			sampleDst[k] = target[indices[k]]
		}

		candidate := est.fit(sampleSrc, sampleDst)
		if !candidate.IsValid {
			continue
		}

		// Score the candidate against every correspondence, not just
		// the sample.
		residuals := CalculateResiduals(source, target, candidate)
		var inliers []int
		for i, r := range residuals {
			if r < params.InlierThreshold {
				inliers = append(inliers, i)
			}
		}

		if len(inliers) > maxInliers {
			maxInliers = len(inliers)
			var sumSq float64
			for _, idx := range inliers {
				sumSq += residuals[idx] * residuals[idx]
			}
			candidate.InlierIndices = inliers
			candidate.NumInliers = len(inliers)
			candidate.RMSError = math.Sqrt(sumSq / float64(len(inliers)))
			best = candidate
		}

		// Early exit on the current candidate's inlier ratio.
		if float64(len(inliers))/float64(n) > params.MinInlierRatio {
			break
		}
	}

	finalRatio := float64(best.NumInliers) / float64(n)
	best.IsValid = best.NumInliers >= params.MinSampleSize && finalRatio >= params.MinInlierRatio
	return best
}
