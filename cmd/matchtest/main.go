// Command matchtest runs the matching pipeline on a synthetic star
// field and prints results: pattern matching, RANSAC fitting, and
// statistical validation against a known ground-truth transform.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"

	"star-align/internal/match"
	"star-align/internal/pattern"
	"star-align/internal/validate"
	"star-align/pkg/geometry"
)

func main() {
	numStars := flag.Int("n", 25, "Number of synthetic stars")
	rotationDeg := flag.Float64("rot", 30.0, "Ground-truth rotation (degrees)")
	scale := flag.Float64("scale", 1.1, "Ground-truth scale")
	tx := flag.Float64("tx", 40.0, "Ground-truth X translation")
	ty := flag.Float64("ty", -25.0, "Ground-truth Y translation")
	noise := flag.Float64("noise", 0.5, "Position noise sigma (pixels)")
	outliers := flag.Int("outliers", 3, "Number of spurious correspondences")
	seed := flag.Int64("seed", 1, "Random seed")
	useHashing := flag.Bool("hash", false, "Use geometric hashing instead of triangle voting")
	flag.Parse()

	if *numStars < 4 {
		fmt.Fprintln(os.Stderr, "need at least 4 stars")
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))

	// Ground-truth similarity transform.
	angle := *rotationDeg * math.Pi / 180.0
	truth := geometry.Translation(*tx, *ty).
		Compose(geometry.Rotation(angle)).
		Compose(geometry.Scale(*scale, *scale))

	fmt.Printf("=== Synthesizing field: %d stars ===\n", *numStars)
	source := make([]geometry.Point2D, *numStars)
	target := make([]geometry.Point2D, *numStars)
	for i := range source {
		source[i] = geometry.Point2D{
			X: rng.Float64() * 1000,
			Y: rng.Float64() * 1000,
		}
		mapped := truth.Apply(source[i])
		target[i] = geometry.Point2D{
			X: mapped.X + rng.NormFloat64()**noise,
			Y: mapped.Y + rng.NormFloat64()**noise,
		}
	}
	for i := 0; i < *outliers && i < len(target); i++ {
		target[len(target)-1-i] = geometry.Point2D{
			X: rng.Float64() * 1000,
			Y: rng.Float64() * 1000,
		}
	}

	// Step 1: Correspondence discovery from the unordered sets.
	fmt.Printf("\n=== Pattern matching ===\n")
	shuffledTarget := make([]geometry.Point2D, len(target))
	perm := rng.Perm(len(target))
	for i, p := range perm {
		shuffledTarget[p] = target[i]
	}

	var correspondences []pattern.Correspondence
	if *useHashing {
		correspondences = pattern.MatchPatternsWithHashing(source, shuffledTarget, 0.1)
	} else {
		correspondences = pattern.MatchTrianglesRobust(source, shuffledTarget, 0.05)
	}
	fmt.Printf("Correspondences found: %d\n", len(correspondences))
	correct := 0
	for _, c := range correspondences {
		if perm[c.Source] == c.Target {
			correct++
		}
	}
	fmt.Printf("Correct: %d/%d\n", correct, len(correspondences))

	if len(correspondences) < 3 {
		fmt.Fprintln(os.Stderr, "too few correspondences to fit a transform")
		os.Exit(1)
	}

	// Step 2: Robust transform estimation over the correspondences.
	fmt.Printf("\n=== RANSAC fit ===\n")
	src := make([]geometry.Point2D, len(correspondences))
	dst := make([]geometry.Point2D, len(correspondences))
	for i, c := range correspondences {
		src[i] = source[c.Source]
		dst[i] = shuffledTarget[c.Target]
	}

	params := match.DefaultRANSACParameters()
	params.RNG = rand.New(rand.NewSource(*seed))
	model := match.EstimateSimilarityTransformation(src, dst, params)

	if !model.IsValid {
		fmt.Fprintln(os.Stderr, "RANSAC failed to find a valid model")
		os.Exit(1)
	}
	fmt.Printf("Inliers: %d/%d\n", model.NumInliers, len(src))
	fmt.Printf("RMS error: %.3f px\n", model.RMSError)
	fmt.Printf("Rotation: %.4f° (truth %.4f°)\n", model.Rotation*180/math.Pi, *rotationDeg)
	fmt.Printf("Scale: %.6f (truth %.6f)\n", model.ScaleX, *scale)
	fmt.Printf("Translation: (%.1f, %.1f) (truth (%.1f, %.1f))\n",
		model.TranslationX, model.TranslationY, *tx, *ty)

	// Step 3: Statistical validation of the fit.
	fmt.Printf("\n=== Validation ===\n")
	residuals := match.CalculateResiduals(src, dst, model)
	inlierResiduals := make([]float64, 0, model.NumInliers)
	residualPoints := make([]geometry.Point2D, 0, model.NumInliers)
	for _, idx := range model.InlierIndices {
		inlierResiduals = append(inlierResiduals, residuals[idx])
		mapped := model.Apply(src[idx])
		residualPoints = append(residualPoints, dst[idx].Sub(mapped))
	}

	chi := validate.ChiSquaredTest(inlierResiduals, *noise**noise)
	fmt.Printf("%s: statistic=%.2f dof=%d p=%.2f valid=%v\n",
		chi.TestName, chi.Statistic, chi.DegreesOfFreedom, chi.PValue, chi.IsValid)

	flagged := validate.DetectOutliers(residualPoints, 3.0)
	numFlagged := 0
	for _, f := range flagged {
		if f {
			numFlagged++
		}
	}
	fmt.Printf("Mahalanobis outliers among inliers: %d\n", numFlagged)

	quality := validate.CalculateMatchQuality(inlierResiduals, nil, nil)
	fmt.Printf("Match quality score: %.3f\n", quality)
}
