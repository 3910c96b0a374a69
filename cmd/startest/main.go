// Command startest aligns two astronomical frames: it detects star
// centroids in both images, discovers correspondences, and fits a
// similarity transform between the frames.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/rand"
	"os"

	"star-align/internal/detect"
	"star-align/internal/match"
	"star-align/internal/pattern"
	"star-align/internal/validate"
	"star-align/pkg/geometry"

	_ "golang.org/x/image/tiff"
)

func main() {
	refPath := flag.String("ref", "", "Path to reference frame")
	tgtPath := flag.String("target", "", "Path to target frame")
	maxStars := flag.Int("stars", 30, "Brightest stars to match per frame")
	tolerance := flag.Float64("tol", 0.05, "Triangle similarity tolerance")
	seed := flag.Int64("seed", 1, "Random seed for the RANSAC fit")
	flag.Parse()

	if *refPath == "" || *tgtPath == "" {
		fmt.Println("Usage: startest -ref <frame1> -target <frame2> [-stars N] [-tol T]")
		os.Exit(1)
	}

	fmt.Printf("=== Detecting stars: %s ===\n", *refPath)
	refStars, err := detectFrame(*refPath, *maxStars)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reference detection failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Stars detected: %d\n", len(refStars))

	fmt.Printf("\n=== Detecting stars: %s ===\n", *tgtPath)
	tgtStars, err := detectFrame(*tgtPath, *maxStars)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Target detection failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Stars detected: %d\n", len(tgtStars))

	refPos := detect.Positions(refStars)
	tgtPos := detect.Positions(tgtStars)

	fmt.Printf("\n=== Matching patterns ===\n")
	correspondences := pattern.MatchTrianglesRobust(refPos, tgtPos, *tolerance)
	fmt.Printf("Correspondences: %d\n", len(correspondences))
	if len(correspondences) < 3 {
		fmt.Fprintln(os.Stderr, "too few correspondences; try more stars or a looser tolerance")
		os.Exit(1)
	}

	src := make([]geometry.Point2D, len(correspondences))
	dst := make([]geometry.Point2D, len(correspondences))
	for i, c := range correspondences {
		src[i] = refPos[c.Source]
		dst[i] = tgtPos[c.Target]
	}

	fmt.Printf("\n=== Fitting transform ===\n")
	params := match.DefaultRANSACParameters()
	params.RNG = rand.New(rand.NewSource(*seed))
	model := match.EstimateSimilarityTransformation(src, dst, params)
	if !model.IsValid {
		fmt.Fprintln(os.Stderr, "no valid transform found")
		os.Exit(1)
	}

	fmt.Printf("Inliers: %d/%d\n", model.NumInliers, len(src))
	fmt.Printf("RMS error: %.3f px\n", model.RMSError)
	fmt.Printf("Rotation: %.4f°\n", model.Rotation*180/math.Pi)
	fmt.Printf("Scale: %.6f\n", model.ScaleX)
	fmt.Printf("Translation: (%.2f, %.2f)\n", model.TranslationX, model.TranslationY)

	residuals := match.CalculateResiduals(src, dst, model)
	inlierResiduals := make([]float64, 0, model.NumInliers)
	for _, idx := range model.InlierIndices {
		inlierResiduals = append(inlierResiduals, residuals[idx])
	}
	quality := validate.CalculateMatchQuality(inlierResiduals, nil, nil)
	fmt.Printf("Match quality: %.3f\n", quality)
}

func detectFrame(path string, maxStars int) ([]detect.Star, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	params := detect.DefaultParams()
	params.MaxStars = maxStars
	return detect.DetectStars(img, params)
}
