// Package detect extracts star centroids from astronomical frames.
// It sits at the image boundary: the matching and calibration packages
// consume only the point collections it produces.
package detect

import (
	"fmt"
	"image"
	"math"
	"sort"

	"star-align/pkg/geometry"

	"gocv.io/x/gocv"
)

// Star is one detected source: its centroid, integrated flux, and an
// instrumental magnitude (-2.5*log10(flux), uncalibrated zero point).
type Star struct {
	Center    geometry.Point2D
	Flux      float64
	Magnitude float64
	Area      float64
}

// DetectionParams controls the extraction pipeline.
type DetectionParams struct {
	BlurKernel     int     // Gaussian kernel size (odd)
	SigmaThreshold float64 // Detection threshold in background sigmas
	MinArea        float64 // Reject specks below this contour area (px^2)
	MaxArea        float64 // Reject extended objects above this area
	MaxStars       int     // Keep at most this many, brightest first
}

// DefaultParams returns detection parameters suited to typical deep-sky
// frames.
func DefaultParams() DetectionParams {
	return DetectionParams{
		BlurKernel:     5,
		SigmaThreshold: 4.0,
		MinArea:        3.0,
		MaxArea:        500.0,
		MaxStars:       200,
	}
}

// DetectStars detects stars in a Go image.
func DetectStars(srcImg image.Image, params DetectionParams) ([]Star, error) {
	mat, err := imageToMat(srcImg)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	return DetectStarsMat(mat, params)
}

// DetectStarsMat detects stars in an OpenCV Mat: grayscale conversion,
// light blur, sigma-threshold above the background, then contour
// centroids from intensity moments.
func DetectStarsMat(srcImg gocv.Mat, params DetectionParams) ([]Star, error) {
	if srcImg.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	if params.BlurKernel%2 == 0 {
		return nil, fmt.Errorf("blur kernel must be odd, got %d", params.BlurKernel)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if srcImg.Channels() > 1 {
		gocv.CvtColor(srcImg, &gray, gocv.ColorBGRToGray)
	} else {
		srcImg.CopyTo(&gray)
	}

	// Light blur to suppress pixel noise without smearing faint stars.
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: params.BlurKernel, Y: params.BlurKernel},
		0, 0, gocv.BorderDefault)

	// Background statistics over the whole frame. Stars cover a tiny
	// fraction of the pixels, so the global mean/stddev approximate
	// the sky background well.
	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(blurred, &mean, &stddev)

	background := mean.GetDoubleAt(0, 0)
	noise := stddev.GetDoubleAt(0, 0)
	threshold := background + params.SigmaThreshold*noise
	if threshold > 255 {
		threshold = 255
	}

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(blurred, &mask, float32(threshold), 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var stars []Star
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < params.MinArea || area > params.MaxArea {
			continue
		}

		bounds := gocv.BoundingRect(contour)
		region := gray.Region(bounds)
		moments := gocv.Moments(region, false)
		region.Close()

		m00 := moments["m00"]
		if m00 <= 0 {
			continue
		}

		// Intensity-weighted centroid in image coordinates.
		cx := float64(bounds.Min.X) + moments["m10"]/m00
		cy := float64(bounds.Min.Y) + moments["m01"]/m00

		stars = append(stars, Star{
			Center:    geometry.Point2D{X: cx, Y: cy},
			Flux:      m00,
			Magnitude: -2.5 * math.Log10(m00),
			Area:      area,
		})
	}

	// Brightest first.
	sort.Slice(stars, func(a, b int) bool {
		return stars[a].Flux > stars[b].Flux
	})
	if params.MaxStars > 0 && len(stars) > params.MaxStars {
		stars = stars[:params.MaxStars]
	}
	return stars, nil
}

// Positions extracts just the centroid positions from a star list.
func Positions(stars []Star) []geometry.Point2D {
	positions := make([]geometry.Point2D, len(stars))
	for i, s := range stars {
		positions[i] = s.Center
	}
	return positions
}

// Magnitudes extracts the instrumental magnitudes from a star list.
func Magnitudes(stars []Star) []float64 {
	magnitudes := make([]float64, len(stars))
	for i, s := range stars {
		magnitudes[i] = s.Magnitude
	}
	return magnitudes
}

// imageToMat converts a Go image.Image to a BGR OpenCV Mat.
func imageToMat(srcImg image.Image) (gocv.Mat, error) {
	bounds := srcImg.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return gocv.Mat{}, fmt.Errorf("zero-sized image")
	}

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := srcImg.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat, nil
}
