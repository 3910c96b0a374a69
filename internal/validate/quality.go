package validate

// Saturation scales for the match quality score. Tuning knobs, not
// physical constants: a match at DistanceScale pixels (or
// MagnitudeScale magnitudes) scores half of a perfect one on that
// axis.
const (
	DistanceScale  = 5.0
	MagnitudeScale = 2.0
)

// CalculateMatchQuality scores a candidate match set. Each entry scores
// (1/(1+d/DistanceScale)) * (1/(1+dm/MagnitudeScale)); entries flagged
// geometrically invalid are excluded, and the result is the mean score
// over the rest (0.0 when nothing qualifies). magnitudeDiffs and
// geometricValid may be shorter than distances; missing entries count
// as a perfect magnitude and as geometrically valid.
func CalculateMatchQuality(distances, magnitudeDiffs []float64, geometricValid []bool) float64 {
	if len(distances) == 0 {
		return 0.0
	}

	var qualitySum float64
	included := 0
	for i, d := range distances {
		if i < len(geometricValid) && !geometricValid[i] {
			continue
		}

		distanceQuality := 1.0 / (1.0 + d/DistanceScale)
		magnitudeQuality := 1.0
		if i < len(magnitudeDiffs) {
			magnitudeQuality = 1.0 / (1.0 + magnitudeDiffs[i]/MagnitudeScale)
		}

		qualitySum += distanceQuality * magnitudeQuality
		included++
	}

	if included == 0 {
		return 0.0
	}
	return qualitySum / float64(included)
}
