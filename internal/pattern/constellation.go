package pattern

import (
	"math"

	"star-align/pkg/geometry"
)

// constellationShapeTolerance is the triangle descriptor tolerance used
// by the constellation voting pass. Position and magnitude tolerances
// are independent knobs supplied by the caller.
const constellationShapeTolerance = 0.05

// MatchConstellations discovers correspondences between two star sets
// using the triangle voting scheme extended with star brightness: a
// matched triangle pair may vote only when every paired vertex agrees
// in magnitude within magnitudeTolerance, and winning correspondences
// are additionally gated on position proximity for roughly pre-aligned
// frames. positionTolerance <= 0 disables the position gate, and an
// empty magnitude slice disables the brightness requirement for that
// set.
func MatchConstellations(positions1 []geometry.Point2D, magnitudes1 []float64,
	positions2 []geometry.Point2D, magnitudes2 []float64,
	positionTolerance, magnitudeTolerance float64) []Correspondence {

	if len(positions1) < 3 || len(positions2) < 3 {
		return nil
	}

	var vertexOK func(i, j int) bool
	if len(magnitudes1) > 0 && len(magnitudes2) > 0 {
		vertexOK = func(i, j int) bool {
			if i >= len(magnitudes1) || j >= len(magnitudes2) {
				return true
			}
			return math.Abs(magnitudes1[i]-magnitudes2[j]) <= magnitudeTolerance
		}
	}

	triangles1 := GenerateTriangles(positions1)
	triangles2 := GenerateTriangles(positions2)
	votes, totalMatches := collectTriangleVotes(triangles1, triangles2, constellationShapeTolerance, vertexOK)
	matches := tallyVotes(votes, max(1, totalMatches/5))

	if positionTolerance <= 0 {
		return matches
	}
	var gated []Correspondence
	for _, m := range matches {
		if positions1[m.Source].Distance(positions2[m.Target]) <= positionTolerance {
			gated = append(gated, m)
		}
	}
	return gated
}
