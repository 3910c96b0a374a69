// Package pattern discovers candidate correspondences between two
// unordered star position sets using scale- and rotation-invariant
// local shape descriptors.
package pattern

import (
	"math"
	"sort"

	"star-align/pkg/geometry"
)

const (
	// MinTriangleSide is the shortest usable triangle side. Triples
	// closer together than this carry too little shape information.
	MinTriangleSide = 5.0

	// minAreaPerimeterRatio rejects near-collinear triples: a triangle
	// is kept only when area >= ratio * perimeter.
	minAreaPerimeterRatio = 0.1
)

// TriangleDescriptor is an invariant signature of a star triple.
// Sides[0] spans vertices 0-1, Sides[1] spans 1-2, Sides[2] spans 2-0.
type TriangleDescriptor struct {
	Indices   [3]int     // Vertex indices into the source point set
	Sides     [3]float64 // Side lengths
	Perimeter float64
	Area      float64

	// Scale-invariant features.
	Ratios         [3]float64 // Each side divided by the longest side
	NormalizedArea float64    // Area / perimeter^2
}

// NewTriangleDescriptor builds the descriptor for the triple (i, j, k)
// of points. It returns ok=false for degenerate triples: any side
// shorter than MinTriangleSide, or a near-collinear shape.
func NewTriangleDescriptor(points []geometry.Point2D, i, j, k int) (TriangleDescriptor, bool) {
	p1, p2, p3 := points[i], points[j], points[k]

	t := TriangleDescriptor{Indices: [3]int{i, j, k}}
	t.Sides[0] = p1.Distance(p2)
	t.Sides[1] = p2.Distance(p3)
	t.Sides[2] = p3.Distance(p1)
	if t.Sides[0] < MinTriangleSide || t.Sides[1] < MinTriangleSide || t.Sides[2] < MinTriangleSide {
		return TriangleDescriptor{}, false
	}

	t.Perimeter = t.Sides[0] + t.Sides[1] + t.Sides[2]
	t.Area = geometry.TriangleArea(p1, p2, p3)
	if t.Area < minAreaPerimeterRatio*t.Perimeter {
		return TriangleDescriptor{}, false
	}

	maxSide := math.Max(t.Sides[0], math.Max(t.Sides[1], t.Sides[2]))
	t.Ratios[0] = t.Sides[0] / maxSide
	t.Ratios[1] = t.Sides[1] / maxSide
	t.Ratios[2] = t.Sides[2] / maxSide
	t.NormalizedArea = t.Area / (t.Perimeter * t.Perimeter)
	return t, true
}

// Similarity returns a symmetric dissimilarity score against another
// descriptor: the mean absolute side-ratio difference plus the absolute
// normalized-area difference. Identical shapes score 0.
func (t TriangleDescriptor) Similarity(other TriangleDescriptor) float64 {
	ratioError := math.Abs(t.Ratios[0]-other.Ratios[0]) +
		math.Abs(t.Ratios[1]-other.Ratios[1]) +
		math.Abs(t.Ratios[2]-other.Ratios[2])
	areaError := math.Abs(t.NormalizedArea - other.NormalizedArea)
	return ratioError/3.0 + areaError
}

// GenerateTriangles enumerates every non-degenerate 3-point combination.
// Cubic in the set size; practical for tens of points per set.
func GenerateTriangles(points []geometry.Point2D) []TriangleDescriptor {
	var triangles []TriangleDescriptor
	for i := 0; i < len(points)-2; i++ {
		for j := i + 1; j < len(points)-1; j++ {
			for k := j + 1; k < len(points); k++ {
				if t, ok := NewTriangleDescriptor(points, i, j, k); ok {
					triangles = append(triangles, t)
				}
			}
		}
	}
	return triangles
}

// Correspondence pairs an index in the first point set with an index in
// the second.
type Correspondence struct {
	Source int
	Target int
}

// MatchTrianglesRobust discovers correspondences between two unordered
// point sets. Every descriptor pair across the two sets is compared; a
// pair with Similarity below tolerance casts one vote per vertex, and
// correspondences collecting at least 20% of the total triangle-pair
// matches are returned, sorted by (Source, Target).
//
// The full comparison is O(n1^3 * n2^3); use the geometric hashing path
// for larger sets.
func MatchTrianglesRobust(points1, points2 []geometry.Point2D, tolerance float64) []Correspondence {
	if len(points1) < 3 || len(points2) < 3 {
		return nil
	}

	triangles1 := GenerateTriangles(points1)
	triangles2 := GenerateTriangles(points2)

	votes, totalMatches := collectTriangleVotes(triangles1, triangles2, tolerance, nil)
	return tallyVotes(votes, max(1, totalMatches/5))
}

// vertexPermutations lists every assignment of triangle-2 vertices to
// triangle-1 vertices: the 3 cyclic rotations and their 3 reflections.
var vertexPermutations = [6][3]int{
	{0, 1, 2}, {1, 2, 0}, {2, 0, 1},
	{0, 2, 1}, {2, 1, 0}, {1, 0, 2},
}

// collectTriangleVotes cross-compares the two descriptor lists and
// accumulates correspondence votes. Independently enumerated triangles
// carry no consistent vertex order, so each matched pair votes through
// the permutation whose normalized side lengths agree best. vertexOK,
// when non-nil, must approve every vertex pairing before the match may
// vote (used for magnitude gating).
func collectTriangleVotes(triangles1, triangles2 []TriangleDescriptor, tolerance float64, vertexOK func(i, j int) bool) (map[Correspondence]int, int) {
	votes := make(map[Correspondence]int)
	totalMatches := 0

	for _, t1 := range triangles1 {
		for _, t2 := range triangles2 {
			if t1.Similarity(t2) >= tolerance {
				continue
			}
			perm := bestVertexPermutation(t1, t2)
			if vertexOK != nil && !permutationApproved(t1, t2, perm, vertexOK) {
				continue
			}
			totalMatches++
			for k := 0; k < 3; k++ {
				votes[Correspondence{t1.Indices[k], t2.Indices[perm[k]]}]++
			}
		}
	}
	return votes, totalMatches
}

func permutationApproved(t1, t2 TriangleDescriptor, perm [3]int, vertexOK func(i, j int) bool) bool {
	for k := 0; k < 3; k++ {
		if !vertexOK(t1.Indices[k], t2.Indices[perm[k]]) {
			return false
		}
	}
	return true
}

// bestVertexPermutation selects the vertex assignment minimizing the
// total normalized side-length disagreement across the three edges.
func bestVertexPermutation(t1, t2 TriangleDescriptor) [3]int {
	max1 := math.Max(t1.Sides[0], math.Max(t1.Sides[1], t1.Sides[2]))
	max2 := math.Max(t2.Sides[0], math.Max(t2.Sides[1], t2.Sides[2]))

	best := vertexPermutations[0]
	bestCost := math.Inf(1)
	for _, perm := range vertexPermutations {
		cost := 0.0
		for e := 0; e < 3; e++ {
			a, b := e, (e+1)%3
			s1 := sideBetween(t1, a, b) / max1
			s2 := sideBetween(t2, perm[a], perm[b]) / max2
			cost += math.Abs(s1 - s2)
		}
		if cost < bestCost {
			bestCost = cost
			best = perm
		}
	}
	return best
}

// sideBetween returns the side spanning local vertices a and b.
func sideBetween(t TriangleDescriptor, a, b int) float64 {
	switch a + b {
	case 1: // vertices 0 and 1
		return t.Sides[0]
	case 3: // vertices 1 and 2
		return t.Sides[1]
	default: // vertices 0 and 2
		return t.Sides[2]
	}
}

// tallyVotes returns the correspondences meeting the vote threshold,
// sorted deterministically.
func tallyVotes(votes map[Correspondence]int, minVotes int) []Correspondence {
	var matches []Correspondence
	for c, v := range votes {
		if v >= minVotes {
			matches = append(matches, c)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Source != matches[j].Source {
			return matches[i].Source < matches[j].Source
		}
		return matches[i].Target < matches[j].Target
	})
	return matches
}
