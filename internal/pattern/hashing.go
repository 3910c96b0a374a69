package pattern

import (
	"fmt"
	"math"
	"sort"

	"star-align/pkg/geometry"
)

const (
	// hashBinSize quantizes normalized neighbor positions into hash
	// buckets. Normalized coordinates are on the order of the pattern
	// radius divided by the basis length, so a quarter-unit bin keeps
	// neighboring stars in distinct buckets without splitting a star
	// across many.
	hashBinSize = 0.25

	// patternNeighbors is the local pattern size: each star is indexed
	// together with this many nearest neighbors.
	patternNeighbors = 5
)

// HashEntry records one indexed local pattern: the stars forming it,
// the reference star's position, and the basis scale and rotation used
// to normalize it.
type HashEntry struct {
	StarIndices    []int
	ReferencePoint geometry.Point2D
	Scale          float64
	Rotation       float64
}

// BuildGeometricHashTable indexes a local pattern around every star
// into buckets keyed by the quantized, scale/rotation-normalized
// positions of its neighbors. The basis for each pattern is the vector
// from the star to its nearest neighbor, making every bucket key
// invariant under global scale, rotation, and translation.
func BuildGeometricHashTable(stars []geometry.Point2D, binSize float64) map[string][]HashEntry {
	table := make(map[string][]HashEntry)
	if len(stars) < 3 {
		return table
	}
	if binSize <= 0 {
		binSize = hashBinSize
	}

	for i := range stars {
		neighbors := nearestNeighbors(stars, i, patternNeighbors)
		if len(neighbors) < 2 {
			continue
		}

		// Basis from the nearest neighbor.
		basis := stars[neighbors[0]].Sub(stars[i])
		scale := math.Hypot(basis.X, basis.Y)
		if scale < 1e-9 {
			continue
		}
		rotation := math.Atan2(basis.Y, basis.X)

		entry := HashEntry{
			StarIndices:    append([]int{i}, neighbors...),
			ReferencePoint: stars[i],
			Scale:          scale,
			Rotation:       rotation,
		}

		cos, sin := math.Cos(-rotation), math.Sin(-rotation)
		for _, nb := range neighbors {
			d := stars[nb].Sub(stars[i])
			normalized := geometry.Point2D{
				X: (d.X*cos - d.Y*sin) / scale,
				Y: (d.X*sin + d.Y*cos) / scale,
			}
			key := hashKey(normalized, binSize)
			table[key] = append(table[key], entry)
		}
	}
	return table
}

// MatchPatternsWithHashing retrieves candidate correspondences between
// two point sets through the geometric hash index. Bucket collisions
// vote on reference-star pairs; hits whose implied scale ratio or
// rotation offset deviate from the consensus by more than tolerance are
// discarded before the final tally. tolerance bounds both the log scale
// ratio spread and the rotation spread in radians.
func MatchPatternsWithHashing(pattern1, pattern2 []geometry.Point2D, tolerance float64) []Correspondence {
	if len(pattern1) < 3 || len(pattern2) < 3 {
		return nil
	}
	if tolerance <= 0 {
		tolerance = 0.1
	}

	table := BuildGeometricHashTable(pattern2, hashBinSize)
	if len(table) == 0 {
		return nil
	}

	type hit struct {
		pair     Correspondence
		logScale float64
		rotation float64
	}
	var hits []hit

	for i := range pattern1 {
		neighbors := nearestNeighbors(pattern1, i, patternNeighbors)
		if len(neighbors) < 2 {
			continue
		}
		basis := pattern1[neighbors[0]].Sub(pattern1[i])
		scale := math.Hypot(basis.X, basis.Y)
		if scale < 1e-9 {
			continue
		}
		rotation := math.Atan2(basis.Y, basis.X)
		cos, sin := math.Cos(-rotation), math.Sin(-rotation)

		for _, nb := range neighbors {
			d := pattern1[nb].Sub(pattern1[i])
			normalized := geometry.Point2D{
				X: (d.X*cos - d.Y*sin) / scale,
				Y: (d.X*sin + d.Y*cos) / scale,
			}
			// Probe the bucket and its 8 neighbors to absorb
			// quantization jitter at bin boundaries.
			for dx := -1; dx <= 1; dx++ {
				for dy := -1; dy <= 1; dy++ {
					shifted := geometry.Point2D{
						X: normalized.X + float64(dx)*hashBinSize,
						Y: normalized.Y + float64(dy)*hashBinSize,
					}
					for _, entry := range table[hashKey(shifted, hashBinSize)] {
						hits = append(hits, hit{
							pair:     Correspondence{i, entry.StarIndices[0]},
							logScale: math.Log(scale / entry.Scale),
							rotation: normalizeAngle(rotation - entry.Rotation),
						})
					}
				}
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}

	// Consensus on the implied global scale and rotation.
	logScales := make([]float64, len(hits))
	rotations := make([]float64, len(hits))
	for i, h := range hits {
		logScales[i] = h.logScale
		rotations[i] = h.rotation
	}
	medLogScale := median(logScales)
	medRotation := circularMedian(rotations)

	votes := make(map[Correspondence]int)
	for _, h := range hits {
		if math.Abs(h.logScale-medLogScale) > tolerance {
			continue
		}
		if math.Abs(normalizeAngle(h.rotation-medRotation)) > tolerance {
			continue
		}
		votes[h.pair]++
	}

	// Two independent bucket agreements make a candidate.
	return tallyVotes(votes, 2)
}

func hashKey(p geometry.Point2D, binSize float64) string {
	return fmt.Sprintf("%d:%d",
		int(math.Floor(p.X/binSize)),
		int(math.Floor(p.Y/binSize)))
}

// nearestNeighbors returns up to count indices of the stars closest to
// stars[self], nearest first, excluding coincident points.
func nearestNeighbors(stars []geometry.Point2D, self, count int) []int {
	type candidate struct {
		index int
		dist  float64
	}
	var candidates []candidate
	for j := range stars {
		if j == self {
			continue
		}
		d := stars[self].Distance(stars[j])
		if d < 1e-9 {
			continue
		}
		candidates = append(candidates, candidate{j, d})
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].dist != candidates[b].dist {
			return candidates[a].dist < candidates[b].dist
		}
		return candidates[a].index < candidates[b].index
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	indices := make([]int, len(candidates))
	for i, c := range candidates {
		indices[i] = c.index
	}
	return indices
}

// normalizeAngle wraps an angle to (-pi, pi].
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// circularMedian is the median of a set of angles. A linear median
// breaks near the +-pi seam, where one rotation cluster wraps into two;
// measuring every angle as an offset from the first keeps the cluster
// contiguous.
func circularMedian(angles []float64) float64 {
	if len(angles) == 0 {
		return 0
	}
	ref := angles[0]
	offsets := make([]float64, len(angles))
	for i, a := range angles {
		offsets[i] = normalizeAngle(a - ref)
	}
	return normalizeAngle(ref + median(offsets))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
