package batch

import (
	"math"
	"math/rand"
)

const (
	kmeansMaxIterations = 100
	kmeansSeed          = 42
)

// kmeans partitions points into k clusters with Lloyd's algorithm. The
// random source is seeded for reproducible runs.
func kmeans(points [][]float64, k int) []int {
	if k < 1 || len(points) == 0 {
		return make([]int, len(points))
	}

	if k > len(points) {
		k = len(points)
	}

	rng := rand.New(rand.NewSource(kmeansSeed))
	centers := initCenters(points, k, rng)
	labels := make([]int, len(points))

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false

		for i, p := range points {
			best := nearestCenter(p, centers)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		recomputeCenters(points, labels, centers)
	}

	return labels
}

// initCenters seeds with k-means++ style sampling: each new center is drawn
// proportionally to squared distance from the nearest existing one.
func initCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.Intn(len(points))]))

	dist2 := make([]float64, len(points))

	for len(centers) < k {
		var total float64

		for i, p := range points {
			d := euclidean(p, centers[0])
			min := d * d

			for _, c := range centers[1:] {
				d = euclidean(p, c)
				if d*d < min {
					min = d * d
				}
			}

			dist2[i] = min
			total += min
		}

		if total == 0 {
			// Remaining points coincide with existing centers.
			centers = append(centers, clone(points[rng.Intn(len(points))]))
			continue
		}

		target := rng.Float64() * total
		idx := 0

		for i, d := range dist2 {
			target -= d
			if target <= 0 {
				idx = i
				break
			}
		}

		centers = append(centers, clone(points[idx]))
	}

	return centers
}

func nearestCenter(p []float64, centers [][]float64) int {
	best := 0
	bestDist := math.Inf(1)

	for i, c := range centers {
		if d := euclidean(p, c); d < bestDist {
			bestDist = d
			best = i
		}
	}

	return best
}

func recomputeCenters(points [][]float64, labels []int, centers [][]float64) {
	dim := len(points[0])
	counts := make([]int, len(centers))

	for i := range centers {
		centers[i] = make([]float64, dim)
	}

	for i, p := range points {
		counts[labels[i]]++

		for j, x := range p {
			centers[labels[i]][j] += x
		}
	}

	for i := range centers {
		if counts[i] == 0 {
			// Empty cluster keeps an arbitrary point as its center.
			centers[i] = clone(points[i%len(points)])
			continue
		}

		for j := range centers[i] {
			centers[i][j] /= float64(counts[i])
		}
	}
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)

	return out
}

// silhouetteScore measures labeling quality in [-1, 1]. Higher is better.
// Singleton clusters contribute zero.
func silhouetteScore(points [][]float64, labels []int) float64 {
	groups := make(map[int][]int)

	for i, l := range labels {
		if l != noiseLabel {
			groups[l] = append(groups[l], i)
		}
	}

	if len(groups) < 2 {
		return 0
	}

	var total float64

	var counted int

	for label, members := range groups {
		for _, i := range members {
			if len(members) < 2 {
				counted++
				continue
			}

			a := meanDistance(points, i, members)
			b := math.Inf(1)

			for other, otherMembers := range groups {
				if other == label {
					continue
				}

				if d := meanDistance(points, i, otherMembers); d < b {
					b = d
				}
			}

			if max := math.Max(a, b); max > 0 {
				total += (b - a) / max
			}

			counted++
		}
	}

	if counted == 0 {
		return 0
	}

	return total / float64(counted)
}

func meanDistance(points [][]float64, idx int, members []int) float64 {
	var sum float64

	var n int

	for _, j := range members {
		if j != idx {
			sum += euclidean(points[idx], points[j])
			n++
		}
	}

	if n == 0 {
		return 0
	}

	return sum / float64(n)
}
