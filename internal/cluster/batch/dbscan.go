package batch

// noiseLabel marks points no density-reachable cluster claimed.
const noiseLabel = -1

// dbscan labels points by density reachability. Points with fewer than
// minPts neighbors within eps that no cluster absorbs are labeled noise.
func dbscan(points [][]float64, eps float64, minPts int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = noiseLabel
	}

	visited := make([]bool, len(points))
	next := 0

	for i := range points {
		if visited[i] {
			continue
		}

		visited[i] = true

		// A core point has minPts points within eps, counting itself.
		neighbors := regionQuery(points, i, eps)
		if len(neighbors)+1 < minPts {
			continue
		}

		labels[i] = next

		// Expand the cluster breadth-first over density-reachable points.
		for qi := 0; qi < len(neighbors); qi++ {
			j := neighbors[qi]

			if !visited[j] {
				visited[j] = true

				jNeighbors := regionQuery(points, j, eps)
				if len(jNeighbors)+1 >= minPts {
					neighbors = append(neighbors, jNeighbors...)
				}
			}

			if labels[j] == noiseLabel {
				labels[j] = next
			}
		}

		next++
	}

	return labels
}

func regionQuery(points [][]float64, idx int, eps float64) []int {
	var neighbors []int

	for j := range points {
		if j != idx && euclidean(points[idx], points[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}

	return neighbors
}

func countClusters(labels []int) (clusters, noise int) {
	seen := make(map[int]struct{})

	for _, l := range labels {
		if l == noiseLabel {
			noise++
			continue
		}

		seen[l] = struct{}{}
	}

	return len(seen), noise
}
