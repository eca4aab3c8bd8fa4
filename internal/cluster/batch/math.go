package batch

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// standardize scales every column to zero mean and unit variance. Constant
// columns are centered only.
func standardize(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)

	col := make([]float64, rows)

	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)

		mean := stat.Mean(col, nil)
		std := math.Sqrt(stat.PopVariance(col, nil))

		if std == 0 {
			std = 1
		}

		for i := 0; i < rows; i++ {
			out.Set(i, j, (col[i]-mean)/std)
		}
	}

	return out
}

// reducePCA projects the matrix onto its first k principal components and
// returns the reduced matrix with the fraction of variance retained.
func reducePCA(m *mat.Dense, k int) (*mat.Dense, float64, error) {
	var pc stat.PC
	if ok := pc.PrincipalComponents(m, nil); !ok {
		return nil, 0, errPCAFailed
	}

	var vecs mat.Dense

	pc.VectorsTo(&vecs)

	vars := pc.VarsTo(nil)

	_, cols := m.Dims()
	if k > len(vars) {
		k = len(vars)
	}

	var reduced mat.Dense

	reduced.Mul(m, vecs.Slice(0, cols, 0, k))

	var total, kept float64

	for i, v := range vars {
		total += v
		if i < k {
			kept += v
		}
	}

	explained := 1.0
	if total > 0 {
		explained = kept / total
	}

	return &reduced, explained, nil
}

func matrixRows(m *mat.Dense) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, rows)

	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		mat.Row(out[i], i, m)
	}

	return out
}

func euclidean(a, b []float64) float64 {
	var sum float64

	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	return math.Sqrt(sum)
}

func cosine(a, b []float64) float64 {
	var dot, normA, normB float64

	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}

	out := make([]float64, len(vectors[0]))

	for _, v := range vectors {
		for i, x := range v {
			out[i] += x
		}
	}

	for i := range out {
		out[i] /= float64(len(vectors))
	}

	return out
}

// kNNPercentileEps derives a DBSCAN neighborhood radius from the 10th
// percentile of distances to each point's k-th nearest neighbor.
func kNNPercentileEps(points [][]float64, k int, percentile float64) float64 {
	if len(points) < 2 {
		return 0
	}

	if k >= len(points) {
		k = len(points) - 1
	}

	if k < 1 {
		k = 1
	}

	kth := make([]float64, 0, len(points))
	dists := make([]float64, 0, len(points)-1)

	for i := range points {
		dists = dists[:0]

		for j := range points {
			if i != j {
				dists = append(dists, euclidean(points[i], points[j]))
			}
		}

		sort.Float64s(dists)
		kth = append(kth, dists[k-1])
	}

	sort.Float64s(kth)

	idx := int(float64(len(kth)) * percentile)
	if idx >= len(kth) {
		idx = len(kth) - 1
	}

	return kth[idx]
}

// ScoreStats summarizes a similarity-score distribution.
type ScoreStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"avg"`
	Median float64 `json:"median"`
	Stdev  float64 `json:"std"`
}

func summarizeScores(values []float64) ScoreStats {
	if len(values) == 0 {
		return ScoreStats{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return ScoreStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Stdev:  math.Sqrt(stat.PopVariance(sorted, nil)),
	}
}
