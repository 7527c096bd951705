package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// CrossEntropy computes the summed softmax cross-entropy of logits against
// integer class labels and its gradient w.r.t. the logits (softmax - onehot,
// not yet divided by the batch size).
func CrossEntropy(logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	n, k := logits.Dims()
	if len(labels) != n {
		return 0, nil, fmt.Errorf("got %d labels for %d rows", len(labels), n)
	}

	grad := mat.NewDense(n, k, nil)
	total := 0.0
	for i := 0; i < n; i++ {
		label := labels[i]
		if label < 0 || label >= k {
			return 0, nil, fmt.Errorf("label %d outside [0, %d)", label, k)
		}

		row := logits.RawRowView(i)
		maxLogit := math.Inf(-1)
		for _, v := range row {
			maxLogit = math.Max(maxLogit, v)
		}
		sumExp := 0.0
		for _, v := range row {
			sumExp += math.Exp(v - maxLogit)
		}
		logSumExp := maxLogit + math.Log(sumExp)
		total += logSumExp - row[label]

		gradRow := grad.RawRowView(i)
		for j, v := range row {
			gradRow[j] = math.Exp(v - logSumExp)
		}
		gradRow[label] -= 1
	}
	return total, grad, nil
}
