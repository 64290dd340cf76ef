package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SoftmaxCrossEntropy computes the mean cross-entropy loss over a batch of
// (classes x 1) logit vectors and the gradient with respect to the logits.
func SoftmaxCrossEntropy(logits []*mat.Dense, targets []int) (float64, []*mat.Dense) {
	var total float64
	grads := make([]*mat.Dense, len(logits))
	batch := float64(len(logits))

	for n, sample := range logits {
		classes, _ := sample.Dims()
		probs := Softmax(sample)

		p := probs.At(targets[n], 0)
		if p < 1e-12 {
			p = 1e-12
		}
		total += -math.Log(p)

		g := mat.NewDense(classes, 1, nil)
		for c := 0; c < classes; c++ {
			v := probs.At(c, 0)
			if c == targets[n] {
				v -= 1
			}
			g.Set(c, 0, v/batch)
		}
		grads[n] = g
	}
	return total / batch, grads
}

// Softmax converts a (classes x 1) logit vector into probabilities.
func Softmax(logits *mat.Dense) *mat.Dense {
	classes, _ := logits.Dims()
	maxLogit := math.Inf(-1)
	for c := 0; c < classes; c++ {
		if v := logits.At(c, 0); v > maxLogit {
			maxLogit = v
		}
	}

	probs := mat.NewDense(classes, 1, nil)
	var sum float64
	for c := 0; c < classes; c++ {
		e := math.Exp(logits.At(c, 0) - maxLogit)
		probs.Set(c, 0, e)
		sum += e
	}
	probs.Scale(1/sum, probs)
	return probs
}

// Argmax returns the row index of the largest value in a column vector.
func Argmax(v *mat.Dense) int {
	rows, _ := v.Dims()
	best, bestIdx := math.Inf(-1), 0
	for r := 0; r < rows; r++ {
		if x := v.At(r, 0); x > best {
			best = x
			bestIdx = r
		}
	}
	return bestIdx
}
