// Package nn implements the compact 1D convolutional network used for
// emotion classification, together with its training machinery. Tensors
// are represented as slices of gonum matrices, one (channels x time)
// matrix per sample in the batch.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Layer is one differentiable stage of the network. Forward caches
// whatever Backward needs; Backward consumes the cache from the most
// recent Forward call, accumulates parameter gradients and returns the
// gradient with respect to the layer input.
type Layer interface {
	Forward(x []*mat.Dense, training bool) []*mat.Dense
	Backward(grad []*mat.Dense) []*mat.Dense
	Params() []*Param
}

// Param is a trainable tensor with its gradient accumulator. Data aliases
// the owning layer's storage, so optimizer updates are visible in place.
type Param struct {
	Name string
	Data []float64
	Grad []float64
}

// ZeroGrad clears the gradient accumulator.
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// heInit fills data with He-normal values for a layer with fanIn inputs.
func heInit(data []float64, fanIn int, rng *rand.Rand) {
	std := math.Sqrt(2 / float64(fanIn))
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
}
