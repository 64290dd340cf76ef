package nn

import "gonum.org/v1/gonum/mat"

// ReLU zeroes negative activations.
type ReLU struct {
	mask []*mat.Dense
}

func NewReLU() *ReLU { return &ReLU{} }

func (r *ReLU) Params() []*Param { return nil }

func (r *ReLU) Forward(x []*mat.Dense, training bool) []*mat.Dense {
	out := make([]*mat.Dense, len(x))
	if training {
		r.mask = make([]*mat.Dense, len(x))
	}
	for n, sample := range x {
		rows, cols := sample.Dims()
		y := mat.NewDense(rows, cols, nil)
		var mask *mat.Dense
		if training {
			mask = mat.NewDense(rows, cols, nil)
		}
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if v := sample.At(i, j); v > 0 {
					y.Set(i, j, v)
					if training {
						mask.Set(i, j, 1)
					}
				}
			}
		}
		out[n] = y
		if training {
			r.mask[n] = mask
		}
	}
	return out
}

func (r *ReLU) Backward(grad []*mat.Dense) []*mat.Dense {
	dx := make([]*mat.Dense, len(grad))
	for n, g := range grad {
		var d mat.Dense
		d.MulElem(g, r.mask[n])
		dx[n] = &d
	}
	return dx
}

// Dropout is inverted dropout: surviving activations are scaled by
// 1/(1-rate) so evaluation needs no rescaling.
type Dropout struct {
	Rate float64
	rng  randSource
	mask []*mat.Dense
}

// randSource is the subset of math/rand used by stochastic layers.
type randSource interface {
	Float64() float64
}

func NewDropout(rate float64, rng randSource) *Dropout {
	return &Dropout{Rate: rate, rng: rng}
}

func (d *Dropout) Params() []*Param { return nil }

func (d *Dropout) Forward(x []*mat.Dense, training bool) []*mat.Dense {
	if !training || d.Rate <= 0 {
		return x
	}
	keep := 1 - d.Rate
	out := make([]*mat.Dense, len(x))
	d.mask = make([]*mat.Dense, len(x))
	for n, sample := range x {
		rows, cols := sample.Dims()
		y := mat.NewDense(rows, cols, nil)
		mask := mat.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if d.rng.Float64() < keep {
					mask.Set(i, j, 1/keep)
					y.Set(i, j, sample.At(i, j)/keep)
				}
			}
		}
		out[n] = y
		d.mask[n] = mask
	}
	return out
}

func (d *Dropout) Backward(grad []*mat.Dense) []*mat.Dense {
	if d.mask == nil {
		return grad
	}
	dx := make([]*mat.Dense, len(grad))
	for n, g := range grad {
		var out mat.Dense
		out.MulElem(g, d.mask[n])
		dx[n] = &out
	}
	return dx
}
