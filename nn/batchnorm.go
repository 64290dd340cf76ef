package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const bnEps = 1e-5

// BatchNorm1D normalizes each channel over the batch and time dimensions.
// Training passes update running statistics with momentum; evaluation
// passes normalize with the running statistics instead.
type BatchNorm1D struct {
	Channels int
	Momentum float64

	gamma *Param
	beta  *Param

	RunningMean []float64
	RunningVar  []float64

	// backward cache from the last training forward
	xhat   []*mat.Dense
	invStd []float64
	count  int
}

// NewBatchNorm1D builds a batch-norm layer with unit scale and zero shift.
func NewBatchNorm1D(name string, channels int) *BatchNorm1D {
	bn := &BatchNorm1D{
		Channels: channels,
		Momentum: 0.1,
		gamma: &Param{
			Name: name + ".gamma",
			Data: make([]float64, channels),
			Grad: make([]float64, channels),
		},
		beta: &Param{
			Name: name + ".beta",
			Data: make([]float64, channels),
			Grad: make([]float64, channels),
		},
		RunningMean: make([]float64, channels),
		RunningVar:  make([]float64, channels),
	}
	for i := range bn.gamma.Data {
		bn.gamma.Data[i] = 1
		bn.RunningVar[i] = 1
	}
	return bn
}

func (bn *BatchNorm1D) Params() []*Param { return []*Param{bn.gamma, bn.beta} }

func (bn *BatchNorm1D) Forward(x []*mat.Dense, training bool) []*mat.Dense {
	if !training {
		return bn.forwardEval(x)
	}

	_, steps := x[0].Dims()
	count := len(x) * steps
	bn.count = count

	mean := make([]float64, bn.Channels)
	variance := make([]float64, bn.Channels)
	for ch := 0; ch < bn.Channels; ch++ {
		var sum float64
		for _, sample := range x {
			for t := 0; t < steps; t++ {
				sum += sample.At(ch, t)
			}
		}
		mean[ch] = sum / float64(count)

		var sq float64
		for _, sample := range x {
			for t := 0; t < steps; t++ {
				d := sample.At(ch, t) - mean[ch]
				sq += d * d
			}
		}
		variance[ch] = sq / float64(count)
	}

	bn.invStd = make([]float64, bn.Channels)
	for ch := range bn.invStd {
		bn.invStd[ch] = 1 / math.Sqrt(variance[ch]+bnEps)
		bn.RunningMean[ch] = (1-bn.Momentum)*bn.RunningMean[ch] + bn.Momentum*mean[ch]
		bn.RunningVar[ch] = (1-bn.Momentum)*bn.RunningVar[ch] + bn.Momentum*variance[ch]
	}

	bn.xhat = make([]*mat.Dense, len(x))
	out := make([]*mat.Dense, len(x))
	for n, sample := range x {
		xhat := mat.NewDense(bn.Channels, steps, nil)
		y := mat.NewDense(bn.Channels, steps, nil)
		for ch := 0; ch < bn.Channels; ch++ {
			g, b := bn.gamma.Data[ch], bn.beta.Data[ch]
			for t := 0; t < steps; t++ {
				h := (sample.At(ch, t) - mean[ch]) * bn.invStd[ch]
				xhat.Set(ch, t, h)
				y.Set(ch, t, g*h+b)
			}
		}
		bn.xhat[n] = xhat
		out[n] = y
	}
	return out
}

func (bn *BatchNorm1D) forwardEval(x []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(x))
	for n, sample := range x {
		_, steps := sample.Dims()
		y := mat.NewDense(bn.Channels, steps, nil)
		for ch := 0; ch < bn.Channels; ch++ {
			invStd := 1 / math.Sqrt(bn.RunningVar[ch]+bnEps)
			g, b := bn.gamma.Data[ch], bn.beta.Data[ch]
			m := bn.RunningMean[ch]
			for t := 0; t < steps; t++ {
				y.Set(ch, t, g*(sample.At(ch, t)-m)*invStd+b)
			}
		}
		out[n] = y
	}
	return out
}

func (bn *BatchNorm1D) Backward(grad []*mat.Dense) []*mat.Dense {
	_, steps := grad[0].Dims()
	n := float64(bn.count)

	// per-channel sums over the whole batch
	sumDy := make([]float64, bn.Channels)
	sumDyXhat := make([]float64, bn.Channels)
	for i, g := range grad {
		for ch := 0; ch < bn.Channels; ch++ {
			for t := 0; t < steps; t++ {
				dy := g.At(ch, t)
				sumDy[ch] += dy
				sumDyXhat[ch] += dy * bn.xhat[i].At(ch, t)
			}
		}
	}
	for ch := 0; ch < bn.Channels; ch++ {
		bn.beta.Grad[ch] += sumDy[ch]
		bn.gamma.Grad[ch] += sumDyXhat[ch]
	}

	dx := make([]*mat.Dense, len(grad))
	for i, g := range grad {
		d := mat.NewDense(bn.Channels, steps, nil)
		for ch := 0; ch < bn.Channels; ch++ {
			scale := bn.gamma.Data[ch] * bn.invStd[ch] / n
			for t := 0; t < steps; t++ {
				dy := g.At(ch, t)
				h := bn.xhat[i].At(ch, t)
				d.Set(ch, t, scale*(n*dy-sumDy[ch]-h*sumDyXhat[ch]))
			}
		}
		dx[i] = d
	}
	return dx
}
