package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Conv1D is a 1D convolution over the time axis with "same" padding at
// stride 1. The forward pass lowers each sample to an im2col matrix of
// shape (inC*kernel x T) so the convolution becomes a single matrix
// multiply against the (outC x inC*kernel) weight.
type Conv1D struct {
	InChannels  int
	OutChannels int
	Kernel      int
	Pad         int

	weight *Param // outC x inC*kernel, row-major
	bias   *Param // outC

	cols  []*mat.Dense // im2col cache per sample
	inLen int
}

// NewConv1D builds a convolution layer with He-initialized weights.
func NewConv1D(name string, inChannels, outChannels, kernel, pad int, rng *rand.Rand) *Conv1D {
	c := &Conv1D{
		InChannels:  inChannels,
		OutChannels: outChannels,
		Kernel:      kernel,
		Pad:         pad,
		weight: &Param{
			Name: name + ".weight",
			Data: make([]float64, outChannels*inChannels*kernel),
			Grad: make([]float64, outChannels*inChannels*kernel),
		},
		bias: &Param{
			Name: name + ".bias",
			Data: make([]float64, outChannels),
			Grad: make([]float64, outChannels),
		},
	}
	heInit(c.weight.Data, inChannels*kernel, rng)
	return c
}

func (c *Conv1D) Params() []*Param { return []*Param{c.weight, c.bias} }

func (c *Conv1D) Forward(x []*mat.Dense, training bool) []*mat.Dense {
	w := mat.NewDense(c.OutChannels, c.InChannels*c.Kernel, c.weight.Data)

	out := make([]*mat.Dense, len(x))
	if training {
		c.cols = make([]*mat.Dense, len(x))
	}
	for n, sample := range x {
		rows, steps := sample.Dims()
		if rows != c.InChannels {
			panic(fmt.Sprintf("conv1d: expected %d channels, got %d", c.InChannels, rows))
		}
		c.inLen = steps

		col := c.im2col(sample, steps)
		if training {
			c.cols[n] = col
		}

		y := mat.NewDense(c.OutChannels, steps, nil)
		y.Mul(w, col)
		for o := 0; o < c.OutChannels; o++ {
			b := c.bias.Data[o]
			for t := 0; t < steps; t++ {
				y.Set(o, t, y.At(o, t)+b)
			}
		}
		out[n] = y
	}
	return out
}

func (c *Conv1D) Backward(grad []*mat.Dense) []*mat.Dense {
	w := mat.NewDense(c.OutChannels, c.InChannels*c.Kernel, c.weight.Data)
	dw := mat.NewDense(c.OutChannels, c.InChannels*c.Kernel, c.weight.Grad)

	dx := make([]*mat.Dense, len(grad))
	for n, g := range grad {
		_, steps := g.Dims()

		// dW += g * colT, db += row sums of g
		var gw mat.Dense
		gw.Mul(g, c.cols[n].T())
		dw.Add(dw, &gw)
		for o := 0; o < c.OutChannels; o++ {
			var sum float64
			for t := 0; t < steps; t++ {
				sum += g.At(o, t)
			}
			c.bias.Grad[o] += sum
		}

		var dcol mat.Dense
		dcol.Mul(w.T(), g)
		dx[n] = c.col2im(&dcol, steps)
	}
	return dx
}

// im2col lowers a (inC x T) sample to (inC*kernel x T); column t holds the
// padded receptive field of output step t.
func (c *Conv1D) im2col(sample *mat.Dense, steps int) *mat.Dense {
	col := mat.NewDense(c.InChannels*c.Kernel, steps, nil)
	for ch := 0; ch < c.InChannels; ch++ {
		for k := 0; k < c.Kernel; k++ {
			row := ch*c.Kernel + k
			for t := 0; t < steps; t++ {
				src := t + k - c.Pad
				if src >= 0 && src < steps {
					col.Set(row, t, sample.At(ch, src))
				}
			}
		}
	}
	return col
}

// col2im scatters a (inC*kernel x T) gradient back to (inC x T),
// accumulating overlapping positions.
func (c *Conv1D) col2im(dcol *mat.Dense, steps int) *mat.Dense {
	dx := mat.NewDense(c.InChannels, steps, nil)
	for ch := 0; ch < c.InChannels; ch++ {
		for k := 0; k < c.Kernel; k++ {
			row := ch*c.Kernel + k
			for t := 0; t < steps; t++ {
				src := t + k - c.Pad
				if src >= 0 && src < steps {
					dx.Set(ch, src, dx.At(ch, src)+dcol.At(row, t))
				}
			}
		}
	}
	return dx
}
