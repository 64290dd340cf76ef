package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer over (features x 1) column vectors.
type Dense struct {
	In  int
	Out int

	weight *Param // out x in, row-major
	bias   *Param // out

	input []*mat.Dense
}

// NewDense builds a fully connected layer with He-initialized weights.
func NewDense(name string, in, out int, rng *rand.Rand) *Dense {
	d := &Dense{
		In:  in,
		Out: out,
		weight: &Param{
			Name: name + ".weight",
			Data: make([]float64, out*in),
			Grad: make([]float64, out*in),
		},
		bias: &Param{
			Name: name + ".bias",
			Data: make([]float64, out),
			Grad: make([]float64, out),
		},
	}
	heInit(d.weight.Data, in, rng)
	return d
}

func (d *Dense) Params() []*Param { return []*Param{d.weight, d.bias} }

func (d *Dense) Forward(x []*mat.Dense, training bool) []*mat.Dense {
	w := mat.NewDense(d.Out, d.In, d.weight.Data)
	if training {
		d.input = x
	}
	out := make([]*mat.Dense, len(x))
	for n, sample := range x {
		y := mat.NewDense(d.Out, 1, nil)
		y.Mul(w, sample)
		for o := 0; o < d.Out; o++ {
			y.Set(o, 0, y.At(o, 0)+d.bias.Data[o])
		}
		out[n] = y
	}
	return out
}

func (d *Dense) Backward(grad []*mat.Dense) []*mat.Dense {
	w := mat.NewDense(d.Out, d.In, d.weight.Data)
	dw := mat.NewDense(d.Out, d.In, d.weight.Grad)

	dx := make([]*mat.Dense, len(grad))
	for n, g := range grad {
		var gw mat.Dense
		gw.Mul(g, d.input[n].T())
		dw.Add(dw, &gw)
		for o := 0; o < d.Out; o++ {
			d.bias.Grad[o] += g.At(o, 0)
		}

		var di mat.Dense
		di.Mul(w.T(), g)
		dx[n] = &di
	}
	return dx
}
