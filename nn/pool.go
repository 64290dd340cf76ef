package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaxPool1D takes the channel-wise maximum over non-overlapping windows on
// the time axis. A trailing partial window is dropped, matching the usual
// floor division of the output length.
type MaxPool1D struct {
	Kernel int
	Stride int

	argmax [][][]int // per sample, per channel, winning source index
	inLen  int
}

func NewMaxPool1D(kernel, stride int) *MaxPool1D {
	return &MaxPool1D{Kernel: kernel, Stride: stride}
}

func (p *MaxPool1D) Params() []*Param { return nil }

// OutLen is the pooled length for an input of length t.
func (p *MaxPool1D) OutLen(t int) int {
	if t < p.Kernel {
		return 0
	}
	return (t-p.Kernel)/p.Stride + 1
}

func (p *MaxPool1D) Forward(x []*mat.Dense, training bool) []*mat.Dense {
	out := make([]*mat.Dense, len(x))
	if training {
		p.argmax = make([][][]int, len(x))
	}
	for n, sample := range x {
		channels, steps := sample.Dims()
		p.inLen = steps
		outLen := p.OutLen(steps)

		y := mat.NewDense(channels, outLen, nil)
		var arg [][]int
		if training {
			arg = make([][]int, channels)
		}
		for ch := 0; ch < channels; ch++ {
			if training {
				arg[ch] = make([]int, outLen)
			}
			for o := 0; o < outLen; o++ {
				start := o * p.Stride
				best := math.Inf(-1)
				bestIdx := start
				for k := 0; k < p.Kernel; k++ {
					if v := sample.At(ch, start+k); v > best {
						best = v
						bestIdx = start + k
					}
				}
				y.Set(ch, o, best)
				if training {
					arg[ch][o] = bestIdx
				}
			}
		}
		out[n] = y
		if training {
			p.argmax[n] = arg
		}
	}
	return out
}

func (p *MaxPool1D) Backward(grad []*mat.Dense) []*mat.Dense {
	dx := make([]*mat.Dense, len(grad))
	for n, g := range grad {
		channels, outLen := g.Dims()
		d := mat.NewDense(channels, p.inLen, nil)
		for ch := 0; ch < channels; ch++ {
			for o := 0; o < outLen; o++ {
				idx := p.argmax[n][ch][o]
				d.Set(ch, idx, d.At(ch, idx)+g.At(ch, o))
			}
		}
		dx[n] = d
	}
	return dx
}

// GlobalAvgPool averages each channel over time, collapsing (C x T) to
// (C x 1).
type GlobalAvgPool struct {
	inLen int
}

func NewGlobalAvgPool() *GlobalAvgPool { return &GlobalAvgPool{} }

func (p *GlobalAvgPool) Params() []*Param { return nil }

func (p *GlobalAvgPool) Forward(x []*mat.Dense, training bool) []*mat.Dense {
	out := make([]*mat.Dense, len(x))
	for n, sample := range x {
		channels, steps := sample.Dims()
		p.inLen = steps
		y := mat.NewDense(channels, 1, nil)
		for ch := 0; ch < channels; ch++ {
			var sum float64
			for t := 0; t < steps; t++ {
				sum += sample.At(ch, t)
			}
			y.Set(ch, 0, sum/float64(steps))
		}
		out[n] = y
	}
	return out
}

func (p *GlobalAvgPool) Backward(grad []*mat.Dense) []*mat.Dense {
	dx := make([]*mat.Dense, len(grad))
	for n, g := range grad {
		channels, _ := g.Dims()
		d := mat.NewDense(channels, p.inLen, nil)
		for ch := 0; ch < channels; ch++ {
			share := g.At(ch, 0) / float64(p.inLen)
			for t := 0; t < p.inLen; t++ {
				d.Set(ch, t, share)
			}
		}
		dx[n] = d
	}
	return dx
}
