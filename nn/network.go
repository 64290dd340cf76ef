package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Architecture fixes the sizes of the emotion classifier: three
// convolution blocks followed by global pooling and a two-layer head.
var Architecture = struct {
	ConvChannels []int
	Kernel       int
	Pad          int
	PoolKernel   int
	PoolStride   int
	HiddenUnits  int
}{
	ConvChannels: []int{32, 64, 128},
	Kernel:       3,
	Pad:          1,
	PoolKernel:   2,
	PoolStride:   2,
	HiddenUnits:  64,
}

// Network is the compact 1D CNN for emotion classification. The mel axis
// is the channel dimension, so the convolutions slide over time only.
type Network struct {
	NMels    int
	NClasses int
	Dropout  float64

	layers []Layer

	// typed references for state handling and export
	convs []*Conv1D
	norms []*BatchNorm1D
	fc1   *Dense
	fc2   *Dense
	rng   *rand.Rand
}

// NewEmotionClassifier builds the network with seeded weight init.
func NewEmotionClassifier(nMels, nClasses int, dropout float64, seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	net := &Network{
		NMels:    nMels,
		NClasses: nClasses,
		Dropout:  dropout,
		rng:      rng,
	}

	arch := Architecture
	in := nMels
	for i, out := range arch.ConvChannels {
		conv := NewConv1D(fmt.Sprintf("conv%d", i+1), in, out, arch.Kernel, arch.Pad, rng)
		norm := NewBatchNorm1D(fmt.Sprintf("bn%d", i+1), out)
		net.convs = append(net.convs, conv)
		net.norms = append(net.norms, norm)
		net.layers = append(net.layers, conv, norm, NewReLU(), NewMaxPool1D(arch.PoolKernel, arch.PoolStride))
		in = out
	}

	net.layers = append(net.layers, NewGlobalAvgPool())
	net.fc1 = NewDense("fc1", in, arch.HiddenUnits, rng)
	net.fc2 = NewDense("fc2", arch.HiddenUnits, nClasses, rng)
	net.layers = append(net.layers,
		net.fc1,
		NewReLU(),
		NewDropout(dropout, rng),
		net.fc2,
	)
	return net
}

// Forward runs the batch through every layer and returns per-sample
// (nClasses x 1) logit vectors.
func (n *Network) Forward(x []*mat.Dense, training bool) []*mat.Dense {
	for _, layer := range n.layers {
		x = layer.Forward(x, training)
	}
	return x
}

// Backward propagates logit gradients through the network, accumulating
// parameter gradients.
func (n *Network) Backward(grad []*mat.Dense) {
	for i := len(n.layers) - 1; i >= 0; i-- {
		grad = n.layers[i].Backward(grad)
	}
}

// Params returns every trainable parameter in layer order.
func (n *Network) Params() []*Param {
	var params []*Param
	for _, layer := range n.layers {
		params = append(params, layer.Params()...)
	}
	return params
}

// NumParameters is the total trainable scalar count.
func (n *Network) NumParameters() int {
	var total int
	for _, p := range n.Params() {
		total += len(p.Data)
	}
	return total
}

// PredictProba returns class probabilities for a single spectrogram.
func (n *Network) PredictProba(spec *mat.Dense) []float64 {
	logits := n.Forward([]*mat.Dense{spec}, false)
	probs := Softmax(logits[0])
	out := make([]float64, n.NClasses)
	for c := 0; c < n.NClasses; c++ {
		out[c] = probs.At(c, 0)
	}
	return out
}

// Conv, Norm and head accessors used by the export pipeline.
func (n *Network) ConvLayers() []*Conv1D      { return n.convs }
func (n *Network) NormLayers() []*BatchNorm1D { return n.norms }
func (n *Network) Head() (*Dense, *Dense)     { return n.fc1, n.fc2 }

// StateMap snapshots every parameter and batch-norm running statistic,
// keyed by name.
func (n *Network) StateMap() map[string][]float64 {
	state := make(map[string][]float64)
	for _, p := range n.Params() {
		state[p.Name] = append([]float64(nil), p.Data...)
	}
	for i, bn := range n.norms {
		state[fmt.Sprintf("bn%d.running_mean", i+1)] = append([]float64(nil), bn.RunningMean...)
		state[fmt.Sprintf("bn%d.running_var", i+1)] = append([]float64(nil), bn.RunningVar...)
	}
	return state
}

// LoadStateMap restores a snapshot taken with StateMap. Every parameter
// must be present with a matching length.
func (n *Network) LoadStateMap(state map[string][]float64) error {
	for _, p := range n.Params() {
		data, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("missing parameter %s in state", p.Name)
		}
		if len(data) != len(p.Data) {
			return fmt.Errorf("parameter %s: expected %d values, got %d", p.Name, len(p.Data), len(data))
		}
		copy(p.Data, data)
	}
	for i, bn := range n.norms {
		meanKey := fmt.Sprintf("bn%d.running_mean", i+1)
		varKey := fmt.Sprintf("bn%d.running_var", i+1)
		mean, ok := state[meanKey]
		if !ok || len(mean) != len(bn.RunningMean) {
			return fmt.Errorf("missing or malformed %s in state", meanKey)
		}
		variance, ok := state[varKey]
		if !ok || len(variance) != len(bn.RunningVar) {
			return fmt.Errorf("missing or malformed %s in state", varKey)
		}
		copy(bn.RunningMean, mean)
		copy(bn.RunningVar, variance)
	}
	return nil
}
