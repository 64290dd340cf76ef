// Package export serializes a trained network into the ONNX and Core ML
// model formats. Both writers encode the protobuf wire format directly
// with protowire, validate the result by re-decoding it, and write the
// artifact atomically so a failed export never leaves a partial file.
package export

import (
	"fmt"

	"emotion-recognition/emotion"
	"emotion-recognition/nn"
)

// ConvBlock is one convolution stage of the exported graph: Conv ->
// BatchNorm -> ReLU -> MaxPool.
type ConvBlock struct {
	InChannels  int
	OutChannels int
	Kernel      int
	Pad         int
	PoolKernel  int
	PoolStride  int

	Weight []float64 // outC x inC x kernel, row-major
	Bias   []float64

	Gamma   []float64
	Beta    []float64
	Mean    []float64
	Var     []float64
	Epsilon float64
}

// DenseLayer is one fully connected stage of the head.
type DenseLayer struct {
	In     int
	Out    int
	Weight []float64 // out x in, row-major
	Bias   []float64
}

// Graph is the format-neutral description of the trained network, from
// which both writers encode their artifacts.
type Graph struct {
	Config   emotion.FeatureConfig
	Labels   []string
	Blocks   []ConvBlock
	Hidden   DenseLayer
	Output   DenseLayer
	Accuracy float64
}

// BuildGraph extracts the exportable structure from a trained network.
func BuildGraph(net *nn.Network, cfg emotion.FeatureConfig, accuracy float64) (*Graph, error) {
	convs := net.ConvLayers()
	norms := net.NormLayers()
	if len(convs) != len(norms) {
		return nil, fmt.Errorf("mismatched conv/norm layer counts: %d vs %d", len(convs), len(norms))
	}

	g := &Graph{
		Config:   cfg,
		Labels:   append([]string(nil), emotion.Emotions...),
		Accuracy: accuracy,
	}

	arch := nn.Architecture
	for i, conv := range convs {
		bn := norms[i]
		params := conv.Params()
		bnParams := bn.Params()
		block := ConvBlock{
			InChannels:  conv.InChannels,
			OutChannels: conv.OutChannels,
			Kernel:      conv.Kernel,
			Pad:         conv.Pad,
			PoolKernel:  arch.PoolKernel,
			PoolStride:  arch.PoolStride,
			Weight:      append([]float64(nil), params[0].Data...),
			Bias:        append([]float64(nil), params[1].Data...),
			Gamma:       append([]float64(nil), bnParams[0].Data...),
			Beta:        append([]float64(nil), bnParams[1].Data...),
			Mean:        append([]float64(nil), bn.RunningMean...),
			Var:         append([]float64(nil), bn.RunningVar...),
			Epsilon:     1e-5,
		}
		g.Blocks = append(g.Blocks, block)
	}

	fc1, fc2 := net.Head()
	g.Hidden = denseLayer(fc1)
	g.Output = denseLayer(fc2)

	if g.Output.Out != len(g.Labels) {
		return nil, fmt.Errorf("output layer width %d does not match %d labels", g.Output.Out, len(g.Labels))
	}
	return g, nil
}

func denseLayer(d *nn.Dense) DenseLayer {
	params := d.Params()
	return DenseLayer{
		In:     d.In,
		Out:    d.Out,
		Weight: append([]float64(nil), params[0].Data...),
		Bias:   append([]float64(nil), params[1].Data...),
	}
}

// float32s narrows a float64 slice for raw tensor payloads.
func float32s(data []float64) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return out
}
