package export

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Core ML protobuf field numbers (Model.proto and NeuralNetwork.proto).
const (
	mlModelSpecVersion   = 1
	mlModelDescription   = 2
	mlModelNeuralNetwork = 500

	mlDescInput    = 1
	mlDescOutput   = 10
	mlDescMetadata = 100

	mlMetaShortDescription = 1
	mlMetaVersionString    = 2
	mlMetaAuthor           = 3
	mlMetaLicense          = 4

	mlFeatureName      = 1
	mlFeatureShortDesc = 2
	mlFeatureType      = 3

	mlTypeMultiArray = 5

	mlArrayShape    = 1
	mlArrayDataType = 2

	mlArrayFloat32 = 65568

	mlNetworkLayers = 1

	mlLayerName         = 1
	mlLayerInput        = 2
	mlLayerOutput       = 3
	mlLayerConvolution  = 100
	mlLayerPooling      = 120
	mlLayerActivation   = 130
	mlLayerInnerProduct = 140
	mlLayerBatchnorm    = 160
	mlLayerSoftmax      = 175

	mlConvOutputChannels = 1
	mlConvKernelChannels = 2
	mlConvNGroups        = 10
	mlConvKernelSize     = 20
	mlConvStride         = 30
	mlConvDilation       = 40
	mlConvPaddingSame    = 51
	mlConvHasBias        = 70
	mlConvWeights        = 90
	mlConvBias           = 91

	mlPoolType         = 1
	mlPoolKernelSize   = 10
	mlPoolStride       = 20
	mlPoolPaddingValid = 30
	mlPoolGlobal       = 60

	mlPoolTypeMax     = 0
	mlPoolTypeAverage = 1

	mlActivationReLU = 10

	mlInnerInputChannels  = 1
	mlInnerOutputChannels = 2
	mlInnerHasBias        = 10
	mlInnerWeights        = 20
	mlInnerBias           = 21

	mlBNChannels = 1
	mlBNEpsilon  = 10
	mlBNGamma    = 15
	mlBNBeta     = 16
	mlBNMean     = 17
	mlBNVariance = 18

	mlWeightFloatValue = 1

	mlSpecVersion = 4
)

const (
	mlInputName  = "log_mel_spectrogram"
	mlOutputName = "emotion_probabilities"
)

// WriteCoreML encodes the graph as a Core ML neural network model,
// validates the encoding and writes it atomically to path. Unlike the
// ONNX export, the Core ML graph appends a softmax so the output feature
// carries probabilities.
func WriteCoreML(g *Graph, path string) error {
	data, err := EncodeCoreML(g)
	if err != nil {
		return err
	}
	if err := ValidateCoreML(data); err != nil {
		return fmt.Errorf("coreml validation failed, artifact not written: %w", err)
	}
	return writeAtomic(path, data)
}

// EncodeCoreML serializes the graph to Core ML protobuf bytes.
func EncodeCoreML(g *Graph) ([]byte, error) {
	if len(g.Blocks) == 0 {
		return nil, fmt.Errorf("graph has no convolution blocks")
	}

	var model []byte
	model = protowire.AppendTag(model, mlModelSpecVersion, protowire.VarintType)
	model = protowire.AppendVarint(model, mlSpecVersion)

	desc := encodeCoreMLDescription(g)
	model = protowire.AppendTag(model, mlModelDescription, protowire.BytesType)
	model = protowire.AppendBytes(model, desc)

	network, err := encodeCoreMLNetwork(g)
	if err != nil {
		return nil, err
	}
	model = protowire.AppendTag(model, mlModelNeuralNetwork, protowire.BytesType)
	model = protowire.AppendBytes(model, network)

	return model, nil
}

func encodeCoreMLDescription(g *Graph) []byte {
	var desc []byte

	input := encodeCoreMLFeature(mlInputName,
		fmt.Sprintf("%d-band log-mel spectrogram over %d frames", g.Config.NMels, g.Config.TimeSteps),
		[]int64{int64(g.Config.NMels), 1, int64(g.Config.TimeSteps)})
	desc = protowire.AppendTag(desc, mlDescInput, protowire.BytesType)
	desc = protowire.AppendBytes(desc, input)

	output := encodeCoreMLFeature(mlOutputName,
		"per-class probabilities over the emotion labels",
		[]int64{int64(g.Output.Out)})
	desc = protowire.AppendTag(desc, mlDescOutput, protowire.BytesType)
	desc = protowire.AppendBytes(desc, output)

	var meta []byte
	meta = protowire.AppendTag(meta, mlMetaShortDescription, protowire.BytesType)
	meta = protowire.AppendString(meta, "Speech emotion classifier (happy, sad, angry, surprised, neutral)")
	meta = protowire.AppendTag(meta, mlMetaVersionString, protowire.BytesType)
	meta = protowire.AppendString(meta, "1.0")
	meta = protowire.AppendTag(meta, mlMetaAuthor, protowire.BytesType)
	meta = protowire.AppendString(meta, "emotion-recognition")
	meta = protowire.AppendTag(meta, mlMetaLicense, protowire.BytesType)
	meta = protowire.AppendString(meta, "MIT")
	desc = protowire.AppendTag(desc, mlDescMetadata, protowire.BytesType)
	desc = protowire.AppendBytes(desc, meta)

	return desc
}

func encodeCoreMLFeature(name, shortDesc string, shape []int64) []byte {
	var array []byte
	for _, d := range shape {
		array = protowire.AppendTag(array, mlArrayShape, protowire.VarintType)
		array = protowire.AppendVarint(array, uint64(d))
	}
	array = protowire.AppendTag(array, mlArrayDataType, protowire.VarintType)
	array = protowire.AppendVarint(array, mlArrayFloat32)

	var featureType []byte
	featureType = protowire.AppendTag(featureType, mlTypeMultiArray, protowire.BytesType)
	featureType = protowire.AppendBytes(featureType, array)

	var feature []byte
	feature = protowire.AppendTag(feature, mlFeatureName, protowire.BytesType)
	feature = protowire.AppendString(feature, name)
	feature = protowire.AppendTag(feature, mlFeatureShortDesc, protowire.BytesType)
	feature = protowire.AppendString(feature, shortDesc)
	feature = protowire.AppendTag(feature, mlFeatureType, protowire.BytesType)
	feature = protowire.AppendBytes(feature, featureType)
	return feature
}

func encodeCoreMLNetwork(g *Graph) ([]byte, error) {
	var network []byte
	appendLayer := func(layer []byte) {
		network = protowire.AppendTag(network, mlNetworkLayers, protowire.BytesType)
		network = protowire.AppendBytes(network, layer)
	}

	current := mlInputName
	for i, block := range g.Blocks {
		idx := i + 1

		convOut := fmt.Sprintf("conv%d_out", idx)
		appendLayer(encodeCoreMLLayer(fmt.Sprintf("conv%d", idx), current, convOut,
			mlLayerConvolution, encodeConvParams(block)))

		bnOut := fmt.Sprintf("bn%d_out", idx)
		appendLayer(encodeCoreMLLayer(fmt.Sprintf("bn%d", idx), convOut, bnOut,
			mlLayerBatchnorm, encodeBatchnormParams(block)))

		reluOut := fmt.Sprintf("relu%d_out", idx)
		appendLayer(encodeCoreMLLayer(fmt.Sprintf("relu%d", idx), bnOut, reluOut,
			mlLayerActivation, encodeReLUParams()))

		poolOut := fmt.Sprintf("pool%d_out", idx)
		appendLayer(encodeCoreMLLayer(fmt.Sprintf("pool%d", idx), reluOut, poolOut,
			mlLayerPooling, encodePoolParams(block.PoolKernel, block.PoolStride, false)))
		current = poolOut
	}

	appendLayer(encodeCoreMLLayer("gap", current, "gap_out",
		mlLayerPooling, encodePoolParams(0, 0, true)))

	appendLayer(encodeCoreMLLayer("fc1", "gap_out", "fc1_out",
		mlLayerInnerProduct, encodeInnerProductParams(g.Hidden)))
	appendLayer(encodeCoreMLLayer("fc1_relu", "fc1_out", "fc1_relu_out",
		mlLayerActivation, encodeReLUParams()))
	appendLayer(encodeCoreMLLayer("fc2", "fc1_relu_out", "fc2_out",
		mlLayerInnerProduct, encodeInnerProductParams(g.Output)))
	appendLayer(encodeCoreMLLayer("softmax", "fc2_out", mlOutputName,
		mlLayerSoftmax, nil))

	return network, nil
}

func encodeCoreMLLayer(name, input, output string, paramField protowire.Number, params []byte) []byte {
	var layer []byte
	layer = protowire.AppendTag(layer, mlLayerName, protowire.BytesType)
	layer = protowire.AppendString(layer, name)
	layer = protowire.AppendTag(layer, mlLayerInput, protowire.BytesType)
	layer = protowire.AppendString(layer, input)
	layer = protowire.AppendTag(layer, mlLayerOutput, protowire.BytesType)
	layer = protowire.AppendString(layer, output)
	layer = protowire.AppendTag(layer, paramField, protowire.BytesType)
	layer = protowire.AppendBytes(layer, params)
	return layer
}

// encodeConvParams encodes a 1D convolution as a (1 x kernel) 2D kernel
// over the (channels, 1, time) layout with same padding.
func encodeConvParams(block ConvBlock) []byte {
	var p []byte
	p = protowire.AppendTag(p, mlConvOutputChannels, protowire.VarintType)
	p = protowire.AppendVarint(p, uint64(block.OutChannels))
	p = protowire.AppendTag(p, mlConvKernelChannels, protowire.VarintType)
	p = protowire.AppendVarint(p, uint64(block.InChannels))
	p = protowire.AppendTag(p, mlConvNGroups, protowire.VarintType)
	p = protowire.AppendVarint(p, 1)
	for _, k := range []uint64{1, uint64(block.Kernel)} {
		p = protowire.AppendTag(p, mlConvKernelSize, protowire.VarintType)
		p = protowire.AppendVarint(p, k)
	}
	for range 2 {
		p = protowire.AppendTag(p, mlConvStride, protowire.VarintType)
		p = protowire.AppendVarint(p, 1)
		p = protowire.AppendTag(p, mlConvDilation, protowire.VarintType)
		p = protowire.AppendVarint(p, 1)
	}
	p = protowire.AppendTag(p, mlConvPaddingSame, protowire.BytesType)
	p = protowire.AppendBytes(p, nil)
	p = protowire.AppendTag(p, mlConvHasBias, protowire.VarintType)
	p = protowire.AppendVarint(p, 1)
	p = protowire.AppendTag(p, mlConvWeights, protowire.BytesType)
	p = protowire.AppendBytes(p, encodeWeights(block.Weight))
	p = protowire.AppendTag(p, mlConvBias, protowire.BytesType)
	p = protowire.AppendBytes(p, encodeWeights(block.Bias))
	return p
}

func encodeBatchnormParams(block ConvBlock) []byte {
	var p []byte
	p = protowire.AppendTag(p, mlBNChannels, protowire.VarintType)
	p = protowire.AppendVarint(p, uint64(block.OutChannels))
	p = protowire.AppendTag(p, mlBNEpsilon, protowire.Fixed32Type)
	p = protowire.AppendFixed32(p, math.Float32bits(float32(block.Epsilon)))
	p = protowire.AppendTag(p, mlBNGamma, protowire.BytesType)
	p = protowire.AppendBytes(p, encodeWeights(block.Gamma))
	p = protowire.AppendTag(p, mlBNBeta, protowire.BytesType)
	p = protowire.AppendBytes(p, encodeWeights(block.Beta))
	p = protowire.AppendTag(p, mlBNMean, protowire.BytesType)
	p = protowire.AppendBytes(p, encodeWeights(block.Mean))
	p = protowire.AppendTag(p, mlBNVariance, protowire.BytesType)
	p = protowire.AppendBytes(p, encodeWeights(block.Var))
	return p
}

func encodeReLUParams() []byte {
	var p []byte
	p = protowire.AppendTag(p, mlActivationReLU, protowire.BytesType)
	p = protowire.AppendBytes(p, nil)
	return p
}

func encodePoolParams(kernel, stride int, global bool) []byte {
	var p []byte
	if global {
		p = protowire.AppendTag(p, mlPoolType, protowire.VarintType)
		p = protowire.AppendVarint(p, mlPoolTypeAverage)
		p = protowire.AppendTag(p, mlPoolGlobal, protowire.VarintType)
		p = protowire.AppendVarint(p, 1)
		return p
	}
	p = protowire.AppendTag(p, mlPoolType, protowire.VarintType)
	p = protowire.AppendVarint(p, mlPoolTypeMax)
	for _, k := range []uint64{1, uint64(kernel)} {
		p = protowire.AppendTag(p, mlPoolKernelSize, protowire.VarintType)
		p = protowire.AppendVarint(p, k)
	}
	for _, s := range []uint64{1, uint64(stride)} {
		p = protowire.AppendTag(p, mlPoolStride, protowire.VarintType)
		p = protowire.AppendVarint(p, s)
	}
	p = protowire.AppendTag(p, mlPoolPaddingValid, protowire.BytesType)
	p = protowire.AppendBytes(p, nil)
	return p
}

func encodeInnerProductParams(layer DenseLayer) []byte {
	var p []byte
	p = protowire.AppendTag(p, mlInnerInputChannels, protowire.VarintType)
	p = protowire.AppendVarint(p, uint64(layer.In))
	p = protowire.AppendTag(p, mlInnerOutputChannels, protowire.VarintType)
	p = protowire.AppendVarint(p, uint64(layer.Out))
	p = protowire.AppendTag(p, mlInnerHasBias, protowire.VarintType)
	p = protowire.AppendVarint(p, 1)
	p = protowire.AppendTag(p, mlInnerWeights, protowire.BytesType)
	p = protowire.AppendBytes(p, encodeWeights(layer.Weight))
	p = protowire.AppendTag(p, mlInnerBias, protowire.BytesType)
	p = protowire.AppendBytes(p, encodeWeights(layer.Bias))
	return p
}

// encodeWeights packs a float slice as a WeightParams message with a
// packed repeated float field.
func encodeWeights(data []float64) []byte {
	packed := make([]byte, 0, 4*len(data))
	for _, v := range float32s(data) {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	var w []byte
	w = protowire.AppendTag(w, mlWeightFloatValue, protowire.BytesType)
	w = protowire.AppendBytes(w, packed)
	return w
}

// ValidateCoreML re-decodes an encoded model and checks that the
// description and a non-empty layer stack are present.
func ValidateCoreML(data []byte) error {
	var sawDescription bool
	var networkBytes []byte

	if err := walkFields(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case mlModelDescription:
			sawDescription = true
		case mlModelNeuralNetwork:
			networkBytes = payload
		}
		return nil
	}); err != nil {
		return fmt.Errorf("malformed model encoding: %w", err)
	}

	if !sawDescription {
		return fmt.Errorf("model has no description")
	}
	if networkBytes == nil {
		return fmt.Errorf("model has no neural network")
	}

	var layerCount int
	var lastOutput string
	if err := walkFields(networkBytes, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		if num != mlNetworkLayers {
			return nil
		}
		layerCount++
		return walkFields(payload, func(n protowire.Number, t protowire.Type, p []byte) error {
			if n == mlLayerOutput {
				lastOutput = string(p)
			}
			return nil
		})
	}); err != nil {
		return fmt.Errorf("malformed network encoding: %w", err)
	}

	if layerCount == 0 {
		return fmt.Errorf("network has no layers")
	}
	if lastOutput != mlOutputName {
		return fmt.Errorf("final layer output %q, want %q", lastOutput, mlOutputName)
	}
	return nil
}
