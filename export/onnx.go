package export

import (
	"encoding/binary"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ONNX protobuf field numbers (onnx.proto3).
const (
	onnxModelIRVersion    = 1
	onnxModelProducerName = 2
	onnxModelGraph        = 7
	onnxModelOpsetImport  = 8

	onnxGraphNode        = 1
	onnxGraphName        = 2
	onnxGraphInitializer = 5
	onnxGraphInput       = 11
	onnxGraphOutput      = 12

	onnxNodeInput     = 1
	onnxNodeOutput    = 2
	onnxNodeName      = 3
	onnxNodeOpType    = 4
	onnxNodeAttribute = 5

	onnxAttrName  = 1
	onnxAttrFloat = 2
	onnxAttrInt   = 3
	onnxAttrInts  = 8
	onnxAttrType  = 20

	onnxAttrTypeFloat = 1
	onnxAttrTypeInt   = 2
	onnxAttrTypeInts  = 7

	onnxTensorDims     = 1
	onnxTensorDataType = 2
	onnxTensorName     = 8
	onnxTensorRawData  = 9

	onnxDataTypeFloat = 1

	onnxValueInfoName = 1
	onnxValueInfoType = 2

	onnxTypeTensorType = 1
	onnxTensorElemType = 1
	onnxTensorShape    = 2
	onnxShapeDim       = 1
	onnxDimValue       = 1
	onnxDimParam       = 2

	onnxOpsetDomain  = 1
	onnxOpsetVersion = 2

	onnxIRVersion   = 8
	onnxOpsetTarget = 13
)

// Wire format names of the graph endpoints.
const (
	onnxInputName  = "log_mel_spectrogram"
	onnxOutputName = "emotion_logits"
)

// WriteONNX encodes the graph as an ONNX model, validates the encoding and
// writes it atomically to path.
func WriteONNX(g *Graph, path string) error {
	data, err := EncodeONNX(g)
	if err != nil {
		return err
	}
	return writeONNXArtifact(data, path)
}

// writeONNXArtifact validates encoded model bytes before anything is
// renamed into place; failed validation leaves no file behind.
func writeONNXArtifact(data []byte, path string) error {
	if err := ValidateONNX(data); err != nil {
		return fmt.Errorf("onnx validation failed, artifact not written: %w", err)
	}
	return writeAtomic(path, data)
}

// EncodeONNX serializes the graph to ONNX protobuf bytes.
func EncodeONNX(g *Graph) ([]byte, error) {
	if len(g.Blocks) == 0 {
		return nil, fmt.Errorf("graph has no convolution blocks")
	}

	var model []byte
	model = protowire.AppendTag(model, onnxModelIRVersion, protowire.VarintType)
	model = protowire.AppendVarint(model, onnxIRVersion)
	model = protowire.AppendTag(model, onnxModelProducerName, protowire.BytesType)
	model = protowire.AppendString(model, "emotion-recognition")

	graph, err := encodeONNXGraph(g)
	if err != nil {
		return nil, err
	}
	model = protowire.AppendTag(model, onnxModelGraph, protowire.BytesType)
	model = protowire.AppendBytes(model, graph)

	var opset []byte
	opset = protowire.AppendTag(opset, onnxOpsetDomain, protowire.BytesType)
	opset = protowire.AppendString(opset, "")
	opset = protowire.AppendTag(opset, onnxOpsetVersion, protowire.VarintType)
	opset = protowire.AppendVarint(opset, onnxOpsetTarget)
	model = protowire.AppendTag(model, onnxModelOpsetImport, protowire.BytesType)
	model = protowire.AppendBytes(model, opset)

	return model, nil
}

func encodeONNXGraph(g *Graph) ([]byte, error) {
	var graph []byte

	appendNode := func(node []byte) {
		graph = protowire.AppendTag(graph, onnxGraphNode, protowire.BytesType)
		graph = protowire.AppendBytes(graph, node)
	}
	appendInitializer := func(name string, dims []int64, data []float64) {
		tensor := encodeTensor(name, dims, data)
		graph = protowire.AppendTag(graph, onnxGraphInitializer, protowire.BytesType)
		graph = protowire.AppendBytes(graph, tensor)
	}

	current := onnxInputName
	for i, block := range g.Blocks {
		idx := i + 1
		wName := fmt.Sprintf("conv%d.weight", idx)
		bName := fmt.Sprintf("conv%d.bias", idx)
		appendInitializer(wName,
			[]int64{int64(block.OutChannels), int64(block.InChannels), int64(block.Kernel)},
			block.Weight)
		appendInitializer(bName, []int64{int64(block.OutChannels)}, block.Bias)

		convOut := fmt.Sprintf("conv%d_out", idx)
		appendNode(encodeONNXNode(
			fmt.Sprintf("conv%d", idx), "Conv",
			[]string{current, wName, bName}, []string{convOut},
			[]onnxAttr{
				intsAttr("kernel_shape", []int64{int64(block.Kernel)}),
				intsAttr("pads", []int64{int64(block.Pad), int64(block.Pad)}),
				intsAttr("strides", []int64{1}),
			},
		))

		gName := fmt.Sprintf("bn%d.gamma", idx)
		btName := fmt.Sprintf("bn%d.beta", idx)
		mName := fmt.Sprintf("bn%d.mean", idx)
		vName := fmt.Sprintf("bn%d.var", idx)
		appendInitializer(gName, []int64{int64(block.OutChannels)}, block.Gamma)
		appendInitializer(btName, []int64{int64(block.OutChannels)}, block.Beta)
		appendInitializer(mName, []int64{int64(block.OutChannels)}, block.Mean)
		appendInitializer(vName, []int64{int64(block.OutChannels)}, block.Var)

		bnOut := fmt.Sprintf("bn%d_out", idx)
		appendNode(encodeONNXNode(
			fmt.Sprintf("bn%d", idx), "BatchNormalization",
			[]string{convOut, gName, btName, mName, vName}, []string{bnOut},
			[]onnxAttr{floatAttr("epsilon", block.Epsilon)},
		))

		reluOut := fmt.Sprintf("relu%d_out", idx)
		appendNode(encodeONNXNode(
			fmt.Sprintf("relu%d", idx), "Relu",
			[]string{bnOut}, []string{reluOut}, nil,
		))

		poolOut := fmt.Sprintf("pool%d_out", idx)
		appendNode(encodeONNXNode(
			fmt.Sprintf("pool%d", idx), "MaxPool",
			[]string{reluOut}, []string{poolOut},
			[]onnxAttr{
				intsAttr("kernel_shape", []int64{int64(block.PoolKernel)}),
				intsAttr("strides", []int64{int64(block.PoolStride)}),
			},
		))
		current = poolOut
	}

	appendNode(encodeONNXNode("gap", "GlobalAveragePool",
		[]string{current}, []string{"gap_out"}, nil))
	appendNode(encodeONNXNode("flatten", "Flatten",
		[]string{"gap_out"}, []string{"flat_out"},
		[]onnxAttr{intAttr("axis", 1)}))

	appendInitializer("fc1.weight",
		[]int64{int64(g.Hidden.Out), int64(g.Hidden.In)}, g.Hidden.Weight)
	appendInitializer("fc1.bias", []int64{int64(g.Hidden.Out)}, g.Hidden.Bias)
	appendNode(encodeONNXNode("fc1", "Gemm",
		[]string{"flat_out", "fc1.weight", "fc1.bias"}, []string{"fc1_out"},
		[]onnxAttr{intAttr("transB", 1)}))
	appendNode(encodeONNXNode("fc1_relu", "Relu",
		[]string{"fc1_out"}, []string{"fc1_relu_out"}, nil))

	appendInitializer("fc2.weight",
		[]int64{int64(g.Output.Out), int64(g.Output.In)}, g.Output.Weight)
	appendInitializer("fc2.bias", []int64{int64(g.Output.Out)}, g.Output.Bias)
	appendNode(encodeONNXNode("fc2", "Gemm",
		[]string{"fc1_relu_out", "fc2.weight", "fc2.bias"}, []string{onnxOutputName},
		[]onnxAttr{intAttr("transB", 1)}))

	graph = protowire.AppendTag(graph, onnxGraphName, protowire.BytesType)
	graph = protowire.AppendString(graph, "emotion_classifier")

	input := encodeValueInfo(onnxInputName, []int64{-1, int64(g.Config.NMels), int64(g.Config.TimeSteps)})
	graph = protowire.AppendTag(graph, onnxGraphInput, protowire.BytesType)
	graph = protowire.AppendBytes(graph, input)

	output := encodeValueInfo(onnxOutputName, []int64{-1, int64(g.Output.Out)})
	graph = protowire.AppendTag(graph, onnxGraphOutput, protowire.BytesType)
	graph = protowire.AppendBytes(graph, output)

	return graph, nil
}

type onnxAttr struct {
	name     string
	attrType uint64
	f        float64
	i        int64
	ints     []int64
}

func floatAttr(name string, v float64) onnxAttr {
	return onnxAttr{name: name, attrType: onnxAttrTypeFloat, f: v}
}

func intAttr(name string, v int64) onnxAttr {
	return onnxAttr{name: name, attrType: onnxAttrTypeInt, i: v}
}

func intsAttr(name string, v []int64) onnxAttr {
	return onnxAttr{name: name, attrType: onnxAttrTypeInts, ints: v}
}

func encodeONNXNode(name, opType string, inputs, outputs []string, attrs []onnxAttr) []byte {
	var node []byte
	for _, in := range inputs {
		node = protowire.AppendTag(node, onnxNodeInput, protowire.BytesType)
		node = protowire.AppendString(node, in)
	}
	for _, out := range outputs {
		node = protowire.AppendTag(node, onnxNodeOutput, protowire.BytesType)
		node = protowire.AppendString(node, out)
	}
	node = protowire.AppendTag(node, onnxNodeName, protowire.BytesType)
	node = protowire.AppendString(node, name)
	node = protowire.AppendTag(node, onnxNodeOpType, protowire.BytesType)
	node = protowire.AppendString(node, opType)

	for _, attr := range attrs {
		var a []byte
		a = protowire.AppendTag(a, onnxAttrName, protowire.BytesType)
		a = protowire.AppendString(a, attr.name)
		switch attr.attrType {
		case onnxAttrTypeFloat:
			a = protowire.AppendTag(a, onnxAttrFloat, protowire.Fixed32Type)
			a = protowire.AppendFixed32(a, math.Float32bits(float32(attr.f)))
		case onnxAttrTypeInt:
			a = protowire.AppendTag(a, onnxAttrInt, protowire.VarintType)
			a = protowire.AppendVarint(a, uint64(attr.i))
		case onnxAttrTypeInts:
			for _, v := range attr.ints {
				a = protowire.AppendTag(a, onnxAttrInts, protowire.VarintType)
				a = protowire.AppendVarint(a, uint64(v))
			}
		}
		a = protowire.AppendTag(a, onnxAttrType, protowire.VarintType)
		a = protowire.AppendVarint(a, attr.attrType)

		node = protowire.AppendTag(node, onnxNodeAttribute, protowire.BytesType)
		node = protowire.AppendBytes(node, a)
	}
	return node
}

func encodeTensor(name string, dims []int64, data []float64) []byte {
	var tensor []byte
	for _, d := range dims {
		tensor = protowire.AppendTag(tensor, onnxTensorDims, protowire.VarintType)
		tensor = protowire.AppendVarint(tensor, uint64(d))
	}
	tensor = protowire.AppendTag(tensor, onnxTensorDataType, protowire.VarintType)
	tensor = protowire.AppendVarint(tensor, onnxDataTypeFloat)
	tensor = protowire.AppendTag(tensor, onnxTensorName, protowire.BytesType)
	tensor = protowire.AppendString(tensor, name)

	raw := make([]byte, 4*len(data))
	for i, v := range float32s(data) {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	tensor = protowire.AppendTag(tensor, onnxTensorRawData, protowire.BytesType)
	tensor = protowire.AppendBytes(tensor, raw)
	return tensor
}

func encodeValueInfo(name string, dims []int64) []byte {
	var shape []byte
	for i, d := range dims {
		var dim []byte
		if d < 0 {
			dim = protowire.AppendTag(dim, onnxDimParam, protowire.BytesType)
			dim = protowire.AppendString(dim, fmt.Sprintf("dyn_%d", i))
		} else {
			dim = protowire.AppendTag(dim, onnxDimValue, protowire.VarintType)
			dim = protowire.AppendVarint(dim, uint64(d))
		}
		shape = protowire.AppendTag(shape, onnxShapeDim, protowire.BytesType)
		shape = protowire.AppendBytes(shape, dim)
	}

	var tensorType []byte
	tensorType = protowire.AppendTag(tensorType, onnxTensorElemType, protowire.VarintType)
	tensorType = protowire.AppendVarint(tensorType, onnxDataTypeFloat)
	tensorType = protowire.AppendTag(tensorType, onnxTensorShape, protowire.BytesType)
	tensorType = protowire.AppendBytes(tensorType, shape)

	var typeProto []byte
	typeProto = protowire.AppendTag(typeProto, onnxTypeTensorType, protowire.BytesType)
	typeProto = protowire.AppendBytes(typeProto, tensorType)

	var info []byte
	info = protowire.AppendTag(info, onnxValueInfoName, protowire.BytesType)
	info = protowire.AppendString(info, name)
	info = protowire.AppendTag(info, onnxValueInfoType, protowire.BytesType)
	info = protowire.AppendBytes(info, typeProto)
	return info
}
