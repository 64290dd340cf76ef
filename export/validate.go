package export

import (
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// ValidateONNX re-decodes an encoded model and checks its structure: a
// graph with nodes, a named input and output, and an opset import must all
// be present and well-formed at the wire level.
func ValidateONNX(data []byte) error {
	var graphBytes []byte
	var sawOpset bool

	if err := walkFields(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case onnxModelGraph:
			if typ != protowire.BytesType {
				return fmt.Errorf("graph field has wire type %d", typ)
			}
			graphBytes = payload
		case onnxModelOpsetImport:
			sawOpset = true
		}
		return nil
	}); err != nil {
		return fmt.Errorf("malformed model encoding: %w", err)
	}

	if graphBytes == nil {
		return fmt.Errorf("model has no graph")
	}
	if !sawOpset {
		return fmt.Errorf("model has no opset import")
	}

	var nodeCount, initializerCount int
	var inputName, outputName string
	if err := walkFields(graphBytes, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case onnxGraphNode:
			nodeCount++
			return walkFields(payload, func(n protowire.Number, t protowire.Type, p []byte) error {
				if n == onnxNodeOpType && len(p) == 0 {
					return fmt.Errorf("node with empty op_type")
				}
				return nil
			})
		case onnxGraphInitializer:
			initializerCount++
		case onnxGraphInput:
			inputName = valueInfoName(payload)
		case onnxGraphOutput:
			outputName = valueInfoName(payload)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("malformed graph encoding: %w", err)
	}

	if nodeCount == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	if initializerCount == 0 {
		return fmt.Errorf("graph has no initializers")
	}
	if inputName != onnxInputName {
		return fmt.Errorf("graph input %q, want %q", inputName, onnxInputName)
	}
	if outputName != onnxOutputName {
		return fmt.Errorf("graph output %q, want %q", outputName, onnxOutputName)
	}
	return nil
}

func valueInfoName(data []byte) string {
	var name string
	walkFields(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		if num == onnxValueInfoName {
			name = string(payload)
		}
		return nil
	})
	return name
}

// walkFields iterates the top-level fields of a wire-encoded message. For
// bytes fields the payload is the field content; for scalar fields it is
// nil.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, payload []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		var payload []byte
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			payload = v
			data = data[n:]
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		default:
			return fmt.Errorf("unsupported wire type %d", typ)
		}

		if err := fn(num, typ, payload); err != nil {
			return err
		}
	}
	return nil
}

// writeAtomic writes data through a temp file in the destination directory
// and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}
