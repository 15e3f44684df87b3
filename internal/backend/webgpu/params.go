package webgpu

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/tensor"
)

// Shader parameters are flat u32 words read from a storage buffer. Every shape and stride
// block holds maxRank words, padded with 1 for shapes and 0 for strides.

// broadcastStrides returns the strides to read an input of shape in while iterating over
// out, which in broadcasts to. Broadcast axes get stride 0.
func broadcastStrides(in, out tensor.Shape) []int {
	strides := make([]int, len(out))
	inStrides := in.ComputeStrides()
	offset := len(out) - len(in)
	for i := range in {
		if in[i] != 1 {
			strides[offset+i] = inStrides[i]
		}
	}
	return strides
}

func checkRank(shape tensor.Shape) error {
	if shape.Rank() > maxRank {
		return errors.Errorf("backend %q supports tensors up to rank %d, got shape %v", Name, maxRank, shape)
	}
	return nil
}

func appendBlock(words []uint32, values []int, pad uint32) []uint32 {
	for i := range maxRank {
		if i < len(values) {
			words = append(words, uint32(values[i])) //nolint:gosec // G115: dims fit in u32
		} else {
			words = append(words, pad)
		}
	}
	return words
}

// unaryParams is {size, 0, 0, 0}.
func unaryParams(size int) []uint32 {
	return []uint32{uint32(size), 0, 0, 0} //nolint:gosec // G115: device buffers are below 4G elements
}

// binaryParams is {size, rank, 0, 0, out_shape[6], a_strides[6], b_strides[6]}.
func binaryParams(aShape, bShape, outShape tensor.Shape) ([]uint32, error) {
	if err := checkRank(outShape); err != nil {
		return nil, err
	}
	words := []uint32{uint32(outShape.NumElements()), uint32(outShape.Rank()), 0, 0} //nolint:gosec // G115
	words = appendBlock(words, outShape, 1)
	words = appendBlock(words, broadcastStrides(aShape, outShape), 0)
	words = appendBlock(words, broadcastStrides(bShape, outShape), 0)
	return words, nil
}

// sumParams is {out_size, kept_rank, reduce_size, reduce_rank, kept_shape[6],
// kept_strides[6], reduce_shape[6], reduce_strides[6]}. Strides index the input; the
// output is laid out in the order of the kept axes.
func sumParams(shape tensor.Shape, axes []int) ([]uint32, error) {
	if err := checkRank(shape); err != nil {
		return nil, err
	}
	strides := shape.ComputeStrides()
	reduced := make(map[int]bool, len(axes))
	for _, axis := range axes {
		reduced[axis] = true
	}
	var keptShape, keptStrides, redShape, redStrides []int
	outSize, reduceSize := 1, 1
	for i, dim := range shape {
		if reduced[i] {
			redShape = append(redShape, dim)
			redStrides = append(redStrides, strides[i])
			reduceSize *= dim
		} else {
			keptShape = append(keptShape, dim)
			keptStrides = append(keptStrides, strides[i])
			outSize *= dim
		}
	}
	//nolint:gosec // G115: sizes and ranks fit in u32
	words := []uint32{uint32(outSize), uint32(len(keptShape)), uint32(reduceSize), uint32(len(redShape))}
	words = appendBlock(words, keptShape, 1)
	words = appendBlock(words, keptStrides, 0)
	words = appendBlock(words, redShape, 1)
	words = appendBlock(words, redStrides, 0)
	return words, nil
}

// wordBytes encodes words little endian, as the device reads them.
func wordBytes(words []uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

// workgroups returns the number of workgroups covering n invocations.
func workgroups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize) //nolint:gosec // G115: n is a buffer length
}

// sizeClass rounds size up to a power of two, minimum 16 bytes.
func sizeClass(size uint64) uint64 {
	class := uint64(16)
	for class < size {
		class <<= 1
	}
	return class
}

func float32Bytes(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// bytesFloat32 decodes the first n float32 values of buf.
func bytesFloat32(buf []byte, n int) []float32 {
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return values
}
