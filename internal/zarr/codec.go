package zarr

import (
	"encoding/binary"
	"fmt"
	"math"
)

// decodeValues converts raw little-endian chunk bytes into float64s.
func decodeValues(data []byte, dt dtypeInfo, n int) ([]float64, error) {
	if len(data) != n*dt.size {
		return nil, fmt.Errorf("zarr: chunk has %d bytes, want %d", len(data), n*dt.size)
	}
	out := make([]float64, n)
	switch {
	case dt.kind == 'f' && dt.size == 8:
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case dt.kind == 'f' && dt.size == 4:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	case dt.kind == 'i':
		for i := range out {
			out[i] = float64(readInt(data[i*dt.size:], dt.size))
		}
	case dt.kind == 'u':
		for i := range out {
			out[i] = float64(readUint(data[i*dt.size:], dt.size))
		}
	}
	return out, nil
}

// encodeValues converts float64s into raw little-endian chunk bytes.
// Integer dtypes truncate toward zero, matching a plain cast.
func encodeValues(values []float64, dt dtypeInfo) []byte {
	out := make([]byte, len(values)*dt.size)
	switch {
	case dt.kind == 'f' && dt.size == 8:
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
		}
	case dt.kind == 'f' && dt.size == 4:
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
		}
	case dt.kind == 'i':
		for i, v := range values {
			writeInt(out[i*dt.size:], int64(v), dt.size)
		}
	case dt.kind == 'u':
		for i, v := range values {
			writeUint(out[i*dt.size:], uint64(v), dt.size)
		}
	}
	return out
}

func readInt(b []byte, size int) int64 {
	switch size {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return int64(binary.LittleEndian.Uint64(b))
	}
}

func readUint(b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeInt(b []byte, v int64, size int) {
	switch size {
	case 1:
		b[0] = byte(int8(v))
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

func writeUint(b []byte, v uint64, size int) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

// chunkGrid returns the number of chunks along every dimension.
func chunkGrid(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for d := range shape {
		grid[d] = ceilDiv(shape[d], chunks[d])
	}
	return grid
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// nextChunkIndex advances idx through the chunk grid in row-major order.
// Returns false after the last index.
func nextChunkIndex(idx, grid []int) bool {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < grid[d] {
			return true
		}
		idx[d] = 0
	}
	return false
}

// chunkWindow computes the clipped extent of the chunk at idx: the start
// offset into the array and the number of valid elements per dimension.
func chunkWindow(idx, shape, chunks []int) (start, count []int) {
	start = make([]int, len(shape))
	count = make([]int, len(shape))
	for d := range shape {
		start[d] = idx[d] * chunks[d]
		count[d] = chunks[d]
		if start[d]+count[d] > shape[d] {
			count[d] = shape[d] - start[d]
		}
	}
	return start, count
}
