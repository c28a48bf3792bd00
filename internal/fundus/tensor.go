package fundus

import "fmt"

// Tensor is a dense float32 array in row-major order exchanged with
// inference models. Shape uses int64 to match ONNX Runtime.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor validates that data matches the shape volume.
func NewTensor(shape []int64, data []float32) (*Tensor, error) {
	if n := Volume(shape); n != int64(len(data)) {
		return nil, fmt.Errorf("tensor data has %d values, shape %v needs %d", len(data), shape, n)
	}
	s := make([]int64, len(shape))
	copy(s, shape)
	return &Tensor{Shape: s, Data: data}, nil
}

// Volume returns the product of the dimensions.
func Volume(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}

// Float64s copies the data out as float64.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, len(t.Data))
	for i, v := range t.Data {
		out[i] = float64(v)
	}
	return out
}
