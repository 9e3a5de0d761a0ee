// Package datasets implements the statistics and visibility pipeline for
// offline model-based optimization datasets: sharded remote files are
// loaded into unified in-memory arrays, filtered to a percentile window
// over their scores, and exposed through invertible normalization and
// (for discrete design spaces) category/logit conversion.
package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dtype enumerates the element types a shard may carry.
type Dtype int

const (
	// Float32 arrays hold continuous design values or scores.
	Float32 Dtype = iota
	// Int32 arrays hold category indices for discrete design spaces.
	Int32
)

func (d Dtype) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	}
	return fmt.Sprintf("Dtype(%d)", int(d))
}

// Array is a rectangular numeric array stored as a flat contiguous
// buffer plus shape metadata. The leading dimension indexes samples.
// Exactly one of F32/I32 is populated, matching Dtype.
type Array struct {
	Dtype Dtype
	Shape []int
	F32   []float32
	I32   []int32
}

// NewF32 builds a float32 array, validating buffer length against shape.
func NewF32(data []float32, shape ...int) (*Array, error) {
	a := &Array{Dtype: Float32, Shape: shape, F32: data}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewI32 builds an int32 array, validating buffer length against shape.
func NewI32(data []int32, shape ...int) (*Array, error) {
	a := &Array{Dtype: Int32, Shape: shape, I32: data}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Array) validate() error {
	if len(a.Shape) == 0 {
		return fmt.Errorf("array: empty shape")
	}
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("array: negative dimension in shape %v", a.Shape)
		}
	}
	n := a.Numel()
	if got := a.bufLen(); got != n {
		return fmt.Errorf("array: shape %v wants %d elements, buffer has %d",
			a.Shape, n, got)
	}
	return nil
}

func (a *Array) bufLen() int {
	if a.Dtype == Int32 {
		return len(a.I32)
	}
	return len(a.F32)
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of samples (the leading dimension).
func (a *Array) Len() int { return a.Shape[0] }

// RowSize returns the number of elements per sample.
func (a *Array) RowSize() int { return numel(a.Shape[1:]) }

// Numel returns the total element count.
func (a *Array) Numel() int { return numel(a.Shape) }

// RowShape returns the per-sample shape (everything past the leading
// dimension).
func (a *Array) RowShape() []int { return a.Shape[1:] }

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	out := &Array{Dtype: a.Dtype, Shape: append([]int(nil), a.Shape...)}
	if a.Dtype == Int32 {
		out.I32 = append([]int32(nil), a.I32...)
	} else {
		out.F32 = append([]float32(nil), a.F32...)
	}
	return out
}

// Take gathers the given sample indices, in order, into a new array.
func (a *Array) Take(indices []int) *Array {
	rs := a.RowSize()
	shape := append([]int{len(indices)}, a.Shape[1:]...)
	out := &Array{Dtype: a.Dtype, Shape: shape}
	if a.Dtype == Int32 {
		out.I32 = make([]int32, len(indices)*rs)
		for i, idx := range indices {
			copy(out.I32[i*rs:(i+1)*rs], a.I32[idx*rs:(idx+1)*rs])
		}
	} else {
		out.F32 = make([]float32, len(indices)*rs)
		for i, idx := range indices {
			copy(out.F32[i*rs:(i+1)*rs], a.F32[idx*rs:(idx+1)*rs])
		}
	}
	return out
}

// sameRowShape reports whether b carries the same per-sample shape.
func (a *Array) sameRowShape(b *Array) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := 1; i < len(a.Shape); i++ {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Concat concatenates arrays along the leading dimension. All arrays
// must agree on dtype and per-sample shape.
func Concat(arrays []*Array) (*Array, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("concat: no arrays")
	}
	first := arrays[0]
	total := 0
	for i, a := range arrays {
		if a.Dtype != first.Dtype {
			return nil, fmt.Errorf("%w: array 0 is %s, array %d is %s",
				ErrDtypeMismatch, first.Dtype, i, a.Dtype)
		}
		if !first.sameRowShape(a) {
			return nil, fmt.Errorf("%w: array 0 has row shape %v, array %d has %v",
				ErrShapeMismatch, first.RowShape(), i, a.RowShape())
		}
		total += a.Len()
	}

	shape := append([]int{total}, first.Shape[1:]...)
	out := &Array{Dtype: first.Dtype, Shape: shape}
	if first.Dtype == Int32 {
		out.I32 = make([]int32, 0, total*first.RowSize())
		for _, a := range arrays {
			out.I32 = append(out.I32, a.I32...)
		}
	} else {
		out.F32 = make([]float32, 0, total*first.RowSize())
		for _, a := range arrays {
			out.F32 = append(out.F32, a.F32...)
		}
	}
	return out, nil
}

// Tensor converts the array into a gomlx tensor for use in training
// loops and batching utilities.
func (a *Array) Tensor() *tensors.Tensor {
	if a.Dtype == Int32 {
		return tensors.FromFlatDataAndDimensions(a.I32, a.Shape...)
	}
	return tensors.FromFlatDataAndDimensions(a.F32, a.Shape...)
}
