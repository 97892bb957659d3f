package tensor

import (
	"fmt"
	"math"
)

// Clone returns a deep copy of the tensor's data; autograd state is not
// copied.
func (t *Tensor) Clone() (*Tensor, error) {
	return NewTensor(t.Shape, t.Data)
}

// Item returns the value of a scalar tensor.
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("item requires a scalar tensor, got shape %v", t.Shape)
	}
	return t.Data[0], nil
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) (float64, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}
	idx := 0
	for i, coord := range indices {
		if coord < 0 || coord >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for axis %d (size %d)", coord, i, t.Shape[i])
		}
		idx += coord * t.Strides[i]
	}
	return t.Data[idx], nil
}

// IsFinite reports whether every element is neither NaN nor infinite.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Equal reports exact elementwise equality of shape and data.
func (t *Tensor) Equal(other *Tensor) bool {
	if !shapesEqual(t.Shape, other.Shape) {
		return false
	}
	for i := range t.Data {
		if t.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// AllClose reports whether every element of t is within tol of other.
func AllClose(t, other *Tensor, tol float64) bool {
	if !shapesEqual(t.Shape, other.Shape) {
		return false
	}
	return MaxAbsDiff(t, other) <= tol
}

// MaxAbsDiff returns the largest elementwise absolute difference. Shapes
// must match; NaN differences report as +Inf so they are never missed.
func MaxAbsDiff(t, other *Tensor) float64 {
	var max float64
	for i := range t.Data {
		d := math.Abs(t.Data[i] - other.Data[i])
		if math.IsNaN(d) {
			return math.Inf(1)
		}
		if d > max {
			max = d
		}
	}
	return max
}

// ZeroGrad clears accumulated gradients on every tensor in the list.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.requiresGrad && t.grad != nil {
			for i := range t.grad.Data {
				t.grad.Data[i] = 0
			}
		}
	}
}

// ClearGrad drops the gradient buffer entirely.
func (t *Tensor) ClearGrad() {
	t.grad = nil
}
