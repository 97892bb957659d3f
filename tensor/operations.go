package tensor

import (
	"fmt"
	"math"
)

// indexer maps a flat index of the broadcast output to a flat index of one
// operand.
type indexer func(i int) int

func identityIndex(i int) int { return i }
func scalarIndex(int) int     { return 0 }

func isScalarShape(shape []int) bool {
	return len(shape) == 1 && shape[0] == 1
}

func shapesEqual(s1, s2 []int) bool {
	if len(s1) != len(s2) {
		return false
	}
	for i := range s1 {
		if s1[i] != s2[i] {
			return false
		}
	}
	return true
}

// broadcastPlan determines the output shape of an elementwise binary
// operation and how each operand's data is indexed. Supported patterns:
// identical shapes, scalar [1] against anything, and a row vector [c]
// against a matrix [r, c].
func broadcastPlan(s1, s2 []int) ([]int, indexer, indexer, error) {
	switch {
	case shapesEqual(s1, s2):
		return s1, identityIndex, identityIndex, nil
	case isScalarShape(s1):
		return s2, scalarIndex, identityIndex, nil
	case isScalarShape(s2):
		return s1, identityIndex, scalarIndex, nil
	case len(s1) == 2 && len(s2) == 1 && s2[0] == s1[1]:
		c := s1[1]
		return s1, identityIndex, func(i int) int { return i % c }, nil
	case len(s2) == 2 && len(s1) == 1 && s1[0] == s2[1]:
		c := s2[1]
		return s2, func(i int) int { return i % c }, identityIndex, nil
	default:
		return nil, nil, nil, fmt.Errorf("incompatible shapes for broadcasting: %v vs %v", s1, s2)
	}
}

func elementwiseBinary(t1, t2 *Tensor, f func(a, b float64) float64) (*Tensor, error) {
	outShape, idx1, idx2, err := broadcastPlan(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}
	for i := range result.Data {
		result.Data[i] = f(t1.Data[idx1(i)], t2.Data[idx2(i)])
	}
	return result, nil
}

func elementwiseUnary(t *Tensor, f func(v float64) float64) (*Tensor, error) {
	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}
	for i, v := range t.Data {
		result.Data[i] = f(v)
	}
	return result, nil
}

// Add computes t1 + t2 elementwise with broadcasting.
func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, func(a, b float64) float64 { return a + b })
}

// Sub computes t1 - t2 elementwise with broadcasting.
func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, func(a, b float64) float64 { return a - b })
}

// Mul computes t1 * t2 elementwise with broadcasting.
func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, func(a, b float64) float64 { return a * b })
}

// Div computes t1 / t2 elementwise with broadcasting.
func Div(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, func(a, b float64) float64 { return a / b })
}

// Scale computes alpha * t.
func Scale(t *Tensor, alpha float64) (*Tensor, error) {
	return elementwiseUnary(t, func(v float64) float64 { return alpha * v })
}

// Exp computes exp(t) elementwise.
func Exp(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, math.Exp)
}

// Tanh computes tanh(t) elementwise.
func Tanh(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, math.Tanh)
}

// Cos computes cos(t) elementwise.
func Cos(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, math.Cos)
}

// Sin computes sin(t) elementwise.
func Sin(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, math.Sin)
}

// ReLU computes max(0, t) elementwise.
func ReLU(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, func(v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// Sqrt computes the elementwise square root; negative inputs yield NaN so
// numerical problems propagate instead of being masked.
func Sqrt(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, math.Sqrt)
}

// MatMul computes the matrix product of a [m, k] and a [k, n] tensor.
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if len(t1.Shape) != 2 || len(t2.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got %v and %v", t1.Shape, t2.Shape)
	}
	m, k := t1.Shape[0], t1.Shape[1]
	k2, n := t2.Shape[0], t2.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("matmul inner dimensions do not match: %v vs %v", t1.Shape, t2.Shape)
	}

	result, err := Zeros([]int{m, n})
	if err != nil {
		return nil, err
	}
	for i := 0; i < m; i++ {
		for l := 0; l < k; l++ {
			a := t1.Data[i*k+l]
			if a == 0 {
				continue
			}
			row := t2.Data[l*n : (l+1)*n]
			out := result.Data[i*n : (i+1)*n]
			for j := 0; j < n; j++ {
				out[j] += a * row[j]
			}
		}
	}
	return result, nil
}

// Transpose returns the transpose of a 2D tensor.
func Transpose(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("transpose requires a 2D tensor, got shape %v", t.Shape)
	}
	r, c := t.Shape[0], t.Shape[1]
	result, err := Zeros([]int{c, r})
	if err != nil {
		return nil, err
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Data[j*r+i] = t.Data[i*c+j]
		}
	}
	return result, nil
}

// SumRows reduces a [r, c] tensor over its second axis, producing [r].
func SumRows(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("sumrows requires a 2D tensor, got shape %v", t.Shape)
	}
	r, c := t.Shape[0], t.Shape[1]
	result, err := Zeros([]int{r})
	if err != nil {
		return nil, err
	}
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			sum += t.Data[i*c+j]
		}
		result.Data[i] = sum
	}
	return result, nil
}

// SumAll reduces a tensor to a shape-[1] scalar.
func SumAll(t *Tensor) (*Tensor, error) {
	var sum float64
	for _, v := range t.Data {
		sum += v
	}
	return NewTensor([]int{1}, []float64{sum})
}

// Mean reduces a tensor to the shape-[1] mean of its elements.
func Mean(t *Tensor) (*Tensor, error) {
	s, err := SumAll(t)
	if err != nil {
		return nil, err
	}
	s.Data[0] /= float64(t.NumElems)
	return s, nil
}
