package tensor

import (
	"fmt"
	"math"
)

// reduceGradientToShape reduces a gradient tensor to match the target shape.
// This is needed when broadcasting occurred during the forward pass.
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, targetShape) {
		return grad.Clone()
	}

	if isScalarShape(targetShape) {
		return SumAll(grad)
	}

	// Row vector [c] broadcast across [r, c]: sum over rows.
	if len(grad.Shape) == 2 && len(targetShape) == 1 && targetShape[0] == grad.Shape[1] {
		r, c := grad.Shape[0], grad.Shape[1]
		result, err := Zeros(targetShape)
		if err != nil {
			return nil, err
		}
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				result.Data[j] += grad.Data[i*c+j]
			}
		}
		return result, nil
	}

	return nil, fmt.Errorf("cannot reduce gradient of shape %v to %v", grad.Shape, targetShape)
}

func attach(result *Tensor, op Operation) *Tensor {
	requires := false
	for _, in := range op.Inputs() {
		if in.requiresGrad {
			requires = true
			break
		}
	}
	if requires {
		result.requiresGrad = true
		result.creator = op
	}
	return result
}

func mustReduce(grad *Tensor, shape []int) *Tensor {
	reduced, err := reduceGradientToShape(grad, shape)
	if err != nil {
		panic(fmt.Sprintf("gradient reduction failed: %v", err))
	}
	return reduced
}

func mustOp(t *Tensor, err error) *Tensor {
	if err != nil {
		panic(fmt.Sprintf("autograd op failed: %v", err))
	}
	return t
}

// AddOp implements addition with broadcasting.
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

func (op *AddOp) Forward(a, b *Tensor) *Tensor {
	op.inputs = []*Tensor{a, b}
	return attach(mustOp(Add(a, b)), op)
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{
		mustReduce(gradOut, op.inputs[0].Shape),
		mustReduce(gradOut, op.inputs[1].Shape),
	}
}

// SubOp implements subtraction with broadcasting.
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Inputs() []*Tensor { return op.inputs }

func (op *SubOp) Forward(a, b *Tensor) *Tensor {
	op.inputs = []*Tensor{a, b}
	return attach(mustOp(Sub(a, b)), op)
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	neg := mustOp(Scale(gradOut, -1))
	return []*Tensor{
		mustReduce(gradOut, op.inputs[0].Shape),
		mustReduce(neg, op.inputs[1].Shape),
	}
}

// MulOp implements elementwise multiplication with broadcasting.
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

func (op *MulOp) Forward(a, b *Tensor) *Tensor {
	op.inputs = []*Tensor{a, b}
	return attach(mustOp(Mul(a, b)), op)
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := mustOp(Mul(gradOut, b))
	gradB := mustOp(Mul(gradOut, a))
	return []*Tensor{
		mustReduce(gradA, a.Shape),
		mustReduce(gradB, b.Shape),
	}
}

// DivOp implements elementwise division with broadcasting.
type DivOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *DivOp) Inputs() []*Tensor { return op.inputs }

func (op *DivOp) Forward(a, b *Tensor) *Tensor {
	op.inputs = []*Tensor{a, b}
	op.output = mustOp(Div(a, b))
	return attach(op.output, op)
}

func (op *DivOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := mustOp(Div(gradOut, b))
	// d(a/b)/db = -a/b^2 = -out/b
	gradB := mustOp(Scale(mustOp(Div(mustOp(Mul(gradOut, op.output)), b)), -1))
	return []*Tensor{
		mustReduce(gradA, a.Shape),
		mustReduce(gradB, b.Shape),
	}
}

// MatMulOp implements matrix multiplication.
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Inputs() []*Tensor { return op.inputs }

func (op *MatMulOp) Forward(a, b *Tensor) *Tensor {
	op.inputs = []*Tensor{a, b}
	return attach(mustOp(MatMul(a, b)), op)
}

func (op *MatMulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]
	bT := mustOp(Transpose(b))
	aT := mustOp(Transpose(a))
	gradA := mustOp(MatMul(gradOut, bT))
	gradB := mustOp(MatMul(aT, gradOut))
	return []*Tensor{gradA, gradB}
}

// ExpOp implements the elementwise exponential.
type ExpOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *ExpOp) Inputs() []*Tensor { return op.inputs }

func (op *ExpOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	op.output = mustOp(Exp(a))
	return attach(op.output, op)
}

func (op *ExpOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{mustOp(Mul(gradOut, op.output))}
}

// TanhOp implements the elementwise hyperbolic tangent.
type TanhOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *TanhOp) Inputs() []*Tensor { return op.inputs }

func (op *TanhOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	op.output = mustOp(Tanh(a))
	return attach(op.output, op)
}

func (op *TanhOp) Backward(gradOut *Tensor) []*Tensor {
	sq := mustOp(Mul(op.output, op.output))
	oneMinus, err := elementwiseUnary(sq, func(v float64) float64 { return 1 - v })
	if err != nil {
		panic(fmt.Sprintf("tanh backward failed: %v", err))
	}
	return []*Tensor{mustOp(Mul(gradOut, oneMinus))}
}

// CosOp implements the elementwise cosine.
type CosOp struct {
	inputs []*Tensor
}

func (op *CosOp) Inputs() []*Tensor { return op.inputs }

func (op *CosOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	return attach(mustOp(Cos(a)), op)
}

func (op *CosOp) Backward(gradOut *Tensor) []*Tensor {
	negSin := mustOp(Scale(mustOp(Sin(op.inputs[0])), -1))
	return []*Tensor{mustOp(Mul(gradOut, negSin))}
}

// SinOp implements the elementwise sine.
type SinOp struct {
	inputs []*Tensor
}

func (op *SinOp) Inputs() []*Tensor { return op.inputs }

func (op *SinOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	return attach(mustOp(Sin(a)), op)
}

func (op *SinOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{mustOp(Mul(gradOut, mustOp(Cos(op.inputs[0]))))}
}

// ReLUOp implements the rectified linear activation.
type ReLUOp struct {
	inputs []*Tensor
}

func (op *ReLUOp) Inputs() []*Tensor { return op.inputs }

func (op *ReLUOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	return attach(mustOp(ReLU(a)), op)
}

func (op *ReLUOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("relu backward failed: %v", err))
	}
	input := op.inputs[0]
	for i := range grad.Data {
		if input.Data[i] <= 0 {
			grad.Data[i] = 0
		}
	}
	return []*Tensor{grad}
}

// ScaleOp multiplies a tensor by a compile-time constant.
type ScaleOp struct {
	inputs []*Tensor
	alpha  float64
}

func (op *ScaleOp) Inputs() []*Tensor { return op.inputs }

func (op *ScaleOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	return attach(mustOp(Scale(a, op.alpha)), op)
}

func (op *ScaleOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{mustOp(Scale(gradOut, op.alpha))}
}

// SumRowsOp reduces [r, c] to [r] by summing over the second axis.
type SumRowsOp struct {
	inputs []*Tensor
}

func (op *SumRowsOp) Inputs() []*Tensor { return op.inputs }

func (op *SumRowsOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	return attach(mustOp(SumRows(a)), op)
}

func (op *SumRowsOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0]
	r, c := input.Shape[0], input.Shape[1]
	grad := ZerosLike(input)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			grad.Data[i*c+j] = gradOut.Data[i]
		}
	}
	return []*Tensor{grad}
}

// MeanOp reduces a tensor to the scalar mean of its elements.
type MeanOp struct {
	inputs []*Tensor
}

func (op *MeanOp) Inputs() []*Tensor { return op.inputs }

func (op *MeanOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	return attach(mustOp(Mean(a)), op)
}

func (op *MeanOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0]
	grad := ZerosLike(input)
	g := gradOut.Data[0] / float64(input.NumElems)
	for i := range grad.Data {
		grad.Data[i] = g
	}
	return []*Tensor{grad}
}

// SaturateOp clamps values to [0, 1], mapping NaN to 0 and +Inf to 1, so an
// acceptance probability is always well defined even when the Hamiltonian
// difference overflows. Gradients pass only through the linear region.
type SaturateOp struct {
	inputs []*Tensor
}

func (op *SaturateOp) Inputs() []*Tensor { return op.inputs }

func (op *SaturateOp) Forward(a *Tensor) *Tensor {
	op.inputs = []*Tensor{a}
	result, err := elementwiseUnary(a, saturate)
	if err != nil {
		panic(fmt.Sprintf("saturate failed: %v", err))
	}
	return attach(result, op)
}

func saturate(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < 0:
		return 0
	default:
		return v
	}
}

func (op *SaturateOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0]
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("saturate backward failed: %v", err))
	}
	for i, v := range input.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v >= 1 {
			grad.Data[i] = 0
		}
	}
	return []*Tensor{grad}
}

// CustomOp wires a caller-supplied backward function into the graph; see
// Custom.
type CustomOp struct {
	inputs   []*Tensor
	backward func(gradOut *Tensor) []*Tensor
}

func (op *CustomOp) Inputs() []*Tensor { return op.inputs }

func (op *CustomOp) Backward(gradOut *Tensor) []*Tensor {
	return op.backward(gradOut)
}

// Custom attaches a user-defined differentiable operation to result. The
// backward callback receives the output gradient and must return one
// gradient per input (nil to stop gradient flow into that input). If no
// input requires gradients the result stays a leaf.
func Custom(result *Tensor, inputs []*Tensor, backward func(gradOut *Tensor) []*Tensor) *Tensor {
	return attach(result, &CustomOp{inputs: inputs, backward: backward})
}

// High-level autograd entry points, one per operation.

// AddAutograd performs addition with automatic differentiation.
func AddAutograd(a, b *Tensor) *Tensor { return (&AddOp{}).Forward(a, b) }

// SubAutograd performs subtraction with automatic differentiation.
func SubAutograd(a, b *Tensor) *Tensor { return (&SubOp{}).Forward(a, b) }

// MulAutograd performs elementwise multiplication with automatic differentiation.
func MulAutograd(a, b *Tensor) *Tensor { return (&MulOp{}).Forward(a, b) }

// DivAutograd performs elementwise division with automatic differentiation.
func DivAutograd(a, b *Tensor) *Tensor { return (&DivOp{}).Forward(a, b) }

// MatMulAutograd performs matrix multiplication with automatic differentiation.
func MatMulAutograd(a, b *Tensor) *Tensor { return (&MatMulOp{}).Forward(a, b) }

// ExpAutograd performs the elementwise exponential with automatic differentiation.
func ExpAutograd(a *Tensor) *Tensor { return (&ExpOp{}).Forward(a) }

// TanhAutograd performs the elementwise tanh with automatic differentiation.
func TanhAutograd(a *Tensor) *Tensor { return (&TanhOp{}).Forward(a) }

// CosAutograd performs the elementwise cosine with automatic differentiation.
func CosAutograd(a *Tensor) *Tensor { return (&CosOp{}).Forward(a) }

// SinAutograd performs the elementwise sine with automatic differentiation.
func SinAutograd(a *Tensor) *Tensor { return (&SinOp{}).Forward(a) }

// ReLUAutograd performs the ReLU activation with automatic differentiation.
func ReLUAutograd(a *Tensor) *Tensor { return (&ReLUOp{}).Forward(a) }

// ScaleAutograd multiplies by a constant with automatic differentiation.
func ScaleAutograd(a *Tensor, alpha float64) *Tensor {
	return (&ScaleOp{alpha: alpha}).Forward(a)
}

// NegAutograd negates a tensor with automatic differentiation.
func NegAutograd(a *Tensor) *Tensor { return ScaleAutograd(a, -1) }

// SumRowsAutograd reduces over the second axis with automatic differentiation.
func SumRowsAutograd(a *Tensor) *Tensor { return (&SumRowsOp{}).Forward(a) }

// MeanAutograd reduces to the scalar mean with automatic differentiation.
func MeanAutograd(a *Tensor) *Tensor { return (&MeanOp{}).Forward(a) }

// SaturateAutograd clamps to [0, 1] (NaN to 0) with automatic differentiation.
func SaturateAutograd(a *Tensor) *Tensor { return (&SaturateOp{}).Forward(a) }
