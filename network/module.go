// Package network provides the learned scale, translation and transformation
// functions used inside the augmented leapfrog integrator, built from small
// fully connected modules.
package network

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// Global random source for deterministic weight initialization.
var globalRng = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight
// initialization.
func SetRandomSeed(seed uint64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Module is the interface implemented by all trainable building blocks.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Linear implements a fully connected layer: y = xW + b.
type Linear struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
}

// NewLinear creates a Linear layer with Xavier/Glorot uniform weight
// initialization and zero bias.
func NewLinear(inputSize, outputSize int, bias bool) (*Linear, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("linear layer requires positive sizes, got %dx%d", inputSize, outputSize)
	}

	// W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))

	weightData := make([]float64, inputSize*outputSize)
	for i := range weightData {
		weightData[i] = (globalRng.Float64()*2.0 - 1.0) * bound
	}

	weight, err := tensor.NewTensor([]int{inputSize, outputSize}, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	linear := &Linear{weight: weight}

	if bias {
		biasT, err := tensor.Zeros([]int{outputSize})
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		linear.bias = biasT
	}

	return linear, nil
}

// Forward performs the forward pass: y = xW + b.
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("linear layer expects 2D input [batch_size, input_size], got shape %v", input.Shape)
	}
	if input.Shape[1] != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], input.Shape[1])
	}

	output := tensor.MatMulAutograd(input, l.weight)
	if l.bias != nil {
		output = tensor.AddAutograd(output, l.bias)
	}
	return output, nil
}

// Parameters returns the trainable parameters.
func (l *Linear) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{l.weight}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

// InputSize returns the layer's input width.
func (l *Linear) InputSize() int { return l.weight.Shape[0] }

// OutputSize returns the layer's output width.
func (l *Linear) OutputSize() int { return l.weight.Shape[1] }
