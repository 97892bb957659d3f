// Package tensor implements a dense float64 CPU tensor with reverse-mode
// automatic differentiation. Every value that participates in a trajectory
// (configurations, momenta, step sizes, network weights, log-Jacobians) is
// carried in the same precision, so acceptance probabilities are never
// biased by a narrower accumulator.
package tensor

import (
	"fmt"
)

// Operation is a node in the autograd graph. Backward receives the gradient
// of the final scalar with respect to the operation's output and returns one
// gradient per input (nil for inputs that do not require gradients).
type Operation interface {
	Inputs() []*Tensor
	Backward(gradOut *Tensor) []*Tensor
}

// Tensor is a dense, row-major float64 array of rank 0-2.
type Tensor struct {
	Shape    []int
	Strides  []int
	Data     []float64
	NumElems int

	requiresGrad bool
	grad         *Tensor
	creator      Operation
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d)", t.Shape, t.NumElems)
}

// RequiresGrad reports whether gradients are accumulated into this tensor.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient, or nil if Backward has not run.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// Creator returns the operation that produced this tensor, or nil for leaves.
func (t *Tensor) Creator() Operation {
	return t.creator
}

// Detach returns a tensor sharing this tensor's data but severed from the
// autograd graph. Gradients never flow through a detached tensor.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{
		Shape:    append([]int{}, t.Shape...),
		Strides:  append([]int{}, t.Strides...),
		Data:     t.Data,
		NumElems: t.NumElems,
	}
}

// Backward runs reverse-mode differentiation from a scalar tensor,
// accumulating gradients into every reachable tensor that requires them.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a scalar tensor, got shape %v", t.Shape)
	}

	seed, err := Ones(t.Shape)
	if err != nil {
		return err
	}

	order := topoSort(t)
	grads := make(map[*Tensor]*Tensor, len(order))
	grads[t] = seed

	// Propagate in reverse topological order so every node's gradient is
	// complete before it is pushed to the node's inputs.
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		g, ok := grads[node]
		if !ok {
			continue
		}

		if node.requiresGrad {
			if err := node.accumulateGrad(g); err != nil {
				return err
			}
		}

		if node.creator == nil {
			continue
		}

		inputGrads := node.creator.Backward(g)
		inputs := node.creator.Inputs()
		if len(inputGrads) != len(inputs) {
			return fmt.Errorf("operation returned %d gradients for %d inputs",
				len(inputGrads), len(inputs))
		}

		for j, input := range inputs {
			if inputGrads[j] == nil {
				continue
			}
			if existing, ok := grads[input]; ok {
				summed, err := Add(existing, inputGrads[j])
				if err != nil {
					return fmt.Errorf("gradient accumulation failed: %v", err)
				}
				grads[input] = summed
			} else {
				grads[input] = inputGrads[j]
			}
		}
	}

	return nil
}

// accumulateGrad adds g into t.grad, allocating it on first use.
func (t *Tensor) accumulateGrad(g *Tensor) error {
	if t.grad == nil {
		clone, err := g.Clone()
		if err != nil {
			return err
		}
		t.grad = clone
		return nil
	}
	if t.grad.NumElems != g.NumElems {
		return fmt.Errorf("gradient shape mismatch: %v vs %v", t.grad.Shape, g.Shape)
	}
	for i := range t.grad.Data {
		t.grad.Data[i] += g.Data[i]
	}
	return nil
}

// topoSort returns the nodes reachable from root in topological order
// (inputs before outputs).
func topoSort(root *Tensor) []*Tensor {
	var order []*Tensor
	visited := make(map[*Tensor]bool)

	var visit func(t *Tensor)
	visit = func(t *Tensor) {
		if visited[t] {
			return
		}
		visited[t] = true
		if t.creator != nil {
			for _, in := range t.creator.Inputs() {
				visit(in)
			}
		}
		order = append(order, t)
	}
	visit(root)

	return order
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) > 2 {
		return fmt.Errorf("invalid shape %v: rank above 2 is not supported", shape)
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}
