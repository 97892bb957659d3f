package training

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// Optimizer interface defines the methods that all optimizers must implement.
type Optimizer interface {
	Step() error      // Updates parameters based on gradients
	ZeroGrad()        // Resets gradients for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
}

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	parameters   []*tensor.Tensor
	learningRate float64
	momentum     float64
	velocities   map[*tensor.Tensor][]float64
	mutex        sync.RWMutex
}

// NewSGD creates a new SGD optimizer.
func NewSGD(parameters []*tensor.Tensor, lr, momentum float64) *SGD {
	return &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		velocities:   make(map[*tensor.Tensor][]float64),
	}
}

// Step performs a single optimization step.
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	for _, param := range sgd.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}
		grad := param.Grad().Data

		if sgd.momentum > 0 {
			velocity := sgd.velocities[param]
			if velocity == nil {
				velocity = make([]float64, len(param.Data))
				sgd.velocities[param] = velocity
			}
			for i := range velocity {
				velocity[i] = sgd.momentum*velocity[i] + grad[i]
			}
			grad = velocity
		}

		for i := range param.Data {
			param.Data[i] -= sgd.learningRate * grad[i]
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters.
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

// GetLR returns the current learning rate.
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.learningRate
}

// SetLR sets the learning rate.
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.learningRate = lr
}

// Adam implements the Adam optimizer.
type Adam struct {
	parameters []*tensor.Tensor
	lr         float64
	beta1      float64
	beta2      float64
	eps        float64
	step       int64
	m          map[*tensor.Tensor][]float64 // First moment estimates
	v          map[*tensor.Tensor][]float64 // Second moment estimates
	mutex      sync.RWMutex
}

// NewAdam creates a new Adam optimizer. Zero beta or eps values fall back to
// the usual defaults.
func NewAdam(parameters []*tensor.Tensor, lr, beta1, beta2, eps float64) *Adam {
	if beta1 == 0 {
		beta1 = 0.9
	}
	if beta2 == 0 {
		beta2 = 0.999
	}
	if eps == 0 {
		eps = 1e-8
	}
	return &Adam{
		parameters: parameters,
		lr:         lr,
		beta1:      beta1,
		beta2:      beta2,
		eps:        eps,
		m:          make(map[*tensor.Tensor][]float64),
		v:          make(map[*tensor.Tensor][]float64),
	}
}

// Step performs a single optimization step.
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.step++
	bias1 := 1.0 - math.Pow(adam.beta1, float64(adam.step))
	bias2 := 1.0 - math.Pow(adam.beta2, float64(adam.step))

	for _, param := range adam.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}
		grad := param.Grad().Data

		m := adam.m[param]
		v := adam.v[param]
		if m == nil {
			m = make([]float64, len(param.Data))
			v = make([]float64, len(param.Data))
			adam.m[param] = m
			adam.v[param] = v
		}

		for i := range param.Data {
			m[i] = adam.beta1*m[i] + (1-adam.beta1)*grad[i]
			v[i] = adam.beta2*v[i] + (1-adam.beta2)*grad[i]*grad[i]
			mHat := m[i] / bias1
			vHat := v[i] / bias2
			param.Data[i] -= adam.lr * mHat / (math.Sqrt(vHat) + adam.eps)
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters.
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.parameters)
}

// GetLR returns the current learning rate.
func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.lr
}

// SetLR sets the learning rate.
func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.lr = lr
}

// GradNorm returns the global L2 norm over all parameter gradients.
func GradNorm(parameters []*tensor.Tensor) float64 {
	var sumSq float64
	for _, param := range parameters {
		if param.Grad() == nil {
			continue
		}
		n := floats.Norm(param.Grad().Data, 2)
		sumSq += n * n
	}
	return math.Sqrt(sumSq)
}

// ClipGradNorm rescales all gradients so their global L2 norm does not
// exceed maxNorm, and returns the norm before clipping.
func ClipGradNorm(parameters []*tensor.Tensor, maxNorm float64) float64 {
	norm := GradNorm(parameters)
	if maxNorm <= 0 || norm <= maxNorm || norm == 0 {
		return norm
	}
	ratio := maxNorm / norm
	for _, param := range parameters {
		if param.Grad() == nil {
			continue
		}
		floats.Scale(ratio, param.Grad().Data)
	}
	return norm
}
