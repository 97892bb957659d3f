// Package potential supplies target densities for the L2HMC sampler. A
// potential reports the (beta-scaled) energy U(x) = -log p(x) of a batch of
// configurations together with its gradient, the force used by the leapfrog
// integrator. NaN or Inf values coming out of Energy or Force are passed
// through untouched so the acceptance stage can reject the affected samples.
package potential

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// Potential is the energy-model contract consumed by the dynamics engine.
type Potential interface {
	// Dim returns the dimensionality of one configuration.
	Dim() int

	// Energy returns beta * U(x) per batch element; x is (batch, dim) and
	// the result is (batch,).
	Energy(x *tensor.Tensor, beta float64) (*tensor.Tensor, error)

	// Force returns the gradient of Energy with respect to x, shape
	// (batch, dim).
	Force(x *tensor.Tensor, beta float64) (*tensor.Tensor, error)

	// Periodic reports whether configurations are angle-valued and must be
	// wrapped into [-pi, pi) once a trajectory completes.
	Periodic() bool

	// Sample draws a batch of plausible initial configurations.
	Sample(batch int, rng *rand.Rand) (*tensor.Tensor, error)
}

func checkInput(x *tensor.Tensor, dim int) error {
	if len(x.Shape) != 2 {
		return fmt.Errorf("configuration must be 2D (batch, dim), got shape %v", x.Shape)
	}
	if x.Shape[1] != dim {
		return fmt.Errorf("configuration dim %d does not match potential dim %d", x.Shape[1], dim)
	}
	return nil
}

// Wrap maps an angle into [-pi, pi).
func Wrap(v float64) float64 {
	wrapped := math.Mod(v+math.Pi, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// WrapTensor wraps every element of x into [-pi, pi) in place.
func WrapTensor(x *tensor.Tensor) {
	for i, v := range x.Data {
		x.Data[i] = Wrap(v)
	}
}
