// Package training drives sampler optimization: the expected squared jump
// distance loss, optimizers, learning rate schedules, beta annealing and the
// era/epoch training loop.
package training

import (
	"fmt"

	"github.com/edbennett/l2hmc-qcd/dynamics"
	"github.com/edbennett/l2hmc-qcd/tensor"
)

// jumpFloor keeps the loss finite when every sample is rejected.
const jumpFloor = 1e-4

// LossConfig configures the expected squared jump distance loss.
type LossConfig struct {
	// Scale balances the reciprocal and linear terms.
	Scale float64
	// Periodic switches the distance metric to 2(1 - cos d) per
	// coordinate for angle-valued targets.
	Periodic bool
}

// DefaultLossConfig returns the standard loss settings.
func DefaultLossConfig() LossConfig {
	return LossConfig{Scale: 0.1}
}

// ESJDLoss scores a transition by how far accepted proposals move. Larger
// expected jumps give a smaller loss.
type ESJDLoss struct {
	cfg LossConfig
}

// NewESJDLoss creates the loss from its configuration.
func NewESJDLoss(cfg LossConfig) (*ESJDLoss, error) {
	if cfg.Scale <= 0 {
		return nil, fmt.Errorf("loss requires Scale > 0, got %v", cfg.Scale)
	}
	return &ESJDLoss{cfg: cfg}, nil
}

// distance computes the per-sample squared jump between the initial state
// and the proposal.
func (l *ESJDLoss) distance(xInit, xProp *tensor.Tensor) *tensor.Tensor {
	diff := tensor.SubAutograd(xProp, xInit)
	if l.cfg.Periodic {
		// 2(1 - cos d) matches d^2 for small d and respects wraparound.
		cos := tensor.CosAutograd(diff)
		perCoord := tensor.ScaleAutograd(tensor.SubAutograd(tensor.OnesLike(cos), cos), 2)
		return tensor.SumRowsAutograd(perCoord)
	}
	return tensor.SumRowsAutograd(tensor.MulAutograd(diff, diff))
}

// Compute evaluates the loss for one transition. The result is a scalar
// tensor attached to the transition's computation graph.
func (l *ESJDLoss) Compute(r *dynamics.TransitionResult) (*tensor.Tensor, error) {
	if r == nil || r.XInit == nil || r.XProp == nil || r.AcceptProb == nil {
		return nil, fmt.Errorf("loss requires a complete transition result")
	}

	dist := l.distance(r.XInit, r.XProp)
	esjd := tensor.MulAutograd(r.AcceptProb, dist)
	m := tensor.AddAutograd(tensor.MeanAutograd(esjd), tensor.FromScalar(jumpFloor))

	scale := tensor.FromScalar(l.cfg.Scale)
	return tensor.AddAutograd(tensor.DivAutograd(scale, m), tensor.DivAutograd(m, scale)), nil
}

// CombineWithAux mixes the main loss with an auxiliary loss computed from a
// noise-seeded trajectory, weighted by auxWeight.
func CombineWithAux(loss, auxLoss *tensor.Tensor, auxWeight float64) *tensor.Tensor {
	if auxLoss == nil || auxWeight == 0 {
		return loss
	}
	combined := tensor.AddAutograd(loss, tensor.ScaleAutograd(auxLoss, auxWeight))
	return tensor.ScaleAutograd(combined, 1/(1+auxWeight))
}
