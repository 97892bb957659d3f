package dynamics

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/edbennett/l2hmc-qcd/potential"
	"github.com/edbennett/l2hmc-qcd/tensor"
)

// TransitionResult holds everything produced by one Metropolis-Hastings
// transition. XInit, XProp, AcceptProb and LogDet stay attached to the
// computation graph so a loss built from them can be differentiated; XOut is
// a detached leaf ready to seed the next transition.
type TransitionResult struct {
	XInit *tensor.Tensor
	VInit *tensor.Tensor

	XProp *tensor.Tensor
	VProp *tensor.Tensor

	// AcceptProb is the per-sample acceptance probability in [0, 1].
	AcceptProb *tensor.Tensor
	// LogDet is the accumulated log Jacobian determinant per sample.
	LogDet *tensor.Tensor

	// XOut mixes accepted proposals with rejected initial states.
	XOut *tensor.Tensor

	// Forward records the sampled trajectory direction.
	Forward bool
	// Accepted flags which samples took the proposal.
	Accepted []bool
	// Trajectory holds per-step snapshots when SaveTrajectory is set.
	Trajectory []TrajectoryPoint
}

// AcceptRate returns the fraction of accepted samples.
func (r *TransitionResult) AcceptRate() float64 {
	if len(r.Accepted) == 0 {
		return 0
	}
	var n int
	for _, a := range r.Accepted {
		if a {
			n++
		}
	}
	return float64(n) / float64(len(r.Accepted))
}

// SampleMomentum draws a fresh standard normal momentum for every
// coordinate.
func (d *Dynamics) SampleMomentum(batch int) (*tensor.Tensor, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("momentum batch must be positive, got %d", batch)
	}
	v, err := tensor.Zeros([]int{batch, d.cfg.Dim})
	if err != nil {
		return nil, err
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: d.rng}
	for i := range v.Data {
		v.Data[i] = normal.Rand()
	}
	return v, nil
}

// Transition runs one full Metropolis-Hastings step: resample the momentum,
// pick a random trajectory direction shared by the batch, integrate the
// trajectory, and accept or reject per sample.
func (d *Dynamics) Transition(x *tensor.Tensor, beta float64) (*TransitionResult, error) {
	if len(x.Shape) != 2 || x.Shape[1] != d.cfg.Dim {
		return nil, fmt.Errorf("position must have shape [batch, %d], got %v", d.cfg.Dim, x.Shape)
	}
	batch := x.Shape[0]

	v, err := d.SampleMomentum(batch)
	if err != nil {
		return nil, err
	}
	forward := d.rng.Float64() < 0.5

	u := make([]float64, batch)
	for i := range u {
		u[i] = d.rng.Float64()
	}

	return d.transition(x, v, beta, forward, u)
}

// transition is the deterministic core of Transition; the uniform draws for
// the accept step are injected so rejection paths can be exercised exactly.
func (d *Dynamics) transition(x, v *tensor.Tensor, beta float64, forward bool, u []float64) (*TransitionResult, error) {
	kernel, err := d.TransitionKernel(x, v, beta, forward)
	if err != nil {
		return nil, err
	}

	prob, err := d.AcceptProb(x, v, kernel.X, kernel.V, beta, kernel.LogDet)
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{
		XInit:      x,
		VInit:      v,
		XProp:      kernel.X,
		VProp:      kernel.V,
		AcceptProb: prob,
		LogDet:     kernel.LogDet,
		Forward:    forward,
		Trajectory: kernel.Trajectory,
	}

	xOut, accepted, err := mixStates(x, kernel.X, prob, u)
	if err != nil {
		return nil, err
	}
	if d.pot.Periodic() {
		potential.WrapTensor(xOut)
	}
	result.XOut = xOut
	result.Accepted = accepted
	return result, nil
}

// AcceptProb computes min(1, exp(H(init) - H(prop) + logdet)) per sample,
// with non-finite values saturated to zero so a diverged trajectory is
// always rejected.
func (d *Dynamics) AcceptProb(xInit, vInit, xProp, vProp *tensor.Tensor, beta float64, logdet *tensor.Tensor) (*tensor.Tensor, error) {
	hInit, err := d.Hamiltonian(xInit, vInit, beta)
	if err != nil {
		return nil, err
	}
	hProp, err := d.Hamiltonian(xProp, vProp, beta)
	if err != nil {
		return nil, err
	}
	diff := tensor.AddAutograd(tensor.SubAutograd(hInit, hProp), logdet)
	return tensor.SaturateAutograd(tensor.ExpAutograd(diff)), nil
}

// mixStates builds the post-accept state: row i comes from the proposal when
// u[i] < prob[i] and from the initial state otherwise. The result is a leaf
// tensor with no gradient history.
func mixStates(xInit, xProp, prob *tensor.Tensor, u []float64) (*tensor.Tensor, []bool, error) {
	batch, dim := xInit.Shape[0], xInit.Shape[1]
	if len(u) != batch {
		return nil, nil, fmt.Errorf("expected %d uniform draws, got %d", batch, len(u))
	}

	out := tensor.ZerosLike(xInit)
	accepted := make([]bool, batch)
	for i := 0; i < batch; i++ {
		src := xInit
		if u[i] < prob.Data[i] {
			src = xProp
			accepted[i] = true
		}
		copy(out.Data[i*dim:(i+1)*dim], src.Data[i*dim:(i+1)*dim])
	}
	return out, accepted, nil
}
