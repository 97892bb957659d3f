// Package dynamics implements the augmented leapfrog integrator and the
// Metropolis-Hastings transition built on top of it. Learned scale,
// translation and transformation functions perturb the classical leapfrog
// update while keeping it exactly invertible, with the log Jacobian
// determinant accumulated alongside the trajectory.
package dynamics

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/edbennett/l2hmc-qcd/network"
	"github.com/edbennett/l2hmc-qcd/potential"
	"github.com/edbennett/l2hmc-qcd/tensor"
)

// Dynamics holds the networks, masks and step sizes for one sampler.
type Dynamics struct {
	cfg    Config
	pot    potential.Potential
	bundle *network.Bundle

	// Per-step coordinate masks and their complements, fixed at
	// construction so forward and backward trajectories agree.
	masks     []*tensor.Tensor
	compMasks []*tensor.Tensor

	// Per-step log step sizes. With a single shared step size every entry
	// aliases the same tensor.
	logEps []*tensor.Tensor

	rng *rand.Rand
}

// New builds a Dynamics from the configuration and target potential.
func New(cfg Config, pot potential.Potential) (*Dynamics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pot.Dim() != cfg.Dim {
		return nil, fmt.Errorf("potential dim %d does not match config dim %d", pot.Dim(), cfg.Dim)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	bundle, err := network.NewBundle(network.BundleConfig{
		Net: network.STQConfig{
			Dim:             cfg.Dim,
			Hidden1:         cfg.Hidden1,
			Hidden2:         cfg.Hidden2,
			ZeroTranslation: cfg.ZeroTranslation,
		},
		NumSteps:      cfg.NumSteps,
		SeparateSteps: cfg.SeparateNetworks,
		Identity:      cfg.HMC,
	})
	if err != nil {
		return nil, err
	}

	d := &Dynamics{
		cfg:    cfg,
		pot:    pot,
		bundle: bundle,
		rng:    rng,
	}

	if err := d.buildMasks(); err != nil {
		return nil, err
	}
	if err := d.buildStepSizes(); err != nil {
		return nil, err
	}

	return d, nil
}

// Config returns the sampler configuration.
func (d *Dynamics) Config() Config { return d.cfg }

// Potential returns the target potential.
func (d *Dynamics) Potential() potential.Potential { return d.pot }

// Bundle returns the network bundle.
func (d *Dynamics) Bundle() *network.Bundle { return d.bundle }

func (d *Dynamics) buildMasks() error {
	d.masks = make([]*tensor.Tensor, d.cfg.NumSteps)
	d.compMasks = make([]*tensor.Tensor, d.cfg.NumSteps)
	for k := 0; k < d.cfg.NumSteps; k++ {
		data := make([]float64, d.cfg.Dim)
		switch d.cfg.MaskType {
		case MaskStripe:
			for j := 0; j < d.cfg.Dim; j += 2 {
				data[j] = 1
			}
		case MaskRandom:
			perm := d.rng.Perm(d.cfg.Dim)
			for _, j := range perm[:d.cfg.Dim/2] {
				data[j] = 1
			}
		}
		if err := d.setMask(k, data); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dynamics) setMask(k int, data []float64) error {
	m, err := tensor.NewTensor([]int{d.cfg.Dim}, data)
	if err != nil {
		return err
	}
	comp := tensor.ZerosLike(m)
	for i, v := range m.Data {
		comp.Data[i] = 1 - v
	}
	d.masks[k] = m
	d.compMasks[k] = comp
	return nil
}

func (d *Dynamics) buildStepSizes() error {
	d.logEps = make([]*tensor.Tensor, d.cfg.NumSteps)
	if len(d.cfg.Eps) == 1 {
		le := tensor.FromScalar(math.Log(d.cfg.Eps[0]))
		le.SetRequiresGrad(d.cfg.EpsTrainable)
		for k := range d.logEps {
			d.logEps[k] = le
		}
		return nil
	}
	for k, e := range d.cfg.Eps {
		le := tensor.FromScalar(math.Log(e))
		le.SetRequiresGrad(d.cfg.EpsTrainable)
		d.logEps[k] = le
	}
	return nil
}

// Parameters returns all trainable parameters: the network weights plus the
// log step sizes when those are trainable.
func (d *Dynamics) Parameters() []*tensor.Tensor {
	params := d.bundle.Parameters()
	if d.cfg.EpsTrainable {
		seen := make(map[*tensor.Tensor]bool)
		for _, le := range d.logEps {
			if !seen[le] {
				seen[le] = true
				params = append(params, le)
			}
		}
	}
	return params
}

// StepSizes returns the current step size for every leapfrog step.
func (d *Dynamics) StepSizes() []float64 {
	out := make([]float64, d.cfg.NumSteps)
	for k, le := range d.logEps {
		out[k] = math.Exp(le.Data[0])
	}
	return out
}

// SetStepSizes overwrites the step sizes, as when restoring a checkpoint.
func (d *Dynamics) SetStepSizes(eps []float64) error {
	if len(eps) != d.cfg.NumSteps {
		return fmt.Errorf("expected %d step sizes, got %d", d.cfg.NumSteps, len(eps))
	}
	for k, e := range eps {
		if e <= 0 {
			return fmt.Errorf("step size %d must be positive, got %v", k, e)
		}
		d.logEps[k].Data[0] = math.Log(e)
	}
	return nil
}

// Masks returns a copy of the per-step coordinate masks.
func (d *Dynamics) Masks() [][]float64 {
	out := make([][]float64, d.cfg.NumSteps)
	for k, m := range d.masks {
		out[k] = append([]float64{}, m.Data...)
	}
	return out
}

// SetMasks overwrites the coordinate masks, as when restoring a checkpoint.
func (d *Dynamics) SetMasks(masks [][]float64) error {
	if len(masks) != d.cfg.NumSteps {
		return fmt.Errorf("expected %d masks, got %d", d.cfg.NumSteps, len(masks))
	}
	for k, m := range masks {
		if len(m) != d.cfg.Dim {
			return fmt.Errorf("mask %d has %d entries, expected %d", k, len(m), d.cfg.Dim)
		}
		for j, v := range m {
			if v != 0 && v != 1 {
				return fmt.Errorf("mask %d entry %d is %v, must be 0 or 1", k, j, v)
			}
		}
		if err := d.setMask(k, append([]float64{}, m...)); err != nil {
			return err
		}
	}
	return nil
}

// eps returns the differentiable step size for step k.
func (d *Dynamics) eps(k int) *tensor.Tensor {
	return tensor.ExpAutograd(d.logEps[k])
}

// timeEmbedding encodes the step index as a point on the unit circle.
func (d *Dynamics) timeEmbedding(k, batch int) *tensor.Tensor {
	c := math.Cos(2 * math.Pi * float64(k) / float64(d.cfg.NumSteps))
	s := math.Sin(2 * math.Pi * float64(k) / float64(d.cfg.NumSteps))
	data := make([]float64, batch*2)
	for i := 0; i < batch; i++ {
		data[i*2] = c
		data[i*2+1] = s
	}
	temb, err := tensor.NewTensor([]int{batch, 2}, data)
	if err != nil {
		panic(fmt.Sprintf("time embedding failed: %v", err))
	}
	return temb
}

// force evaluates the potential force as a stop-gradient input to the
// momentum networks and updates.
func (d *Dynamics) force(x *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	return d.pot.Force(x.Detach(), beta)
}

// energy evaluates the potential energy differentiably in x, using the
// analytic force for the backward pass.
func (d *Dynamics) energy(x *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	e, err := d.pot.Energy(x.Detach(), beta)
	if err != nil {
		return nil, err
	}
	force, err := d.pot.Force(x.Detach(), beta)
	if err != nil {
		return nil, err
	}
	dim := d.cfg.Dim
	return tensor.Custom(e, []*tensor.Tensor{x}, func(gradOut *tensor.Tensor) []*tensor.Tensor {
		grad := tensor.ZerosLike(force)
		for i := 0; i < gradOut.NumElems; i++ {
			for j := 0; j < dim; j++ {
				grad.Data[i*dim+j] = gradOut.Data[i] * force.Data[i*dim+j]
			}
		}
		return []*tensor.Tensor{grad}
	}), nil
}

// kineticEnergy computes |v|^2 / 2 per sample.
func kineticEnergy(v *tensor.Tensor) *tensor.Tensor {
	return tensor.ScaleAutograd(tensor.SumRowsAutograd(tensor.MulAutograd(v, v)), 0.5)
}

// Hamiltonian computes the total energy per sample.
func (d *Dynamics) Hamiltonian(x, v *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	u, err := d.energy(x, beta)
	if err != nil {
		return nil, err
	}
	return tensor.AddAutograd(u, kineticEnergy(v)), nil
}

// scaledOutputs runs a network and applies the configured output weights.
func (d *Dynamics) scaledOutputs(net network.Net, in1, in2, temb *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	s, t, q, err := net.Forward(in1, in2, temb)
	if err != nil {
		return nil, nil, nil, err
	}
	s = tensor.ScaleAutograd(s, d.cfg.NetWeights[0])
	t = tensor.ScaleAutograd(t, d.cfg.NetWeights[1])
	q = tensor.ScaleAutograd(q, d.cfg.NetWeights[2])
	return s, t, q, nil
}

// updateV performs a momentum half-step. Forward:
//
//	v' = v exp(eps/2 s) - eps/2 (F exp(eps q) + t)
//
// Backward applies the exact inverse. The returned log determinant is the
// per-sample contribution, already signed for the direction.
func (d *Dynamics) updateV(x, v *tensor.Tensor, beta float64, k int, temb *tensor.Tensor, forward bool) (*tensor.Tensor, *tensor.Tensor, error) {
	force, err := d.force(x, beta)
	if err != nil {
		return nil, nil, err
	}
	sv, tv, qv, err := d.scaledOutputs(d.bundle.VNet(k), x, force, temb)
	if err != nil {
		return nil, nil, err
	}

	eps := d.eps(k)
	halfEps := tensor.ScaleAutograd(eps, 0.5)
	sHalf := tensor.MulAutograd(halfEps, sv)
	expQ := tensor.ExpAutograd(tensor.MulAutograd(eps, qv))
	forceTerm := tensor.MulAutograd(halfEps, tensor.AddAutograd(tensor.MulAutograd(force, expQ), tv))

	if forward {
		vNew := tensor.SubAutograd(tensor.MulAutograd(v, tensor.ExpAutograd(sHalf)), forceTerm)
		return vNew, tensor.SumRowsAutograd(sHalf), nil
	}
	vNew := tensor.MulAutograd(
		tensor.AddAutograd(v, forceTerm),
		tensor.ExpAutograd(tensor.NegAutograd(sHalf)),
	)
	return vNew, tensor.NegAutograd(tensor.SumRowsAutograd(sHalf)), nil
}

// updateX performs a masked position sub-update. The keep mask selects the
// coordinates passed through unchanged (and fed to the network); the update
// mask selects the coordinates transformed. Forward:
//
//	x' = keep x + update (x exp(eps s) + eps (v exp(eps q) + t))
//
// Backward applies the exact inverse.
func (d *Dynamics) updateX(x, v, keep, update *tensor.Tensor, k int, temb *tensor.Tensor, forward bool) (*tensor.Tensor, *tensor.Tensor, error) {
	kept := tensor.MulAutograd(x, keep)
	sx, tx, qx, err := d.scaledOutputs(d.bundle.XNet(k), kept, v, temb)
	if err != nil {
		return nil, nil, err
	}

	eps := d.eps(k)
	sEps := tensor.MulAutograd(eps, sx)
	expQ := tensor.ExpAutograd(tensor.MulAutograd(eps, qx))
	vTerm := tensor.MulAutograd(eps, tensor.AddAutograd(tensor.MulAutograd(v, expQ), tx))
	logdetTerm := tensor.SumRowsAutograd(tensor.MulAutograd(update, sEps))

	if forward {
		y := tensor.AddAutograd(tensor.MulAutograd(x, tensor.ExpAutograd(sEps)), vTerm)
		xNew := tensor.AddAutograd(kept, tensor.MulAutograd(update, y))
		return xNew, logdetTerm, nil
	}
	y := tensor.MulAutograd(
		tensor.SubAutograd(x, vTerm),
		tensor.ExpAutograd(tensor.NegAutograd(sEps)),
	)
	xNew := tensor.AddAutograd(kept, tensor.MulAutograd(update, y))
	return xNew, tensor.NegAutograd(logdetTerm), nil
}

// TrajectoryPoint records one intermediate state of a trajectory.
type TrajectoryPoint struct {
	Step   int
	X      []float64
	V      []float64
	LogDet []float64
}

// KernelResult is the outcome of one full trajectory.
type KernelResult struct {
	X      *tensor.Tensor
	V      *tensor.Tensor
	LogDet *tensor.Tensor
	// Trajectory holds per-step snapshots when SaveTrajectory is set.
	Trajectory []TrajectoryPoint
}

// TransitionKernel integrates a full trajectory of NumSteps augmented
// leapfrog steps in the given direction. The backward kernel is the exact
// inverse of the forward kernel, with the log determinant negated. For
// periodic targets the coordinates stay in the covering space during the
// trajectory; wrapping back into the fundamental interval would break exact
// invertibility and happens only on the post-accept state.
func (d *Dynamics) TransitionKernel(x, v *tensor.Tensor, beta float64, forward bool) (*KernelResult, error) {
	if len(x.Shape) != 2 || x.Shape[1] != d.cfg.Dim {
		return nil, fmt.Errorf("position must have shape [batch, %d], got %v", d.cfg.Dim, x.Shape)
	}
	if !shapeEqual(x.Shape, v.Shape) {
		return nil, fmt.Errorf("momentum shape %v does not match position shape %v", v.Shape, x.Shape)
	}

	batch := x.Shape[0]
	logdet, err := tensor.Zeros([]int{batch})
	if err != nil {
		return nil, err
	}

	result := &KernelResult{}
	record := func(step int) {
		if !d.cfg.SaveTrajectory {
			return
		}
		result.Trajectory = append(result.Trajectory, TrajectoryPoint{
			Step:   step,
			X:      append([]float64{}, x.Data...),
			V:      append([]float64{}, v.Data...),
			LogDet: append([]float64{}, logdet.Data...),
		})
	}
	record(-1)

	steps := make([]int, d.cfg.NumSteps)
	for i := range steps {
		if forward {
			steps[i] = i
		} else {
			steps[i] = d.cfg.NumSteps - 1 - i
		}
	}

	for _, k := range steps {
		temb := d.timeEmbedding(k, batch)

		// The two masked position sub-updates swap roles between the
		// directions so the backward pass inverts the forward pass
		// sub-update by sub-update.
		firstKeep, firstUpdate := d.masks[k], d.compMasks[k]
		secondKeep, secondUpdate := d.compMasks[k], d.masks[k]
		if !forward {
			firstKeep, firstUpdate, secondKeep, secondUpdate = secondKeep, secondUpdate, firstKeep, firstUpdate
		}

		var ld *tensor.Tensor
		if v, ld, err = d.updateV(x, v, beta, k, temb, forward); err != nil {
			return nil, err
		}
		logdet = tensor.AddAutograd(logdet, ld)

		if x, ld, err = d.updateX(x, v, firstKeep, firstUpdate, k, temb, forward); err != nil {
			return nil, err
		}
		logdet = tensor.AddAutograd(logdet, ld)

		if x, ld, err = d.updateX(x, v, secondKeep, secondUpdate, k, temb, forward); err != nil {
			return nil, err
		}
		logdet = tensor.AddAutograd(logdet, ld)

		if v, ld, err = d.updateV(x, v, beta, k, temb, forward); err != nil {
			return nil, err
		}
		logdet = tensor.AddAutograd(logdet, ld)

		record(k)
	}

	result.X = x
	result.V = v
	result.LogDet = logdet
	return result, nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
