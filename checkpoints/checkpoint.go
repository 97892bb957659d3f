// Package checkpoints serializes sampler state so training can be resumed
// or a trained sampler shipped. A checkpoint captures the network weights,
// the step sizes, the coordinate masks, the sampler configuration and the
// training progress.
package checkpoints

import (
	"fmt"
	"time"

	"github.com/edbennett/l2hmc-qcd/dynamics"
)

// Format defines the serialization format.
type Format int

const (
	FormatJSON Format = iota
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Ext returns the file extension used for the format.
func (f Format) Ext() string {
	switch f {
	case FormatBinary:
		return ".ckpt"
	default:
		return ".json"
	}
}

// WeightTensor is one named parameter with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// TrainingState captures the training progress at save time.
type TrainingState struct {
	Era          int     `json:"era"`
	Epoch        int     `json:"epoch"`
	Beta         float64 `json:"beta"`
	LearningRate float64 `json:"learning_rate"`
}

// Metadata contains checkpoint bookkeeping.
type Metadata struct {
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Checkpoint is a complete snapshot of a sampler.
type Checkpoint struct {
	Config    dynamics.Config `json:"config"`
	Weights   []WeightTensor  `json:"weights"`
	StepSizes []float64       `json:"step_sizes"`
	Masks     [][]float64     `json:"masks"`
	Training  TrainingState   `json:"training_state"`
	Metadata  Metadata        `json:"metadata"`
}

// FromDynamics snapshots a sampler into a checkpoint.
func FromDynamics(d *dynamics.Dynamics, state TrainingState) *Checkpoint {
	var weights []WeightTensor
	for _, np := range d.Bundle().NamedParameters() {
		weights = append(weights, WeightTensor{
			Name:  np.Name,
			Shape: append([]int{}, np.Tensor.Shape...),
			Data:  append([]float64{}, np.Tensor.Data...),
		})
	}
	return &Checkpoint{
		Config:    d.Config(),
		Weights:   weights,
		StepSizes: d.StepSizes(),
		Masks:     d.Masks(),
		Training:  state,
		Metadata: Metadata{
			Version:   "1.0.0",
			CreatedAt: time.Now().UTC(),
		},
	}
}

// Validate checks the checkpoint against a sampler configuration before any
// state is overwritten.
func (c *Checkpoint) Validate(cfg dynamics.Config) error {
	got := c.Config
	switch {
	case got.Dim != cfg.Dim:
		return fmt.Errorf("checkpoint dim %d does not match config dim %d", got.Dim, cfg.Dim)
	case got.NumSteps != cfg.NumSteps:
		return fmt.Errorf("checkpoint has %d leapfrog steps, config has %d", got.NumSteps, cfg.NumSteps)
	case got.HMC != cfg.HMC:
		return fmt.Errorf("checkpoint HMC mode %v does not match config %v", got.HMC, cfg.HMC)
	case got.SeparateNetworks != cfg.SeparateNetworks:
		return fmt.Errorf("checkpoint separate-networks %v does not match config %v", got.SeparateNetworks, cfg.SeparateNetworks)
	case got.ZeroTranslation != cfg.ZeroTranslation:
		return fmt.Errorf("checkpoint zero-translation %v does not match config %v", got.ZeroTranslation, cfg.ZeroTranslation)
	case got.Hidden1 != cfg.Hidden1 || got.Hidden2 != cfg.Hidden2:
		return fmt.Errorf("checkpoint hidden sizes %d/%d do not match config %d/%d",
			got.Hidden1, got.Hidden2, cfg.Hidden1, cfg.Hidden2)
	}
	if len(c.StepSizes) != cfg.NumSteps {
		return fmt.Errorf("checkpoint has %d step sizes, expected %d", len(c.StepSizes), cfg.NumSteps)
	}
	if len(c.Masks) != cfg.NumSteps {
		return fmt.Errorf("checkpoint has %d masks, expected %d", len(c.Masks), cfg.NumSteps)
	}
	return nil
}

// Restore loads the checkpoint state into a sampler. The sampler must have
// been built with a matching configuration.
func (c *Checkpoint) Restore(d *dynamics.Dynamics) error {
	if err := c.Validate(d.Config()); err != nil {
		return err
	}

	named := d.Bundle().NamedParameters()
	if len(named) != len(c.Weights) {
		return fmt.Errorf("checkpoint has %d weight tensors, sampler expects %d", len(c.Weights), len(named))
	}
	byName := make(map[string]WeightTensor, len(c.Weights))
	for _, w := range c.Weights {
		byName[w.Name] = w
	}
	for _, np := range named {
		w, ok := byName[np.Name]
		if !ok {
			return fmt.Errorf("checkpoint is missing weight %q", np.Name)
		}
		if len(w.Data) != np.Tensor.NumElems {
			return fmt.Errorf("weight %q has %d values, expected %d", np.Name, len(w.Data), np.Tensor.NumElems)
		}
		if !shapesMatch(w.Shape, np.Tensor.Shape) {
			return fmt.Errorf("weight %q has shape %v, expected %v", np.Name, w.Shape, np.Tensor.Shape)
		}
	}

	// All validated; now mutate.
	for _, np := range named {
		copy(np.Tensor.Data, byName[np.Name].Data)
	}
	if err := d.SetStepSizes(c.StepSizes); err != nil {
		return err
	}
	return d.SetMasks(c.Masks)
}

func shapesMatch(a, b []int) bool {
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
