package dynamics

import "fmt"

// MaskType selects how the coordinate masks for the position updates are
// generated.
type MaskType string

const (
	// MaskRandom assigns half the coordinates to each sub-update at random.
	MaskRandom MaskType = "random"
	// MaskStripe alternates coordinates between the two sub-updates.
	MaskStripe MaskType = "stripe"
)

// Config describes an augmented leapfrog sampler.
type Config struct {
	// Dim is the number of coordinates per configuration.
	Dim int
	// NumSteps is the number of leapfrog steps per trajectory.
	NumSteps int
	// Eps holds the initial step sizes: one shared value, or one per step.
	Eps []float64
	// EpsTrainable makes the log step sizes trainable parameters.
	EpsTrainable bool
	// NetWeights multiplies the scale, translation and transformation
	// network outputs. Zeros disable the corresponding term.
	NetWeights [3]float64
	// MaskType selects the coordinate partition per step.
	MaskType MaskType
	// Hidden1 and Hidden2 are the network hidden layer widths.
	Hidden1 int
	Hidden2 int
	// ZeroTranslation removes the translation heads.
	ZeroTranslation bool
	// SeparateNetworks gives each leapfrog step its own network pair.
	SeparateNetworks bool
	// HMC replaces the networks with identities, recovering plain HMC.
	HMC bool
	// SaveTrajectory records intermediate states during each trajectory.
	SaveTrajectory bool
	// Seed seeds mask generation and momentum resampling.
	Seed uint64
}

// DefaultConfig returns the standard training configuration for dim
// coordinates.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:        dim,
		NumSteps:   10,
		Eps:        []float64{0.25},
		NetWeights: [3]float64{1, 1, 1},
		MaskType:   MaskRandom,
		Hidden1:    10,
		Hidden2:    10,
		Seed:       1,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("config requires Dim > 0, got %d", c.Dim)
	}
	if c.NumSteps <= 0 {
		return fmt.Errorf("config requires NumSteps > 0, got %d", c.NumSteps)
	}
	if len(c.Eps) != 1 && len(c.Eps) != c.NumSteps {
		return fmt.Errorf("config requires 1 or %d step sizes, got %d", c.NumSteps, len(c.Eps))
	}
	for i, e := range c.Eps {
		if e <= 0 {
			return fmt.Errorf("step size %d must be positive, got %v", i, e)
		}
	}
	switch c.MaskType {
	case MaskRandom, MaskStripe:
	default:
		return fmt.Errorf("unknown mask type %q", c.MaskType)
	}
	if !c.HMC && (c.Hidden1 <= 0 || c.Hidden2 <= 0) {
		return fmt.Errorf("config requires positive hidden sizes, got %d and %d", c.Hidden1, c.Hidden2)
	}
	return nil
}
