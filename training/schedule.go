package training

import (
	"fmt"
	"math"
)

// CoolingType selects how the temperature decreases over training.
type CoolingType string

const (
	// CoolingExpMult multiplies the temperature by a fixed factor each
	// epoch.
	CoolingExpMult CoolingType = "exp_mult"
	// CoolingLinearMult divides the starting temperature by a linearly
	// growing factor.
	CoolingLinearMult CoolingType = "linear_mult"
	// CoolingLinearAdd interpolates the temperature linearly.
	CoolingLinearAdd CoolingType = "linear_add"
	// CoolingQuadAdd interpolates the temperature quadratically, spending
	// more epochs near the final temperature.
	CoolingQuadAdd CoolingType = "quad_add"
)

// AnnealingSchedule raises beta from BetaInit to BetaFinal over NumEpochs.
// The interpolation runs in temperature space (T = 1/beta), so early epochs
// sample a flattened target that is easier to traverse.
type AnnealingSchedule struct {
	BetaInit  float64
	BetaFinal float64
	NumEpochs int
	Cooling   CoolingType
}

// DefaultAnnealingSchedule returns a fixed-beta schedule, the right choice
// when no annealing is wanted.
func DefaultAnnealingSchedule(beta float64, numEpochs int) AnnealingSchedule {
	return AnnealingSchedule{
		BetaInit:  beta,
		BetaFinal: beta,
		NumEpochs: numEpochs,
		Cooling:   CoolingExpMult,
	}
}

// Validate checks the schedule for consistency.
func (s AnnealingSchedule) Validate() error {
	if s.BetaInit <= 0 || s.BetaFinal <= 0 {
		return fmt.Errorf("schedule requires positive betas, got %v and %v", s.BetaInit, s.BetaFinal)
	}
	if s.BetaInit > s.BetaFinal {
		return fmt.Errorf("schedule requires BetaInit <= BetaFinal, got %v > %v", s.BetaInit, s.BetaFinal)
	}
	if s.NumEpochs <= 0 {
		return fmt.Errorf("schedule requires NumEpochs > 0, got %d", s.NumEpochs)
	}
	switch s.Cooling {
	case CoolingExpMult, CoolingLinearMult, CoolingLinearAdd, CoolingQuadAdd:
	default:
		return fmt.Errorf("unknown cooling type %q", s.Cooling)
	}
	return nil
}

// Beta returns the inverse temperature for the given epoch. Epochs beyond
// the schedule stay at BetaFinal.
func (s AnnealingSchedule) Beta(epoch int) float64 {
	if epoch <= 0 {
		return s.BetaInit
	}
	if epoch >= s.NumEpochs {
		return s.BetaFinal
	}

	tInit := 1 / s.BetaInit
	tFinal := 1 / s.BetaFinal
	n := float64(s.NumEpochs)
	i := float64(epoch)

	var temp float64
	switch s.Cooling {
	case CoolingLinearMult:
		alpha := (tInit/tFinal - 1) / n
		temp = tInit / (1 + alpha*i)
	case CoolingLinearAdd:
		temp = tInit - i*(tInit-tFinal)/n
	case CoolingQuadAdd:
		frac := (n - i) / n
		temp = tFinal + (tInit-tFinal)*frac*frac
	default: // CoolingExpMult
		alpha := math.Exp((math.Log(tFinal) - math.Log(tInit)) / n)
		temp = tInit * math.Pow(alpha, i)
	}
	return 1 / temp
}

// Betas returns the full schedule, one beta per epoch plus the endpoint.
func (s AnnealingSchedule) Betas() []float64 {
	out := make([]float64, s.NumEpochs+1)
	for i := range out {
		out[i] = s.Beta(i)
	}
	return out
}
