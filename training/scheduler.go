package training

import "math"

// LRScheduler maps training progress to a learning rate. Schedulers are pure
// functions of the epoch index so restarts reproduce the same schedule.
type LRScheduler interface {
	// GetLR returns the learning rate for the given global epoch.
	GetLR(epoch int, baseLR float64) float64

	// GetName returns the scheduler name for logging.
	GetName() string
}

// ConstantLRScheduler maintains a constant learning rate.
type ConstantLRScheduler struct{}

func (s *ConstantLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	return baseLR
}

func (s *ConstantLRScheduler) GetName() string {
	return "ConstantLR"
}

// ExponentialLRScheduler decays the learning rate by a fixed factor every
// decay interval, optionally after a linear warmup.
type ExponentialLRScheduler struct {
	Gamma        float64 // Multiplicative decay factor
	DecayEvery   int     // Epochs between decays
	WarmupEpochs int     // Epochs of linear warmup from zero
}

// NewExponentialLRScheduler creates an exponential decay scheduler.
func NewExponentialLRScheduler(gamma float64, decayEvery, warmupEpochs int) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.96
	}
	if decayEvery <= 0 {
		decayEvery = 1000
	}
	return &ExponentialLRScheduler{
		Gamma:        gamma,
		DecayEvery:   decayEvery,
		WarmupEpochs: warmupEpochs,
	}
}

func (s *ExponentialLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	if s.WarmupEpochs > 0 && epoch < s.WarmupEpochs {
		return baseLR * float64(epoch+1) / float64(s.WarmupEpochs)
	}
	times := epoch / s.DecayEvery
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *ExponentialLRScheduler) GetName() string {
	return "ExponentialLR"
}

// CosineAnnealingLRScheduler anneals the learning rate to a floor over TMax
// epochs.
type CosineAnnealingLRScheduler struct {
	TMax   int
	EtaMin float64
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler.
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{TMax: tMax, EtaMin: etaMin}
}

func (s *CosineAnnealingLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string {
	return "CosineAnnealingLR"
}
