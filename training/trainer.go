package training

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/edbennett/l2hmc-qcd/checkpoints"
	"github.com/edbennett/l2hmc-qcd/dynamics"
	"github.com/edbennett/l2hmc-qcd/tensor"
)

// TrainerConfig holds configuration for training.
type TrainerConfig struct {
	Eras         int
	EpochsPerEra int
	BaseLR       float64
	// ClipNorm caps the global gradient norm; zero disables clipping.
	ClipNorm float64
	// AuxWeight weights the auxiliary loss computed from a noise-seeded
	// trajectory; zero disables it.
	AuxWeight float64
	// PrintEvery prints progress every N epochs; zero silences output.
	PrintEvery int
	// IsChief gates printing and checkpointing, so only one of several
	// cooperating trainers writes.
	IsChief bool
	// Scheduler adjusts the learning rate per epoch; nil keeps it fixed.
	Scheduler LRScheduler
	// Schedule anneals beta over the run.
	Schedule AnnealingSchedule
	// Saver writes a checkpoint at the end of every era when set.
	Saver *checkpoints.Saver
	// Seed seeds the auxiliary noise source.
	Seed uint64
}

// Validate checks the configuration for consistency.
func (c TrainerConfig) Validate() error {
	if c.Eras <= 0 {
		return fmt.Errorf("trainer requires Eras > 0, got %d", c.Eras)
	}
	if c.EpochsPerEra <= 0 {
		return fmt.Errorf("trainer requires EpochsPerEra > 0, got %d", c.EpochsPerEra)
	}
	if c.BaseLR <= 0 {
		return fmt.Errorf("trainer requires BaseLR > 0, got %v", c.BaseLR)
	}
	if c.AuxWeight < 0 {
		return fmt.Errorf("trainer requires AuxWeight >= 0, got %v", c.AuxWeight)
	}
	return c.Schedule.Validate()
}

// Trainer manages the era/epoch training loop for one sampler.
type Trainer struct {
	dyn       *dynamics.Dynamics
	optimizer Optimizer
	criterion *ESJDLoss
	config    TrainerConfig
	history   *History
	rng       *rand.Rand
}

// NewTrainer creates a new Trainer. The optimizer must have been built over
// the sampler's parameters.
func NewTrainer(dyn *dynamics.Dynamics, optimizer Optimizer, criterion *ESJDLoss, config TrainerConfig) (*Trainer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Scheduler == nil {
		config.Scheduler = &ConstantLRScheduler{}
	}
	return &Trainer{
		dyn:       dyn,
		optimizer: optimizer,
		criterion: criterion,
		config:    config,
		history:   &History{},
		rng:       rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// History returns the per-epoch metrics recorded so far.
func (t *Trainer) History() *History {
	return t.history
}

// Train runs the complete training loop starting from the batch x and
// returns the final batch. Cancellation is honored between trajectories.
func (t *Trainer) Train(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	cfg := t.dyn.Config()
	if len(x.Shape) != 2 || x.Shape[1] != cfg.Dim {
		return nil, fmt.Errorf("initial batch must have shape [batch, %d], got %v", cfg.Dim, x.Shape)
	}

	if t.config.IsChief && t.config.PrintEvery > 0 {
		fmt.Printf("Starting training: %d eras of %d epochs, %s scheduler\n",
			t.config.Eras, t.config.EpochsPerEra, t.config.Scheduler.GetName())
	}

	for era := 0; era < t.config.Eras; era++ {
		for epoch := 0; epoch < t.config.EpochsPerEra; epoch++ {
			select {
			case <-ctx.Done():
				return x, ctx.Err()
			default:
			}

			next, metrics, err := t.trainEpoch(x, era, epoch)
			if err != nil {
				return x, fmt.Errorf("era %d epoch %d failed: %v", era, epoch, err)
			}
			x = next
			t.history.Append(metrics)

			if t.config.IsChief && t.config.PrintEvery > 0 && (metrics.GlobalEpoch+1)%t.config.PrintEvery == 0 {
				t.printEpochSummary(metrics)
			}
		}

		if err := t.saveCheckpoint(era); err != nil {
			return x, err
		}
	}
	return x, nil
}

// trainEpoch runs one transition plus one parameter update.
func (t *Trainer) trainEpoch(x *tensor.Tensor, era, epoch int) (*tensor.Tensor, EpochMetrics, error) {
	start := time.Now()
	globalEpoch := era*t.config.EpochsPerEra + epoch
	beta := t.config.Schedule.Beta(globalEpoch)
	lr := t.config.Scheduler.GetLR(globalEpoch, t.config.BaseLR)
	t.optimizer.SetLR(lr)

	metrics := EpochMetrics{
		Era:          era,
		Epoch:        epoch,
		GlobalEpoch:  globalEpoch,
		Beta:         beta,
		LearningRate: lr,
		StepSize:     meanStepSize(t.dyn),
	}

	t.optimizer.ZeroGrad()

	result, err := t.dyn.Transition(x, beta)
	if err != nil {
		return nil, metrics, fmt.Errorf("transition failed: %v", err)
	}
	metrics.AcceptRate = result.AcceptRate()

	loss, err := t.criterion.Compute(result)
	if err != nil {
		return nil, metrics, fmt.Errorf("loss computation failed: %v", err)
	}

	if t.config.AuxWeight > 0 {
		auxLoss, err := t.auxiliaryLoss(x.Shape[0], beta)
		if err != nil {
			return nil, metrics, err
		}
		loss = CombineWithAux(loss, auxLoss, t.config.AuxWeight)
	}

	lossValue, err := loss.Item()
	if err != nil {
		return nil, metrics, fmt.Errorf("failed to get loss value: %v", err)
	}
	metrics.Loss = lossValue
	metrics.Duration = time.Since(start)

	// A diverged trajectory must not poison the parameters: drop the
	// update and carry on from the post-accept state, which rejection has
	// kept finite.
	if !isFinite(lossValue) {
		metrics.Skipped = true
		return result.XOut, metrics, nil
	}

	if err := loss.Backward(); err != nil {
		return nil, metrics, fmt.Errorf("backward pass failed: %v", err)
	}

	params := t.dyn.Parameters()
	metrics.GradNorm = ClipGradNorm(params, t.config.ClipNorm)
	if !isFinite(metrics.GradNorm) {
		t.optimizer.ZeroGrad()
		metrics.Skipped = true
		metrics.Duration = time.Since(start)
		return result.XOut, metrics, nil
	}

	if err := t.optimizer.Step(); err != nil {
		return nil, metrics, fmt.Errorf("optimizer step failed: %v", err)
	}

	metrics.Duration = time.Since(start)
	return result.XOut, metrics, nil
}

// auxiliaryLoss scores a trajectory seeded from pure noise, which pushes the
// sampler to also mix well from poor initial states.
func (t *Trainer) auxiliaryLoss(batch int, beta float64) (*tensor.Tensor, error) {
	noise, err := tensor.Zeros([]int{batch, t.dyn.Config().Dim})
	if err != nil {
		return nil, err
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: t.rng}
	for i := range noise.Data {
		noise.Data[i] = normal.Rand()
	}

	result, err := t.dyn.Transition(noise, beta)
	if err != nil {
		return nil, fmt.Errorf("auxiliary transition failed: %v", err)
	}
	loss, err := t.criterion.Compute(result)
	if err != nil {
		return nil, fmt.Errorf("auxiliary loss computation failed: %v", err)
	}
	return loss, nil
}

func (t *Trainer) saveCheckpoint(era int) error {
	if t.config.Saver == nil || !t.config.IsChief {
		return nil
	}
	last, _ := t.history.Last()
	state := checkpoints.TrainingState{
		Era:          era,
		Epoch:        last.GlobalEpoch,
		Beta:         last.Beta,
		LearningRate: last.LearningRate,
	}
	if _, err := t.config.Saver.Save(checkpoints.FromDynamics(t.dyn, state), fmt.Sprintf("era_%03d", era)); err != nil {
		return fmt.Errorf("checkpoint for era %d failed: %v", era, err)
	}
	return nil
}

// printEpochSummary prints a one-line summary of the epoch results.
func (t *Trainer) printEpochSummary(m EpochMetrics) {
	fmt.Printf("Era %d/%d, Epoch %d/%d: Loss=%.4f, Accept=%.2f%%, Beta=%.3f, LR=%.5f, Time=%v",
		m.Era+1, t.config.Eras, m.Epoch+1, t.config.EpochsPerEra,
		m.Loss, m.AcceptRate*100, m.Beta, m.LearningRate, m.Duration.Round(time.Millisecond))
	if m.Skipped {
		fmt.Printf(" [skipped]")
	}
	fmt.Println()
}

// EvalResult summarizes an evaluation run.
type EvalResult struct {
	X           *tensor.Tensor
	AcceptRates []float64
}

// MeanAcceptRate averages the per-transition acceptance rates.
func (r *EvalResult) MeanAcceptRate() float64 {
	if len(r.AcceptRates) == 0 {
		return 0
	}
	var sum float64
	for _, a := range r.AcceptRates {
		sum += a
	}
	return sum / float64(len(r.AcceptRates))
}

// Evaluate runs numTransitions sampling steps at fixed beta without any
// parameter updates.
func (t *Trainer) Evaluate(ctx context.Context, x *tensor.Tensor, numTransitions int, beta float64) (*EvalResult, error) {
	result := &EvalResult{X: x}
	for i := 0; i < numTransitions; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		tr, err := t.dyn.Transition(result.X, beta)
		if err != nil {
			return result, fmt.Errorf("evaluation transition %d failed: %v", i, err)
		}
		result.X = tr.XOut
		result.AcceptRates = append(result.AcceptRates, tr.AcceptRate())
	}
	return result, nil
}

func meanStepSize(d *dynamics.Dynamics) float64 {
	sizes := d.StepSizes()
	var sum float64
	for _, e := range sizes {
		sum += e
	}
	return sum / float64(len(sizes))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
