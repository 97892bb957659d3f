package training

import "time"

// EpochMetrics holds metrics for a single training epoch.
type EpochMetrics struct {
	Era          int
	Epoch        int
	GlobalEpoch  int
	Beta         float64
	Loss         float64
	AcceptRate   float64
	GradNorm     float64
	LearningRate float64
	StepSize     float64
	Duration     time.Duration
	// Skipped marks epochs whose update was dropped because the loss or
	// gradients were not finite.
	Skipped bool
}

// History accumulates per-epoch metrics over a training run.
type History struct {
	entries []EpochMetrics
}

// Append records one epoch.
func (h *History) Append(m EpochMetrics) {
	h.entries = append(h.entries, m)
}

// Entries returns all recorded epochs.
func (h *History) Entries() []EpochMetrics {
	return h.entries
}

// Len returns the number of recorded epochs.
func (h *History) Len() int {
	return len(h.entries)
}

// Last returns the most recent epoch and whether one exists.
func (h *History) Last() (EpochMetrics, bool) {
	if len(h.entries) == 0 {
		return EpochMetrics{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// MeanAcceptRate averages the acceptance rate over the last n epochs, or all
// of them when fewer were recorded.
func (h *History) MeanAcceptRate(n int) float64 {
	if len(h.entries) == 0 {
		return 0
	}
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	var sum float64
	for _, m := range h.entries[len(h.entries)-n:] {
		sum += m.AcceptRate
	}
	return sum / float64(n)
}

// SkippedCount returns how many epochs were skipped.
func (h *History) SkippedCount() int {
	var n int
	for _, m := range h.entries {
		if m.Skipped {
			n++
		}
	}
	return n
}
