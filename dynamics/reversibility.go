package dynamics

import (
	"fmt"
	"math"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// ReversibilityReport summarizes how well a backward trajectory undoes a
// forward one.
type ReversibilityReport struct {
	// MaxXErr and MaxVErr are the largest absolute coordinate differences
	// between the original and round-tripped states.
	MaxXErr float64
	MaxVErr float64
	// MaxLogDetErr is the largest absolute residual of the summed forward
	// and backward log determinants, which should cancel exactly.
	MaxLogDetErr float64
}

// Within reports whether all residuals are at or below tol.
func (r ReversibilityReport) Within(tol float64) bool {
	return r.MaxXErr <= tol && r.MaxVErr <= tol && r.MaxLogDetErr <= tol
}

func (r ReversibilityReport) String() string {
	return fmt.Sprintf("max|dx|=%.3e max|dv|=%.3e max|dlogdet|=%.3e",
		r.MaxXErr, r.MaxVErr, r.MaxLogDetErr)
}

// CheckReversibility integrates a forward trajectory from (x, v), then a
// backward trajectory from the result, and measures how far the round trip
// lands from the starting state.
func (d *Dynamics) CheckReversibility(x, v *tensor.Tensor, beta float64) (ReversibilityReport, error) {
	var report ReversibilityReport

	fwd, err := d.TransitionKernel(x, v, beta, true)
	if err != nil {
		return report, err
	}
	bwd, err := d.TransitionKernel(fwd.X, fwd.V, beta, false)
	if err != nil {
		return report, err
	}

	report.MaxXErr = tensor.MaxAbsDiff(x, bwd.X)
	report.MaxVErr = tensor.MaxAbsDiff(v, bwd.V)
	for i := range fwd.LogDet.Data {
		residual := math.Abs(fwd.LogDet.Data[i] + bwd.LogDet.Data[i])
		if residual > report.MaxLogDetErr || math.IsNaN(residual) {
			report.MaxLogDetErr = residual
		}
	}
	return report, nil
}
