package potential

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// GaussianMixture is a mixture of isotropic Gaussian modes. The energy is
// computed with a log-sum-exp over the per-mode log densities so widely
// separated modes do not underflow.
type GaussianMixture struct {
	means   [][]float64
	sigmas  []float64
	weights []float64
	dim     int
}

// NewGaussianMixture creates a mixture from per-mode means, standard
// deviations and mixing weights. Weights are normalized to sum to one.
func NewGaussianMixture(means [][]float64, sigmas, weights []float64) (*GaussianMixture, error) {
	if len(means) == 0 {
		return nil, fmt.Errorf("mixture requires at least one mode")
	}
	if len(sigmas) != len(means) || len(weights) != len(means) {
		return nil, fmt.Errorf("mixture requires equal counts of means (%d), sigmas (%d) and weights (%d)",
			len(means), len(sigmas), len(weights))
	}

	dim := len(means[0])
	if dim == 0 {
		return nil, fmt.Errorf("mixture modes must have dim > 0")
	}
	for i, mu := range means {
		if len(mu) != dim {
			return nil, fmt.Errorf("mode %d has dim %d, expected %d", i, len(mu), dim)
		}
		if sigmas[i] <= 0 {
			return nil, fmt.Errorf("mode %d has sigma %v, must be positive", i, sigmas[i])
		}
		if weights[i] <= 0 {
			return nil, fmt.Errorf("mode %d has weight %v, must be positive", i, weights[i])
		}
	}

	total := floats.Sum(weights)
	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / total
	}

	copied := make([][]float64, len(means))
	for i, mu := range means {
		copied[i] = append([]float64{}, mu...)
	}

	return &GaussianMixture{
		means:   copied,
		sigmas:  append([]float64{}, sigmas...),
		weights: normalized,
		dim:     dim,
	}, nil
}

// NewTwoModeGMM places two modes at +/- center along the first axis, the
// default Gaussian-mixture training target.
func NewTwoModeGMM(dim int, center, sigma float64) (*GaussianMixture, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("two-mode mixture requires dim > 0, got %d", dim)
	}
	m1 := make([]float64, dim)
	m2 := make([]float64, dim)
	m1[0] = center
	m2[0] = -center
	return NewGaussianMixture(
		[][]float64{m1, m2},
		[]float64{sigma, sigma},
		[]float64{0.5, 0.5},
	)
}

// NewRingGMM places numModes equally weighted modes on a circle of the
// given radius in two dimensions.
func NewRingGMM(numModes int, radius, sigma float64) (*GaussianMixture, error) {
	if numModes < 2 {
		return nil, fmt.Errorf("ring mixture requires at least 2 modes, got %d", numModes)
	}
	means := make([][]float64, numModes)
	sigmas := make([]float64, numModes)
	weights := make([]float64, numModes)
	for k := 0; k < numModes; k++ {
		theta := 2 * math.Pi * float64(k) / float64(numModes)
		means[k] = []float64{radius * math.Cos(theta), radius * math.Sin(theta)}
		sigmas[k] = sigma
		weights[k] = 1
	}
	return NewGaussianMixture(means, sigmas, weights)
}

// NewLatticeGMM places size*size equally weighted modes on an integer grid
// in two dimensions.
func NewLatticeGMM(size int, sigma float64) (*GaussianMixture, error) {
	if size < 1 {
		return nil, fmt.Errorf("lattice mixture requires size >= 1, got %d", size)
	}
	var means [][]float64
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			means = append(means, []float64{float64(i), float64(j)})
		}
	}
	sigmas := make([]float64, len(means))
	weights := make([]float64, len(means))
	for k := range means {
		sigmas[k] = sigma
		weights[k] = 1
	}
	return NewGaussianMixture(means, sigmas, weights)
}

func (g *GaussianMixture) Dim() int       { return g.dim }
func (g *GaussianMixture) Periodic() bool { return false }

// NumModes returns the number of mixture components.
func (g *GaussianMixture) NumModes() int { return len(g.means) }

// logComponents fills buf with log(pi_k) + log N(x_i; mu_k, sigma_k^2 I)
// for one configuration row.
func (g *GaussianMixture) logComponents(row []float64, buf []float64) {
	dim := float64(g.dim)
	for k, mu := range g.means {
		s2 := g.sigmas[k] * g.sigmas[k]
		var sq float64
		for j, m := range mu {
			d := row[j] - m
			sq += d * d
		}
		buf[k] = math.Log(g.weights[k]) -
			0.5*dim*math.Log(2*math.Pi*s2) -
			sq/(2*s2)
	}
}

func logSumExp(vals []float64) float64 {
	max := floats.Max(vals)
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, v := range vals {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}

func (g *GaussianMixture) Energy(x *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	if err := checkInput(x, g.dim); err != nil {
		return nil, err
	}
	batch := x.Shape[0]
	out, err := tensor.Zeros([]int{batch})
	if err != nil {
		return nil, err
	}
	buf := make([]float64, len(g.means))
	for i := 0; i < batch; i++ {
		row := x.Data[i*g.dim : (i+1)*g.dim]
		g.logComponents(row, buf)
		out.Data[i] = -beta * logSumExp(buf)
	}
	return out, nil
}

func (g *GaussianMixture) Force(x *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	if err := checkInput(x, g.dim); err != nil {
		return nil, err
	}
	batch := x.Shape[0]
	out, err := tensor.Zeros([]int{batch, g.dim})
	if err != nil {
		return nil, err
	}
	buf := make([]float64, len(g.means))
	for i := 0; i < batch; i++ {
		row := x.Data[i*g.dim : (i+1)*g.dim]
		g.logComponents(row, buf)
		lse := logSumExp(buf)
		for k, mu := range g.means {
			// Posterior responsibility of mode k for this row.
			r := math.Exp(buf[k] - lse)
			s2 := g.sigmas[k] * g.sigmas[k]
			for j, m := range mu {
				out.Data[i*g.dim+j] += beta * r * (row[j] - m) / s2
			}
		}
	}
	return out, nil
}

func (g *GaussianMixture) Sample(batch int, rng *rand.Rand) (*tensor.Tensor, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("sample requires batch > 0, got %d", batch)
	}
	out, err := tensor.Zeros([]int{batch, g.dim})
	if err != nil {
		return nil, err
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	for i := 0; i < batch; i++ {
		k := g.pickMode(rng)
		for j := 0; j < g.dim; j++ {
			out.Data[i*g.dim+j] = g.means[k][j] + g.sigmas[k]*normal.Rand()
		}
	}
	return out, nil
}

func (g *GaussianMixture) pickMode(rng *rand.Rand) int {
	u := rng.Float64()
	var cum float64
	for k, w := range g.weights {
		cum += w
		if u < cum {
			return k
		}
	}
	return len(g.weights) - 1
}
