package potential

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// Gaussian is a diagonal Gaussian target with a common standard deviation,
// the trivial smoke-test density: U(x) = beta * |x - mu|^2 / (2 sigma^2).
type Gaussian struct {
	mu    []float64
	sigma float64
}

// NewGaussian creates a diagonal Gaussian potential centered at mu.
func NewGaussian(mu []float64, sigma float64) (*Gaussian, error) {
	if len(mu) == 0 {
		return nil, fmt.Errorf("gaussian potential requires a nonempty mean")
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("gaussian potential requires sigma > 0, got %v", sigma)
	}
	return &Gaussian{mu: append([]float64{}, mu...), sigma: sigma}, nil
}

// NewStandardGaussian creates a unit Gaussian centered at the origin.
func NewStandardGaussian(dim int) (*Gaussian, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("gaussian potential requires dim > 0, got %d", dim)
	}
	return NewGaussian(make([]float64, dim), 1.0)
}

func (g *Gaussian) Dim() int       { return len(g.mu) }
func (g *Gaussian) Periodic() bool { return false }

func (g *Gaussian) Energy(x *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	if err := checkInput(x, g.Dim()); err != nil {
		return nil, err
	}
	batch, dim := x.Shape[0], x.Shape[1]
	out, err := tensor.Zeros([]int{batch})
	if err != nil {
		return nil, err
	}
	inv := 1.0 / (2 * g.sigma * g.sigma)
	for i := 0; i < batch; i++ {
		var sum float64
		for j := 0; j < dim; j++ {
			d := x.Data[i*dim+j] - g.mu[j]
			sum += d * d
		}
		out.Data[i] = beta * sum * inv
	}
	return out, nil
}

func (g *Gaussian) Force(x *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	if err := checkInput(x, g.Dim()); err != nil {
		return nil, err
	}
	batch, dim := x.Shape[0], x.Shape[1]
	out, err := tensor.Zeros([]int{batch, dim})
	if err != nil {
		return nil, err
	}
	inv := 1.0 / (g.sigma * g.sigma)
	for i := range out.Data {
		out.Data[i] = beta * (x.Data[i] - g.mu[i%dim]) * inv
	}
	return out, nil
}

func (g *Gaussian) Sample(batch int, rng *rand.Rand) (*tensor.Tensor, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("sample requires batch > 0, got %d", batch)
	}
	dim := g.Dim()
	normal := distuv.Normal{Mu: 0, Sigma: g.sigma, Src: rng}
	out, err := tensor.Zeros([]int{batch, dim})
	if err != nil {
		return nil, err
	}
	for i := 0; i < batch; i++ {
		for j := 0; j < dim; j++ {
			out.Data[i*dim+j] = g.mu[j] + normal.Rand()
		}
	}
	return out, nil
}
