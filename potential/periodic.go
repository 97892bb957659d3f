package potential

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// CosineWell is an angle-valued target with energy beta * sum(1 - cos(x)).
// Configurations live on the torus [-pi, pi)^dim and are wrapped back into
// that interval after every position update.
type CosineWell struct {
	dim int
}

// NewCosineWell creates a periodic cosine-well target in dim angles.
func NewCosineWell(dim int) (*CosineWell, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("cosine well requires dim > 0, got %d", dim)
	}
	return &CosineWell{dim: dim}, nil
}

func (c *CosineWell) Dim() int       { return c.dim }
func (c *CosineWell) Periodic() bool { return true }

func (c *CosineWell) Energy(x *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	if err := checkInput(x, c.dim); err != nil {
		return nil, err
	}
	batch := x.Shape[0]
	out, err := tensor.Zeros([]int{batch})
	if err != nil {
		return nil, err
	}
	for i := 0; i < batch; i++ {
		var sum float64
		for j := 0; j < c.dim; j++ {
			sum += 1 - math.Cos(x.Data[i*c.dim+j])
		}
		out.Data[i] = beta * sum
	}
	return out, nil
}

func (c *CosineWell) Force(x *tensor.Tensor, beta float64) (*tensor.Tensor, error) {
	if err := checkInput(x, c.dim); err != nil {
		return nil, err
	}
	out, err := tensor.Zeros(x.Shape)
	if err != nil {
		return nil, err
	}
	for i, v := range x.Data {
		out.Data[i] = beta * math.Sin(v)
	}
	return out, nil
}

// Sample draws angles uniformly on [-pi, pi). The uniform distribution is
// not the target but serves as a hot start for the sampler.
func (c *CosineWell) Sample(batch int, rng *rand.Rand) (*tensor.Tensor, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("sample requires batch > 0, got %d", batch)
	}
	out, err := tensor.Zeros([]int{batch, c.dim})
	if err != nil {
		return nil, err
	}
	for i := range out.Data {
		out.Data[i] = -math.Pi + 2*math.Pi*rng.Float64()
	}
	return out, nil
}
