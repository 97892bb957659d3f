package network

import (
	"fmt"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// Net produces the scale, translation and transformation outputs that drive
// one leapfrog sub-update. The position and momentum inputs have shape
// [batch, dim] and the step embedding has shape [batch, 2].
type Net interface {
	Forward(x, v, t *tensor.Tensor) (scale, translation, transform *tensor.Tensor, err error)
	Parameters() []*tensor.Tensor
}

// STQConfig configures a single STQNet.
type STQConfig struct {
	Dim             int
	Hidden1         int
	Hidden2         int
	ZeroTranslation bool
}

// Validate checks the configuration for consistency.
func (c STQConfig) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("network requires Dim > 0, got %d", c.Dim)
	}
	if c.Hidden1 <= 0 || c.Hidden2 <= 0 {
		return fmt.Errorf("network requires positive hidden sizes, got %d and %d", c.Hidden1, c.Hidden2)
	}
	return nil
}

// STQNet is a two hidden layer network with three input branches and three
// output heads. The scale and transform heads are tanh-bounded and multiplied
// by a learned exponential coefficient that starts at one, so the network
// initially behaves close to the identity.
type STQNet struct {
	xLayer *Linear
	vLayer *Linear
	tLayer *Linear
	hidden *Linear

	scaleLayer       *Linear
	translationLayer *Linear
	transformLayer   *Linear

	// Per-coordinate log coefficients for the bounded heads, zero at init.
	scaleCoeff     *tensor.Tensor
	transformCoeff *tensor.Tensor

	cfg STQConfig
}

// NewSTQNet builds an STQNet from the given configuration.
func NewSTQNet(cfg STQConfig) (*STQNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	xLayer, err := NewLinear(cfg.Dim, cfg.Hidden1, true)
	if err != nil {
		return nil, err
	}
	vLayer, err := NewLinear(cfg.Dim, cfg.Hidden1, false)
	if err != nil {
		return nil, err
	}
	tLayer, err := NewLinear(2, cfg.Hidden1, false)
	if err != nil {
		return nil, err
	}
	hidden, err := NewLinear(cfg.Hidden1, cfg.Hidden2, true)
	if err != nil {
		return nil, err
	}
	scaleLayer, err := NewLinear(cfg.Hidden2, cfg.Dim, true)
	if err != nil {
		return nil, err
	}
	transformLayer, err := NewLinear(cfg.Hidden2, cfg.Dim, true)
	if err != nil {
		return nil, err
	}

	net := &STQNet{
		xLayer:         xLayer,
		vLayer:         vLayer,
		tLayer:         tLayer,
		hidden:         hidden,
		scaleLayer:     scaleLayer,
		transformLayer: transformLayer,
		cfg:            cfg,
	}

	if !cfg.ZeroTranslation {
		translationLayer, err := NewLinear(cfg.Hidden2, cfg.Dim, true)
		if err != nil {
			return nil, err
		}
		net.translationLayer = translationLayer
	}

	scaleCoeff, err := tensor.Zeros([]int{cfg.Dim})
	if err != nil {
		return nil, err
	}
	scaleCoeff.SetRequiresGrad(true)
	net.scaleCoeff = scaleCoeff

	transformCoeff, err := tensor.Zeros([]int{cfg.Dim})
	if err != nil {
		return nil, err
	}
	transformCoeff.SetRequiresGrad(true)
	net.transformCoeff = transformCoeff

	return net, nil
}

func (n *STQNet) checkInputs(x, v, t *tensor.Tensor) error {
	if len(x.Shape) != 2 || x.Shape[1] != n.cfg.Dim {
		return fmt.Errorf("position input must have shape [batch, %d], got %v", n.cfg.Dim, x.Shape)
	}
	if len(v.Shape) != 2 || v.Shape[1] != n.cfg.Dim {
		return fmt.Errorf("momentum input must have shape [batch, %d], got %v", n.cfg.Dim, v.Shape)
	}
	if len(t.Shape) != 2 || t.Shape[1] != 2 {
		return fmt.Errorf("step embedding must have shape [batch, 2], got %v", t.Shape)
	}
	if v.Shape[0] != x.Shape[0] || t.Shape[0] != x.Shape[0] {
		return fmt.Errorf("batch size mismatch: x %d, v %d, t %d", x.Shape[0], v.Shape[0], t.Shape[0])
	}
	return nil
}

// Forward evaluates the network. The three input branches are summed before
// the first nonlinearity.
func (n *STQNet) Forward(x, v, t *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	if err := n.checkInputs(x, v, t); err != nil {
		return nil, nil, nil, err
	}

	hx, err := n.xLayer.Forward(x)
	if err != nil {
		return nil, nil, nil, err
	}
	hv, err := n.vLayer.Forward(v)
	if err != nil {
		return nil, nil, nil, err
	}
	ht, err := n.tLayer.Forward(t)
	if err != nil {
		return nil, nil, nil, err
	}

	h := tensor.ReLUAutograd(tensor.AddAutograd(tensor.AddAutograd(hx, hv), ht))

	h, err = n.hidden.Forward(h)
	if err != nil {
		return nil, nil, nil, err
	}
	h = tensor.ReLUAutograd(h)

	scale, err := n.boundedHead(n.scaleLayer, n.scaleCoeff, h)
	if err != nil {
		return nil, nil, nil, err
	}
	transform, err := n.boundedHead(n.transformLayer, n.transformCoeff, h)
	if err != nil {
		return nil, nil, nil, err
	}

	var translation *tensor.Tensor
	if n.translationLayer != nil {
		translation, err = n.translationLayer.Forward(h)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		translation, err = tensor.Zeros([]int{x.Shape[0], n.cfg.Dim})
		if err != nil {
			return nil, nil, nil, err
		}
	}

	return scale, translation, transform, nil
}

// boundedHead computes exp(coeff) * tanh(layer(h)).
func (n *STQNet) boundedHead(layer *Linear, coeff, h *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := layer.Forward(h)
	if err != nil {
		return nil, err
	}
	return tensor.MulAutograd(tensor.TanhAutograd(out), tensor.ExpAutograd(coeff)), nil
}

// Parameters returns the trainable parameters in a stable order.
func (n *STQNet) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	params = append(params, n.xLayer.Parameters()...)
	params = append(params, n.vLayer.Parameters()...)
	params = append(params, n.tLayer.Parameters()...)
	params = append(params, n.hidden.Parameters()...)
	params = append(params, n.scaleLayer.Parameters()...)
	if n.translationLayer != nil {
		params = append(params, n.translationLayer.Parameters()...)
	}
	params = append(params, n.transformLayer.Parameters()...)
	params = append(params, n.scaleCoeff, n.transformCoeff)
	return params
}

// IdentityNet returns zero scale, translation and transformation, reducing
// the augmented integrator to plain leapfrog.
type IdentityNet struct {
	dim int
}

// NewIdentityNet creates an IdentityNet for dim coordinates.
func NewIdentityNet(dim int) (*IdentityNet, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("identity net requires dim > 0, got %d", dim)
	}
	return &IdentityNet{dim: dim}, nil
}

// Forward returns zeros of shape [batch, dim] for all three outputs.
func (n *IdentityNet) Forward(x, v, t *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != n.dim {
		return nil, nil, nil, fmt.Errorf("position input must have shape [batch, %d], got %v", n.dim, x.Shape)
	}
	batch := x.Shape[0]
	scale, err := tensor.Zeros([]int{batch, n.dim})
	if err != nil {
		return nil, nil, nil, err
	}
	translation, err := tensor.Zeros([]int{batch, n.dim})
	if err != nil {
		return nil, nil, nil, err
	}
	transform, err := tensor.Zeros([]int{batch, n.dim})
	if err != nil {
		return nil, nil, nil, err
	}
	return scale, translation, transform, nil
}

// Parameters returns an empty slice.
func (n *IdentityNet) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}
