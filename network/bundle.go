package network

import (
	"fmt"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// NamedParam pairs a trainable tensor with a stable name for checkpointing.
type NamedParam struct {
	Name   string
	Tensor *tensor.Tensor
}

// Bundle holds the position and momentum networks for every leapfrog step.
// By default one pair of networks is shared across all steps; with
// SeparateSteps each step index gets its own pair.
type Bundle struct {
	xNets []Net
	vNets []Net
}

// BundleConfig configures a Bundle.
type BundleConfig struct {
	Net           STQConfig
	NumSteps      int
	SeparateSteps bool
	// Identity replaces every network with a zero-output IdentityNet.
	Identity bool
}

// NewBundle creates the networks described by the configuration.
func NewBundle(cfg BundleConfig) (*Bundle, error) {
	if cfg.NumSteps <= 0 {
		return nil, fmt.Errorf("bundle requires NumSteps > 0, got %d", cfg.NumSteps)
	}

	count := 1
	if cfg.SeparateSteps {
		count = cfg.NumSteps
	}

	b := &Bundle{
		xNets: make([]Net, count),
		vNets: make([]Net, count),
	}
	for i := 0; i < count; i++ {
		if cfg.Identity {
			xNet, err := NewIdentityNet(cfg.Net.Dim)
			if err != nil {
				return nil, err
			}
			vNet, err := NewIdentityNet(cfg.Net.Dim)
			if err != nil {
				return nil, err
			}
			b.xNets[i] = xNet
			b.vNets[i] = vNet
			continue
		}

		xNet, err := NewSTQNet(cfg.Net)
		if err != nil {
			return nil, fmt.Errorf("failed to build position network %d: %v", i, err)
		}
		vNet, err := NewSTQNet(cfg.Net)
		if err != nil {
			return nil, fmt.Errorf("failed to build momentum network %d: %v", i, err)
		}
		b.xNets[i] = xNet
		b.vNets[i] = vNet
	}

	return b, nil
}

// XNet returns the position network for the given leapfrog step.
func (b *Bundle) XNet(step int) Net {
	if len(b.xNets) == 1 {
		return b.xNets[0]
	}
	return b.xNets[step]
}

// VNet returns the momentum network for the given leapfrog step.
func (b *Bundle) VNet(step int) Net {
	if len(b.vNets) == 1 {
		return b.vNets[0]
	}
	return b.vNets[step]
}

// Parameters returns all trainable parameters in a stable order.
func (b *Bundle) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, net := range b.xNets {
		params = append(params, net.Parameters()...)
	}
	for _, net := range b.vNets {
		params = append(params, net.Parameters()...)
	}
	return params
}

// NamedParameters returns all trainable parameters with deterministic names
// derived from their position in the bundle.
func (b *Bundle) NamedParameters() []NamedParam {
	var named []NamedParam
	for i, net := range b.xNets {
		for j, p := range net.Parameters() {
			named = append(named, NamedParam{
				Name:   fmt.Sprintf("xnet/%d/param/%d", i, j),
				Tensor: p,
			})
		}
	}
	for i, net := range b.vNets {
		for j, p := range net.Parameters() {
			named = append(named, NamedParam{
				Name:   fmt.Sprintf("vnet/%d/param/%d", i, j),
				Tensor: p,
			})
		}
	}
	return named
}
