package potential

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/edbennett/l2hmc-qcd/tensor"
)

// numericForce checks Force against a central difference of Energy at every
// coordinate of x.
func numericForce(t *testing.T, p Potential, x *tensor.Tensor, beta, tol float64) {
	t.Helper()

	force, err := p.Force(x, beta)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	h := 1e-6
	for idx := range x.Data {
		orig := x.Data[idx]

		x.Data[idx] = orig + h
		ePlus, err := p.Energy(x, beta)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x.Data[idx] = orig - h
		eMinus, err := p.Energy(x, beta)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x.Data[idx] = orig

		row := idx / x.Shape[1]
		want := (ePlus.Data[row] - eMinus.Data[row]) / (2 * h)
		if math.Abs(force.Data[idx]-want) > tol {
			t.Errorf("Force mismatch at index %d: got %v, numeric %v", idx, force.Data[idx], want)
		}
	}
}

func TestGaussian(t *testing.T) {
	t.Run("Energy of standard normal at origin", func(t *testing.T) {
		g, err := NewStandardGaussian(3)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.Zeros([]int{2, 3})
		e, err := g.Energy(x, 1.0)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		for i, v := range e.Data {
			if v != 0 {
				t.Errorf("Expected zero energy at the mean, got %v at row %d", v, i)
			}
		}
	})

	t.Run("Energy scales with beta", func(t *testing.T) {
		g, err := NewStandardGaussian(2)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.NewTensor([]int{1, 2}, []float64{1, 2})
		e1, err := g.Energy(x, 1.0)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		e3, err := g.Energy(x, 3.0)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if math.Abs(e3.Data[0]-3*e1.Data[0]) > 1e-12 {
			t.Errorf("Expected energy to scale linearly in beta: beta=1 gives %v, beta=3 gives %v", e1.Data[0], e3.Data[0])
		}
	})

	t.Run("Force matches numeric gradient", func(t *testing.T) {
		g, err := NewGaussian([]float64{0.5, -1.0}, 0.7)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.NewTensor([]int{2, 2}, []float64{0.3, -0.2, 1.1, 0.4})
		numericForce(t, g, x, 1.5, 1e-4)
	})

	t.Run("Rejects mismatched input dim", func(t *testing.T) {
		g, err := NewStandardGaussian(3)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.Zeros([]int{2, 4})
		if _, err := g.Energy(x, 1.0); err == nil {
			t.Error("Expected error for wrong input dim, got nil")
		}
	})

	t.Run("Sample has roughly correct spread", func(t *testing.T) {
		g, err := NewGaussian([]float64{2, 2}, 0.5)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		rng := rand.New(rand.NewSource(7))
		x, err := g.Sample(2000, rng)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		var mean float64
		for _, v := range x.Data {
			mean += v
		}
		mean /= float64(len(x.Data))
		if math.Abs(mean-2) > 0.05 {
			t.Errorf("Expected sample mean near 2, got %v", mean)
		}
	})
}

func TestGaussianMixture(t *testing.T) {
	t.Run("Two-mode layout", func(t *testing.T) {
		g, err := NewTwoModeGMM(4, 2.0, 0.1)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if g.NumModes() != 2 {
			t.Errorf("Expected 2 modes, got %d", g.NumModes())
		}
		if g.Dim() != 4 {
			t.Errorf("Expected dim 4, got %d", g.Dim())
		}
	})

	t.Run("Energy is lower near a mode than between modes", func(t *testing.T) {
		g, err := NewTwoModeGMM(2, 2.0, 0.2)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.NewTensor([]int{2, 2}, []float64{2, 0, 0, 0})
		e, err := g.Energy(x, 1.0)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if e.Data[0] >= e.Data[1] {
			t.Errorf("Expected mode energy %v below midpoint energy %v", e.Data[0], e.Data[1])
		}
	})

	t.Run("Force matches numeric gradient", func(t *testing.T) {
		g, err := NewTwoModeGMM(2, 1.0, 0.5)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.NewTensor([]int{3, 2}, []float64{0.9, 0.1, -1.2, 0.3, 0.0, 0.0})
		numericForce(t, g, x, 1.0, 1e-4)
	})

	t.Run("Ring force matches numeric gradient", func(t *testing.T) {
		g, err := NewRingGMM(6, 1.5, 0.3)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.NewTensor([]int{2, 2}, []float64{1.4, 0.2, -0.5, 1.3})
		numericForce(t, g, x, 2.0, 1e-4)
	})

	t.Run("Lattice has size squared modes", func(t *testing.T) {
		g, err := NewLatticeGMM(3, 0.1)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if g.NumModes() != 9 {
			t.Errorf("Expected 9 modes, got %d", g.NumModes())
		}
	})

	t.Run("Energy stays finite far from all modes", func(t *testing.T) {
		g, err := NewTwoModeGMM(2, 2.0, 0.05)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.NewTensor([]int{1, 2}, []float64{50, -50})
		e, err := g.Energy(x, 1.0)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if math.IsInf(e.Data[0], 0) || math.IsNaN(e.Data[0]) {
			t.Errorf("Expected finite energy far from the modes, got %v", e.Data[0])
		}
	})

	t.Run("Samples land near the modes", func(t *testing.T) {
		g, err := NewTwoModeGMM(2, 2.0, 0.1)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		rng := rand.New(rand.NewSource(11))
		x, err := g.Sample(500, rng)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		var left, right int
		for i := 0; i < 500; i++ {
			v := x.Data[i*2]
			switch {
			case math.Abs(v-2) < 1:
				right++
			case math.Abs(v+2) < 1:
				left++
			}
		}
		if left+right != 500 {
			t.Errorf("Expected all samples near a mode, got %d of 500", left+right)
		}
		if left < 150 || right < 150 {
			t.Errorf("Expected a rough balance between modes, got left=%d right=%d", left, right)
		}
	})

	t.Run("Rejects inconsistent construction", func(t *testing.T) {
		if _, err := NewGaussianMixture([][]float64{{0, 0}}, []float64{1, 1}, []float64{1}); err == nil {
			t.Error("Expected error for mismatched sigma count, got nil")
		}
		if _, err := NewGaussianMixture([][]float64{{0, 0}, {1}}, []float64{1, 1}, []float64{1, 1}); err == nil {
			t.Error("Expected error for ragged means, got nil")
		}
		if _, err := NewGaussianMixture([][]float64{{0}}, []float64{-1}, []float64{1}); err == nil {
			t.Error("Expected error for negative sigma, got nil")
		}
	})
}

func TestCosineWell(t *testing.T) {
	t.Run("Energy is zero at the origin", func(t *testing.T) {
		c, err := NewCosineWell(5)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.Zeros([]int{2, 5})
		e, err := c.Energy(x, 3.0)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		for i, v := range e.Data {
			if v != 0 {
				t.Errorf("Expected zero energy at the origin, got %v at row %d", v, i)
			}
		}
	})

	t.Run("Force matches numeric gradient", func(t *testing.T) {
		c, err := NewCosineWell(3)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		x, _ := tensor.NewTensor([]int{2, 3}, []float64{0.4, -1.1, 2.0, -2.6, 0.0, 1.3})
		numericForce(t, c, x, 1.5, 1e-4)
	})

	t.Run("Samples stay in the fundamental interval", func(t *testing.T) {
		c, err := NewCosineWell(4)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		rng := rand.New(rand.NewSource(3))
		x, err := c.Sample(100, rng)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		for i, v := range x.Data {
			if v < -math.Pi || v >= math.Pi {
				t.Errorf("Sample %d out of range: %v", i, v)
			}
		}
	})
}

func TestWrap(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"inside interval", 1.0, 1.0},
		{"just above pi", math.Pi + 0.1, -math.Pi + 0.1},
		{"just below minus pi", -math.Pi - 0.1, math.Pi - 0.1},
		{"multiple turns", 5 * math.Pi, -math.Pi},
		{"zero", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Wrap(tc.in)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("Wrap(%v) = %v, want %v", tc.in, got, tc.want)
			}
			if got < -math.Pi || got >= math.Pi {
				t.Errorf("Wrap(%v) = %v outside [-pi, pi)", tc.in, got)
			}
		})
	}

	t.Run("WrapTensor wraps in place", func(t *testing.T) {
		x, _ := tensor.NewTensor([]int{1, 3}, []float64{4.0, -4.0, 0.5})
		WrapTensor(x)
		for i, v := range x.Data {
			if v < -math.Pi || v >= math.Pi {
				t.Errorf("Element %d not wrapped: %v", i, v)
			}
		}
		if math.Abs(x.Data[2]-0.5) > 1e-12 {
			t.Errorf("In-range value changed: %v", x.Data[2])
		}
	})
}
