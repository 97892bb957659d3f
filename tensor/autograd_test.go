package tensor

import (
	"math"
	"testing"
)

// numericGrad perturbs each element of param with a central difference and
// compares against the analytic gradient accumulated by Backward.
func numericGrad(t *testing.T, param *Tensor, f func() *Tensor, tol float64) {
	t.Helper()

	param.ClearGrad()
	out := f()
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	analytic := param.Grad()
	if analytic == nil {
		t.Fatal("Expected gradient on parameter, got nil")
	}

	const h = 1e-6
	for i := range param.Data {
		orig := param.Data[i]

		param.Data[i] = orig + h
		plus, _ := f().Item()
		param.Data[i] = orig - h
		minus, _ := f().Item()
		param.Data[i] = orig

		numeric := (plus - minus) / (2 * h)
		if math.Abs(numeric-analytic.Data[i]) > tol*(1+math.Abs(numeric)) {
			t.Errorf("gradient mismatch at %d: analytic %v, numeric %v",
				i, analytic.Data[i], numeric)
		}
	}
}

func TestBackwardSimpleChain(t *testing.T) {
	x, _ := NewTensor([]int{2, 2}, []float64{0.5, -0.3, 1.2, 0.1})
	x.SetRequiresGrad(true)

	numericGrad(t, x, func() *Tensor {
		// mean(exp(x) * tanh(x))
		return MeanAutograd(MulAutograd(ExpAutograd(x), TanhAutograd(x)))
	}, 1e-5)
}

func TestBackwardMatMulChain(t *testing.T) {
	w, _ := NewTensor([]int{3, 2}, []float64{0.1, -0.2, 0.3, 0.4, -0.5, 0.6})
	w.SetRequiresGrad(true)
	x, _ := NewTensor([]int{4, 3}, []float64{
		1, 2, 3,
		-1, 0.5, 2,
		0.3, -0.7, 1.1,
		2, 2, -2,
	})

	numericGrad(t, w, func() *Tensor {
		return MeanAutograd(ReLUAutograd(MatMulAutograd(x, w)))
	}, 1e-5)
}

func TestBackwardBroadcastBias(t *testing.T) {
	bias, _ := NewTensor([]int{3}, []float64{0.1, -0.1, 0.2})
	bias.SetRequiresGrad(true)
	x, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	numericGrad(t, bias, func() *Tensor {
		return MeanAutograd(TanhAutograd(AddAutograd(x, bias)))
	}, 1e-5)
}

func TestBackwardScalarBroadcast(t *testing.T) {
	eps, _ := NewTensor([]int{1}, []float64{0.25})
	eps.SetRequiresGrad(true)
	x, _ := NewTensor([]int{2, 2}, []float64{0.5, 1.5, -0.5, 2})

	numericGrad(t, eps, func() *Tensor {
		// mean(x * exp(eps * x)) exercises scalar-to-matrix broadcasting
		return MeanAutograd(MulAutograd(x, ExpAutograd(MulAutograd(eps, x))))
	}, 1e-5)
}

func TestBackwardSumRows(t *testing.T) {
	x, _ := NewTensor([]int{2, 3}, []float64{0.3, -0.2, 0.5, 1.0, 0.1, -0.4})
	x.SetRequiresGrad(true)

	numericGrad(t, x, func() *Tensor {
		return MeanAutograd(SumRowsAutograd(MulAutograd(x, x)))
	}, 1e-5)
}

func TestBackwardDiv(t *testing.T) {
	a, _ := NewTensor([]int{1}, []float64{2.5})
	a.SetRequiresGrad(true)

	numericGrad(t, a, func() *Tensor {
		// scale/a + a/scale, the shape of the jump-distance objective
		scale := FromScalar(0.8)
		return AddAutograd(DivAutograd(scale, a), DivAutograd(a, scale))
	}, 1e-5)
}

func TestBackwardTrig(t *testing.T) {
	x, _ := NewTensor([]int{2, 2}, []float64{0.4, -1.2, 2.2, 0.05})
	x.SetRequiresGrad(true)

	numericGrad(t, x, func() *Tensor {
		return MeanAutograd(AddAutograd(CosAutograd(x), SinAutograd(ScaleAutograd(x, 2))))
	}, 1e-5)
}

func TestBackwardAccumulation(t *testing.T) {
	// The same parameter used twice must receive the sum of both paths.
	x, _ := NewTensor([]int{1}, []float64{3})
	x.SetRequiresGrad(true)

	out := MeanAutograd(MulAutograd(x, x)) // x^2, d/dx = 2x = 6
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if g := x.Grad().Data[0]; math.Abs(g-6) > 1e-12 {
		t.Errorf("Grad = %v, expected 6", g)
	}

	// A second backward pass accumulates on top of the first.
	out2 := MeanAutograd(MulAutograd(x, x))
	if err := out2.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if g := x.Grad().Data[0]; math.Abs(g-12) > 1e-12 {
		t.Errorf("Grad after second pass = %v, expected 12", g)
	}

	ZeroGrad([]*Tensor{x})
	if g := x.Grad().Data[0]; g != 0 {
		t.Errorf("Grad after ZeroGrad = %v, expected 0", g)
	}
}

func TestBackwardRequiresScalar(t *testing.T) {
	x, _ := NewTensor([]int{2}, []float64{1, 2})
	x.SetRequiresGrad(true)
	y := MulAutograd(x, x)
	if err := y.Backward(); err == nil {
		t.Error("Expected error for backward from non-scalar")
	}
}

func TestSaturate(t *testing.T) {
	t.Run("Bounds and NaN", func(t *testing.T) {
		x, _ := NewTensor([]int{5}, []float64{-0.5, 0.5, 3.0, math.NaN(), math.Inf(1)})
		y := SaturateAutograd(x)
		expected := []float64{0, 0.5, 1, 0, 1}
		for i, v := range y.Data {
			if v != expected[i] {
				t.Errorf("Saturate[%d] = %v, expected %v", i, v, expected[i])
			}
		}
	})

	t.Run("Gradient only in linear region", func(t *testing.T) {
		x, _ := NewTensor([]int{4}, []float64{0.5, 3.0, -1.0, math.NaN()})
		x.SetRequiresGrad(true)
		out := MeanAutograd(SaturateAutograd(x))
		if err := out.Backward(); err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
		g := x.Grad()
		if g.Data[0] == 0 {
			t.Error("Expected nonzero gradient inside (0, 1)")
		}
		for i := 1; i < 4; i++ {
			if g.Data[i] != 0 {
				t.Errorf("Expected zero gradient at saturated element %d, got %v", i, g.Data[i])
			}
		}
	})
}

func TestCustomOp(t *testing.T) {
	x, _ := NewTensor([]int{2}, []float64{1, 2})
	x.SetRequiresGrad(true)

	// y = 3x via a custom op with a hand-written backward.
	raw, _ := Scale(x, 3)
	y := Custom(raw, []*Tensor{x}, func(gradOut *Tensor) []*Tensor {
		g, _ := Scale(gradOut, 3)
		return []*Tensor{g}
	})

	out := MeanAutograd(y)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	for i, g := range x.Grad().Data {
		if math.Abs(g-1.5) > 1e-12 {
			t.Errorf("Grad[%d] = %v, expected 1.5", i, g)
		}
	}
}

func TestCustomOpStopGradient(t *testing.T) {
	x, _ := NewTensor([]int{2}, []float64{1, 2})
	x.SetRequiresGrad(true)

	raw, _ := Scale(x, 2)
	y := Custom(raw, []*Tensor{x}, func(gradOut *Tensor) []*Tensor {
		return []*Tensor{nil} // stop gradient
	})
	out := MeanAutograd(y)
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if x.Grad() != nil {
		t.Error("Expected no gradient through a stopped custom op")
	}
}
