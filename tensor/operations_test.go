package tensor

import (
	"math"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("Valid tensor", func(t *testing.T) {
		tn, err := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if tn.NumElems != 6 {
			t.Errorf("NumElems = %d, expected 6", tn.NumElems)
		}
		if v, _ := tn.At(1, 2); v != 6 {
			t.Errorf("At(1,2) = %v, expected 6", v)
		}
	})

	t.Run("Data length mismatch", func(t *testing.T) {
		_, err := NewTensor([]int{2, 3}, []float64{1, 2})
		if err == nil {
			t.Error("Expected error for mismatched data length")
		}
	})

	t.Run("Invalid shape", func(t *testing.T) {
		_, err := NewTensor([]int{2, -1}, nil)
		if err == nil {
			t.Error("Expected error for negative dimension")
		}
	})

	t.Run("Rank above 2 rejected", func(t *testing.T) {
		_, err := Zeros([]int{2, 2, 2})
		if err == nil {
			t.Error("Expected error for rank-3 shape")
		}
	})

	t.Run("Data is copied", func(t *testing.T) {
		src := []float64{1, 2}
		tn, _ := NewTensor([]int{2}, src)
		src[0] = 99
		if tn.Data[0] != 1 {
			t.Error("NewTensor must copy its input data")
		}
	})
}

func TestElementwiseOps(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, []float64{1, 2, 3, 4})
	b, _ := NewTensor([]int{2, 2}, []float64{10, 20, 30, 40})

	t.Run("Add", func(t *testing.T) {
		result, err := Add(a, b)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		expected := []float64{11, 22, 33, 44}
		for i, v := range result.Data {
			if v != expected[i] {
				t.Errorf("Add[%d] = %v, expected %v", i, v, expected[i])
			}
		}
	})

	t.Run("Sub", func(t *testing.T) {
		result, _ := Sub(b, a)
		if result.Data[3] != 36 {
			t.Errorf("Sub[3] = %v, expected 36", result.Data[3])
		}
	})

	t.Run("Mul", func(t *testing.T) {
		result, _ := Mul(a, b)
		if result.Data[2] != 90 {
			t.Errorf("Mul[2] = %v, expected 90", result.Data[2])
		}
	})

	t.Run("Div", func(t *testing.T) {
		result, _ := Div(b, a)
		if result.Data[1] != 10 {
			t.Errorf("Div[1] = %v, expected 10", result.Data[1])
		}
	})

	t.Run("Scale", func(t *testing.T) {
		result, _ := Scale(a, -2)
		if result.Data[0] != -2 {
			t.Errorf("Scale[0] = %v, expected -2", result.Data[0])
		}
	})

	t.Run("Incompatible shapes", func(t *testing.T) {
		c, _ := NewTensor([]int{3}, []float64{1, 2, 3})
		if _, err := Add(a, c); err == nil {
			t.Error("Expected error for incompatible shapes")
		}
	})
}

func TestBroadcasting(t *testing.T) {
	m, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	t.Run("Scalar broadcast", func(t *testing.T) {
		s := FromScalar(10)
		result, err := Mul(m, s)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if result.Data[5] != 60 {
			t.Errorf("Mul[5] = %v, expected 60", result.Data[5])
		}
	})

	t.Run("Scalar on the left", func(t *testing.T) {
		s := FromScalar(1)
		result, err := Sub(s, m)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if result.Data[0] != 0 || result.Data[5] != -5 {
			t.Errorf("Sub result = %v", result.Data)
		}
	})

	t.Run("Row vector broadcast", func(t *testing.T) {
		row, _ := NewTensor([]int{3}, []float64{10, 20, 30})
		result, err := Add(m, row)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		expected := []float64{11, 22, 33, 14, 25, 36}
		for i, v := range result.Data {
			if v != expected[i] {
				t.Errorf("Add[%d] = %v, expected %v", i, v, expected[i])
			}
		}
	})

	t.Run("Row vector length mismatch", func(t *testing.T) {
		row, _ := NewTensor([]int{2}, []float64{1, 2})
		if _, err := Add(m, row); err == nil {
			t.Error("Expected error for row vector of wrong length")
		}
	})
}

func TestMatMul(t *testing.T) {
	t.Run("Known product", func(t *testing.T) {
		a, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
		b, _ := NewTensor([]int{3, 2}, []float64{7, 8, 9, 10, 11, 12})
		result, err := MatMul(a, b)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		expected := []float64{58, 64, 139, 154}
		for i, v := range result.Data {
			if v != expected[i] {
				t.Errorf("MatMul[%d] = %v, expected %v", i, v, expected[i])
			}
		}
	})

	t.Run("Inner dimension mismatch", func(t *testing.T) {
		a, _ := Zeros([]int{2, 3})
		b, _ := Zeros([]int{2, 3})
		if _, err := MatMul(a, b); err == nil {
			t.Error("Expected error for mismatched inner dimensions")
		}
	})
}

func TestReductions(t *testing.T) {
	m, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	t.Run("SumRows", func(t *testing.T) {
		result, err := SumRows(m)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if result.Data[0] != 6 || result.Data[1] != 15 {
			t.Errorf("SumRows = %v, expected [6 15]", result.Data)
		}
	})

	t.Run("SumAll and Mean", func(t *testing.T) {
		s, _ := SumAll(m)
		if s.Data[0] != 21 {
			t.Errorf("SumAll = %v, expected 21", s.Data[0])
		}
		mean, _ := Mean(m)
		if mean.Data[0] != 3.5 {
			t.Errorf("Mean = %v, expected 3.5", mean.Data[0])
		}
	})
}

func TestUnaryOps(t *testing.T) {
	a, _ := NewTensor([]int{2}, []float64{0, 1})

	t.Run("Exp", func(t *testing.T) {
		result, _ := Exp(a)
		if result.Data[0] != 1 || math.Abs(result.Data[1]-math.E) > 1e-15 {
			t.Errorf("Exp = %v", result.Data)
		}
	})

	t.Run("Tanh", func(t *testing.T) {
		result, _ := Tanh(a)
		if result.Data[0] != 0 {
			t.Errorf("Tanh(0) = %v, expected 0", result.Data[0])
		}
	})

	t.Run("ReLU", func(t *testing.T) {
		neg, _ := NewTensor([]int{3}, []float64{-1, 0, 2})
		result, _ := ReLU(neg)
		expected := []float64{0, 0, 2}
		for i, v := range result.Data {
			if v != expected[i] {
				t.Errorf("ReLU[%d] = %v, expected %v", i, v, expected[i])
			}
		}
	})

	t.Run("NaN propagates", func(t *testing.T) {
		bad, _ := NewTensor([]int{1}, []float64{math.NaN()})
		result, _ := Exp(bad)
		if !math.IsNaN(result.Data[0]) {
			t.Error("Expected NaN to propagate through Exp")
		}
		if bad.IsFinite() {
			t.Error("IsFinite must report NaN")
		}
	})
}

func TestTranspose(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	result, err := Transpose(a)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v, _ := result.At(2, 1); v != 6 {
		t.Errorf("Transpose At(2,1) = %v, expected 6", v)
	}
}

func TestDetach(t *testing.T) {
	a, _ := NewTensor([]int{2}, []float64{1, 2})
	a.SetRequiresGrad(true)
	d := a.Detach()
	if d.RequiresGrad() {
		t.Error("Detached tensor must not require gradients")
	}
	if d.Creator() != nil {
		t.Error("Detached tensor must not keep its creator")
	}
	d.Data[0] = 5
	if a.Data[0] != 5 {
		t.Error("Detach must share the underlying data")
	}
}
