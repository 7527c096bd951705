package performance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type LogarithmicRegression struct {
	xs []float64
	ys []float64
	a  float64
	b  float64
}

// NewLogarithmicRegression fits y = a + b*ln(x+1) by least squares.
func NewLogarithmicRegression(xs, ys []float64) (*LogarithmicRegression, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("got %d xs and %d ys", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("need at least 2 points, got %d", len(xs))
	}

	lr := &LogarithmicRegression{
		xs: xs,
		ys: ys,
	}

	// Linear regression on log-transformed xs
	const degree = 1
	X := mat.NewDense(len(xs), degree+1, nil)
	for i, x := range xs {
		X.Set(i, 0, 1) // constant term
		X.Set(i, 1, math.Log(x+1))
	}
	Y := mat.NewVecDense(len(ys), ys)

	var coef mat.VecDense
	if err := coef.SolveVec(X, Y); err != nil {
		return nil, fmt.Errorf("solving the linear system: %w", err)
	}

	lr.a = coef.AtVec(0)
	lr.b = coef.AtVec(1)

	return lr, nil
}

// PredictY predicts a value for x using the logarithmic model
func (lr *LogarithmicRegression) PredictY(x float64) float64 {
	return lr.a + lr.b*math.Log(x+1)
}

// PredictX solves for x given a y value using the logarithmic model
func (lr *LogarithmicRegression) PredictX(y float64) float64 {
	if lr.b == 0 {
		return math.NaN()
	}
	return math.Exp((y-lr.a)/lr.b) - 1
}

func (lr *LogarithmicRegression) PrintFunction() string {
	return fmt.Sprintf("f(x) = %.4f + %.4f * ln(x+1)", lr.a, lr.b)
}
