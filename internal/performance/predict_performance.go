package performance

import (
	"fmt"
	"math"
)

const LogarithmicRegression_PredictionType = "log-reg"

// Regression maps rounds to losses and back.
type Regression interface {
	PredictY(x float64) float64
	PredictX(y float64) float64
	PrintFunction() string
}

// LossPrediction fits a trend through the losses of consecutive rounds.
// Round r (1-based) holds losses[r-1].
type LossPrediction struct {
	regressionFunctionLosses Regression
	rounds                   int
}

func NewLossPrediction(losses []float64, predictionType string) (*LossPrediction, error) {
	xs, ys := prepareXAndY(losses)

	lp := &LossPrediction{rounds: len(losses)}
	switch predictionType {
	case LogarithmicRegression_PredictionType:
		regression, err := NewLogarithmicRegression(xs, ys)
		if err != nil {
			return nil, err
		}
		lp.regressionFunctionLosses = regression
	default:
		return nil, fmt.Errorf("invalid prediction type: %s", predictionType)
	}

	return lp, nil
}

func (lp *LossPrediction) PredictLoss(round int) float64 {
	return lp.regressionFunctionLosses.PredictY(float64(round))
}

// PredictNextLoss predicts the loss of the round after the last recorded one.
func (lp *LossPrediction) PredictNextLoss() float64 {
	return lp.PredictLoss(lp.rounds + 1)
}

// PredictRoundForLoss returns the first round expected to reach loss, or -1
// when the trend never gets there.
func (lp *LossPrediction) PredictRoundForLoss(loss float64) int {
	predicted := lp.regressionFunctionLosses.PredictX(loss)
	if math.IsNaN(predicted) || math.IsInf(predicted, 0) || predicted > math.MaxInt32 {
		return -1
	}
	return int(math.Ceil(predicted))
}

func (lp *LossPrediction) PrintPrediction() string {
	return lp.regressionFunctionLosses.PrintFunction()
}

func prepareXAndY(losses []float64) ([]float64, []float64) {
	xs := make([]float64, len(losses))
	ys := make([]float64, len(losses))

	for i, loss := range losses {
		xs[i] = float64(i + 1)
		ys[i] = loss
	}

	return xs, ys
}
