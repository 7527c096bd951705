package cost

import "github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"

// GetGlobalRoundCost is the cost of one global round over results.
// COMMUNICATION counts transferred parameters: each participant downloads
// and uploads modelSize values. ENERGY counts the local examples trained on.
func GetGlobalRoundCost(results []*model.TrainingResult, modelSize int, costSource CostSource) float64 {
	if costSource == COMMUNICATION {
		return float64(2 * modelSize * len(results))
	}

	cost := 0.0
	for _, result := range results {
		cost += float64(result.NData)
	}
	return cost
}

// Tracker accumulates round costs against a total budget.
type Tracker struct {
	configuration CostConfiguration
	modelSize     int
	spent         float64
}

func NewTracker(configuration CostConfiguration, modelSize int) (*Tracker, error) {
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{configuration: configuration, modelSize: modelSize}, nil
}

// Add records the cost of a finished round and returns it.
func (t *Tracker) Add(results []*model.TrainingResult) float64 {
	roundCost := GetGlobalRoundCost(results, t.modelSize, t.configuration.Source)
	t.spent += roundCost
	return roundCost
}

func (t *Tracker) Spent() float64 {
	return t.spent
}

// Remaining is the unspent budget, never negative.
func (t *Tracker) Remaining() float64 {
	if t.spent >= t.configuration.Budget {
		return 0
	}
	return t.configuration.Budget - t.spent
}

// Affords reports whether another round costing like the last one fits the
// remaining budget.
func (t *Tracker) Affords(lastRoundCost float64) bool {
	return lastRoundCost <= t.Remaining()
}
