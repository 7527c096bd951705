package florch

import (
	"fmt"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
)

// FedAvg averages the states of results weighted by their NData.
func FedAvg(results []*model.TrainingResult) (model.ModelState, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no results to aggregate")
	}

	totalData := 0
	for _, result := range results {
		totalData += result.NData
	}
	if totalData == 0 {
		return nil, fmt.Errorf("results hold no data")
	}

	reference := results[0].ModelState
	aggregated := make(model.ModelState, len(reference))
	for key, t := range reference {
		aggregated[key] = model.NewTensor(t.Shape...)
	}

	for i, result := range results {
		if err := reference.SameStructure(result.ModelState); err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		weight := float64(result.NData) / float64(totalData)
		for key, t := range result.ModelState {
			sum := aggregated[key].Data
			for j, v := range t.Data {
				sum[j] += weight * v
			}
		}
	}

	return aggregated, nil
}

// weightedLoss averages the reported losses weighted by NData.
func weightedLoss(results []*model.TrainingResult) float64 {
	totalData, loss := 0, 0.0
	for _, result := range results {
		totalData += result.NData
		loss += float64(result.NData) * result.Loss
	}
	if totalData == 0 {
		return 0
	}
	return loss / float64(totalData)
}
