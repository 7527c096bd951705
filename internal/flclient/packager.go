package flclient

import "github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"

// packageUpdate assembles the contribution sent back to the server.
func packageUpdate(state model.ModelState, nData int, loss float64) *model.TrainingResult {
	return &model.TrainingResult{
		ModelState: state,
		NData:      nData,
		Loss:       loss,
	}
}
