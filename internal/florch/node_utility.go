package florch

import (
	"fmt"
	"math"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
)

// labelCounter is implemented by participants that can report their class
// distribution.
type labelCounter interface {
	LabelCounts() []int64
}

// logDataHeterogeneity logs, for every participant reporting label counts,
// the KL divergence between its class distribution and the distribution of
// all other participants.
func (orch *FlOrchestrator) logDataHeterogeneity() {
	counts := make([][]int64, len(orch.participants))
	for i, participant := range orch.participants {
		if counter, ok := participant.(labelCounter); ok {
			counts[i] = counter.LabelCounts()
		}
	}

	for i, participant := range orch.participants {
		if counts[i] == nil {
			continue
		}
		others := getOverallDataDistribution(counts, i)
		if others == nil {
			continue
		}
		klDiv, err := klDivergence(getClientDistribution(counts[i]), others)
		if err != nil {
			orch.logger.Warn("Skipping data heterogeneity", "participant", participant.Name(), "error", err)
			continue
		}
		orch.logger.Debug("Data heterogeneity", "participant", participant.Name(), "klDivergence", klDiv)
	}
}

func getClientDistribution(samplesPerClass []int64) []float64 {
	return toDistribution(samplesPerClass)
}

// getOverallDataDistribution merges the counts of every participant except
// skip. It returns nil when there is nothing to compare against.
func getOverallDataDistribution(counts [][]int64, skip int) []float64 {
	var samplesPerClass []int64
	for i, c := range counts {
		if i == skip || c == nil {
			continue
		}
		if samplesPerClass == nil {
			samplesPerClass = make([]int64, len(c))
		}
		if len(c) != len(samplesPerClass) {
			return nil
		}
		for class, samples := range c {
			samplesPerClass[class] += samples
		}
	}
	if samplesPerClass == nil {
		return nil
	}
	return toDistribution(samplesPerClass)
}

func toDistribution(samplesPerClass []int64) []float64 {
	var totalSamples int64
	for _, samples := range samplesPerClass {
		totalSamples += samples
	}

	distribution := make([]float64, len(samplesPerClass))
	for i, samples := range samplesPerClass {
		percentage := 0.0
		if totalSamples > 0 {
			percentage = float64(samples) / float64(totalSamples)
		}
		if percentage == 0.0 {
			percentage = 0.0001
		}
		distribution[i] = percentage
	}
	return distribution
}

func klDivergence(p, q []float64) (float64, error) {
	if len(p) != len(q) {
		return 0, fmt.Errorf("distributions have %d and %d classes", len(p), len(q))
	}

	klDiv := 0.0
	for i := 0; i < len(p); i++ {
		if q[i] == 0 {
			continue
		}
		klDiv += p[i] * math.Log(p[i]/q[i])
	}
	return klDiv, nil
}

// modelDifference is the L2 norm of a - b over all tensors. Both states must
// share a structure.
func modelDifference(a, b model.ModelState) float64 {
	sum := 0.0
	for key, t := range a {
		other := b[key].Data
		for i, v := range t.Data {
			d := v - other[i]
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}
