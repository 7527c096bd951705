// Package privacy perturbs model states before they leave a client.
package privacy

import (
	"fmt"
	"math/rand/v2"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"gonum.org/v1/gonum/stat/distuv"
)

// LaplaceMechanism adds i.i.d. zero-mean Laplace noise to every parameter.
// No clipping or sensitivity calibration is applied: scale is the only knob.
type LaplaceMechanism struct {
	scale float64
	dist  distuv.Laplace
}

// NewLaplaceMechanism draws noise from src. A mechanism must not be shared
// between goroutines because src is not synchronised.
func NewLaplaceMechanism(scale float64, src rand.Source) (*LaplaceMechanism, error) {
	if scale < 0 {
		return nil, fmt.Errorf("laplace scale must be >= 0, got %g", scale)
	}
	return &LaplaceMechanism{
		scale: scale,
		dist:  distuv.Laplace{Mu: 0, Scale: scale, Src: src},
	}, nil
}

func (lm *LaplaceMechanism) Scale() float64 {
	return lm.scale
}

// Perturb returns a noisy copy of state; state itself is never modified.
// Parameters are visited in key order so a seeded source is reproducible.
func (lm *LaplaceMechanism) Perturb(state model.ModelState) model.ModelState {
	noisy := state.Clone()
	if lm.scale == 0 {
		return noisy
	}

	for _, key := range noisy.Keys() {
		data := noisy[key].Data
		for i := range data {
			data[i] += lm.dist.Rand()
		}
	}
	return noisy
}
