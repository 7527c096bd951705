package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
)

// InputShape is what a factory needs to size a model.
type InputShape struct {
	NumClasses int
	Channels   int
	ImageDim   int
}

func (s InputShape) Features() int {
	return s.Channels * s.ImageDim * s.ImageDim
}

type Factory interface {
	Build(architecture string, in InputShape) (Module, error)
}

// DefaultFactory builds the "linear" and "mlp" architectures. With a non-zero
// Seed every build starts from identical weights; otherwise each build draws
// fresh ones. It holds no mutable state and may be shared between clients.
type DefaultFactory struct {
	Seed uint64
}

func NewFactory(seed uint64) *DefaultFactory {
	return &DefaultFactory{Seed: seed}
}

func (f *DefaultFactory) Build(architecture string, in InputShape) (Module, error) {
	if in.NumClasses < 1 || in.Features() < 1 {
		return nil, fmt.Errorf("%w: invalid input shape %+v", ErrInputShape, in)
	}

	rng := f.rng()
	switch strings.ToLower(architecture) {
	case common.ARCH_LINEAR:
		return NewLinear(in, rng), nil
	case common.ARCH_MLP:
		return NewMLP(in, common.MLP_HIDDEN_UNITS, rng), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchitecture, architecture)
	}
}

func (f *DefaultFactory) rng() *rand.Rand {
	if f.Seed != 0 {
		return rand.New(rand.NewPCG(f.Seed, f.Seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// initUniform fills p with U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func initUniform(p *Parameter, fanIn int, rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(fanIn))
	data := p.Value.RawMatrix().Data
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * bound
	}
}
