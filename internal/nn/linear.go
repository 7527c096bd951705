package nn

import (
	"math/rand/v2"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Linear is a softmax regression model: logits = x W^T + b.
type Linear struct {
	layers
	weight *Parameter
	bias   *Parameter
}

func NewLinear(in InputShape, rng *rand.Rand) *Linear {
	features := in.Features()
	m := &Linear{
		weight: newParameter("fc.weight", in.NumClasses, features, in.NumClasses, features),
		bias:   newParameter("fc.bias", 1, in.NumClasses, in.NumClasses),
	}
	initUniform(m.weight, features, rng)
	initUniform(m.bias, features, rng)
	m.layers = layers{arch: common.ARCH_LINEAR, in: in, params: []*Parameter{m.weight, m.bias}}
	return m
}

func (m *Linear) Forward(input model.Tensor) (model.Tensor, error) {
	return forward(m, &m.layers, input)
}

func (m *Linear) Logits(x *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(x, m.weight.Value.T())
	addBias(&out, m.bias.Value)
	return &out
}

func (m *Linear) Backward(x *mat.Dense, gradLogits *mat.Dense) []*mat.Dense {
	var gw mat.Dense
	gw.Mul(gradLogits.T(), x)
	return []*mat.Dense{&gw, columnSums(gradLogits)}
}
