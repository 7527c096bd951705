package nn

import (
	"math/rand/v2"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"gonum.org/v1/gonum/mat"
)

// MLP has one ReLU hidden layer: logits = relu(x W1^T + b1) W2^T + b2.
type MLP struct {
	layers
	fc1Weight *Parameter
	fc1Bias   *Parameter
	fc2Weight *Parameter
	fc2Bias   *Parameter
}

func NewMLP(in InputShape, hidden int, rng *rand.Rand) *MLP {
	features := in.Features()
	m := &MLP{
		fc1Weight: newParameter("fc1.weight", hidden, features, hidden, features),
		fc1Bias:   newParameter("fc1.bias", 1, hidden, hidden),
		fc2Weight: newParameter("fc2.weight", in.NumClasses, hidden, in.NumClasses, hidden),
		fc2Bias:   newParameter("fc2.bias", 1, in.NumClasses, in.NumClasses),
	}
	initUniform(m.fc1Weight, features, rng)
	initUniform(m.fc1Bias, features, rng)
	initUniform(m.fc2Weight, hidden, rng)
	initUniform(m.fc2Bias, hidden, rng)
	m.layers = layers{
		arch:   common.ARCH_MLP,
		in:     in,
		params: []*Parameter{m.fc1Weight, m.fc1Bias, m.fc2Weight, m.fc2Bias},
	}
	return m
}

func (m *MLP) Forward(input model.Tensor) (model.Tensor, error) {
	return forward(m, &m.layers, input)
}

func (m *MLP) Logits(x *mat.Dense) *mat.Dense {
	_, hidden := m.hidden(x)
	var out mat.Dense
	out.Mul(hidden, m.fc2Weight.Value.T())
	addBias(&out, m.fc2Bias.Value)
	return &out
}

func (m *MLP) Backward(x *mat.Dense, gradLogits *mat.Dense) []*mat.Dense {
	pre, hidden := m.hidden(x)

	var gw2 mat.Dense
	gw2.Mul(gradLogits.T(), hidden)
	gb2 := columnSums(gradLogits)

	var gradHidden mat.Dense
	gradHidden.Mul(gradLogits, m.fc2Weight.Value)
	gradHidden.Apply(func(i, j int, v float64) float64 {
		if pre.At(i, j) <= 0 {
			return 0
		}
		return v
	}, &gradHidden)

	var gw1 mat.Dense
	gw1.Mul(gradHidden.T(), x)
	gb1 := columnSums(&gradHidden)

	return []*mat.Dense{&gw1, gb1, &gw2, gb2}
}

// hidden returns the pre-activation and the ReLU activation of the hidden layer.
func (m *MLP) hidden(x *mat.Dense) (*mat.Dense, *mat.Dense) {
	var pre mat.Dense
	pre.Mul(x, m.fc1Weight.Value.T())
	addBias(&pre, m.fc1Bias.Value)

	var act mat.Dense
	act.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, &pre)
	return &pre, &act
}
