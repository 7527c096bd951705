package nn

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFactoryBuildForwardShape(t *testing.T) {
	in := InputShape{NumClasses: 10, Channels: 1, ImageDim: 28}

	for _, arch := range []string{"linear", "mlp"} {
		t.Run(arch, func(t *testing.T) {
			m, err := NewFactory(0).Build(arch, in)
			require.NoError(t, err)
			assert.Equal(t, arch, m.Architecture())

			batch := model.NewTensor(3, 1, 28, 28)
			for i := range batch.Data {
				batch.Data[i] = float64(i%7) / 7
			}

			out, err := m.Forward(batch)
			require.NoError(t, err)
			assert.Equal(t, []int{3, 10}, out.Shape)
			assert.Len(t, out.Data, 30)
		})
	}
}

func TestFactoryUnknownArchitecture(t *testing.T) {
	_, err := NewFactory(0).Build("resnet", InputShape{NumClasses: 10, Channels: 1, ImageDim: 28})
	assert.True(t, errors.Is(err, ErrUnknownArchitecture))
}

func TestFactorySeedIsReproducible(t *testing.T) {
	in := InputShape{NumClasses: 3, Channels: 1, ImageDim: 2}
	a, err := NewFactory(42).Build("mlp", in)
	require.NoError(t, err)
	b, err := NewFactory(42).Build("mlp", in)
	require.NoError(t, err)

	assert.Equal(t, a.StateDict(), b.StateDict())
}

func TestForwardRejectsWrongGeometry(t *testing.T) {
	m, err := NewFactory(1).Build("linear", InputShape{NumClasses: 10, Channels: 1, ImageDim: 28})
	require.NoError(t, err)

	_, err = m.Forward(model.NewTensor(2, 3, 28, 28))
	assert.True(t, errors.Is(err, ErrInputShape))

	_, err = m.Forward(model.NewTensor(784))
	assert.True(t, errors.Is(err, ErrInputShape))
}

func TestStateDictRoundTrip(t *testing.T) {
	in := InputShape{NumClasses: 2, Channels: 1, ImageDim: 2}
	m, err := NewFactory(7).Build("linear", in)
	require.NoError(t, err)

	state := m.StateDict()
	assert.Equal(t, []string{"fc.bias", "fc.weight"}, state.Keys())
	assert.Equal(t, []int{2, 4}, state["fc.weight"].Shape)
	assert.Equal(t, []int{2}, state["fc.bias"].Shape)
	assert.Equal(t, 10, TrainableParams(m))

	t.Run("state dict is a copy", func(t *testing.T) {
		before := m.StateDict()["fc.weight"].Data[0]
		state["fc.weight"].Data[0] = 99
		assert.Equal(t, before, m.StateDict()["fc.weight"].Data[0])
	})

	t.Run("load copies values", func(t *testing.T) {
		next := m.StateDict()
		for k := range next {
			for i := range next[k].Data {
				next[k].Data[i] = 0.25
			}
		}
		require.NoError(t, m.LoadStateDict(next))
		next["fc.bias"].Data[0] = -1
		assert.Equal(t, 0.25, m.StateDict()["fc.bias"].Data[0])
	})

	t.Run("mismatch leaves model untouched", func(t *testing.T) {
		before := m.StateDict()
		bad := model.ModelState{
			"fc.weight": model.NewTensor(2, 4),
			"fc.bias":   model.NewTensor(3),
		}
		err := m.LoadStateDict(bad)
		assert.True(t, errors.Is(err, ErrStateMismatch))
		assert.Equal(t, before, m.StateDict())
	})
}

func TestCrossEntropyUniformLogits(t *testing.T) {
	logits := mat.NewDense(2, 4, nil)
	loss, grad, err := CrossEntropy(logits, []int{0, 3})
	require.NoError(t, err)

	assert.InDelta(t, 2*math.Log(4), loss, 1e-12)
	assert.InDelta(t, -0.75, grad.At(0, 0), 1e-12)
	assert.InDelta(t, 0.25, grad.At(0, 1), 1e-12)
	assert.InDelta(t, -0.75, grad.At(1, 3), 1e-12)

	_, _, err = CrossEntropy(logits, []int{0, 4})
	assert.Error(t, err)
	_, _, err = CrossEntropy(logits, []int{0})
	assert.Error(t, err)
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	in := InputShape{NumClasses: 3, Channels: 1, ImageDim: 2}
	rng := rand.New(rand.NewPCG(3, 4))
	x := mat.NewDense(5, 4, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 4; j++ {
			x.Set(i, j, rng.Float64())
		}
	}
	labels := []int{0, 1, 2, 1, 0}

	modules := map[string]Module{
		"linear": NewLinear(in, rand.New(rand.NewPCG(5, 6))),
		"mlp":    NewMLP(in, 6, rand.New(rand.NewPCG(5, 6))),
	}
	for name, m := range modules {
		t.Run(name, func(t *testing.T) {
			lossAt := func() float64 {
				loss, _, err := CrossEntropy(m.Logits(x), labels)
				require.NoError(t, err)
				return loss
			}

			_, gradLogits, err := CrossEntropy(m.Logits(x), labels)
			require.NoError(t, err)
			grads := m.Backward(x, gradLogits)
			require.Len(t, grads, len(m.Parameters()))

			const eps = 1e-6
			for pi, p := range m.Parameters() {
				data := p.Value.RawMatrix().Data
				for _, idx := range []int{0, len(data) / 2, len(data) - 1} {
					orig := data[idx]
					data[idx] = orig + eps
					plus := lossAt()
					data[idx] = orig - eps
					minus := lossAt()
					data[idx] = orig

					numeric := (plus - minus) / (2 * eps)
					analytic := grads[pi].RawMatrix().Data[idx]
					assert.InDelta(t, numeric, analytic, 1e-5, "%s[%d]", p.Name, idx)
				}
			}
		})
	}
}

func TestSGDMomentumStep(t *testing.T) {
	p := newParameter("w", 1, 2, 2)
	p.Value.SetRow(0, []float64{1, 1})
	opt := NewSGD([]*Parameter{p}, 0.1, 0.9)

	p.Grad.SetRow(0, []float64{1, -2})
	opt.Step()
	assert.InDeltaSlice(t, []float64{0.9, 1.2}, p.Value.RawRowView(0), 1e-12)

	// buf = 0.9*[1 -2] + [1 -2] = [1.9 -3.8]
	opt.Step()
	assert.InDeltaSlice(t, []float64{0.71, 1.58}, p.Value.RawRowView(0), 1e-12)

	opt.ZeroGrad()
	assert.Equal(t, []float64{0, 0}, p.Grad.RawRowView(0))
}
