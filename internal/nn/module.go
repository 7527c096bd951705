package nn

import (
	"errors"
	"fmt"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnknownArchitecture = errors.New("unknown architecture")
	ErrStateMismatch       = errors.New("model state does not match architecture")
	ErrInputShape          = errors.New("input shape does not match model")
)

// Module is a model instance built by a Factory.
type Module interface {
	Architecture() string
	InputShape() InputShape

	// Forward maps a [n, c, h, w] or [n, features] batch to [n, classes] logits.
	Forward(input model.Tensor) (model.Tensor, error)

	// Logits is Forward on a batch already flattened to [n, features].
	Logits(x *mat.Dense) *mat.Dense

	// Backward returns the gradient of each parameter, in Parameters() order,
	// given the batch x and the gradient of the loss w.r.t. Logits(x).
	// It only reads the parameters and is safe to call concurrently.
	Backward(x *mat.Dense, gradLogits *mat.Dense) []*mat.Dense

	Parameters() []*Parameter
	StateDict() model.ModelState
	LoadStateDict(state model.ModelState) error
}

// Parameter is a named weight matrix. Biases are stored as a single row but
// keep their 1-d shape in the state dict.
type Parameter struct {
	Name         string
	Shape        []int
	Value        *mat.Dense
	Grad         *mat.Dense
	RequiresGrad bool
}

func newParameter(name string, rows, cols int, shape ...int) *Parameter {
	return &Parameter{
		Name:         name,
		Shape:        shape,
		Value:        mat.NewDense(rows, cols, nil),
		Grad:         mat.NewDense(rows, cols, nil),
		RequiresGrad: true,
	}
}

func (p *Parameter) NumElements() int {
	r, c := p.Value.Dims()
	return r * c
}

func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

func (p *Parameter) tensor() model.Tensor {
	return model.Tensor{
		Shape: append([]int(nil), p.Shape...),
		Data:  append([]float64(nil), p.Value.RawMatrix().Data...),
	}
}

// TrainableParams sums the sizes of all parameters with gradients enabled.
func TrainableParams(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		if p.RequiresGrad {
			n += p.NumElements()
		}
	}
	return n
}

// layers holds the parameter bookkeeping shared by every architecture.
type layers struct {
	arch   string
	in     InputShape
	params []*Parameter
}

func (l *layers) Architecture() string {
	return l.arch
}

func (l *layers) InputShape() InputShape {
	return l.in
}

func (l *layers) Parameters() []*Parameter {
	return l.params
}

func (l *layers) StateDict() model.ModelState {
	state := make(model.ModelState, len(l.params))
	for _, p := range l.params {
		state[p.Name] = p.tensor()
	}
	return state
}

// LoadStateDict copies state into the parameters. Nothing is modified unless
// the whole state matches.
func (l *layers) LoadStateDict(state model.ModelState) error {
	if err := l.StateDict().SameStructure(state); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStateMismatch, l.arch, err)
	}
	for _, p := range l.params {
		copy(p.Value.RawMatrix().Data, state[p.Name].Data)
	}
	return nil
}

// flatten turns a [n, c, h, w] or [n, features] tensor into a [n, features] matrix.
func (l *layers) flatten(input model.Tensor) (*mat.Dense, error) {
	if len(input.Shape) < 2 {
		return nil, fmt.Errorf("%w: expected a batch, got shape %v", ErrInputShape, input.Shape)
	}
	n := input.Shape[0]
	features := 1
	for _, d := range input.Shape[1:] {
		features *= d
	}
	if len(input.Shape) == 4 && (input.Shape[1] != l.in.Channels || input.Shape[2] != l.in.ImageDim || input.Shape[3] != l.in.ImageDim) {
		return nil, fmt.Errorf("%w: expected [n %d %d %d], got %v", ErrInputShape, l.in.Channels, l.in.ImageDim, l.in.ImageDim, input.Shape)
	}
	if features != l.in.Features() {
		return nil, fmt.Errorf("%w: expected %d features, got %d", ErrInputShape, l.in.Features(), features)
	}
	if len(input.Data) != n*features {
		return nil, fmt.Errorf("%w: shape %v holds %d values, got %d", ErrInputShape, input.Shape, n*features, len(input.Data))
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInputShape)
	}
	return mat.NewDense(n, features, append([]float64(nil), input.Data...)), nil
}

func forward(m Module, l *layers, input model.Tensor) (model.Tensor, error) {
	x, err := l.flatten(input)
	if err != nil {
		return model.Tensor{}, err
	}
	logits := m.Logits(x)
	n, k := logits.Dims()
	out := model.NewTensor(n, k)
	copy(out.Data, denseData(logits))
	return out, nil
}

// denseData returns the row-major values of m without padding.
func denseData(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	data := make([]float64, 0, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		data = append(data, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
	}
	return data
}

func addBias(out *mat.Dense, bias *mat.Dense) {
	out.Apply(func(_, j int, v float64) float64 {
		return v + bias.At(0, j)
	}, out)
}

// columnSums returns a 1 x cols row of the column sums of g.
func columnSums(g *mat.Dense) *mat.Dense {
	_, cols := g.Dims()
	sums := mat.NewDense(1, cols, nil)
	for j := 0; j < cols; j++ {
		sums.Set(0, j, mat.Sum(g.ColView(j)))
	}
	return sums
}
