package nn

import "gonum.org/v1/gonum/mat"

// SGD is stochastic gradient descent with momentum:
//
//	buf = momentum*buf + grad
//	p  -= lr*buf
//
// The first step initialises buf with the gradient.
type SGD struct {
	params       []*Parameter
	learningRate float64
	momentum     float64
	buffers      []*mat.Dense
}

func NewSGD(params []*Parameter, learningRate float64, momentum float64) *SGD {
	return &SGD{
		params:       params,
		learningRate: learningRate,
		momentum:     momentum,
		buffers:      make([]*mat.Dense, len(params)),
	}
}

func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}

func (o *SGD) Step() {
	for i, p := range o.params {
		if !p.RequiresGrad {
			continue
		}

		step := p.Grad
		if o.momentum != 0 {
			if o.buffers[i] == nil {
				o.buffers[i] = mat.DenseCopyOf(p.Grad)
			} else {
				o.buffers[i].Scale(o.momentum, o.buffers[i])
				o.buffers[i].Add(o.buffers[i], p.Grad)
			}
			step = o.buffers[i]
		}

		var delta mat.Dense
		delta.Scale(o.learningRate, step)
		p.Value.Sub(p.Value, &delta)
	}
}
