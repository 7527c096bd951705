package model

import (
	"fmt"
	"sort"
)

// Tensor is a dense row-major array of floats.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

func NewTensor(shape ...int) Tensor {
	t := Tensor{Shape: append([]int(nil), shape...)}
	t.Data = make([]float64, t.NumElements())
	return t
}

// NumElements is the product of the shape dimensions.
func (t Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

func (t Tensor) SameShape(other Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// ModelState maps parameter names to their values.
type ModelState map[string]Tensor

// Keys returns the parameter names in their natural (sorted) order.
func (s ModelState) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep-copies every tensor so the copy never aliases s.
func (s ModelState) Clone() ModelState {
	if s == nil {
		return nil
	}
	c := make(ModelState, len(s))
	for k, t := range s {
		c[k] = t.Clone()
	}
	return c
}

func (s ModelState) NumElements() int {
	n := 0
	for _, t := range s {
		n += t.NumElements()
	}
	return n
}

// SameStructure returns nil when both states have the same names and shapes.
func (s ModelState) SameStructure(other ModelState) error {
	if len(s) != len(other) {
		return fmt.Errorf("expected %d parameters, got %d", len(s), len(other))
	}
	for _, k := range s.Keys() {
		o, found := other[k]
		if !found {
			return fmt.Errorf("missing parameter %q", k)
		}
		if !s[k].SameShape(o) {
			return fmt.Errorf("parameter %q: expected shape %v, got %v", k, s[k].Shape, o.Shape)
		}
		if len(o.Data) != o.NumElements() {
			return fmt.Errorf("parameter %q: shape %v holds %d values, got %d", k, o.Shape, o.NumElements(), len(o.Data))
		}
	}
	return nil
}
