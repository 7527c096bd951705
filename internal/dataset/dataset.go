package dataset

// Dataset is an ordered collection of (features, label) pairs. Features are
// the flattened [channels, dim, dim] image.
type Dataset interface {
	Len() int
	Example(i int) (features []float64, label int)
}

// Sample is a single labelled example.
type Sample struct {
	Features []float64
	Label    int
}

// InMemory is a Dataset held in a slice.
type InMemory []Sample

func (d InMemory) Len() int {
	return len(d)
}

func (d InMemory) Example(i int) ([]float64, int) {
	return d[i].Features, d[i].Label
}
