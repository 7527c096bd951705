package dataset

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrUnknownDataset = errors.New("unknown dataset")

// Descriptor holds the geometry of a dataset's examples.
type Descriptor struct {
	ID            string
	NumClasses    int
	ImageDim      int
	ImageChannels int
}

// FeatureLen is the number of values in one flattened example.
func (d Descriptor) FeatureLen() int {
	return d.ImageChannels * d.ImageDim * d.ImageDim
}

type Resolver interface {
	Resolve(datasetId string) (Descriptor, error)
}

// Registry is a Resolver backed by an in-memory table of descriptors.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry returns a registry preloaded with the common image datasets.
func NewRegistry() *Registry {
	r := &Registry{descriptors: map[string]Descriptor{}}
	for _, d := range []Descriptor{
		{ID: "mnist", NumClasses: 10, ImageDim: 28, ImageChannels: 1},
		{ID: "fmnist", NumClasses: 10, ImageDim: 28, ImageChannels: 1},
		{ID: "emnist", NumClasses: 62, ImageDim: 28, ImageChannels: 1},
		{ID: "cifar10", NumClasses: 10, ImageDim: 32, ImageChannels: 3},
		{ID: "svhn", NumClasses: 10, ImageDim: 32, ImageChannels: 3},
		{ID: "cifar100", NumClasses: 100, ImageDim: 32, ImageChannels: 3},
	} {
		r.descriptors[d.ID] = d
	}
	return r
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" || d.NumClasses < 1 || d.ImageDim < 1 || d.ImageChannels < 1 {
		return fmt.Errorf("invalid dataset descriptor: %+v", d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[strings.ToLower(d.ID)] = d
	return nil
}

func (r *Registry) Resolve(datasetId string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, found := r.descriptors[strings.ToLower(datasetId)]
	if !found {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownDataset, datasetId)
	}
	return d, nil
}
