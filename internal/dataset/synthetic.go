package dataset

import "math/rand/v2"

// Synthetic generates n examples around one random prototype per class, with
// labels assigned round-robin. The classes are linearly separable for small
// spread.
func Synthetic(desc Descriptor, n int, spread float64, rng *rand.Rand) InMemory {
	prototypes := make([][]float64, desc.NumClasses)
	for c := range prototypes {
		prototypes[c] = make([]float64, desc.FeatureLen())
		for j := range prototypes[c] {
			prototypes[c][j] = rng.Float64()
		}
	}

	samples := make(InMemory, n)
	for i := range samples {
		label := i % desc.NumClasses
		feats := make([]float64, desc.FeatureLen())
		for j := range feats {
			feats[j] = prototypes[label][j] + spread*rng.NormFloat64()
		}
		samples[i] = Sample{Features: feats, Label: label}
	}
	return samples
}
