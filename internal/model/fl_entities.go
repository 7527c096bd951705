package model

import "fmt"

type ClientIdentity struct {
	Name string
}

type Hyperparameters struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Momentum     float64
	NumWorkers   int
}

// Validate reports the first hyperparameter outside its allowed range.
func (hp Hyperparameters) Validate() error {
	if hp.Epochs < 1 {
		return fmt.Errorf("epochs must be >= 1, got %d", hp.Epochs)
	}
	if hp.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", hp.BatchSize)
	}
	if !(hp.LearningRate > 0) {
		return fmt.Errorf("learning rate must be > 0, got %g", hp.LearningRate)
	}
	if hp.Momentum < 0 || hp.Momentum > 1 {
		return fmt.Errorf("momentum must be in [0, 1], got %g", hp.Momentum)
	}
	return nil
}

// Workers returns the parallelism hint, never less than one.
func (hp Hyperparameters) Workers() int {
	if hp.NumWorkers < 1 {
		return 1
	}
	return hp.NumWorkers
}

type LdpConfig struct {
	Enabled    bool
	NoiseScale float64
}

func (c LdpConfig) Validate() error {
	if c.NoiseScale < 0 {
		return fmt.Errorf("ldp noise scale must be >= 0, got %g", c.NoiseScale)
	}
	return nil
}

// TrainingResult is the only value a client hands back to the server.
// Loss is the loss of the last processed batch of the last epoch.
type TrainingResult struct {
	ModelState ModelState `json:"modelState"`
	NData      int        `json:"nData"`
	Loss       float64    `json:"loss"`
}
