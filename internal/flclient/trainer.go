package flclient

import (
	"fmt"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/nn"
	"gonum.org/v1/gonum/mat"
)

// Train runs the local epochs over the loaded dataset and returns the
// trained (and, with LDP enabled, perturbed) state, the dataset size and the
// loss of the last processed batch of the last epoch.
//
// Train blocks until every epoch is done. On error no result is returned; the
// model may already have been updated if the failure happened mid-epoch.
func (c *Client) Train() (*model.TrainingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.trainset == nil {
		return nil, fmt.Errorf("%w: client %s: no training data loaded", ErrPrecondition, c.identity.Name)
	}

	n := c.trainset.Len()
	if numBatches(n, c.hp.BatchSize) == 0 {
		return nil, fmt.Errorf("%w: client %s: dataset yields zero batches", ErrTraining, c.identity.Name)
	}
	if err := c.validateTrainset(); err != nil {
		return nil, fmt.Errorf("%w: client %s: %v", ErrTraining, c.identity.Name, err)
	}

	start := time.Now()
	optimizer := nn.NewSGD(c.module.Parameters(), c.hp.LearningRate, c.hp.Momentum)
	epochLosses := make([]float64, 0, c.hp.Epochs)

	var loss float64
	for epoch := 0; epoch < c.hp.Epochs; epoch++ {
		for _, batch := range c.shuffledBatches(n) {
			x, labels := c.collate(batch)
			stepLoss, err := c.step(optimizer, x, labels)
			if err != nil {
				return nil, fmt.Errorf("%w: client %s: epoch %d: %v", ErrTraining, c.identity.Name, epoch+1, err)
			}
			loss = stepLoss
		}
		epochLosses = append(epochLosses, loss)
		c.logger.Trace("Epoch finished", "epoch", epoch+1, "loss", loss)
	}

	state := c.module.StateDict()
	if c.ldp.Enabled {
		state = c.privacy.Perturb(state)
	}
	result := packageUpdate(state, c.nData, loss)

	c.epochLosses = epochLosses
	c.lossRecord = append(c.lossRecord, loss)

	duration := time.Since(start)
	c.logger.Info("Local training finished", "epochs", c.hp.Epochs, "nData", c.nData, "loss", loss,
		"duration", duration)
	c.publish(common.TRAINING_FINISHED_EVENT_TYPE, events.TrainingFinishedEvent{
		ClientName: c.identity.Name,
		NData:      c.nData,
		Loss:       loss,
		Perturbed:  c.ldp.Enabled,
		Duration:   duration,
	})

	return result, nil
}

// step runs forward, loss, backward and one optimizer update on a batch.
// The batch is split into one shard per worker; shard gradients are summed
// in shard order.
func (c *Client) step(optimizer *nn.SGD, x *mat.Dense, labels []int) (float64, error) {
	optimizer.ZeroGrad()

	n, cols := x.Dims()
	shards := shardBounds(n, c.hp.Workers())
	lossSums := make([]float64, len(shards))
	grads := make([][]*mat.Dense, len(shards))
	errs := make([]error, len(shards))

	common.ForEach(len(shards), len(shards), func(i int) {
		lo, hi := shards[i][0], shards[i][1]
		xs := x.Slice(lo, hi, 0, cols).(*mat.Dense)

		lossSum, gradLogits, err := nn.CrossEntropy(c.module.Logits(xs), labels[lo:hi])
		if err != nil {
			errs[i] = err
			return
		}
		lossSums[i] = lossSum
		grads[i] = c.module.Backward(xs, gradLogits)
	})

	total := 0.0
	for i := range shards {
		if errs[i] != nil {
			return 0, errs[i]
		}
		total += lossSums[i]
	}

	params := c.module.Parameters()
	for i := range shards {
		for pi, p := range params {
			p.Grad.Add(p.Grad, grads[i][pi])
		}
	}
	for _, p := range params {
		p.Grad.Scale(1/float64(n), p.Grad)
	}

	optimizer.Step()

	return total / float64(n), nil
}

// shuffledBatches returns a fresh random partition of [0, n) into batches.
func (c *Client) shuffledBatches(n int) [][]int {
	perm := c.rng.Perm(n)
	batches := make([][]int, 0, numBatches(n, c.hp.BatchSize))
	for start := 0; start < n; {
		end := start + min(c.hp.BatchSize, n-start)
		batches = append(batches, perm[start:end])
		start = end
	}
	return batches
}

func (c *Client) collate(batch []int) (*mat.Dense, []int) {
	x := mat.NewDense(len(batch), c.descriptor.FeatureLen(), nil)
	labels := make([]int, len(batch))
	for row, idx := range batch {
		features, label := c.trainset.Example(idx)
		x.SetRow(row, features)
		labels[row] = label
	}
	return x, labels
}

// validateTrainset checks every example before the first update so a bad
// example cannot leave the model half trained.
func (c *Client) validateTrainset() error {
	features := c.descriptor.FeatureLen()
	for i := 0; i < c.trainset.Len(); i++ {
		f, label := c.trainset.Example(i)
		if len(f) != features {
			return fmt.Errorf("example %d has %d features, expected %d", i, len(f), features)
		}
		if label < 0 || label >= c.descriptor.NumClasses {
			return fmt.Errorf("example %d has label %d outside [0, %d)", i, label, c.descriptor.NumClasses)
		}
	}
	return nil
}

func numBatches(n, batchSize int) int {
	batches := n / batchSize
	if n%batchSize != 0 {
		batches++
	}
	return batches
}

// shardBounds splits [0, n) into at most workers contiguous non-empty ranges.
func shardBounds(n, workers int) [][2]int {
	if workers > n {
		workers = n
	}
	shards := make([][2]int, 0, workers)
	size, rest := n/workers, n%workers
	lo := 0
	for i := 0; i < workers; i++ {
		hi := lo + size
		if i < rest {
			hi++
		}
		shards = append(shards, [2]int{lo, hi})
		lo = hi
	}
	return shards
}
