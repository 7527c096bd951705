package flclient

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/dataset"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/nn"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/privacy"
	"github.com/hashicorp/go-hclog"
)

// Client is a federated learning participant. It owns its model and a
// reference to its local dataset. Methods are serialised; distinct clients
// share no mutable state and may be driven concurrently.
type Client struct {
	mu sync.Mutex

	identity     model.ClientIdentity
	hp           model.Hyperparameters
	ldp          model.LdpConfig
	descriptor   dataset.Descriptor
	architecture string
	device       model.Device

	factory    nn.Factory
	module     nn.Module
	paramCount int

	trainset dataset.Dataset
	nData    int

	rng     *rand.Rand
	privacy *privacy.LaplaceMechanism

	lossRecord  []float64
	epochLosses []float64

	logger   hclog.Logger
	eventBus *events.EventBus
}

func NewClient(identity model.ClientIdentity, hp model.Hyperparameters, datasetId string, architecture string,
	ldp model.LdpConfig, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := hp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: client %s: %v", ErrConfiguration, identity.Name, err)
	}
	if err := ldp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: client %s: %v", ErrConfiguration, identity.Name, err)
	}

	descriptor, err := o.resolver.Resolve(datasetId)
	if err != nil {
		return nil, fmt.Errorf("%w: client %s: %w", ErrConfiguration, identity.Name, err)
	}

	client := &Client{
		identity:     identity,
		hp:           hp,
		ldp:          ldp,
		descriptor:   descriptor,
		architecture: architecture,
		factory:      o.factory,
		logger:       o.logger.Named(identity.Name),
		eventBus:     o.eventBus,
		lossRecord:   []float64{},
	}

	module, err := client.buildModule()
	if err != nil {
		return nil, err
	}
	client.module = module
	client.paramCount = nn.TrainableParams(module)
	client.device = resolveDevice(o.gpu, client.logger)

	shuffleSrc, noiseSrc := randomSources(o.seed)
	client.rng = rand.New(shuffleSrc)
	if ldp.Enabled {
		client.privacy, err = privacy.NewLaplaceMechanism(ldp.NoiseScale, noiseSrc)
		if err != nil {
			return nil, fmt.Errorf("%w: client %s: %v", ErrConfiguration, identity.Name, err)
		}
	}

	client.logger.Info("Client initialized", "dataset", descriptor.ID, "architecture", architecture,
		"params", client.paramCount, "device", client.device.String(), "ldp", ldp.Enabled)

	return client, nil
}

// LoadTrainingData attaches ds (by reference) and records its size as the
// contribution weight.
func (c *Client) LoadTrainingData(ds dataset.Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ds == nil {
		return fmt.Errorf("%w: client %s: nil dataset", ErrPrecondition, c.identity.Name)
	}

	c.trainset = ds
	c.nData = ds.Len()
	c.logger.Debug("Training data loaded", "nData", c.nData)

	return nil
}

// ApplyGlobalUpdate replaces the current model with a freshly built instance
// holding a copy of state. The previous model is kept when state does not
// fit the architecture.
func (c *Client) ApplyGlobalUpdate(state model.ModelState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	module, err := c.buildModule()
	if err != nil {
		return err
	}
	if err := module.LoadStateDict(state); err != nil {
		return fmt.Errorf("%w: client %s: %w", ErrPrecondition, c.identity.Name, err)
	}
	c.module = module

	c.logger.Debug("Global model applied", "params", state.NumElements())
	c.publish(common.GLOBAL_UPDATE_APPLIED_EVENT_TYPE, events.GlobalUpdateAppliedEvent{
		ClientName: c.identity.Name,
		NumParams:  state.NumElements(),
	})

	return nil
}

func (c *Client) Name() string {
	return c.identity.Name
}

func (c *Client) NData() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nData
}

// ParamCount is the number of trainable parameters of the model.
func (c *Client) ParamCount() int {
	return c.paramCount
}

func (c *Client) Device() model.Device {
	return c.device
}

func (c *Client) Hyperparameters() model.Hyperparameters {
	return c.hp
}

func (c *Client) Descriptor() dataset.Descriptor {
	return c.descriptor
}

func (c *Client) Architecture() string {
	return c.architecture
}

// StateDict returns a copy of the current model state.
func (c *Client) StateDict() model.ModelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.module.StateDict()
}

// LossRecord returns the loss reported by every successful Train call.
func (c *Client) LossRecord() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.lossRecord...)
}

// EpochLosses returns the last-batch loss of each epoch of the latest Train call.
func (c *Client) EpochLosses() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.epochLosses...)
}

// LabelCounts returns the number of loaded examples per class. Out-of-range
// labels are not counted.
func (c *Client) LabelCounts() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make([]int64, c.descriptor.NumClasses)
	if c.trainset == nil {
		return counts
	}
	for i := 0; i < c.trainset.Len(); i++ {
		_, label := c.trainset.Example(i)
		if label >= 0 && label < len(counts) {
			counts[label]++
		}
	}
	return counts
}

func (c *Client) buildModule() (nn.Module, error) {
	module, err := c.factory.Build(c.architecture, nn.InputShape{
		NumClasses: c.descriptor.NumClasses,
		Channels:   c.descriptor.ImageChannels,
		ImageDim:   c.descriptor.ImageDim,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: client %s: %w", ErrConfiguration, c.identity.Name, err)
	}
	return module, nil
}

func (c *Client) publish(eventType string, data interface{}) {
	if c.eventBus == nil {
		return
	}
	c.eventBus.Publish(events.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func randomSources(seed uint64) (rand.Source, rand.Source) {
	if seed == 0 {
		return rand.NewPCG(rand.Uint64(), rand.Uint64()), rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return rand.NewPCG(seed, 1), rand.NewPCG(seed, 2)
}
