package flclient

import (
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/dataset"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/nn"
	"github.com/hashicorp/go-hclog"
)

type options struct {
	logger   hclog.Logger
	eventBus *events.EventBus
	resolver dataset.Resolver
	factory  nn.Factory
	seed     uint64
	gpu      int
}

func defaultOptions() options {
	return options{
		logger:   hclog.NewNullLogger(),
		resolver: dataset.NewRegistry(),
		factory:  nn.NewFactory(0),
		gpu:      common.DEFAULT_GPU,
	}
}

type Option func(*options)

func WithLogger(logger hclog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventBus publishes GlobalUpdateApplied and TrainingFinished events.
func WithEventBus(eventBus *events.EventBus) Option {
	return func(o *options) {
		o.eventBus = eventBus
	}
}

func WithResolver(resolver dataset.Resolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}

func WithFactory(factory nn.Factory) Option {
	return func(o *options) {
		o.factory = factory
	}
}

// WithSeed makes batch shuffling and LDP noise reproducible. Zero means random.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithGPU selects the accelerator index; -1 forces the CPU.
func WithGPU(gpu int) Option {
	return func(o *options) {
		o.gpu = gpu
	}
}
