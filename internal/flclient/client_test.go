package flclient

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/dataset"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var toyDescriptor = dataset.Descriptor{ID: "toy", NumClasses: 3, ImageDim: 2, ImageChannels: 1}

func toyResolver(t *testing.T) *dataset.Registry {
	t.Helper()
	r := dataset.NewRegistry()
	require.NoError(t, r.Register(toyDescriptor))
	return r
}

func toyData(n int) dataset.InMemory {
	return dataset.Synthetic(toyDescriptor, n, 0.05, rand.New(rand.NewPCG(11, 12)))
}

func defaultHp() model.Hyperparameters {
	return model.Hyperparameters{
		Epochs:       2,
		BatchSize:    common.DEFAULT_BATCH_SIZE,
		LearningRate: 0.05,
		Momentum:     common.DEFAULT_MOMENTUM,
		NumWorkers:   common.DEFAULT_NUM_WORKERS,
	}
}

func newToyClient(t *testing.T, name string, hp model.Hyperparameters, arch string, ldp model.LdpConfig, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithResolver(toyResolver(t)), WithFactory(nn.NewFactory(42)), WithSeed(7)}, opts...)
	client, err := NewClient(model.ClientIdentity{Name: name}, hp, "toy", arch, ldp, opts...)
	require.NoError(t, err)
	return client
}

func TestNewClientConfigurationErrors(t *testing.T) {
	t.Run("unknown dataset", func(t *testing.T) {
		_, err := NewClient(model.ClientIdentity{Name: "c"}, defaultHp(), "imagenet", "linear", model.LdpConfig{})
		assert.True(t, errors.Is(err, ErrConfiguration))
		assert.True(t, errors.Is(err, dataset.ErrUnknownDataset))
	})

	t.Run("unknown architecture", func(t *testing.T) {
		_, err := NewClient(model.ClientIdentity{Name: "c"}, defaultHp(), "mnist", "transformer", model.LdpConfig{})
		assert.True(t, errors.Is(err, ErrConfiguration))
		assert.True(t, errors.Is(err, nn.ErrUnknownArchitecture))
	})

	t.Run("invalid hyperparameters", func(t *testing.T) {
		hp := defaultHp()
		hp.Epochs = 0
		_, err := NewClient(model.ClientIdentity{Name: "c"}, hp, "mnist", "linear", model.LdpConfig{})
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("negative noise scale", func(t *testing.T) {
		_, err := NewClient(model.ClientIdentity{Name: "c"}, defaultHp(), "mnist", "linear",
			model.LdpConfig{Enabled: true, NoiseScale: -1})
		assert.True(t, errors.Is(err, ErrConfiguration))
	})
}

func TestNewClientResolvesGeometry(t *testing.T) {
	client, err := NewClient(model.ClientIdentity{Name: "c1"}, defaultHp(), "mnist", "linear", model.LdpConfig{},
		WithGPU(-1))
	require.NoError(t, err)

	assert.Equal(t, "c1", client.Name())
	assert.Equal(t, 10*784+10, client.ParamCount())
	assert.Equal(t, model.CPU, client.Device().Kind)
	assert.Equal(t, "cpu", client.Device().String())
	assert.Equal(t, 0, client.NData())

	state := client.StateDict()
	assert.Equal(t, []int{10, 784}, state["fc.weight"].Shape)
}

func TestTrainBeforeLoadFailsWithPrecondition(t *testing.T) {
	client := newToyClient(t, "c", defaultHp(), "linear", model.LdpConfig{})

	result, err := client.Train()
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrPrecondition))

	assert.True(t, errors.Is(client.LoadTrainingData(nil), ErrPrecondition))
}

func TestTrainEmptyDatasetFailsWithTrainingError(t *testing.T) {
	hp := defaultHp()
	hp.Epochs = 1
	client := newToyClient(t, "c", hp, "linear", model.LdpConfig{})
	require.NoError(t, client.LoadTrainingData(dataset.InMemory{}))

	result, err := client.Train()
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrTraining))
	assert.Empty(t, client.LossRecord())
}

func TestTrainRejectsMalformedExamples(t *testing.T) {
	client := newToyClient(t, "c", defaultHp(), "linear", model.LdpConfig{})
	before := client.StateDict()

	t.Run("wrong feature length", func(t *testing.T) {
		require.NoError(t, client.LoadTrainingData(dataset.InMemory{{Features: []float64{1, 2}, Label: 0}}))
		_, err := client.Train()
		assert.True(t, errors.Is(err, ErrTraining))
	})

	t.Run("label out of range", func(t *testing.T) {
		require.NoError(t, client.LoadTrainingData(dataset.InMemory{{Features: []float64{1, 2, 3, 4}, Label: 3}}))
		_, err := client.Train()
		assert.True(t, errors.Is(err, ErrTraining))
	})

	assert.Equal(t, before, client.StateDict())
}

func TestTrainPreservesStateStructure(t *testing.T) {
	for _, arch := range []string{common.ARCH_LINEAR, common.ARCH_MLP} {
		for _, ldp := range []model.LdpConfig{{}, {Enabled: true, NoiseScale: 0.1}} {
			t.Run(fmt.Sprintf("%s_ldp_%t", arch, ldp.Enabled), func(t *testing.T) {
				client := newToyClient(t, "c", defaultHp(), arch, ldp)
				global := client.StateDict()
				for k := range global {
					for i := range global[k].Data {
						global[k].Data[i] = 0.01 * float64(i%5)
					}
				}

				require.NoError(t, client.ApplyGlobalUpdate(global))
				require.NoError(t, client.LoadTrainingData(toyData(30)))

				result, err := client.Train()
				require.NoError(t, err)
				require.NoError(t, global.SameStructure(result.ModelState))
				assert.NotEqual(t, global, result.ModelState)
			})
		}
	}
}

func TestTrainNDataMatchesDataset(t *testing.T) {
	cases := []struct {
		n, batchSize, epochs int
	}{
		{n: 1, batchSize: 50, epochs: 1},
		{n: 49, batchSize: 50, epochs: 2},
		{n: 50, batchSize: 50, epochs: 1},
		{n: 51, batchSize: 50, epochs: 3},
		{n: 17, batchSize: 4, epochs: 2},
		{n: 2, batchSize: math.MaxInt, epochs: 1},
		{n: 10, batchSize: math.MaxInt, epochs: 2},
	}
	for _, tc := range cases {
		hp := defaultHp()
		hp.BatchSize = tc.batchSize
		hp.Epochs = tc.epochs
		client := newToyClient(t, "c", hp, "linear", model.LdpConfig{})
		require.NoError(t, client.LoadTrainingData(toyData(tc.n)))

		result, err := client.Train()
		require.NoError(t, err)
		assert.Equal(t, tc.n, result.NData)
		assert.Equal(t, tc.n, client.NData())
	}
}

func TestTrainLossDecreasesOverEpochs(t *testing.T) {
	hp := model.Hyperparameters{Epochs: 25, BatchSize: 60, LearningRate: 0.1, Momentum: 0, NumWorkers: 1}
	client := newToyClient(t, "c", hp, "linear", model.LdpConfig{Enabled: true, NoiseScale: 0})
	require.NoError(t, client.LoadTrainingData(toyData(60)))

	result, err := client.Train()
	require.NoError(t, err)

	losses := client.EpochLosses()
	require.Len(t, losses, hp.Epochs)
	for i := 1; i < len(losses); i++ {
		assert.Less(t, losses[i], losses[i-1], "epoch %d", i+1)
	}
	assert.Equal(t, losses[len(losses)-1], result.Loss)
	assert.Equal(t, []float64{result.Loss}, client.LossRecord())
}

func TestTrainZeroNoiseMatchesNoLdp(t *testing.T) {
	plain := newToyClient(t, "plain", defaultHp(), "mlp", model.LdpConfig{})
	noisy := newToyClient(t, "noisy", defaultHp(), "mlp", model.LdpConfig{Enabled: true, NoiseScale: 0})
	data := toyData(40)
	require.NoError(t, plain.LoadTrainingData(data))
	require.NoError(t, noisy.LoadTrainingData(data))

	a, err := plain.Train()
	require.NoError(t, err)
	b, err := noisy.Train()
	require.NoError(t, err)

	for _, k := range a.ModelState.Keys() {
		assert.InDeltaSlice(t, a.ModelState[k].Data, b.ModelState[k].Data, 1e-12, k)
	}
	assert.Equal(t, a.Loss, b.Loss)
}

func TestTrainLdpPerturbsReleasedStateOnly(t *testing.T) {
	client := newToyClient(t, "c", defaultHp(), "linear", model.LdpConfig{Enabled: true, NoiseScale: 0.5})
	require.NoError(t, client.LoadTrainingData(toyData(20)))

	result, err := client.Train()
	require.NoError(t, err)

	local := client.StateDict()
	require.NoError(t, local.SameStructure(result.ModelState))
	assert.NotEqual(t, local, result.ModelState)
}

func TestTrainWorkersDoNotChangeResult(t *testing.T) {
	single := defaultHp()
	single.NumWorkers = 1
	many := defaultHp()
	many.NumWorkers = 4

	a := newToyClient(t, "a", single, "mlp", model.LdpConfig{})
	b := newToyClient(t, "b", many, "mlp", model.LdpConfig{})
	data := toyData(45)
	require.NoError(t, a.LoadTrainingData(data))
	require.NoError(t, b.LoadTrainingData(data))

	ra, err := a.Train()
	require.NoError(t, err)
	rb, err := b.Train()
	require.NoError(t, err)

	for _, k := range ra.ModelState.Keys() {
		assert.InDeltaSlice(t, ra.ModelState[k].Data, rb.ModelState[k].Data, 1e-9, k)
	}
	assert.InDelta(t, ra.Loss, rb.Loss, 1e-9)
}

func TestTrainDoesNotMutateDataset(t *testing.T) {
	client := newToyClient(t, "c", defaultHp(), "linear", model.LdpConfig{})
	data := toyData(12)
	snapshot := make(dataset.InMemory, len(data))
	for i, s := range data {
		snapshot[i] = dataset.Sample{Features: append([]float64(nil), s.Features...), Label: s.Label}
	}
	require.NoError(t, client.LoadTrainingData(data))

	_, err := client.Train()
	require.NoError(t, err)
	assert.Equal(t, snapshot, data)
}

func TestApplyGlobalUpdateDoesNotAlias(t *testing.T) {
	client := newToyClient(t, "c", defaultHp(), "linear", model.LdpConfig{})
	global := client.StateDict()
	for k := range global {
		for i := range global[k].Data {
			global[k].Data[i] = 1
		}
	}

	require.NoError(t, client.ApplyGlobalUpdate(global))
	global["fc.weight"].Data[0] = 123
	assert.Equal(t, 1.0, client.StateDict()["fc.weight"].Data[0])

	require.NoError(t, client.LoadTrainingData(toyData(9)))
	_, err := client.Train()
	require.NoError(t, err)
	assert.Equal(t, 123.0, global["fc.weight"].Data[0])
}

func TestApplyGlobalUpdateRejectsMismatchedState(t *testing.T) {
	client := newToyClient(t, "c", defaultHp(), "linear", model.LdpConfig{})
	before := client.StateDict()

	err := client.ApplyGlobalUpdate(model.ModelState{"fc.weight": model.NewTensor(3, 4)})
	assert.True(t, errors.Is(err, ErrPrecondition))
	assert.True(t, errors.Is(err, nn.ErrStateMismatch))
	assert.Equal(t, before, client.StateDict())
}

func TestTrainIsReproducibleWithSeed(t *testing.T) {
	a := newToyClient(t, "a", defaultHp(), "linear", model.LdpConfig{Enabled: true, NoiseScale: 0.1})
	b := newToyClient(t, "b", defaultHp(), "linear", model.LdpConfig{Enabled: true, NoiseScale: 0.1})
	require.NoError(t, a.LoadTrainingData(toyData(30)))
	require.NoError(t, b.LoadTrainingData(toyData(30)))

	ra, err := a.Train()
	require.NoError(t, err)
	rb, err := b.Train()
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestClientPublishesEvents(t *testing.T) {
	eventBus := events.NewEventBus()
	applied := make(chan events.Event, 1)
	finished := make(chan events.Event, 1)
	eventBus.Subscribe(common.GLOBAL_UPDATE_APPLIED_EVENT_TYPE, applied)
	eventBus.Subscribe(common.TRAINING_FINISHED_EVENT_TYPE, finished)

	client := newToyClient(t, "c", defaultHp(), "linear", model.LdpConfig{}, WithEventBus(eventBus))
	require.NoError(t, client.ApplyGlobalUpdate(client.StateDict()))
	require.NoError(t, client.LoadTrainingData(toyData(10)))
	result, err := client.Train()
	require.NoError(t, err)

	appliedEvent := (<-applied).Data.(events.GlobalUpdateAppliedEvent)
	assert.Equal(t, "c", appliedEvent.ClientName)
	assert.Equal(t, client.ParamCount(), appliedEvent.NumParams)

	finishedEvent := (<-finished).Data.(events.TrainingFinishedEvent)
	assert.Equal(t, 10, finishedEvent.NData)
	assert.Equal(t, result.Loss, finishedEvent.Loss)
	assert.False(t, finishedEvent.Perturbed)
}

func TestDistinctClientsTrainConcurrently(t *testing.T) {
	const numClients = 4
	clients := make([]*Client, numClients)
	for i := range clients {
		clients[i] = newToyClient(t, "c", defaultHp(), "mlp", model.LdpConfig{Enabled: true, NoiseScale: 0.01})
		require.NoError(t, clients[i].LoadTrainingData(toyData(20+i)))
	}

	results := make([]*model.TrainingResult, numClients)
	errs := make([]error, numClients)
	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = client.Train()
		}()
	}
	wg.Wait()

	for i := range clients {
		require.NoError(t, errs[i])
		assert.Equal(t, 20+i, results[i].NData)
	}
}

func TestShardBounds(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 4}, {4, 7}, {7, 10}}, shardBounds(10, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, shardBounds(2, 5))
	assert.Equal(t, [][2]int{{0, 5}}, shardBounds(5, 1))
	assert.Equal(t, 0, numBatches(0, 50))
	assert.Equal(t, 2, numBatches(51, 50))
	assert.Equal(t, 1, numBatches(10, math.MaxInt))
	assert.Equal(t, 0, numBatches(0, math.MaxInt))
}

func TestLabelCounts(t *testing.T) {
	client := newToyClient(t, "c", defaultHp(), "linear", model.LdpConfig{})
	assert.Equal(t, []int64{0, 0, 0}, client.LabelCounts())

	require.NoError(t, client.LoadTrainingData(dataset.InMemory{
		{Features: make([]float64, 4), Label: 0},
		{Features: make([]float64, 4), Label: 2},
		{Features: make([]float64, 4), Label: 2},
		{Features: make([]float64, 4), Label: 9},
	}))
	assert.Equal(t, []int64{1, 0, 2}, client.LabelCounts())
}
