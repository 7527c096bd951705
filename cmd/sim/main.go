package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/dataset"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/flclient"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/florch"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/florch/cost"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/nn"
	"github.com/hashicorp/go-hclog"
)

// usage: sim <numClients> <rounds> [noiseScale] [energyBudget]
func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "fl-sim",
		Level: hclog.LevelFromString("DEBUG"),
	})

	numClients, rounds, noiseScale, budget, err := parseArgs(os.Args[1:])
	if err != nil {
		logger.Error("Invalid arguments", "usage", "sim <numClients> <rounds> [noiseScale] [energyBudget]", "error", err)
		os.Exit(2)
	}

	eventBus := events.NewEventBus()
	finishedChannel := make(chan events.Event, 1)
	eventBus.Subscribe(common.FL_FINISHED_EVENT_TYPE, finishedChannel)

	registry := dataset.NewRegistry()
	desc, _ := registry.Resolve("mnist")
	factory := nn.NewFactory(1)
	hp := model.Hyperparameters{
		Epochs:       1,
		BatchSize:    common.DEFAULT_BATCH_SIZE,
		LearningRate: 0.05,
		Momentum:     common.DEFAULT_MOMENTUM,
		NumWorkers:   common.DEFAULT_NUM_WORKERS,
	}
	ldp := model.LdpConfig{Enabled: noiseScale > 0, NoiseScale: noiseScale}

	participants := []florch.Participant{}
	for i := 0; i < numClients; i++ {
		client, err := flclient.NewClient(model.ClientIdentity{Name: fmt.Sprintf("client-%d", i+1)}, hp, desc.ID,
			common.ARCH_MLP, ldp,
			flclient.WithLogger(logger),
			flclient.WithEventBus(eventBus),
			flclient.WithResolver(registry),
			flclient.WithFactory(factory),
			flclient.WithSeed(uint64(i+1)))
		if err != nil {
			logger.Error("Error creating client", "error", err)
			return
		}

		// unequal partitions so FedAvg weighting matters
		size := 200 * (i + 1)
		trainset := dataset.Synthetic(desc, size, 0.2, rand.New(rand.NewPCG(uint64(i+1), 7)))
		if err := client.LoadTrainingData(trainset); err != nil {
			logger.Error("Error loading data", "error", err)
			return
		}
		participants = append(participants, client)
	}

	initial, err := factory.Build(common.ARCH_MLP, nn.InputShape{
		NumClasses: desc.NumClasses,
		Channels:   desc.ImageChannels,
		ImageDim:   desc.ImageDim,
	})
	if err != nil {
		logger.Error("Error building initial model", "error", err)
		return
	}

	resultsFileName, err := florch.GetResultsFileName("results")
	if err != nil {
		logger.Error("Error preparing results file", "error", err)
		return
	}

	flOrchestrator, err := florch.NewFlOrchestrator(participants, eventBus, logger, initial.StateDict(), rounds,
		resultsFileName)
	if err != nil {
		logger.Error("Error creating orchestrator", "error", err)
		return
	}

	if budget > 0 {
		costConfiguration := cost.CostConfiguration{
			CostType: cost.TotalBudget_CostType,
			Source:   cost.ENERGY,
			Budget:   budget,
		}
		if err := flOrchestrator.SetCostConfiguration(costConfiguration); err != nil {
			logger.Error("Error configuring budget", "error", err)
			return
		}
	}

	if err := flOrchestrator.Start("@every 2s"); err != nil {
		logger.Error("Error starting orchestrator", "error", err)
		return
	}

	event := <-finishedChannel
	flOrchestrator.Stop()

	if data, ok := event.Data.(events.FlFinishedEvent); ok {
		logger.Info("Simulation done", "message", data.ExitMessage, "losses", flOrchestrator.Losses())
	}
}

func parseArgs(args []string) (numClients, rounds int, noiseScale, budget float64, err error) {
	numClients, rounds = 3, 10
	if len(args) >= 2 {
		if numClients, err = strconv.Atoi(args[0]); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("numClients: %w", err)
		}
		if rounds, err = strconv.Atoi(args[1]); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("rounds: %w", err)
		}
	}
	if len(args) >= 3 {
		if noiseScale, err = strconv.ParseFloat(args[2], 64); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("noiseScale: %w", err)
		}
	}
	if len(args) >= 4 {
		if budget, err = strconv.ParseFloat(args[3], 64); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("energyBudget: %w", err)
		}
	}
	if numClients < 1 {
		return 0, 0, 0, 0, fmt.Errorf("numClients must be >= 1, got %d", numClients)
	}
	return numClients, rounds, noiseScale, budget, nil
}
