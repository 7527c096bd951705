package main

import (
	"io"
	"math/rand/v2"
	"os"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/dataset"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/flclient"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/server"
	"github.com/hashicorp/go-hclog"
)

func main() {
	configPath := "../../configs/client/client.yaml"
	if len(os.Args) == 2 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		hclog.Default().Error("Error loading config", "path", configPath, "error", err)
		os.Exit(1)
	}

	_ = os.Mkdir(common.LOG_DIRECTORY, 0777)
	logFile, err := os.OpenFile(common.LOG_FILE, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			panic(err)
		}
	}()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "fl-client",
		Level:  hclog.LevelFromString(cfg.LogLevel),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	eventBus := events.NewEventBus()

	client, err := flclient.NewClient(cfg.Identity(), cfg.Hyperparameters(), cfg.Dataset, cfg.Model, cfg.LdpConfig(),
		flclient.WithLogger(logger),
		flclient.WithEventBus(eventBus),
		flclient.WithSeed(cfg.Seed),
		flclient.WithGPU(cfg.Gpu))
	if err != nil {
		logger.Error("Error while initializing client", "error", err)
		return
	}

	var trainset dataset.Dataset
	if cfg.DataPath != "" {
		trainset, err = dataset.LoadCSV(cfg.DataPath, client.Descriptor(), cfg.DataStart, cfg.DataEnd, cfg.FeatureScale)
		if err != nil {
			logger.Error("Error while loading training data", "path", cfg.DataPath, "error", err)
			return
		}
	} else {
		logger.Warn("No dataPath configured, training on synthetic data")
		trainset = dataset.Synthetic(client.Descriptor(), 500, 0.1, rand.New(rand.NewPCG(cfg.Seed, 3)))
	}
	if err := client.LoadTrainingData(trainset); err != nil {
		logger.Error("Error while attaching training data", "error", err)
		return
	}

	router := server.NewRouter(server.NewHandler(logger, client))

	server.StartHttpServer(logger, cfg.Address(), router)
}
