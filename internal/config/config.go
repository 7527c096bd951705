package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"gopkg.in/yaml.v3"
)

type LdpConfig struct {
	Enabled    bool    `yaml:"enabled"`
	NoiseScale float64 `yaml:"noiseScale"`
}

type ClientConfig struct {
	Name         string    `yaml:"name"`
	Dataset      string    `yaml:"dataset"`
	Model        string    `yaml:"model"`
	Epochs       int       `yaml:"epochs"`
	BatchSize    int       `yaml:"batchSize"`
	LearningRate float64   `yaml:"learningRate"`
	Momentum     float64   `yaml:"momentum"`
	NumWorkers   int       `yaml:"numWorkers"`
	Gpu          int       `yaml:"gpu"`
	Seed         uint64    `yaml:"seed"`
	Ldp          LdpConfig `yaml:"ldp"`

	TargetIp string `yaml:"targetIp"`
	Port     int    `yaml:"port"`

	DataPath     string  `yaml:"dataPath"`
	DataStart    int     `yaml:"dataStart"`
	DataEnd      int     `yaml:"dataEnd"`
	FeatureScale float64 `yaml:"featureScale"`

	LogLevel string `yaml:"logLevel"`
}

// Default returns the configuration every file is merged over.
func Default() ClientConfig {
	return ClientConfig{
		Epochs:       1,
		BatchSize:    common.DEFAULT_BATCH_SIZE,
		LearningRate: common.DEFAULT_LEARNING_RATE,
		Momentum:     common.DEFAULT_MOMENTUM,
		NumWorkers:   common.DEFAULT_NUM_WORKERS,
		Gpu:          common.DEFAULT_GPU,
		TargetIp:     common.DEFAULT_TARGET_IP,
		Port:         common.DEFAULT_PORT,
		DataEnd:      -1,
		FeatureScale: 255,
		LogLevel:     "INFO",
	}
}

func Load(path string) (ClientConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read decodes YAML over Default() and validates the result. Unknown keys
// are rejected.
func Read(r io.Reader) (ClientConfig, error) {
	cfg := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("read config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return ClientConfig{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (cfg ClientConfig) Validate() error {
	if cfg.Name == "" {
		return fmt.Errorf("invalid config: name is required")
	}
	if cfg.Dataset == "" {
		return fmt.Errorf("invalid config: dataset is required")
	}
	if cfg.Model == "" {
		return fmt.Errorf("invalid config: model is required")
	}
	if err := cfg.Hyperparameters().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.LdpConfig().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid config: port %d", cfg.Port)
	}
	return nil
}

func (cfg ClientConfig) Identity() model.ClientIdentity {
	return model.ClientIdentity{Name: cfg.Name}
}

func (cfg ClientConfig) Hyperparameters() model.Hyperparameters {
	return model.Hyperparameters{
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		Momentum:     cfg.Momentum,
		NumWorkers:   cfg.NumWorkers,
	}
}

func (cfg ClientConfig) LdpConfig() model.LdpConfig {
	return model.LdpConfig{
		Enabled:    cfg.Ldp.Enabled,
		NoiseScale: cfg.Ldp.NoiseScale,
	}
}

// Address is the host:port the client endpoint binds to.
func (cfg ClientConfig) Address() string {
	return fmt.Sprintf("%s:%d", cfg.TargetIp, cfg.Port)
}
