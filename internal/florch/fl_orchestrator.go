package florch

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/florch/cost"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/performance"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

// Participant is the client surface the orchestrator drives.
type Participant interface {
	Name() string
	ApplyGlobalUpdate(state model.ModelState) error
	Train() (*model.TrainingResult, error)
}

// FlOrchestrator runs federated rounds over in-process clients: every round
// it sends the global state to all participants, trains them in parallel and
// replaces the global state with their FedAvg.
type FlOrchestrator struct {
	mu              sync.Mutex
	participants    []Participant
	eventBus        *events.EventBus
	logger          hclog.Logger
	cronScheduler   *cron.Cron
	globalState     model.ModelState
	rounds          int
	resultsFileName string
	progress        *FlProgress
	costTracker     *cost.Tracker
	finished        bool
}

type FlProgress struct {
	globalRound      int
	losses           []float64
	lossHasConverged bool
}

func NewFlOrchestrator(participants []Participant, eventBus *events.EventBus, logger hclog.Logger,
	initialState model.ModelState, rounds int, resultsFileName string) (*FlOrchestrator, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("no participants")
	}
	if rounds < 1 {
		return nil, fmt.Errorf("rounds must be >= 1, got %d", rounds)
	}
	if len(initialState) == 0 {
		return nil, fmt.Errorf("initial state is empty")
	}

	cronLogger := cron.PrintfLogger(logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}))

	return &FlOrchestrator{
		participants: participants,
		eventBus:     eventBus,
		logger:       logger,
		cronScheduler: cron.New(cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		globalState:     initialState.Clone(),
		rounds:          rounds,
		resultsFileName: resultsFileName,
		progress: &FlProgress{
			globalRound: 1,
			losses:      []float64{},
		},
	}, nil
}

// SetCostConfiguration enables budget accounting. Rounds stop once the
// remaining budget cannot pay for another round like the last one.
func (orch *FlOrchestrator) SetCostConfiguration(configuration cost.CostConfiguration) error {
	orch.mu.Lock()
	defer orch.mu.Unlock()

	tracker, err := cost.NewTracker(configuration, orch.globalState.NumElements())
	if err != nil {
		return err
	}
	orch.costTracker = tracker
	return nil
}

// Start runs one round per tick of schedule (a cron expression such as "@every 1s")
// until all rounds are done or the loss has converged.
func (orch *FlOrchestrator) Start(schedule string) error {
	if _, err := orch.cronScheduler.AddFunc(schedule, orch.runScheduledRound); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	orch.logger.Info("Starting FL", "participants", len(orch.participants), "rounds", orch.rounds, "schedule", schedule)
	orch.cronScheduler.Start()

	return nil
}

func (orch *FlOrchestrator) Stop() {
	<-orch.cronScheduler.Stop().Done()
}

func (orch *FlOrchestrator) runScheduledRound() {
	if err := orch.RunRound(); err != nil {
		orch.logger.Error("Round failed", "error", err)
	}
}

// RunRound executes the next global round. It returns an error when no
// participant produced a result; failing participants are skipped.
func (orch *FlOrchestrator) RunRound() error {
	orch.mu.Lock()
	defer orch.mu.Unlock()

	if orch.finished {
		return nil
	}

	round := orch.progress.globalRound
	orch.logger.Info(fmt.Sprintf("Started global round %d", round))
	if round == 1 {
		orch.logDataHeterogeneity()
	}

	results := make([]*model.TrainingResult, len(orch.participants))
	errs := make([]error, len(orch.participants))
	common.ForEach(len(orch.participants), len(orch.participants), func(i int) {
		participant := orch.participants[i]
		if err := participant.ApplyGlobalUpdate(orch.globalState); err != nil {
			errs[i] = err
			return
		}
		results[i], errs[i] = participant.Train()
	})

	collected := []*model.TrainingResult{}
	for i, participant := range orch.participants {
		if errs[i] != nil {
			orch.logger.Warn("Participant failed", "participant", participant.Name(), "round", round, "error", errs[i])
			continue
		}
		if err := orch.globalState.SameStructure(results[i].ModelState); err == nil {
			orch.logger.Debug("Model difference (L2-norm) after training", "participant", participant.Name(),
				"difference", modelDifference(results[i].ModelState, orch.globalState))
		}
		collected = append(collected, results[i])
	}
	if len(collected) == 0 {
		return fmt.Errorf("round %d: no participant produced an update", round)
	}

	globalState, err := FedAvg(collected)
	if err != nil {
		return fmt.Errorf("round %d: %w", round, err)
	}
	orch.globalState = globalState

	loss := weightedLoss(collected)
	orch.progress.losses = append(orch.progress.losses, loss)
	orch.logger.Info(fmt.Sprintf("Finished global round %d", round), "updates", len(collected), "loss", loss)

	if len(orch.progress.losses) >= 2 {
		lp, err := performance.NewLossPrediction(orch.progress.losses, performance.LogarithmicRegression_PredictionType)
		if err == nil {
			orch.logger.Debug("Loss trend", "function", lp.PrintPrediction(), "next", lp.PredictNextLoss(),
				"roundToHalveLoss", lp.PredictRoundForLoss(orch.progress.losses[0]/2))
		}
	}

	if orch.resultsFileName != "" {
		writeResultsToFile(orch.logger, orch.resultsFileName, round, loss, len(collected))
	}

	orch.progress.lossHasConverged = hasConverged(orch.progress.losses, 1e-3, 3, 2)
	if orch.progress.lossHasConverged {
		orch.logger.Info("Loss has converged!")
	}

	budgetExhausted := false
	if orch.costTracker != nil {
		roundCost := orch.costTracker.Add(collected)
		orch.logger.Info("Round cost", "cost", roundCost, "spent", orch.costTracker.Spent(),
			"remaining", orch.costTracker.Remaining())
		if !orch.costTracker.Affords(roundCost) {
			orch.logger.Info("Budget exhausted!")
			budgetExhausted = true
		}
	}

	if round >= orch.rounds || orch.progress.lossHasConverged || budgetExhausted {
		orch.finish(round, loss)
		return nil
	}

	orch.progress.globalRound++
	return nil
}

func (orch *FlOrchestrator) finish(round int, loss float64) {
	orch.finished = true

	message := fmt.Sprintf("finished after %d rounds with loss %.4f", round, loss)
	orch.logger.Info("FL finished!", "message", message)

	if orch.eventBus != nil {
		go orch.eventBus.Publish(events.Event{
			Type:      common.FL_FINISHED_EVENT_TYPE,
			Timestamp: time.Now(),
			Data: events.FlFinishedEvent{
				ExitCode:    0,
				ExitMessage: message,
			},
		})
	}
}

// GlobalState returns a copy of the current global model.
func (orch *FlOrchestrator) GlobalState() model.ModelState {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.globalState.Clone()
}

func (orch *FlOrchestrator) Losses() []float64 {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return append([]float64(nil), orch.progress.losses...)
}

func (orch *FlOrchestrator) Finished() bool {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.finished
}

// HELPERS

func movingAverage(values []float64, windowSize int) []float64 {
	if len(values) < windowSize {
		return nil // Not enough data for the window size
	}
	averages := make([]float64, len(values)-windowSize+1)
	for i := 0; i <= len(values)-windowSize; i++ {
		averages[i] = common.CalculateAverageFloat64(values[i : i+windowSize])
	}
	return averages
}

func hasConverged(values []float64, threshold float64, patience int, windowSize int) bool {
	averages := movingAverage(values, windowSize)
	if len(averages) < patience+1 {
		return false // Not enough data to determine convergence
	}

	for i := len(averages) - patience; i < len(averages); i++ {
		improvement := averages[i] - averages[i-1]
		if math.Abs(improvement) > threshold {
			return false
		}
	}
	return true
}

// GetResultsFileName creates directory if needed and returns a timestamped
// results file path inside it.
func GetResultsFileName(directory string) (string, error) {
	if err := os.MkdirAll(directory, 0777); err != nil {
		return "", fmt.Errorf("creating results directory: %w", err)
	}
	return fmt.Sprintf("%s/results_%s.csv", directory, time.Now().Format("2006-01-02_15-04")), nil
}

func writeResultsToFile(logger hclog.Logger, fileName string, round int, loss float64, updates int) {
	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Error("Failed to open results file", "file", fileName, "error", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	record := []string{fmt.Sprintf("%d", round), fmt.Sprintf("%.4f", loss), fmt.Sprintf("%d", updates)}
	if err := writer.Write(record); err != nil {
		logger.Error("Failed to write results record", "file", fileName, "error", err)
		return
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		logger.Error("Failed to flush results record", "file", fileName, "error", err)
	}
}
