package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/flclient"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/performance"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
)

// Participant is the client surface the server calls into.
type Participant interface {
	Name() string
	NData() int
	ParamCount() int
	Device() model.Device
	LossRecord() []float64
	ApplyGlobalUpdate(state model.ModelState) error
	Train() (*model.TrainingResult, error)
}

type Handler struct {
	logger hclog.Logger
	client Participant
}

func NewHandler(logger hclog.Logger, client Participant) *Handler {
	return &Handler{
		logger: logger,
		client: client,
	}
}

// NewRouter registers the client endpoints.
func NewRouter(handler *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/fl/update", handler.ApplyGlobalUpdate).Methods(http.MethodPost)
	router.HandleFunc("/fl/train", handler.Train).Methods(http.MethodPost)
	router.HandleFunc("/fl/status", handler.Status).Methods(http.MethodGet)
	return router
}

func (handler *Handler) ApplyGlobalUpdate(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	request := &GlobalUpdateRequest{}
	if err := fromJSON(request, r.Body); err != nil {
		handler.logger.Error("invalid global update request", "error", err)
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	if len(request.ModelState) == 0 {
		writeError(rw, http.StatusBadRequest, errors.New("modelState is required"))
		return
	}

	if err := handler.client.ApplyGlobalUpdate(request.ModelState); err != nil {
		handler.logger.Error("error applying global update", "error", err)
		writeError(rw, statusFor(err), err)
		return
	}

	handler.writeJSON(rw, http.StatusOK, map[string]int{"params": request.ModelState.NumElements()})
}

func (handler *Handler) Train(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := uuid.New().String()
	handler.logger.Info("Starting local training", "runId", runId)

	result, err := handler.client.Train()
	if err != nil {
		handler.logger.Error("error training", "runId", runId, "error", err)
		writeError(rw, statusFor(err), err)
		return
	}

	handler.writeJSON(rw, http.StatusOK, TrainResponse{RunId: runId, TrainingResult: *result})
}

func (handler *Handler) Status(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	status := StatusResponse{
		Name:       handler.client.Name(),
		NData:      handler.client.NData(),
		ParamCount: handler.client.ParamCount(),
		Device:     handler.client.Device(),
		LossRecord: handler.client.LossRecord(),
	}
	if len(status.LossRecord) >= 2 {
		lp, err := performance.NewLossPrediction(status.LossRecord, performance.LogarithmicRegression_PredictionType)
		if err != nil {
			handler.logger.Warn("unable to predict loss", "error", err)
		} else {
			predicted := lp.PredictNextLoss()
			status.PredictedLoss = &predicted
		}
	}

	handler.writeJSON(rw, http.StatusOK, status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, flclient.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, flclient.ErrTraining):
		return http.StatusUnprocessableEntity
	case errors.Is(err, flclient.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(rw http.ResponseWriter, status int, err error) {
	rw.WriteHeader(status)
	_ = toJSON(ErrorResponse{Error: err.Error()}, rw)
}

// writeJSON encodes v before writing the status so an unencodable body (e.g.
// a NaN loss) becomes a 500 instead of an empty success.
func (handler *Handler) writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := toJSON(v, &buf); err != nil {
		handler.logger.Error("error encoding response", "error", err)
		writeError(rw, http.StatusInternalServerError, fmt.Errorf("encoding response: %w", err))
		return
	}

	rw.WriteHeader(status)
	if _, err := buf.WriteTo(rw); err != nil {
		handler.logger.Error("error writing response", "error", err)
	}
}
