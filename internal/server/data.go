package server

import (
	"encoding/json"
	"io"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
)

func toJSON(i interface{}, w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()
	return d.Decode(i)
}

type GlobalUpdateRequest struct {
	ModelState model.ModelState `json:"modelState"`
}

type TrainResponse struct {
	RunId string `json:"runId"`
	model.TrainingResult
}

type StatusResponse struct {
	Name          string       `json:"name"`
	NData         int          `json:"nData"`
	ParamCount    int          `json:"paramCount"`
	Device        model.Device `json:"device"`
	LossRecord    []float64    `json:"lossRecord"`
	PredictedLoss *float64     `json:"predictedLoss,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
