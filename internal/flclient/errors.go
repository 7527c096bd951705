package flclient

import "errors"

var (
	// ErrConfiguration: unknown dataset or architecture, or invalid
	// hyperparameters. The client must be rebuilt with valid parameters.
	ErrConfiguration = errors.New("configuration error")

	// ErrPrecondition: an operation was called out of order or with an
	// input that does not fit the client (e.g. train before data is loaded).
	ErrPrecondition = errors.New("precondition error")

	// ErrTraining: the training input is degenerate (e.g. empty dataset).
	ErrTraining = errors.New("training error")
)
