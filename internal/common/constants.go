package common

// Client defaults
const DEFAULT_BATCH_SIZE = 50
const DEFAULT_LEARNING_RATE = 0.001
const DEFAULT_MOMENTUM = 0.9
const DEFAULT_NUM_WORKERS = 2
const DEFAULT_GPU = 0

// Client endpoint
const DEFAULT_TARGET_IP = "127.0.0.3"
const DEFAULT_PORT = 9999

// Architectures
const ARCH_LINEAR = "linear"
const ARCH_MLP = "mlp"
const MLP_HIDDEN_UNITS = 200

// Events
const GLOBAL_UPDATE_APPLIED_EVENT_TYPE = "GlobalUpdateApplied"
const TRAINING_FINISHED_EVENT_TYPE = "TrainingFinished"
const FL_FINISHED_EVENT_TYPE = "FlFinished"

// Logs
const LOG_DIRECTORY = "log"
const LOG_FILE = "log/run.log"
