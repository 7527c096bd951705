package flclient

import (
	"runtime"

	"github.com/AIoTwin-Adaptive-FL-Orch/fl-client/internal/model"
	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/cpuid/v2"
)

// resolveDevice picks the compute device once for a client instance. No
// accelerator backend is linked in, so a requested gpu falls back to the CPU.
func resolveDevice(gpu int, logger hclog.Logger) model.Device {
	device := model.Device{
		Kind:         model.CPU,
		Architecture: runtime.GOARCH,
		BrandName:    cpuid.CPU.BrandName,
		Vectorized:   cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) || cpuid.CPU.Supports(cpuid.ASIMD),
	}

	if gpu != -1 {
		logger.Debug("no accelerator available, using cpu", "gpu", gpu)
	}
	return device
}
