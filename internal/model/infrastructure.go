package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DeviceKind int

const (
	CPU DeviceKind = iota
	ACCELERATOR
)

func (d DeviceKind) String() string {
	switch d {
	case CPU:
		return "CPU"
	case ACCELERATOR:
		return "ACCELERATOR"
	default:
		return "UNKNOWN"
	}
}

// Marshal as a JSON string: "CPU"/"ACCELERATOR"
func (d DeviceKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DeviceKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToUpper(s) {
	case "CPU":
		*d = CPU
	case "ACCELERATOR":
		*d = ACCELERATOR
	default:
		return fmt.Errorf("invalid DeviceKind: %q", s)
	}
	return nil
}

// Device is where a client runs its numeric work. It is resolved once per
// client instance.
type Device struct {
	Kind         DeviceKind `json:"kind"`
	Index        int        `json:"index"`
	Architecture string     `json:"architecture"` // "amd64" or "arm64"
	BrandName    string     `json:"brandName"`
	Vectorized   bool       `json:"vectorized"`
}

func (d Device) String() string {
	if d.Kind == ACCELERATOR {
		return fmt.Sprintf("accelerator:%d", d.Index)
	}
	return "cpu"
}
