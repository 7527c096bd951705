package cost

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CostSource selects what a round is charged for.
type CostSource int

const (
	ENERGY CostSource = iota
	COMMUNICATION
)

var costSourceNames = map[CostSource]string{
	ENERGY:        "ENERGY",
	COMMUNICATION: "COMMUNICATION",
}

func (c CostSource) String() string {
	if name, ok := costSourceNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

func ParseCostSource(s string) (CostSource, error) {
	for source, name := range costSourceNames {
		if strings.EqualFold(s, name) {
			return source, nil
		}
	}
	return 0, fmt.Errorf("invalid CostSource: %q", s)
}

func (c CostSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts the name or the numeric value.
func (c *CostSource) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		source, err := ParseCostSource(s)
		if err != nil {
			return err
		}
		*c = source
		return nil
	}

	var i int
	if err := json.Unmarshal(b, &i); err != nil {
		return err
	}
	if _, ok := costSourceNames[CostSource(i)]; !ok {
		return fmt.Errorf("invalid CostSource numeric value: %d", i)
	}
	*c = CostSource(i)
	return nil
}
