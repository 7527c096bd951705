package cost

import "fmt"

type CostConfiguration struct {
	CostType string
	Source   CostSource
	Budget   float64
}

// TotalBudget_CostType stops FL before the accumulated cost would exceed Budget.
const TotalBudget_CostType = "totalBudget"

func (c *CostConfiguration) Validate() error {
	if c.CostType != TotalBudget_CostType {
		return fmt.Errorf("unsupported cost type %q", c.CostType)
	}
	if c.Source != ENERGY && c.Source != COMMUNICATION {
		return fmt.Errorf("invalid cost source %d", c.Source)
	}
	if c.Budget <= 0 {
		return fmt.Errorf("budget must be > 0, got %v", c.Budget)
	}
	return nil
}
