package mechmodels

import "time"

// ResultStatus discriminates the two MechResult variants.
type ResultStatus string

const (
	ResultComplete    ResultStatus = "complete"
	ResultFatalError  ResultStatus = "fatal_error"
)

// MechResult is the terminal outcome of one mech.Driver.Run call.
type MechResult struct {
	Status     ResultStatus  `json:"status"`
	Result     string        `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	History    []HistoryItem `json:"-"`
	DurationSec float64      `json:"duration_sec"`
	TotalCost   float64      `json:"total_cost"`
}

// Elapsed is a small helper for callers measuring DurationSec consistently
// with the driver's own accounting.
func Elapsed(start time.Time) float64 {
	return time.Since(start).Seconds()
}
