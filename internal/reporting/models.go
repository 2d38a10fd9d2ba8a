package reporting

import "time"

// Common filtering inputs.

// TimeRange filters by record creation time, half-open [From, To).
// A zero bound is unbounded.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
}

type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	QueuedCalls     int `json:"queued_calls"`
	RingingCalls    int `json:"ringing_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	CanceledCalls   int `json:"canceled_calls"`
	OtherCalls      int `json:"other_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// Spend is the summed absolute call price per price unit (e.g. "USD").
	// Twilio reports charges as negative prices.
	Spend       map[string]float64 `json:"spend"`
	PricedCalls int                `json:"priced_calls"`
}
