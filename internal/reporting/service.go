package reporting

import (
	"context"
	"errors"
	"fmt"
	"math"

	"answering-machine/internal/apperr"
	"answering-machine/internal/calls"
)

var ErrInvalidRequest = fmt.Errorf("reporting: invalid request: %w", apperr.ErrInvalidArgument)

// Repository abstracts data access for reporting. calls.Store satisfies it.
type Repository interface {
	List(ctx context.Context) ([]calls.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	r := req.Range
	if !r.From.IsZero() && !r.To.IsZero() && !r.To.After(r.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: r, Spend: map[string]float64{}}
	durations := 0
	for _, c := range rows {
		if !r.From.IsZero() && c.CreatedAt.Before(r.From) {
			continue
		}
		if !r.To.IsZero() && !c.CreatedAt.Before(r.To) {
			continue
		}

		out.TotalCalls++
		if c.Duration != nil {
			out.TotalDurationSeconds += *c.Duration
			durations++
		}
		if c.Price != nil {
			unit := c.PriceUnit
			if unit == "" {
				unit = "UNKNOWN"
			}
			out.Spend[unit] += math.Abs(*c.Price)
			out.PricedCalls++
		}
		switch c.Status {
		case calls.CallStatusQueued:
			out.QueuedCalls++
		case calls.CallStatusRinging:
			out.RingingCalls++
		case calls.CallStatusInProgress:
			out.InProgressCalls++
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case calls.CallStatusBusy:
			out.BusyCalls++
		case calls.CallStatusCanceled:
			out.CanceledCalls++
		default:
			out.OtherCalls++
		}
	}
	if durations > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / durations
	}
	return out, nil
}
