package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"answering-machine/internal/apperr"
	"answering-machine/internal/audit"
	"answering-machine/internal/calls"
	"answering-machine/internal/reporting"
	"answering-machine/internal/telephony"
	"answering-machine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls     CallService
	Summaries SummaryService
	Journal   JournalReader
	Relay     RelayService
}

// CallService is the call-lifecycle tracker. *calls.Service satisfies it.
type CallService interface {
	InitiateCall(ctx context.Context, destination, audioURL string) (telephony.CallResult, error)
	GetStatus(ctx context.Context, callID string) (calls.StatusResult, error)
	List(ctx context.Context) ([]calls.CallRecord, error)
}

type SummaryService interface {
	CallsSummary(ctx context.Context, req reporting.CallsSummaryRequest) (reporting.CallsSummary, error)
}

type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

func errorJSON(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"success": false, "error": err.Error()})
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": what + " not configured"})
}

// --- Calls ---

type initiateCallRequest struct {
	DestinationNumber string `json:"destination_number"`
	AudioURL          string `json:"audio_url"`
}

// InitiateCall places an outbound playback call. The CallResult body is written
// for failures too; the status code follows the error class.
func (h Handlers) InitiateCall(c *gin.Context) {
	if h.Calls == nil {
		notConfigured(c, "calls")
		return
	}
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, telephony.CallResult{Error: "invalid json"})
		return
	}

	res, err := h.Calls.InitiateCall(c.Request.Context(), req.DestinationNumber, req.AudioURL)
	if err != nil {
		logger.FromGin(c).Warn("initiate call failed", "kind", apperr.Kind(err), "err", err)
		c.AbortWithStatusJSON(apperr.HTTPStatus(err), res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetCallStatus(c *gin.Context) {
	if h.Calls == nil {
		notConfigured(c, "calls")
		return
	}
	res, err := h.Calls.GetStatus(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		c.AbortWithStatusJSON(apperr.HTTPStatus(err), res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		notConfigured(c, "calls")
		return
	}
	recs, err := h.Calls.List(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "err", err)
		errorJSON(c, err)
		return
	}
	if recs == nil {
		recs = []calls.CallRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs, "count": len(recs)})
}

// --- Reporting ---

// CallsSummary aggregates tracked calls. Optional from/to query params are RFC 3339.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Summaries == nil {
		notConfigured(c, "reporting")
		return
	}
	var req reporting.CallsSummaryRequest
	var err error
	if req.Range.From, err = parseTimeParam(c, "from"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.Range.To, err = parseTimeParam(c, "to"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	sum, err := h.Summaries.CallsSummary(c.Request.Context(), req)
	if err != nil {
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func parseTimeParam(c *gin.Context, name string) (time.Time, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &paramError{name: name, want: "an RFC 3339 timestamp"}
	}
	return t, nil
}

type paramError struct {
	name, want string
}

func (e *paramError) Error() string { return e.name + " must be " + e.want }

// --- Audit ---

// UnmatchedCallbacks lists journaled orphan and stale callbacks, newest first.
func (h Handlers) UnmatchedCallbacks(c *gin.Context) {
	if h.Journal == nil {
		notConfigured(c, "journal")
		return
	}
	limit := defaultJournalLimit
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxJournalLimit)
	}

	events, err := h.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		errorJSON(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
