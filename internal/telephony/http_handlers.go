package telephony

import (
	"context"
	"net/http"

	"answering-machine/internal/audit"
	"answering-machine/internal/observability"
	"answering-machine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallbackOutcome reports what happened to one status callback.
type CallbackOutcome string

const (
	CallbackApplied CallbackOutcome = "applied"
	CallbackOrphan  CallbackOutcome = "orphan"
	CallbackStale   CallbackOutcome = "stale"
)

// StatusCallbackSink merges a parsed status event into local call state.
type StatusCallbackSink interface {
	HandleStatusCallback(ctx context.Context, ev StatusEvent) (CallbackOutcome, error)
}

// StatusCallbackHandler converts the Twilio status callback to internal types,
// hands it to the sink, and writes TwiML.
//
// No business logic here. The provider retries non-2xx deliveries, so every
// request is acknowledged with 200 and an empty TwiML response, including
// malformed, unknown-call and failed ones.
type StatusCallbackHandler struct {
	Sink StatusCallbackSink
}

func (h StatusCallbackHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)
	defer ack(c)

	if h.Sink == nil {
		log.Error("status callback sink not configured")
		observability.RecordStatusCallback("error")
		return
	}

	ev, err := ParseStatusCallback(c.Request, c.Param("call_id"))
	if err != nil {
		log.Warn("status callback parse failed", "err", err)
		observability.RecordStatusCallback("invalid")
		return
	}

	ctx := audit.WithClientIP(c.Request.Context(), c.ClientIP())
	outcome, err := h.Sink.HandleStatusCallback(ctx, ev)
	if err != nil {
		log.Error("status callback not applied", "call_id", ev.CallID, "status", ev.Status, "err", err)
		return
	}
	log.Debug("status callback handled", "call_id", ev.CallID, "status", ev.Status, "outcome", string(outcome))
}

func ack(c *gin.Context) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, EmptyResponse())
}
