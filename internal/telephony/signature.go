package telephony

import (
	"net/http"
	"strings"

	"answering-machine/internal/observability"
	"answering-machine/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"
)

const headerTwilioSignature = "X-Twilio-Signature"

// SignatureMiddleware rejects callbacks whose X-Twilio-Signature does not match
// the request. publicBaseURL must be the externally visible origin Twilio was given,
// since the signature covers the full URL Twilio called.
func SignatureMiddleware(authToken, publicBaseURL string) gin.HandlerFunc {
	validator := client.NewRequestValidator(authToken)
	base := strings.TrimRight(publicBaseURL, "/")

	return func(c *gin.Context) {
		log := logger.FromGin(c)

		sig := c.GetHeader(headerTwilioSignature)
		if sig == "" {
			log.Warn("callback missing signature")
			observability.RecordStatusCallback("unauthenticated")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing signature"})
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			log.Warn("callback form unreadable", "err", err)
			observability.RecordStatusCallback("unauthenticated")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid form"})
			return
		}

		params := make(map[string]string, len(c.Request.PostForm))
		for k, vs := range c.Request.PostForm {
			if len(vs) > 0 {
				params[k] = vs[0]
			}
		}
		if !validator.Validate(base+c.Request.URL.RequestURI(), params, sig) {
			log.Warn("callback signature mismatch")
			observability.RecordStatusCallback("unauthenticated")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
