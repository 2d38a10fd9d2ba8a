package main

import (
	"answering-machine/internal/auth"
	"answering-machine/internal/config"
	"answering-machine/internal/httpapi"
	"answering-machine/internal/rbac"
	"answering-machine/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	cfg      config.Config
	auth     *auth.Manager
	handlers httpapi.Handlers
	health   httpapi.Health
	callback telephony.StatusCallbackHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/", d.health.Root)
	r.GET("/health", d.health.Health)
	r.GET("/test", d.health.Test)
	r.GET("/healthz", d.health.Healthz)
	r.GET("/readyz", d.health.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhook (public). Twilio cannot present a client token; the
	// signature check is the only authentication available here.
	{
		var chain []gin.HandlerFunc
		if d.cfg.Twilio.ValidateSignature {
			chain = append(chain, telephony.SignatureMiddleware(d.cfg.Twilio.AuthToken, d.cfg.App.PublicBaseURL))
		}
		chain = append(chain, d.callback.HandleStatusCallback)
		r.POST("/call/:call_id/status", chain...)
	}

	// client routes
	guard := func(roles ...string) []gin.HandlerFunc {
		if d.auth == nil {
			return nil
		}
		return []gin.HandlerFunc{auth.RequireAccessToken(d.auth), rbac.RequireAnyRole(roles...)}
	}
	with := func(mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
		return append(mw, h)
	}
	h := d.handlers

	// CALLS routes
	r.POST("/call", with(guard(rbac.RoleCaller), h.InitiateCall)...)
	r.GET("/call/:call_id/status", with(guard(rbac.RoleCaller, rbac.RoleViewer), h.GetCallStatus)...)
	r.GET("/calls", with(guard(rbac.RoleCaller, rbac.RoleViewer), h.ListCalls)...)
	r.GET("/calls/summary", with(guard(rbac.RoleViewer), h.CallsSummary)...)

	// GENERATION routes
	r.POST("/gemini", with(guard(rbac.RoleCaller), h.Gemini)...)
	r.POST("/gemini/stream", with(guard(rbac.RoleCaller), h.GeminiStream)...)
	r.POST("/speech", with(guard(rbac.RoleCaller), h.Speech)...)
	r.POST("/upload", with(guard(rbac.RoleCaller), h.Upload)...)
	r.POST("/relay", with(guard(rbac.RoleCaller), h.RunRelay)...)

	// ADMIN routes
	// Admin bypasses role checks, so an empty role list means admin only.
	r.GET("/callbacks/unmatched", with(guard(), h.UnmatchedCallbacks)...)
}
