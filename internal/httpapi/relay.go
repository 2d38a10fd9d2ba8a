package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"answering-machine/internal/apperr"
	"answering-machine/internal/relay"
	"answering-machine/internal/storage"
	"answering-machine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// MaxUploadBytes caps multipart uploads.
const MaxUploadBytes = 25 << 20

// RelayService is the generation pipeline. *relay.Service satisfies it.
type RelayService interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, emit func(chunk string) error) error
	Speak(ctx context.Context, text string) (storage.UploadResult, error)
	Upload(ctx context.Context, r io.Reader, contentType, ext string) (storage.UploadResult, error)
	Run(ctx context.Context, req relay.Request) (relay.Result, error)
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type speechRequest struct {
	Text string `json:"text"`
}

// Gemini forwards a prompt to the text model.
func (h Handlers) Gemini(c *gin.Context) {
	if h.Relay == nil {
		notConfigured(c, "relay")
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	text, err := h.Relay.Generate(c.Request.Context(), req.Prompt)
	if err != nil {
		logger.FromGin(c).Warn("text generation failed", "kind", apperr.Kind(err), "err", err)
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": req.Prompt, "response": text})
}

// GeminiStream relays the model's reply as server-sent events: one "message" event per
// chunk carrying {"data": chunk}, then "done". Errors before the first chunk get a normal
// JSON error response; later ones end the stream with an "error" event.
func (h Handlers) GeminiStream(c *gin.Context) {
	if h.Relay == nil {
		notConfigured(c, "relay")
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	started := false
	err := h.Relay.Stream(ctx, req.Prompt, func(chunk string) error {
		if !started {
			started = true
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
		}
		c.SSEvent("message", gin.H{"data": chunk})
		c.Writer.Flush()
		return ctx.Err()
	})
	switch {
	case err == nil:
		c.SSEvent("done", gin.H{"data": ""})
	case !started:
		logger.FromGin(c).Warn("text stream failed", "kind", apperr.Kind(err), "err", err)
		errorJSON(c, err)
	default:
		logger.FromGin(c).Warn("text stream interrupted", "kind", apperr.Kind(err), "err", err)
		c.SSEvent("error", gin.H{"error": err.Error(), "kind": apperr.Kind(err)})
	}
	c.Writer.Flush()
}

// Speech synthesizes text and stores the audio.
func (h Handlers) Speech(c *gin.Context) {
	if h.Relay == nil {
		notConfigured(c, "relay")
		return
	}
	var req speechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	up, err := h.Relay.Speak(c.Request.Context(), req.Text)
	if err != nil {
		logger.FromGin(c).Warn("speech generation failed", "kind", apperr.Kind(err), "err", err)
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, up)
}

// Upload stores a multipart "file" field under a random name.
func (h Handlers) Upload(c *gin.Context) {
	if h.Relay == nil {
		notConfigured(c, "relay")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "file too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "multipart field \"file\" required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable file"})
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	up, err := h.Relay.Upload(c.Request.Context(), f, contentType, storage.ExtFromFilename(fh.Filename))
	if err != nil {
		logger.FromGin(c).Warn("upload failed", "kind", apperr.Kind(err), "err", err)
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "File uploaded successfully",
		"signed_url": up.SignedURL,
		"file_name":  up.ObjectName,
	})
}

// RunRelay runs the full pipeline and optionally calls destination_number with the result.
func (h Handlers) RunRelay(c *gin.Context) {
	if h.Relay == nil {
		notConfigured(c, "relay")
		return
	}
	var req relay.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	res, err := h.Relay.Run(c.Request.Context(), req)
	if err != nil {
		logger.FromGin(c).Warn("relay failed", "kind", apperr.Kind(err), "err", err)
		c.AbortWithStatusJSON(apperr.HTTPStatus(err), res)
		return
	}
	c.JSON(http.StatusOK, res)
}
