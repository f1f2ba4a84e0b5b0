package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zulandar/intake/internal/capture"
	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/question"
)

// registerRoutes sets up all routes on the gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/", s.handleIndex)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/sessions")
	api.POST("", s.handleCreate)
	api.GET("/:handle", s.withSession(s.handleGet))
	api.POST("/:handle/answer", s.withSession(s.handleAnswer))
	api.POST("/:handle/notice/dismiss", s.withSession(s.handleDismiss))
	api.POST("/:handle/reset", s.withSession(s.handleReset))
	api.POST("/:handle/signature/hide", s.withSession(s.handleHideSignature))
	api.DELETE("/:handle/errors/:field", s.withSession(s.handleClearError))
	api.GET("/:handle/events", s.withSession(s.handleEvents))
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"signatureMode": string(s.opts.SignatureMode),
	})
}

// withSession resolves :handle or answers 404.
func (s *Server) withSession(h func(*gin.Context, *entry)) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := s.lookup(c.Param("handle"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		h(c, e)
	}
}

// sessionView is the body returned for a session.
type sessionView struct {
	Handle   string           `json:"handle"`
	State    intake.State     `json:"state"`
	Messages []intake.Message `json:"messages"`
}

func view(e *entry) sessionView {
	return sessionView{Handle: e.currentHandle(), State: e.ctrl.State(), Messages: e.ctrl.Log().All()}
}

func (s *Server) handleCreate(c *gin.Context) {
	e, err := s.open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, view(e))
}

func (s *Server) handleGet(c *gin.Context, e *entry) {
	c.JSON(http.StatusOK, view(e))
}

// answerRequest is the body of POST .../answer.
type answerRequest struct {
	Text     string   `json:"text" binding:"max=4000"`
	Selected []string `json:"selected" binding:"dive,max=500"`
	// Signature is a data URL or bare base64 image.
	Signature string `json:"signature"`
	// Audio is a bare base64 WAV payload.
	Audio string `json:"audio" binding:"omitempty,base64"`
}

// turnView is the body returned for a submission.
type turnView struct {
	Turn       intake.TurnStatus         `json:"turn"`
	Endpoint   string                    `json:"endpoint,omitempty"`
	Validation *question.ValidationError `json:"validation,omitempty"`
	Error      string                    `json:"error,omitempty"`
	State      intake.State              `json:"state"`
	Messages   []intake.Message          `json:"messages"`
}

func (s *Server) handleAnswer(c *gin.Context, e *entry) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := question.Answer{Text: req.Text, Selected: req.Selected, Audio: req.Audio}
	if req.Signature != "" {
		art, err := decodeImage(req.Signature)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a.Signature = art
	}

	turn, err := e.ctrl.Submit(c.Request.Context(), a)
	switch {
	case errors.Is(err, intake.ErrBusy), errors.Is(err, intake.ErrStale):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, intake.ErrComplete):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	}

	out := turnView{
		Turn:       turn.Status,
		Endpoint:   turn.Endpoint,
		Validation: turn.Validation,
		State:      turn.State,
		Messages:   e.ctrl.Log().All(),
	}
	if turn.Err != nil {
		out.Error = turn.Err.Error()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDismiss(c *gin.Context, e *entry) {
	e.ctrl.DismissNotice()
	c.JSON(http.StatusOK, view(e))
}

// handleReset starts over. A store-backed session moves to a new row, so
// the returned handle may differ; the old one keeps working.
func (s *Server) handleReset(c *gin.Context, e *entry) {
	e.ctrl.NewSession()
	s.alias(e)
	c.JSON(http.StatusOK, view(e))
}

func (s *Server) handleHideSignature(c *gin.Context, e *entry) {
	e.ctrl.HideSignature()
	c.JSON(http.StatusOK, view(e))
}

func (s *Server) handleClearError(c *gin.Context, e *entry) {
	e.ctrl.ClearError(question.Field(c.Param("field")))
	c.Status(http.StatusNoContent)
}

// decodeImage accepts "data:<mime>;base64,<data>" or bare base64.
func decodeImage(s string) (*capture.Artifact, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ";base64,")
		if i < 0 {
			return nil, fmt.Errorf("web: signature is not a base64 data URL")
		}
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("web: signature: %w", err)
	}
	art, err := capture.NewArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("web: signature: %w", err)
	}
	return art, nil
}
