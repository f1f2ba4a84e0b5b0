// Package web serves the browser chat widget and a JSON API over intake
// controllers, with controller events streamed over SSE.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zulandar/intake/internal/gateway"
	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/metrics"
	"github.com/zulandar/intake/internal/question"
	"github.com/zulandar/intake/internal/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Source is the store source tag for sessions opened through the web.
const Source = "web"

const (
	// completedLinger keeps a finished session reachable for a final fetch.
	completedLinger = 5 * time.Minute
	sweepInterval   = time.Minute
)

// Opts holds configuration for the web server.
type Opts struct {
	Gateway gateway.Gateway
	// Store persists sessions and transcripts; optional.
	Store         *store.Store
	SignatureMode question.SignatureMode
	Metrics       *metrics.Metrics
	// Gatherer backs /metrics; defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Port     int
	Out      io.Writer
	// Heartbeat is the SSE keep-alive interval; defaults to 15s.
	Heartbeat time.Duration
	// IdleTimeout drops sessions with no requests for this long; defaults
	// to an hour.
	IdleTimeout time.Duration
}

// Server owns the live controllers, one per browser session.
type Server struct {
	opts Opts
	tmpl *template.Template

	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry // every handle an entry has had
}

type entry struct {
	handle  string // first handle; later ones come from binding
	ctrl    *intake.Controller
	hub     *hub
	binding *store.Binding
	handles []string // guarded by Server.mu
	seen    atomic.Int64
}

// currentHandle is the handle of the row the entry writes to.
func (e *entry) currentHandle() string {
	if e.binding != nil {
		return e.binding.Handle()
	}
	return e.handle
}

func (e *entry) touch(t time.Time) {
	e.seen.Store(t.UnixNano())
}

func (e *entry) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.seen.Load()))
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("web: gateway is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = time.Hour
	}
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}
	return &Server{opts: opts, tmpl: tmpl, now: time.Now, sessions: make(map[string]*entry)}, nil
}

// Handler returns the gin router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(s.tmpl)
	s.registerRoutes(router)
	return router
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	go s.runSweeper(ctx)

	if s.opts.Out != nil {
		fmt.Fprintf(s.opts.Out, "Intake running at http://localhost:%d\n", s.opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}

// open creates a controller and registers it under a new handle.
func (s *Server) open() (*entry, error) {
	s.sweep(s.now())

	e := &entry{hub: newHub()}
	opts := intake.Opts{
		Gateway:       s.opts.Gateway,
		SignatureMode: s.opts.SignatureMode,
		Metrics:       s.opts.Metrics,
		OnEvent:       e.hub.publish,
	}

	if s.opts.Store != nil {
		row, err := s.opts.Store.Open(Source, "")
		if err != nil {
			return nil, fmt.Errorf("web: open session: %w", err)
		}
		e.handle = row.Handle
		e.binding = s.opts.Store.Bind(row)
		opts.IDs = e.binding
		opts.Recorder = e.binding
		opts.OnEvent = func(ev intake.Event) {
			e.binding.OnEvent(ev)
			e.hub.publish(ev)
		}
	} else {
		e.handle = uuid.NewString()
	}

	ctrl, err := intake.New(opts)
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}
	e.ctrl = ctrl
	e.touch(s.now())

	s.mu.Lock()
	e.handles = []string{e.handle}
	s.sessions[e.handle] = e
	s.mu.Unlock()
	return e, nil
}

// lookup resolves any handle the entry has had and marks it active.
func (s *Server) lookup(handle string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.sessions[handle]
	s.mu.RUnlock()
	if ok {
		e.touch(s.now())
	}
	return e, ok
}

// alias registers the entry's current handle, which changes when a
// store-backed session starts over.
func (s *Server) alias(e *entry) {
	h := e.currentHandle()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[h]; ok {
		return
	}
	e.handles = append(e.handles, h)
	s.sessions[h] = e
}

// sweep drops sessions idle past IdleTimeout and finished sessions idle
// past completedLinger. Unfinished store rows are abandoned. It returns
// the number of sessions dropped.
func (s *Server) sweep(now time.Time) int {
	var dropped []*entry
	s.mu.Lock()
	for h, e := range s.sessions {
		if h != e.handle {
			continue
		}
		idle := e.idle(now)
		done := e.ctrl.State().Status == intake.StatusComplete
		if idle < s.opts.IdleTimeout && !(done && idle >= completedLinger) {
			continue
		}
		for _, h := range e.handles {
			delete(s.sessions, h)
		}
		dropped = append(dropped, e)
	}
	s.mu.Unlock()

	for _, e := range dropped {
		e.hub.close()
		if e.binding != nil {
			if err := e.binding.Abandon(); err != nil {
				log.Printf("web: abandon %s: %v", e.currentHandle(), err)
			}
		}
	}
	return len(dropped)
}

func (s *Server) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(s.now()); n > 0 {
				log.Printf("web: dropped %d idle sessions", n)
			}
		}
	}
}
