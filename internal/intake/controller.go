// Package intake drives one conversational intake: it owns the session,
// the active question, the phase and the conversation log, and sequences
// calls to the dialogue service.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/intake/internal/gateway"
	"github.com/zulandar/intake/internal/metrics"
	"github.com/zulandar/intake/internal/question"
)

// Bot messages shown when the service cannot be reached.
const (
	StartFailedMessage   = "Sorry, I'm having trouble connecting. Please try again later."
	AdvanceFailedMessage = "Sorry, I encountered an error. Please try again."
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("intake: a submission is already in progress")
	// ErrComplete is returned when the session already received its summary.
	ErrComplete = errors.New("intake: session is complete")
	// ErrStale is returned when a response arrives for a discarded session.
	ErrStale = errors.New("intake: response belongs to a discarded session")
)

// TurnStatus is the result of one submission.
type TurnStatus string

const (
	TurnRejected  TurnStatus = "rejected"
	TurnQuestion  TurnStatus = "question"
	TurnComplete  TurnStatus = "complete"
	TurnNotice    TurnStatus = "notice"
	TurnTransport TurnStatus = "transport_failed"
	TurnNoop      TurnStatus = "noop"
	TurnStale     TurnStatus = "stale"
)

// Turn describes what a submission did.
type Turn struct {
	Status   TurnStatus
	Endpoint string
	// Validation is set when Status is TurnRejected.
	Validation *question.ValidationError
	// Err is the transport failure when Status is TurnTransport.
	Err   error
	State State
}

// Status is the coarse controller state.
type Status string

const (
	StatusUnstarted Status = "unstarted"
	StatusAwaiting  Status = "awaiting"
	StatusActive    Status = "active"
	StatusComplete  Status = "complete"
)

// State is a snapshot of everything a front end renders besides the log.
type State struct {
	Status           Status                    `json:"status"`
	SessionID        string                    `json:"session_id,omitempty"`
	Phase            Phase                     `json:"phase"`
	Question         *question.Question        `json:"question,omitempty"`
	Control          question.Control          `json:"control,omitempty"`
	Placeholder      string                    `json:"placeholder,omitempty"`
	Typing           bool                      `json:"typing"`
	SignatureVisible bool                      `json:"signature_visible"`
	Errors           map[question.Field]string `json:"errors,omitempty"`
	Notice           string                    `json:"notice,omitempty"`
	Messages         int                       `json:"messages"`
}

// EventKind names a controller event.
type EventKind string

const (
	EventTyping   EventKind = "typing"
	EventMessage  EventKind = "message"
	EventQuestion EventKind = "question"
	EventNotice   EventKind = "notice"
	EventComplete EventKind = "complete"
	EventReset    EventKind = "reset"
)

// Event is delivered to Opts.OnEvent after a state change.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message *Message  `json:"message,omitempty"`
	State   State     `json:"state"`
}

// Opts holds parameters for creating a Controller.
type Opts struct {
	Gateway gateway.Gateway
	// IDs holds the session id between turns; defaults to a MemoryIDStore.
	IDs SessionIDStore
	// Recorder mirrors the conversation log; optional.
	Recorder      Recorder
	SignatureMode question.SignatureMode
	// Now is the clock used by date validation; defaults to time.Now.
	Now func() time.Time
	// OnEvent is called outside the controller lock; optional.
	OnEvent func(Event)
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Controller is the session state machine. All methods are safe for
// concurrent use.
type Controller struct {
	gw      gateway.Gateway
	ids     SessionIDStore
	codec   question.Codec
	now     func() time.Time
	onEvent func(Event)
	metrics *metrics.Metrics
	log     *Log

	mu               sync.Mutex
	generation       uint64
	session          *Session
	phase            Phase
	q                *question.Question
	busy             bool
	complete         bool
	signatureVisible bool
	errs             map[question.Field]string
	notice           string
}

// New creates a Controller.
func New(opts Opts) (*Controller, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("intake: controller: gateway is required")
	}
	mode := opts.SignatureMode
	switch mode {
	case "":
		mode = question.SignatureSentinel
	case question.SignatureSentinel, question.SignatureImage:
	default:
		return nil, fmt.Errorf("intake: controller: unknown signature mode %q", mode)
	}
	ids := opts.IDs
	if ids == nil {
		ids = &MemoryIDStore{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		gw:      opts.Gateway,
		ids:     ids,
		codec:   question.Codec{Signature: mode},
		now:     now,
		onEvent: opts.OnEvent,
		metrics: opts.Metrics,
		log:     NewLog(opts.Recorder),
		phase:   PhaseNone,
		errs:    make(map[question.Field]string),
	}, nil
}

// Log returns the conversation log.
func (c *Controller) Log() *Log {
	return c.log
}

// Session returns the current session, or nil before a successful start.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{
		Phase:            c.phase,
		Question:         c.q,
		Typing:           c.busy,
		SignatureVisible: c.signatureVisible,
		Notice:           c.notice,
		Messages:         c.log.Len(),
	}
	if c.session != nil {
		s.SessionID = c.session.ID()
	}
	if c.q != nil {
		row := question.Lookup(c.q.Kind())
		s.Control = row.Control
		s.Placeholder = row.Placeholder
	}
	if len(c.errs) > 0 {
		s.Errors = make(map[question.Field]string, len(c.errs))
		for k, v := range c.errs {
			s.Errors[k] = v
		}
	}
	switch {
	case c.complete:
		s.Status = StatusComplete
	case c.busy:
		s.Status = StatusAwaiting
	case c.session != nil:
		s.Status = StatusActive
	default:
		s.Status = StatusUnstarted
	}
	return s
}

// call is a gateway request prepared under the lock.
type call struct {
	generation uint64
	endpoint   string
	starting   bool
	opening    Message
	do         func(ctx context.Context) (*gateway.Response, error)
}

// Submit validates a and sends it to the service. Validation failures,
// transport failures and domain errors are reported in the Turn; the
// returned error is non-nil only when the submission was not accepted
// (ErrBusy, ErrComplete) or its response was discarded (ErrStale). Values
// carried by ctx reach the gateway but its cancellation does not.
func (c *Controller) Submit(ctx context.Context, a question.Answer) (Turn, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return Turn{Status: TurnRejected}, ErrBusy
	}
	if c.complete {
		c.mu.Unlock()
		return Turn{Status: TurnRejected}, ErrComplete
	}

	var (
		pending call
		events  []Event
		ve      *question.ValidationError
	)
	if c.session == nil {
		pending, ve = c.prepareStart(a)
	} else {
		pending, events, ve = c.prepareAnswer(a)
	}
	if ve != nil {
		c.errs[ve.Field] = ve.Message
		turn := Turn{Status: TurnRejected, Validation: ve, State: c.stateLocked()}
		c.mu.Unlock()
		return turn, nil
	}

	c.errs = make(map[question.Field]string)
	c.busy = true
	events = append(events, Event{Kind: EventTyping, State: c.stateLocked()})
	c.mu.Unlock()
	c.emit(events)

	// Once dispatched, a call runs to completion; cancelling ctx does not
	// abort it. Gateway policies such as Timeout bound its duration.
	resp, err := pending.do(context.WithoutCancel(ctx))

	c.mu.Lock()
	if pending.generation != c.generation {
		c.mu.Unlock()
		log.Printf("intake: dropped %s response for discarded session", pending.endpoint)
		return Turn{Status: TurnStale, Endpoint: pending.endpoint}, ErrStale
	}
	c.busy = false
	turn := Turn{Endpoint: pending.endpoint}
	events = c.applyLocked(pending, resp, err, &turn)
	turn.State = c.stateLocked()
	events = append(events, Event{Kind: EventTyping, State: turn.State})
	c.mu.Unlock()
	c.emit(events)
	return turn, nil
}

// prepareStart handles a submission before any session exists. The draft is
// free text, or a voice recording that skips text validation.
func (c *Controller) prepareStart(a question.Answer) (call, *question.ValidationError) {
	var (
		req     gateway.StartRequest
		opening Message
	)
	if a.Audio != "" {
		req = gateway.VoiceStart(a.Audio)
		if text := strings.TrimSpace(a.Text); text != "" {
			req.Description = &text
		}
		opening = c.message(AuthorUser, KindAudio, "data:audio/wav;base64,"+a.Audio)
	} else {
		if msg := question.Text(a.Text, question.TextMinLength, question.TextMaxLength); msg != "" {
			c.countRejection(question.TypeText)
			return call{}, &question.ValidationError{Field: question.FieldInput, Message: msg}
		}
		text := strings.TrimSpace(a.Text)
		req = gateway.TextStart(text)
		opening = c.message(AuthorUser, KindText, a.Text)
	}
	return call{
		generation: c.generation,
		endpoint:   gateway.EndpointStart,
		starting:   true,
		opening:    opening,
		do: func(ctx context.Context) (*gateway.Response, error) {
			return c.gw.Start(ctx, req)
		},
	}, nil
}

// prepareAnswer validates and encodes an answer to the active question,
// appends its echo and picks the endpoint from the phase at this instant.
func (c *Controller) prepareAnswer(a question.Answer) (call, []Event, *question.ValidationError) {
	q := question.Question{Type: question.TypeText}
	if c.q != nil {
		q = *c.q
	}
	kind := q.Kind()
	row := question.Lookup(kind)
	if err := row.Validate(a, q, c.codec, c.now()); err != nil {
		var ve *question.ValidationError
		if !errors.As(err, &ve) {
			ve = &question.ValidationError{Field: row.Field, Message: err.Error()}
		}
		c.countRejection(kind)
		return call{}, nil, ve
	}

	enc := row.Encode(a, q, c.codec)
	echo := c.message(AuthorUser, Kind(enc.Echo.Kind), enc.Echo.Payload)
	c.log.Append(echo)
	if kind == question.TypeSignature {
		c.signatureVisible = false
	}
	events := []Event{{Kind: EventMessage, Message: &echo, State: c.stateLocked()}}

	sessionID := c.session.ID()
	pending := call{generation: c.generation}
	if c.phase.Clarifying() {
		questionText := q.Text
		pending.endpoint = gateway.EndpointClarify
		pending.do = func(ctx context.Context) (*gateway.Response, error) {
			return c.gw.Clarify(ctx, sessionID, questionText, enc.Answer)
		}
	} else {
		pending.endpoint = gateway.EndpointAdvance
		pending.do = func(ctx context.Context) (*gateway.Response, error) {
			return c.gw.Advance(ctx, sessionID, enc.Answer)
		}
	}
	return pending, events, nil
}

// applyLocked folds a gateway result into the controller state.
func (c *Controller) applyLocked(p call, resp *gateway.Response, err error, turn *Turn) []Event {
	var events []Event
	appendMsg := func(m Message) {
		c.log.Append(m)
		events = append(events, Event{Kind: EventMessage, Message: &m, State: c.stateLocked()})
	}

	if err != nil {
		log.Printf("intake: %s failed: %v", p.endpoint, err)
		turn.Status = TurnTransport
		turn.Err = err
		if p.starting {
			appendMsg(p.opening)
			appendMsg(c.message(AuthorBot, KindText, StartFailedMessage))
		} else {
			appendMsg(c.message(AuthorBot, KindText, AdvanceFailedMessage))
		}
		return events
	}

	outcome := resp.Outcome()
	if p.starting && outcome != gateway.OutcomeError && outcome != gateway.OutcomeNone {
		if resp.SessionID == "" {
			log.Printf("intake: %s response carried no session id", p.endpoint)
			turn.Status = TurnNoop
			return events
		}
		c.beginSessionLocked(resp.SessionID)
		appendMsg(p.opening)
	}

	switch outcome {
	case gateway.OutcomeSummary:
		appendMsg(c.message(AuthorBot, KindText, resp.Summary))
		c.completeLocked()
		turn.Status = TurnComplete
		events = append(events, Event{Kind: EventComplete, State: c.stateLocked()})

	case gateway.OutcomeQuestion:
		next := *resp.NextQuestion
		c.q = &next
		if resp.Phase != "" {
			c.phase = Phase(resp.Phase)
		}
		if next.Kind() == question.TypeSignature {
			c.signatureVisible = true
		}
		appendMsg(c.message(AuthorBot, KindText, next.Text))
		turn.Status = TurnQuestion
		events = append(events, Event{Kind: EventQuestion, State: c.stateLocked()})

	case gateway.OutcomeError:
		c.notice = string(resp.Error)
		turn.Status = TurnNotice
		events = append(events, Event{Kind: EventNotice, State: c.stateLocked()})

	default:
		log.Printf("intake: %s response had no question, summary or error", p.endpoint)
		turn.Status = TurnNoop
	}
	return events
}

func (c *Controller) beginSessionLocked(id string) {
	c.session = &Session{id: id, started: c.now()}
	if err := c.ids.Set(id); err != nil {
		log.Printf("intake: store session id: %v", err)
	}
	if c.metrics != nil {
		c.metrics.SessionsActive.Inc()
	}
}

func (c *Controller) completeLocked() {
	c.q = nil
	c.phase = PhaseComplete
	c.complete = true
	c.signatureVisible = false
	if err := c.ids.Clear(); err != nil {
		log.Printf("intake: clear session id: %v", err)
	}
	if c.metrics != nil {
		c.metrics.SessionsActive.Dec()
		c.metrics.SessionsCompleted.Inc()
	}
}

// NewSession discards the current session. The log is kept; the next
// submission starts a new session, and any response still in flight for the
// old one is dropped.
func (c *Controller) NewSession() {
	c.mu.Lock()
	if c.session != nil && !c.complete && c.metrics != nil {
		c.metrics.SessionsActive.Dec()
	}
	c.generation++
	c.session = nil
	c.phase = PhaseNone
	c.q = nil
	c.busy = false
	c.complete = false
	c.signatureVisible = false
	c.errs = make(map[question.Field]string)
	c.notice = ""
	if err := c.ids.Clear(); err != nil {
		log.Printf("intake: clear session id: %v", err)
	}
	ev := Event{Kind: EventReset, State: c.stateLocked()}
	c.mu.Unlock()
	c.emit([]Event{ev})
}

// ClearError removes the validation error for field, as when the user edits it.
func (c *Controller) ClearError(field question.Field) {
	c.mu.Lock()
	delete(c.errs, field)
	c.mu.Unlock()
}

// HideSignature collapses the signature pad until the next signature question.
func (c *Controller) HideSignature() {
	c.mu.Lock()
	c.signatureVisible = false
	c.mu.Unlock()
}

// Notice returns the current domain error notice, if any.
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// DismissNotice clears the domain error notice.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	if c.notice == "" {
		c.mu.Unlock()
		return
	}
	c.notice = ""
	ev := Event{Kind: EventNotice, State: c.stateLocked()}
	c.mu.Unlock()
	c.emit([]Event{ev})
}

func (c *Controller) message(author Author, kind Kind, payload string) Message {
	return Message{Author: author, Kind: kind, Payload: payload, At: c.now()}
}

func (c *Controller) countRejection(t question.Type) {
	if c.metrics != nil {
		c.metrics.ValidationFailures.WithLabelValues(string(t)).Inc()
	}
}

func (c *Controller) emit(events []Event) {
	if c.onEvent == nil {
		return
	}
	for _, ev := range events {
		c.onEvent(ev)
	}
}
